// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
)

// received is one delivered data frame.
type received struct {
	data          string
	local, remote locator.Locator
}

// collector is a Receiver storing everything it gets.
type collector struct {
	frames chan received
}

func newCollector() *collector {
	return &collector{frames: make(chan received, 1024)}
}

func (c *collector) OnDataReceived(data []byte, local, remote locator.Locator) {
	c.frames <- received{string(data), local, remote}
}

func (c *collector) expect(t *testing.T, data string) received {
	t.Helper()

	select {
	case r := <-c.frames:
		if r.data != data {
			t.Fatalf("expected %q, got %q", data, r.data)
		}
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("%q was not received", data)
	}
	return received{}
}

func (c *collector) expectNothing(t *testing.T) {
	t.Helper()

	select {
	case r := <-c.frames:
		t.Fatalf("unexpected frame %q", r.data)
	case <-time.After(100 * time.Millisecond):
	}
}

func testDescriptor() Descriptor {
	desc := DefaultDescriptor()
	desc.ListeningPorts = []uint16{0}
	desc.ListenAddress = "127.0.0.1"
	desc.KeepAliveFrequency = 0
	desc.WaitForTCPNegotiation = true
	desc.TCPNegotiationTimeout = 2 * time.Second
	return desc
}

func newTestTransport(t *testing.T, desc Descriptor, prefix byte) *Transport {
	tr, err := NewTransport(desc, WithGuidPrefix(rtps.GuidPrefix{prefix}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func listening(t *testing.T, tr *Transport, logicalPort uint16) locator.Locator {
	locs := tr.ListeningLocators()
	if len(locs) != 1 {
		t.Fatalf("expected one listening locator, got %v", locs)
	}
	return locs[0].WithLogicalPort(logicalPort)
}

// sendEventually retries until the channel is established and the port negotiated.
func sendEventually(t *testing.T, sr *SenderResource, data string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		err := sr.Send([]byte(data))
		if err == nil {
			return
		} else if time.Now().After(deadline) {
			t.Fatalf("sending %q failed: %v", data, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func tableSize(tr *Transport) int {
	tr.channelsMutex.Lock()
	defer tr.channelsMutex.Unlock()
	return len(tr.table)
}

func TestTransportSendReceive(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	if !server.OpenInputChannel(dst, inbox) {
		t.Fatal("opening input channel failed")
	}
	if server.OpenInputChannel(dst, inbox) {
		t.Fatal("input channel was opened twice")
	}
	if !server.IsInputChannelOpen(dst) {
		t.Fatal("input channel is not open")
	}

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	if !client.IsOutputChannelOpen(dst) {
		t.Fatal("output channel is not open")
	}
	if sr.Locator() != dst {
		t.Fatalf("sender has locator %v", sr.Locator())
	}

	sendEventually(t, sr, "hello")
	r := inbox.expect(t, "hello")
	if r.local.LogicalPort() != 7400 || !r.remote.IsLoopback() {
		t.Fatalf("unexpected locators %v, %v", r.local, r.remote)
	}

	for i := 0; i < 100; i++ {
		if err := sr.Send([]byte(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 100; i++ {
		inbox.expect(t, fmt.Sprintf("msg-%d", i))
	}

	// The accepted channel is bound to the client's listening port.
	waitFor(t, "bound accepted channel", func() bool {
		for _, info := range server.Channels() {
			if info.Bound && info.Status == statusEstablished.String() {
				return info.Remote == listening(t, client, 0).String()
			}
		}
		return false
	})

	if infos := client.Channels(); len(infos) != 1 || infos[0].RemotePrefix != (rtps.GuidPrefix{1}).String() {
		t.Fatalf("unexpected client channels %v", infos)
	}
}

func TestTransportSharedChannel(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inboxes := map[uint16]*collector{7400: newCollector(), 7410: newCollector()}
	senders := make(map[uint16]*SenderResource)

	for port, inbox := range inboxes {
		if !server.OpenInputChannel(listening(t, server, port), inbox) {
			t.Fatal("opening input channel failed")
		}

		sr, err := client.OpenOutputChannel(listening(t, server, port))
		if err != nil {
			t.Fatal(err)
		}
		senders[port] = sr
	}

	if n := tableSize(client); n != 1 {
		t.Fatalf("expected one physical channel, got %d", n)
	}

	for port, sr := range senders {
		sendEventually(t, sr, fmt.Sprintf("to %d", port))
	}
	for port, inbox := range inboxes {
		inbox.expect(t, fmt.Sprintf("to %d", port))
		inbox.expectNothing(t)
	}

	ch := senders[7400].currentChannel()
	senders[7400].Close()
	senders[7400].Close()

	if ch.isDisabled() || client.IsOutputChannelOpen(listening(t, server, 7400)) {
		t.Fatal("closing one of two senders affected the channel")
	}

	senders[7410].Close()
	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel without logical ports was not released")
	}
	if n := tableSize(client); n != 0 {
		t.Fatalf("table still has %d channels", n)
	}
}

func TestTransportNotWaitingForNegotiation(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	desc := testDescriptor()
	desc.WaitForTCPNegotiation = false
	client := newTestTransport(t, desc, 2)

	inbox := newCollector()
	server.OpenInputChannel(listening(t, server, 7400), inbox)

	sr, err := client.OpenOutputChannel(listening(t, server, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	// The first attempts fail fast, but the port gets opened in the background.
	sendEventually(t, sr, "late")
	inbox.expect(t, "late")
}

func TestTransportPortNegotiation(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inbox := newCollector()
	if !server.OpenInputChannel(listening(t, server, 7406), inbox) {
		t.Fatal("opening input channel failed")
	}

	// Nothing listens on 7400, but on one of its candidates.
	sr, err := client.OpenOutputChannel(listening(t, server, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "negotiated")
	if r := inbox.expect(t, "negotiated"); r.local.LogicalPort() != 7406 {
		t.Fatalf("delivered to logical port %d", r.local.LogicalPort())
	}

	if wire, opened := sr.currentChannel().wirePort(7400); wire != 7406 || !opened {
		t.Fatalf("expected wire port 7406, got %d (%t)", wire, opened)
	}
}

func TestTransportNegotiationTimeout(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	desc := testDescriptor()
	desc.TCPNegotiationTimeout = 200 * time.Millisecond
	client := newTestTransport(t, desc, 2)

	sr, err := client.OpenOutputChannel(listening(t, server, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	waitFor(t, "established channel", func() bool {
		return sr.currentChannel().Status() == statusEstablished
	})

	start := time.Now()
	if err := sr.Send([]byte("nobody listens")); !errors.Is(err, ErrPortNotOpen) {
		t.Fatalf("expected ErrPortNotOpen, got %v", err)
	} else if time.Since(start) < 200*time.Millisecond {
		t.Fatal("send did not wait for the negotiation")
	}
}

func TestTransportMessageTooLarge(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	desc := testDescriptor()
	desc.MaxMessageSize = 1000
	client := newTestTransport(t, desc, 2)

	sr, err := client.OpenOutputChannel(listening(t, server, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	if err := sr.Send(make([]byte, 1001)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestTransportOversizedFrame(t *testing.T) {
	desc := testDescriptor()
	desc.MaxMessageSize = 1000
	server := newTestTransport(t, desc, 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inbox := newCollector()
	server.OpenInputChannel(listening(t, server, 7400), inbox)

	sr, err := client.OpenOutputChannel(listening(t, server, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "small")
	inbox.expect(t, "small")

	// The server drops the frame, but keeps the connection.
	if err := sr.Send(make([]byte, 5000)); err != nil {
		t.Fatal(err)
	}
	if err := sr.Send([]byte("after")); err != nil {
		t.Fatal(err)
	}
	inbox.expect(t, "after")
}

func TestTransportCloseInputChannel(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	desc := testDescriptor()
	desc.TCPNegotiationTimeout = 200 * time.Millisecond
	client := newTestTransport(t, desc, 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	server.OpenInputChannel(dst, inbox)

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "first")
	inbox.expect(t, "first")

	if !server.CloseInputChannel(dst) {
		t.Fatal("closing input channel failed")
	}
	if server.CloseInputChannel(dst) {
		t.Fatal("input channel was closed twice")
	}

	waitFor(t, "pending port", func() bool {
		return !sr.currentChannel().IsLogicalPortOpened(7400)
	})

	if err := sr.Send([]byte("second")); err == nil {
		t.Fatal("sending to a closed input succeeded")
	}

	// Reopening the input makes the port usable again.
	server.OpenInputChannel(dst, inbox)
	sendEventually(t, sr, "third")
	inbox.expect(t, "third")
	inbox.expectNothing(t)
}

func TestTransportReconnect(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	server.OpenInputChannel(dst, inbox)

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "before")
	inbox.expect(t, "before")

	ch := sr.currentChannel()
	if !ch.disconnect(nil) {
		t.Fatal("disconnecting failed")
	}

	// Concurrent senders trigger exactly one reconnect.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sr.Send([]byte("racing"))
		}()
	}
	wg.Wait()

	waitFor(t, "reestablished channel", func() bool {
		return ch.Status() == statusEstablished
	})
	if attempts := ch.ConnectAttempts(); attempts != 2 {
		t.Fatalf("expected 2 connect attempts, got %d", attempts)
	}

	sendEventually(t, sr, "after")
	for r := range inbox.frames {
		if r.data == "after" {
			break
		} else if r.data != "racing" {
			t.Fatalf("unexpected frame %q", r.data)
		}
	}

	if n := tableSize(client); n != 1 {
		t.Fatalf("client has %d table entries", n)
	}
	waitFor(t, "stale accepted channel removal", func() bool {
		return tableSize(server) <= 1 && len(server.Channels()) == 1
	})
}

func TestTransportSimultaneousOpen(t *testing.T) {
	a := newTestTransport(t, testDescriptor(), 1)
	b := newTestTransport(t, testDescriptor(), 2)

	inboxA, inboxB := newCollector(), newCollector()
	a.OpenInputChannel(listening(t, a, 7400), inboxA)
	b.OpenInputChannel(listening(t, b, 7400), inboxB)

	toB, err := a.OpenOutputChannel(listening(t, b, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer toB.Close()

	toA, err := b.OpenOutputChannel(listening(t, a, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer toA.Close()

	sendEventually(t, toB, "a to b")
	sendEventually(t, toA, "b to a")
	inboxB.expect(t, "a to b")
	inboxA.expect(t, "b to a")

	// Whichever channel was bound first is shared, none is bound twice.
	for _, tr := range []*Transport{a, b} {
		if n := tableSize(tr); n != 1 {
			t.Fatalf("expected one table entry, got %d", n)
		}
	}
}

func TestTransportKeepAliveTimeout(t *testing.T) {
	desc := testDescriptor()
	desc.KeepAliveFrequency = 50 * time.Millisecond
	desc.KeepAliveTimeout = 200 * time.Millisecond
	server := newTestTransport(t, desc, 1)

	// A silent peer never completes the handshake.
	conn, err := net.Dial("tcp", listening(t, server, 0).HostPort())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("silent connection received data")
	} else if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
		t.Fatal("silent connection was not closed")
	}

	waitFor(t, "removed channel", func() bool {
		return len(server.Channels()) == 0
	})
}

func TestTransportKeepAlive(t *testing.T) {
	desc := testDescriptor()
	desc.KeepAliveFrequency = 50 * time.Millisecond
	desc.KeepAliveTimeout = 300 * time.Millisecond
	server := newTestTransport(t, desc, 1)
	client := newTestTransport(t, desc, 2)

	inbox := newCollector()
	server.OpenInputChannel(listening(t, server, 7400), inbox)

	sr, err := client.OpenOutputChannel(listening(t, server, 7400))
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "ping")
	inbox.expect(t, "ping")

	// Keep-alives keep an otherwise idle channel alive.
	ch := sr.currentChannel()
	time.Sleep(time.Second)

	if ch.Status() != statusEstablished || ch.ConnectAttempts() != 1 {
		t.Fatalf("idle channel was not kept alive: %v, %d attempts", ch.Status(), ch.ConnectAttempts())
	}
	if err := sr.Send([]byte("pong")); err != nil {
		t.Fatal(err)
	}
	inbox.expect(t, "pong")
}

func TestTransportClose(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	client, err := NewTransport(testDescriptor())
	if err != nil {
		t.Fatal(err)
	}

	inbox := newCollector()
	dst := listening(t, server, 7400)
	server.OpenInputChannel(dst, inbox)

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	sendEventually(t, sr, "bye")
	inbox.expect(t, "bye")

	ch := sr.currentChannel()
	client.Close()
	client.Close()

	if !ch.isDisabled() {
		t.Fatal("channel was not disabled")
	}
	if err := sr.Send([]byte("after close")); err == nil {
		t.Fatal("sending after close succeeded")
	}
	if _, err := client.OpenOutputChannel(dst); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
	if client.OpenInputChannel(dst, inbox) {
		t.Fatal("opened an input channel after close")
	}

	// The server got an unbind and removed the accepted channel.
	waitFor(t, "server channel removal", func() bool {
		return len(server.Channels()) == 0
	})

	sr.Close()
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel was not released after the last sender")
	}

	if _, err := net.Dial("tcp", listening(t, client, 0).HostPort()); err == nil {
		t.Fatal("acceptor still accepts connections")
	}
}

func TestTransportUnsupportedLocators(t *testing.T) {
	tr := newTestTransport(t, testDescriptor(), 1)

	v6 := locator.New(locator.KindTCPv6, net.IPv6loopback, 5100, 7400)
	if tr.IsLocatorSupported(v6) {
		t.Fatal("IPv6 locator is supported by an IPv4 transport")
	}
	if _, err := tr.OpenOutputChannel(v6); err == nil {
		t.Fatal("opened an output channel to an unsupported locator")
	}
	if tr.OpenInputChannel(v6, newCollector()) {
		t.Fatal("opened an input channel for an unsupported locator")
	}

	control := listening(t, tr, 0)
	if _, err := tr.OpenOutputChannel(control); err == nil {
		t.Fatal("opened an output channel to logical port 0")
	}
	if tr.OpenInputChannel(control, newCollector()) {
		t.Fatal("opened an input channel for logical port 0")
	}
	if tr.OpenInputChannel(listening(t, tr, 7400), nil) {
		t.Fatal("opened an input channel without a receiver")
	}
}

func TestTransportInvalidDescriptor(t *testing.T) {
	desc := testDescriptor()
	desc.MaxMessageSize = 0

	if _, err := NewTransport(desc); err == nil {
		t.Fatal("invalid descriptor was accepted")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	desc = testDescriptor()
	desc.ListeningPorts = []uint16{0, uint16(ln.Addr().(*net.TCPAddr).Port)}
	if _, err := NewTransport(desc); err == nil {
		t.Fatal("listening on a used port succeeded")
	}
}

func TestShrinkLocatorLists(t *testing.T) {
	tr := newTestTransport(t, testDescriptor(), 1)

	loopback := locator.New(locator.KindTCPv4, net.IPv4(127, 0, 0, 1), 5100, 7400)
	remote := locator.New(locator.KindTCPv4, net.IPv4(192, 0, 2, 1), 5100, 7400)

	lists := [][]locator.Locator{{loopback, remote}, {remote, loopback}}

	var local []locator.Locator
	for _, ip := range tr.localIPs {
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
			local = append(local, locator.New(locator.KindTCPv4, ip4, 5100, 7400))
		}
	}
	lists = append(lists, local)

	shrinked := tr.ShrinkLocatorLists(lists)
	if len(shrinked) != 2 || shrinked[0] != loopback || shrinked[1] != remote {
		t.Fatalf("unexpected shrinked list %v", shrinked)
	}
}

func TestTransportSenderLeavesDisabledChannel(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	if !server.OpenInputChannel(dst, inbox) {
		t.Fatal("opening input channel failed")
	}

	sr1, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr1.Close()

	sendEventually(t, sr1, "first")
	inbox.expect(t, "first")

	ch := sr1.currentChannel()
	ch.RemoveLogicalPort(dst.LogicalPort())

	sr2, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr2.Close()

	if sr2.currentChannel() != ch {
		t.Fatal("second sender did not share the channel")
	}

	// The shared channel goes away while sr2 still refers to it.
	client.removeChannel(ch)
	ch.disable()

	sendEventually(t, sr2, "second")
	inbox.expect(t, "second")

	if sr2.currentChannel() == ch {
		t.Fatal("sender still uses the disabled channel")
	}
	if size := tableSize(client); size != 1 {
		t.Fatalf("expected one table entry, got %d", size)
	}
}

func TestTransportConcurrentCloseAndOpen(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)
	client := newTestTransport(t, testDescriptor(), 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	if !server.OpenInputChannel(dst, inbox) {
		t.Fatal("opening input channel failed")
	}

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	sendEventually(t, sr, "start")
	inbox.expect(t, "start")

	for i := 0; i < 10; i++ {
		var (
			wg    sync.WaitGroup
			next  *SenderResource
			opErr error
		)

		wg.Add(2)
		go func(old *SenderResource) {
			defer wg.Done()
			old.Close()
		}(sr)
		go func() {
			defer wg.Done()
			next, opErr = client.OpenOutputChannel(dst)
		}()
		wg.Wait()

		if opErr != nil {
			t.Fatal(opErr)
		}
		sr = next

		msg := fmt.Sprintf("round-%d", i)
		sendEventually(t, sr, msg)
		inbox.expect(t, msg)

		if size := tableSize(client); size != 1 {
			t.Fatalf("expected one table entry, got %d", size)
		}
	}
	sr.Close()
}
