// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcp implements a TCP transport multiplexing many logical ports over one physical
// connection per remote locator.
//
// Every message is prefixed by a frame header carrying its logical port. Logical port 0 is
// used by a control protocol handling the connection handshake, the opening and closing of
// logical ports and keep-alives. Outbound channels are created on demand by
// OpenOutputChannel and reconnect when they are used after a connection loss.
package tcp

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/internal/utils"
	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
)

// ErrTransportClosed is returned after Close.
var ErrTransportClosed = errors.New("transport is closed")

// Receiver of data frames for one logical port.
type Receiver interface {
	// OnDataReceived is called from a channel's receive goroutine. Local is the local locator
	// including the logical port, remote the peer's physical locator.
	OnDataReceived(data []byte, local, remote locator.Locator)
}

// ReceiverFunc adapts a function to a Receiver.
type ReceiverFunc func(data []byte, local, remote locator.Locator)

// OnDataReceived calls f.
func (f ReceiverFunc) OnDataReceived(data []byte, local, remote locator.Locator) {
	f(data, local, remote)
}

// inputChannel is a registered Receiver. The read lock is held while the receiver is in use.
type inputChannel struct {
	sync.RWMutex
	receiver Receiver
	closed   bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithGuidPrefix sets the local participant's GUID prefix announced in handshakes.
func WithGuidPrefix(prefix rtps.GuidPrefix) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// Transport manages channels, keyed by their remote physical locator, and inputs, keyed by
// their logical port.
type Transport struct {
	desc      Descriptor
	kind      locator.Kind
	prefix    rtps.GuidPrefix
	connector connector

	rtcp           *rtcpManager
	keepAlive      *utils.TimedEvent
	keepAliveMutex sync.Mutex

	acceptors []*acceptor

	// channels holds one reference for each known channel. table indexes the bound ones by
	// their remote physical locator and never contains two channels for one locator.
	channelsMutex sync.Mutex
	channels      map[*channel]struct{}
	table         map[locator.Locator]*channel

	inputsMutex sync.RWMutex
	inputs      map[uint16]*inputChannel

	localIPs []net.IP

	// closed is accessed by sync.atomic functions
	closed uint32
	wg     sync.WaitGroup
}

// NewTransport validates the Descriptor, starts one acceptor per listening port and the
// keep-alive timer.
func NewTransport(desc Descriptor, opts ...Option) (*Transport, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}
	desc.resolveBufferSizes()

	t := &Transport{
		desc:     desc,
		kind:     locator.KindTCPv4,
		channels: make(map[*channel]struct{}),
		table:    make(map[locator.Locator]*channel),
		inputs:   make(map[uint16]*inputChannel),
	}
	for _, opt := range opts {
		opt(t)
	}

	if ip := net.ParseIP(desc.ListenAddress); ip != nil && ip.To4() == nil {
		t.kind = locator.KindTCPv6
	}

	if desc.ApplySecurity {
		configs, err := desc.TLS.build()
		if err != nil {
			return nil, fmt.Errorf("invalid TLS configuration: %w", err)
		}
		t.connector = &secureConnector{desc: &t.desc, configs: configs}
	} else {
		t.connector = &basicConnector{desc: &t.desc}
	}

	t.rtcp = newRtcpManager(t)
	t.localIPs = localInterfaceIPs()

	for _, port := range desc.ListeningPorts {
		address := net.JoinHostPort(desc.ListenAddress, strconv.Itoa(int(port)))
		a, err := newAcceptor(t, address)
		if err != nil {
			for _, started := range t.acceptors {
				started.close()
			}
			t.wg.Wait()
			return nil, fmt.Errorf("listening on %s failed: %w", address, err)
		}
		t.acceptors = append(t.acceptors, a)
	}

	if desc.KeepAliveFrequency > 0 {
		t.keepAlive = utils.NewTimedEvent(desc.KeepAliveFrequency, t.onKeepAlive)
		t.keepAlive.RestartTimer()
	}

	t.log().WithFields(log.Fields{
		"variant":   t.connector.Variant(),
		"listening": t.ListeningLocators(),
	}).Info("Started TCP transport")

	return t, nil
}

func (t *Transport) log() *log.Entry {
	return log.WithField("transport", t.kind)
}

func (t *Transport) isClosed() bool {
	return atomic.LoadUint32(&t.closed) != 0
}

// Descriptor in use, with resolved buffer sizes.
func (t *Transport) Descriptor() Descriptor {
	return t.desc
}

// Variant of this Transport's channels.
func (t *Transport) Variant() Variant {
	return t.connector.Variant()
}

// IsLocatorSupported checks the locator's kind.
func (t *Transport) IsLocatorSupported(loc locator.Locator) bool {
	return loc.Kind == t.kind
}

// ListeningLocators are the physical locators of all acceptors.
func (t *Transport) ListeningLocators() []locator.Locator {
	locs := make([]locator.Locator, 0, len(t.acceptors))
	for _, a := range t.acceptors {
		locs = append(locs, a.locator)
	}
	return locs
}

// OpenOutputChannel for a locator. An existing channel to the physical locator is reused,
// otherwise a new one is created and connected in the background. The logical port is
// added to the channel and the returned SenderResource holds a channel reference until it
// is closed.
func (t *Transport) OpenOutputChannel(loc locator.Locator) (*SenderResource, error) {
	if !t.IsLocatorSupported(loc) {
		return nil, fmt.Errorf("locator %v is not supported", loc)
	} else if loc.LogicalPort() == 0 {
		return nil, fmt.Errorf("locator %v has the reserved logical port 0", loc)
	}

	ch, err := t.outputChannel(loc)
	if err != nil {
		return nil, err
	}

	sr := &SenderResource{transport: t, channel: ch, locator: loc}
	t.log().WithFields(log.Fields{
		"locator": loc,
		"channel": ch.id,
	}).Debug("Opened output channel")
	return sr, nil
}

// outputChannel resolves or creates the channel for a locator, adds its logical port and
// returns it with an acquired reference.
func (t *Transport) outputChannel(loc locator.Locator) (*channel, error) {
	phys := loc.ToPhysical()

	t.channelsMutex.Lock()
	if t.isClosed() {
		t.channelsMutex.Unlock()
		return nil, ErrTransportClosed
	}

	var stale *channel
	ch, ok := t.table[phys]
	if ok && !ch.acquire() {
		if _, known := t.channels[ch]; known {
			stale = ch
		}
		t.unregisterLocked(ch)
		ok = false
	}
	if !ok {
		ch = newChannel(connectType, phys, t.connector, &t.desc)
		t.channels[ch] = struct{}{}
		t.table[phys] = ch
		ch.acquire()
	}
	// Adding the port under channelsMutex keeps CloseOutputChannel from removing a channel
	// which is just being handed out.
	added := ch.AddLogicalPort(loc.LogicalPort())
	t.channelsMutex.Unlock()

	if stale != nil {
		stale.release()
	}

	if added {
		t.rtcp.openPendingPorts(ch)
	}
	if ch.connType == connectType && ch.Status() == statusDisconnected {
		t.connect(ch)
	}
	return ch, nil
}

// CloseOutputChannel releases a SenderResource. An outbound channel without any logical port
// left is disabled and removed.
func (t *Transport) CloseOutputChannel(sr *SenderResource) {
	if !atomic.CompareAndSwapUint32(&sr.closed, 0, 1) {
		return
	}

	ch := sr.currentChannel()

	t.channelsMutex.Lock()
	empty := ch.RemoveLogicalPort(sr.locator.LogicalPort()) && ch.connType == connectType
	_, known := t.channels[ch]
	if empty && known {
		t.unregisterLocked(ch)
	}
	t.channelsMutex.Unlock()

	if empty {
		ch.log().Debug("Outbound channel has no logical port left")
		ch.disable()
		if known {
			ch.release()
		}
	}
	ch.release()
}

// IsOutputChannelOpen checks if a channel to the physical locator exists with the logical
// port added.
func (t *Transport) IsOutputChannelOpen(loc locator.Locator) bool {
	if !t.IsLocatorSupported(loc) {
		return false
	}

	t.channelsMutex.Lock()
	ch, ok := t.table[loc.ToPhysical()]
	t.channelsMutex.Unlock()

	return ok && ch.IsLogicalPortAdded(loc.LogicalPort())
}

// OpenInputChannel registers a Receiver for the locator's logical port. False is returned if
// the port is reserved or already registered.
func (t *Transport) OpenInputChannel(loc locator.Locator, receiver Receiver) bool {
	port := loc.LogicalPort()
	if !t.IsLocatorSupported(loc) || port == 0 || receiver == nil || t.isClosed() {
		return false
	}

	t.inputsMutex.Lock()
	defer t.inputsMutex.Unlock()

	if _, exists := t.inputs[port]; exists {
		return false
	}
	t.inputs[port] = &inputChannel{receiver: receiver}

	t.log().WithField("port", port).Debug("Opened input channel")
	return true
}

// CloseInputChannel unregisters the logical port's Receiver and informs all established
// peers. It returns after the Receiver is no longer in use.
func (t *Transport) CloseInputChannel(loc locator.Locator) bool {
	port := loc.LogicalPort()

	t.inputsMutex.Lock()
	input, exists := t.inputs[port]
	delete(t.inputs, port)
	t.inputsMutex.Unlock()

	if !exists {
		return false
	}

	input.Lock()
	input.closed = true
	input.Unlock()

	for _, ch := range t.acquireChannels() {
		if ch.Status() == statusEstablished {
			_ = t.rtcp.sendLogicalPortIsClosed(ch, port)
		}
		ch.release()
	}

	t.log().WithField("port", port).Debug("Closed input channel")
	return true
}

// IsInputChannelOpen checks if a Receiver is registered for the logical port.
func (t *Transport) IsInputChannelOpen(loc locator.Locator) bool {
	return t.IsLocatorSupported(loc) && t.isInputOpen(loc.LogicalPort())
}

func (t *Transport) isInputOpen(port uint16) bool {
	t.inputsMutex.RLock()
	defer t.inputsMutex.RUnlock()

	_, exists := t.inputs[port]
	return exists
}

// dispatch a data frame to its input.
func (t *Transport) dispatch(ch *channel, local locator.Locator, data []byte) {
	port := local.LogicalPort()

	t.inputsMutex.RLock()
	input := t.inputs[port]
	t.inputsMutex.RUnlock()

	if input == nil {
		frameErrorsTotal.WithLabelValues("no_input").Inc()
		ch.log().WithField("port", port).Debug("Dropped frame for a logical port without input")
		return
	}

	input.RLock()
	defer input.RUnlock()

	if !input.closed {
		input.receiver.OnDataReceived(data, local, ch.Remote())
	}
}

// send data on a channel. Sending to a logical port not yet opened either fails or waits for
// the negotiation, depending on WaitForTCPNegotiation. A disconnected outbound channel is
// reconnected and the send fails.
func (t *Transport) send(ch *channel, remote locator.Locator, data []byte) error {
	if uint32(len(data)) > t.desc.MaxMessageSize || uint32(len(data)) > t.desc.SendBufferSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	} else if ch.isDisabled() {
		return ErrChannelDisabled
	}

	port := remote.LogicalPort()
	if !ch.IsLogicalPortAdded(port) {
		ch.AddLogicalPort(port)
	}

	switch ch.Status() {
	case statusEstablished:
		wire, opened := ch.wirePort(port)
		if !opened {
			t.rtcp.openPendingPorts(ch)

			if !t.desc.WaitForTCPNegotiation || !ch.WaitUntilPortIsOpen(port, t.desc.TCPNegotiationTimeout) {
				return ErrPortNotOpen
			}
			wire, _ = ch.wirePort(port)
		}

		_, err := ch.writeFrame(wire, data)
		return err

	case statusDisconnected:
		if ch.connType == connectType {
			ch.SetAllPortsPending()
			t.connect(ch)
		}
		return ErrChannelDisconnected

	default:
		return ErrChannelDisconnected
	}
}

// connect an outbound channel in the background. Only one attempt runs at a time.
func (t *Transport) connect(ch *channel) {
	if t.isClosed() || ch.inBackoff() || !ch.acquire() {
		return
	}
	if !ch.compareAndSwapStatus(statusDisconnected, statusConnecting) {
		ch.release()
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ch.release()

		atomic.AddUint32(&ch.connectAttempts, 1)
		logger := ch.log()

		conn, err := ch.connector.Connect(ch.Remote().HostPort())
		if err != nil {
			connectAttemptsTotal.WithLabelValues("failure").Inc()
			if errors.Is(err, ErrHandshake) {
				ch.backoff(handshakeBackoff)
			}
			ch.SetAllPortsPending()
			ch.setStatus(statusDisconnected)
			logger.WithError(err).Info("Connecting failed")
			return
		}

		if t.isClosed() || !ch.attachSession(conn) {
			_ = conn.Close()
			ch.setStatus(statusDisconnected)
			return
		}
		connectAttemptsTotal.WithLabelValues("success").Inc()

		ch.setStatus(statusConnected)
		logger.WithField("local", conn.LocalAddr()).Debug("Connected")

		if !t.startListening(ch, conn) {
			return
		}
		_ = t.rtcp.sendConnectionRequest(ch)
	}()
}

// startListening starts a session's receive goroutine with its own channel reference.
func (t *Transport) startListening(ch *channel, conn net.Conn) bool {
	if !ch.acquire() {
		ch.disconnect(conn)
		return false
	}

	t.wg.Add(1)
	go t.listen(ch, conn)
	return true
}

// onSessionClosed is called after a session's receive loop ended.
func (t *Transport) onSessionClosed(ch *channel, conn net.Conn) {
	if ch.disconnect(conn) {
		ch.log().Info("Channel disconnected")
	}

	if ch.connType == acceptType || ch.isDisabled() {
		t.removeChannel(ch)
	}
}

// registerChannel adds an accepted channel to the registry without binding it.
func (t *Transport) registerChannel(ch *channel) bool {
	t.channelsMutex.Lock()
	defer t.channelsMutex.Unlock()

	if t.isClosed() {
		return false
	}
	t.channels[ch] = struct{}{}
	return true
}

// bindChannel indexes an accepted channel by the peer's physical locator. A stale channel
// for this locator is replaced; a live one is kept and the new channel stays unbound, still
// delivering the peer's data.
func (t *Transport) bindChannel(ch *channel, remote locator.Locator) {
	t.channelsMutex.Lock()

	if _, known := t.channels[ch]; !known {
		t.channelsMutex.Unlock()
		return
	}

	var stale *channel
	if existing, ok := t.table[remote]; ok && existing != ch {
		if existing.Status() != statusDisconnected || existing.connType == connectType {
			t.channelsMutex.Unlock()
			ch.log().WithField("existing", existing.id).Debug("Physical locator is already bound, channel stays unbound")
			return
		}
		stale = existing
		t.unregisterLocked(stale)
	}

	ch.setRemote(remote)
	t.table[remote] = ch
	t.channelsMutex.Unlock()

	if stale != nil {
		stale.log().Debug("Replaced stale channel")
		stale.disable()
		stale.release()
	}
}

// removeChannel from the registry and the table, releasing the registry's reference.
func (t *Transport) removeChannel(ch *channel) {
	t.channelsMutex.Lock()
	_, known := t.channels[ch]
	if known {
		t.unregisterLocked(ch)
	}
	t.channelsMutex.Unlock()

	if known {
		ch.release()
	}
}

// unregisterLocked drops a channel from the registry and the table. The caller holds
// channelsMutex and releases the registry's reference afterwards.
func (t *Transport) unregisterLocked(ch *channel) {
	delete(t.channels, ch)
	if t.table[ch.Remote()] == ch {
		delete(t.table, ch.Remote())
	}
}

// acquireChannels returns all known channels with an acquired reference each.
func (t *Transport) acquireChannels() []*channel {
	t.channelsMutex.Lock()
	defer t.channelsMutex.Unlock()

	chs := make([]*channel, 0, len(t.channels))
	for ch := range t.channels {
		if ch.acquire() {
			chs = append(chs, ch)
		}
	}
	return chs
}

// guidPrefix of the local participant.
func (t *Transport) guidPrefix() rtps.GuidPrefix {
	return t.prefix
}

// localLocator announced to a channel's peer: the session's local IP address together with
// the first listening port. Without acceptors, an invalid locator is announced.
func (t *Transport) localLocator(ch *channel) locator.Locator {
	if len(t.acceptors) == 0 {
		return locator.Locator{Kind: locator.KindInvalid}
	}

	loc := t.acceptors[0].locator
	if conn := ch.currentSession(); conn != nil {
		if local := locatorFromAddr(conn.LocalAddr()); local.IsValid() {
			local.SetPhysicalPort(loc.PhysicalPort())
			loc = local
		}
	}
	return loc
}

// Close the Transport: the keep-alive timer and all acceptors are stopped, established
// peers are informed, all channels are disabled and the control protocol is drained. Close
// returns after every goroutine of this Transport finished.
func (t *Transport) Close() {
	if !atomic.CompareAndSwapUint32(&t.closed, 0, 1) {
		return
	}

	if t.keepAlive != nil {
		t.keepAlive.Stop()

		// Wait for a running keep-alive round.
		t.keepAliveMutex.Lock()
		t.keepAliveMutex.Unlock() //nolint:staticcheck
	}

	for _, a := range t.acceptors {
		a.close()
	}

	chs := t.acquireChannels()
	for _, ch := range chs {
		if ch.compareAndSwapStatus(statusEstablished, statusUnbinding) {
			_ = t.rtcp.sendUnbind(ch)
		}
	}
	for _, ch := range chs {
		ch.disable()
	}

	t.rtcp.dispose()

	t.channelsMutex.Lock()
	registered := make([]*channel, 0, len(t.channels))
	for ch := range t.channels {
		registered = append(registered, ch)
	}
	t.channels = make(map[*channel]struct{})
	t.table = make(map[locator.Locator]*channel)
	t.channelsMutex.Unlock()

	for _, ch := range registered {
		ch.release()
	}
	for _, ch := range chs {
		ch.release()
	}

	t.wg.Wait()
	t.log().Info("Closed TCP transport")
}

// ChannelInfo describes a channel for status reports.
type ChannelInfo struct {
	Id              uint64   `json:"id"`
	Remote          string   `json:"remote"`
	Type            string   `json:"type"`
	Status          string   `json:"status"`
	Bound           bool     `json:"bound"`
	LogicalPorts    []uint16 `json:"logical_ports"`
	ConnectAttempts uint32   `json:"connect_attempts"`
	RemotePrefix    string   `json:"remote_prefix"`
}

// Channels reports all known channels, ordered by their id.
func (t *Transport) Channels() []ChannelInfo {
	chs := t.acquireChannels()

	t.channelsMutex.Lock()
	bound := make(map[*channel]bool, len(t.table))
	for _, ch := range t.table {
		bound[ch] = true
	}
	t.channelsMutex.Unlock()

	infos := make([]ChannelInfo, 0, len(chs))
	for _, ch := range chs {
		infos = append(infos, ChannelInfo{
			Id:              ch.id,
			Remote:          ch.Remote().String(),
			Type:            ch.connType.String(),
			Status:          ch.Status().String(),
			Bound:           bound[ch],
			LogicalPorts:    ch.LogicalPorts(),
			ConnectAttempts: ch.ConnectAttempts(),
			RemotePrefix:    ch.RemotePrefix().String(),
		})
		ch.release()
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Id < infos[j].Id })
	return infos
}

// InputPorts with a registered Receiver, in increasing order.
func (t *Transport) InputPorts() []uint16 {
	t.inputsMutex.RLock()
	ports := make([]uint16, 0, len(t.inputs))
	for port := range t.inputs {
		ports = append(ports, port)
	}
	t.inputsMutex.RUnlock()

	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}
