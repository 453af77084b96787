// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"net"
	"testing"
	"time"

	"github.com/dtn7/rtps-go/pkg/transport/tcp/internal/frame"
)

// dialRaw opens a plain TCP connection to a Transport's acceptor, bypassing any handshake.
func dialRaw(t *testing.T, tr *Transport) net.Conn {
	conn, err := net.Dial("tcp", listening(t, tr, 0).HostPort())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeRaw(t *testing.T, conn net.Conn, data []byte) {
	if _, err := conn.Write(data); err != nil {
		t.Fatal(err)
	}
}

func TestListenChecksumMismatch(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	inbox := newCollector()
	if !server.OpenInputChannel(listening(t, server, 7400), inbox) {
		t.Fatal("opening input channel failed")
	}

	conn := dialRaw(t, server)

	corrupted := encodeFrame(t, 7400, []byte("corrupted"))
	hdr := frame.NewHeader(7400, []byte("corrupted"), true)
	hdr.CRC++
	hdr.Put(corrupted)

	writeRaw(t, conn, corrupted)
	writeRaw(t, conn, encodeFrame(t, 7400, []byte("intact")))

	inbox.expect(t, "corrupted")
	inbox.expect(t, "intact")

	if infos := server.Channels(); len(infos) != 1 {
		t.Fatalf("expected the accepted channel to stay, got %v", infos)
	}
}

func TestListenBadTag(t *testing.T) {
	server := newTestTransport(t, testDescriptor(), 1)

	inbox := newCollector()
	if !server.OpenInputChannel(listening(t, server, 7400), inbox) {
		t.Fatal("opening input channel failed")
	}

	conn := dialRaw(t, server)

	writeRaw(t, conn, encodeFrame(t, 7400, []byte("first")))
	inbox.expect(t, "first")
	waitFor(t, "accepted channel", func() bool { return len(server.Channels()) == 1 })

	bad := encodeFrame(t, 7400, []byte("bad"))
	copy(bad, "XTCP")
	writeRaw(t, conn, bad)

	waitFor(t, "closed channel", func() bool { return len(server.Channels()) == 0 })
	inbox.expectNothing(t)

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(make([]byte, 64)); err == nil {
		t.Fatal("connection is still open")
	}
}
