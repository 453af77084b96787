// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"net"
	"time"
)

// Variant of a channel's physical connection.
type Variant uint8

const (
	// Basic channels use plain TCP.
	Basic Variant = iota
	// Secure channels use TLS on top of TCP.
	Secure
)

func (v Variant) String() string {
	switch v {
	case Basic:
		return "basic"
	case Secure:
		return "secure"
	default:
		return "unknown"
	}
}

// connector establishes a channel's session. The Transport picks one variant when it is
// created; all reads, writes and closes afterwards use the returned net.Conn.
type connector interface {
	Variant() Variant

	// Connect to a physical address, including the TLS handshake for secure channels.
	Connect(address string) (net.Conn, error)

	// Accept wraps an accepted TCP connection, including the TLS handshake for secure channels.
	Accept(raw net.Conn) (net.Conn, error)
}

// setSocketOptions applies the Descriptor to the TCP connection below a session.
func setSocketOptions(conn net.Conn, desc *Descriptor) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(desc.EnableTCPNoDelay); err != nil {
		return err
	}
	if desc.SendBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(int(desc.SendBufferSize)); err != nil {
			return err
		}
	}
	if desc.ReceiveBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(int(desc.ReceiveBufferSize)); err != nil {
			return err
		}
	}
	return nil
}

// handshakeTimeout bounds a TLS handshake.
const handshakeTimeout = 10 * time.Second

// handshakeBackoff delays reconnecting after a failed TLS handshake.
const handshakeBackoff = 5 * time.Second
