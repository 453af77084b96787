// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import "net"

// basicConnector creates plain TCP sessions.
type basicConnector struct {
	desc *Descriptor
}

func (bc *basicConnector) Variant() Variant {
	return Basic
}

func (bc *basicConnector) Connect(address string) (net.Conn, error) {
	conn, err := dial(address)
	if err != nil {
		return nil, err
	}

	if err := setSocketOptions(conn, bc.desc); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (bc *basicConnector) Accept(raw net.Conn) (net.Conn, error) {
	if err := setSocketOptions(raw, bc.desc); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return raw, nil
}
