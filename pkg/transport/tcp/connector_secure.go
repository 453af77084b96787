// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
)

// ErrHandshake wraps failed TLS handshakes. Such a failure delays the next attempt.
var ErrHandshake = errors.New("TLS handshake failed")

// secureConnector creates TLS sessions.
type secureConnector struct {
	desc    *Descriptor
	configs *tlsConfigs
}

func (sc *secureConnector) Variant() Variant {
	return Secure
}

func (sc *secureConnector) Connect(address string) (net.Conn, error) {
	raw, err := dial(address)
	if err != nil {
		return nil, err
	}

	if err := setSocketOptions(raw, sc.desc); err != nil {
		_ = raw.Close()
		return nil, err
	}

	config, asClient := sc.configs.forConnect()
	return sc.handshake(raw, withServerName(config, asClient, address), asClient)
}

func (sc *secureConnector) Accept(raw net.Conn) (net.Conn, error) {
	if err := setSocketOptions(raw, sc.desc); err != nil {
		_ = raw.Close()
		return nil, err
	}

	config, asClient := sc.configs.forAccept()
	return sc.handshake(raw, withServerName(config, asClient, raw.RemoteAddr().String()), asClient)
}

// withServerName lets a verifying TLS client expect the peer's host if no name is configured.
func withServerName(config *tls.Config, asClient bool, address string) *tls.Config {
	if !asClient || config.ServerName != "" || config.InsecureSkipVerify {
		return config
	}

	if host, _, err := net.SplitHostPort(address); err == nil {
		config = config.Clone()
		config.ServerName = host
	}
	return config
}

func (sc *secureConnector) handshake(raw net.Conn, config *tls.Config, asClient bool) (net.Conn, error) {
	var conn *tls.Conn
	if asClient {
		conn = tls.Client(raw, config)
	} else {
		conn = tls.Server(raw, config)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return conn, nil
}
