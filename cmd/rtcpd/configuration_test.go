// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/rtps-go/pkg/transport/tcp"
)

func writeConfig(t *testing.T, content string) string {
	filename := filepath.Join(t.TempDir(), "rtcpd.toml")
	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestParseConfigExample(t *testing.T) {
	dc, err := parseConfig("rtcpd.toml")
	if err != nil {
		t.Fatal(err)
	}

	if dc.logging.Level != "info" || dc.logging.Format != "text" {
		t.Fatalf("unexpected logging block %v", dc.logging)
	}
	if dc.prefix.String() != "010f0a0b0c0d0e0f01020304" {
		t.Fatalf("unexpected prefix %v", dc.prefix)
	}
	if !reflect.DeepEqual(dc.inputs, []uint16{7400, 7410}) {
		t.Fatalf("unexpected inputs %v", dc.inputs)
	}

	peer, ok := dc.peers["other"]
	if !ok || peer.PhysicalPort() != 5101 || peer.LogicalPort() != 7400 || !peer.IsLoopback() {
		t.Fatalf("unexpected peer %v", peer)
	}

	desc := dc.descriptor
	if !reflect.DeepEqual(desc.ListeningPorts, []uint16{5100}) || desc.ListenAddress != "0.0.0.0" {
		t.Fatalf("unexpected listening configuration %v, %s", desc.ListeningPorts, desc.ListenAddress)
	}
	if !desc.WaitForTCPNegotiation || desc.TCPNegotiationTimeout != 5*time.Second {
		t.Fatal("negotiation settings were not applied")
	}
	if desc.ApplySecurity {
		t.Fatal("security is enabled without a TLS block")
	}
	if dc.apiListen != "127.0.0.1:8080" {
		t.Fatalf("unexpected API address %s", dc.apiListen)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	dc, err := parseConfig(writeConfig(t, `
[transport]
listen-ports = [0]
`))
	if err != nil {
		t.Fatal(err)
	}

	expected := tcp.DefaultDescriptor()
	expected.ListeningPorts = []uint16{0}
	if !reflect.DeepEqual(dc.descriptor, expected) {
		t.Fatalf("expected the default descriptor, got %+v", dc.descriptor)
	}
}

func TestParseConfigTransport(t *testing.T) {
	dc, err := parseConfig(writeConfig(t, `
[transport]
max-message-size = 1000
max-logical-port = 200
logical-port-range = 5
logical-port-increment = 1
calculate-crc = false
check-crc = false
tcp-no-delay = true
keep-alive-frequency = "1s"
keep-alive-timeout = "0s"

[transport.tls]
verify-mode = ["peer", "fail-if-no-peer-cert"]
options = ["no-tlsv1", "no-tlsv1.1"]
handshake-role = "server"
server-name = "rtps.example"
`))
	if err != nil {
		t.Fatal(err)
	}

	desc := dc.descriptor
	if desc.MaxMessageSize != 1000 || desc.MaxLogicalPort != 200 || desc.LogicalPortRange != 5 || desc.LogicalPortIncrement != 1 {
		t.Fatalf("numbers were not applied: %+v", desc)
	}
	if desc.CalculateCRC || desc.CheckCRC || !desc.EnableTCPNoDelay {
		t.Fatalf("flags were not applied: %+v", desc)
	}
	if desc.KeepAliveFrequency != time.Second || desc.KeepAliveTimeout != 0 {
		t.Fatalf("durations were not applied: %v, %v", desc.KeepAliveFrequency, desc.KeepAliveTimeout)
	}

	if !desc.ApplySecurity {
		t.Fatal("TLS block did not enable security")
	}
	if desc.TLS.VerifyMode != tcp.VerifyPeer|tcp.VerifyFailIfNoPeerCert {
		t.Fatalf("unexpected verify mode %b", desc.TLS.VerifyMode)
	}
	if desc.TLS.Options != tcp.TLSNoTLSv1|tcp.TLSNoTLSv1_1 {
		t.Fatalf("unexpected options %b", desc.TLS.Options)
	}
	if desc.TLS.HandshakeRole != tcp.RoleServer || desc.TLS.ServerName != "rtps.example" {
		t.Fatalf("unexpected TLS configuration %+v", desc.TLS)
	}
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig(writeConfig(t, `
[transport]
guid-prefix = "0102"
max-message-size = 70000
keep-alive-timeout = "soon"

[transport.tls]
verify-mode = ["paranoid"]
handshake-role = "both"

[[input]]
port = 0

[[peer]]
name = "a"
address = "127.0.0.1:5100"
logical-port = 7400

[[peer]]
name = "a"
address = "127.0.0.1:5101"
logical-port = 7400

[[peer]]
name = "b"
address = "127.0.0.1:5100"
`))
	if err == nil {
		t.Fatal("invalid configuration was accepted")
	}

	mErr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected a multierror, got %T: %v", err, err)
	}

	// keep-alive-timeout, verify-mode, handshake-role, guid-prefix, input, both peers;
	// the descriptor is not validated after parsing errors.
	if len(mErr.Errors) != 7 {
		t.Fatalf("expected 7 errors, got %d: %v", len(mErr.Errors), mErr)
	}
}

func TestParseConfigMissingFile(t *testing.T) {
	if _, err := parseConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing file was parsed")
	}
}
