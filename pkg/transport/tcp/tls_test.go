// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSignedCert creates a self-signed certificate for 127.0.0.1, usable as its own
// authority, and returns the paths of the certificate and the key.
func writeSelfSignedCert(t *testing.T, name string) (certFile, keyFile string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	certFile = filepath.Join(dir, name+".crt")
	keyFile = filepath.Join(dir, name+".key")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}
	return
}

func secureDescriptor(certFile, keyFile, caFile string) Descriptor {
	desc := testDescriptor()
	desc.ApplySecurity = true
	desc.TLS.CertificateChainFile = certFile
	desc.TLS.RSAPrivateKeyFile = keyFile
	desc.TLS.VerifyFile = caFile
	desc.TLS.VerifyMode = VerifyPeer | VerifyFailIfNoPeerCert
	return desc
}

func TestTransportSecure(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t, "rtps")
	desc := secureDescriptor(certFile, keyFile, certFile)

	server := newTestTransport(t, desc, 1)
	client := newTestTransport(t, desc, 2)

	if server.Variant() != Secure {
		t.Fatalf("transport uses the %v variant", server.Variant())
	}

	inbox := newCollector()
	dst := listening(t, server, 7400)
	server.OpenInputChannel(dst, inbox)

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "secret")
	inbox.expect(t, "secret")
}

func TestTransportSecureServerRole(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t, "rtps")
	desc := secureDescriptor(certFile, keyFile, certFile)
	desc.TLS.HandshakeRole = RoleServer

	server := newTestTransport(t, desc, 1)
	client := newTestTransport(t, desc, 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	server.OpenInputChannel(dst, inbox)

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	sendEventually(t, sr, "reversed")
	inbox.expect(t, "reversed")
}

func TestTransportSecureUntrusted(t *testing.T) {
	serverCert, serverKey := writeSelfSignedCert(t, "server")
	clientCert, clientKey := writeSelfSignedCert(t, "client")

	server := newTestTransport(t, secureDescriptor(serverCert, serverKey, serverCert), 1)
	// The client only trusts itself.
	client := newTestTransport(t, secureDescriptor(clientCert, clientKey, clientCert), 2)

	inbox := newCollector()
	dst := listening(t, server, 7400)
	server.OpenInputChannel(dst, inbox)

	sr, err := client.OpenOutputChannel(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()

	ch := sr.currentChannel()
	waitFor(t, "failed handshake", func() bool {
		return ch.ConnectAttempts() >= 1 && ch.Status() == statusDisconnected
	})

	if !ch.inBackoff() {
		t.Fatal("failed handshake did not delay reconnecting")
	}

	// Sending within the backoff does not try to connect again.
	_ = sr.Send([]byte("rejected"))
	if attempts := ch.ConnectAttempts(); attempts != 1 {
		t.Fatalf("expected 1 connect attempt, got %d", attempts)
	}
	inbox.expectNothing(t)
}
