// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// TLSVerifyMode is a bitmask describing how peers' certificates are verified.
type TLSVerifyMode uint8

const (
	// VerifyNone accepts every peer.
	VerifyNone TLSVerifyMode = 0

	// VerifyPeer checks a presented certificate against the configured authorities.
	VerifyPeer TLSVerifyMode = 1 << 0

	// VerifyFailIfNoPeerCert requires a client certificate; only used by the server role.
	VerifyFailIfNoPeerCert TLSVerifyMode = 1 << 1

	// VerifyClientOnce is accepted for compatibility. Go never renegotiates.
	VerifyClientOnce TLSVerifyMode = 1 << 2
)

// TLSOptions is a bitmask of protocol restrictions.
type TLSOptions uint32

const (
	TLSDefaultWorkarounds TLSOptions = 1 << iota
	TLSNoCompression
	TLSNoSSLv2
	TLSNoSSLv3
	TLSNoTLSv1
	TLSNoTLSv1_1
	TLSNoTLSv1_2
	TLSNoTLSv1_3
	TLSSingleDHUse
)

// TLSHandshakeRole decides which side of a TCP connection acts as the TLS client.
type TLSHandshakeRole uint8

const (
	// RoleDefault lets the connecting side act as TLS client.
	RoleDefault TLSHandshakeRole = iota
	// RoleClient is the same as RoleDefault.
	RoleClient
	// RoleServer lets the connecting side act as TLS server. Both peers must agree on it.
	RoleServer
)

// TLSConfig of the secure channel variant. All paths refer to PEM files.
type TLSConfig struct {
	// Password decrypts encrypted private keys.
	Password string

	// VerifyFile contains the certificate authorities to verify peers against.
	VerifyFile string
	// VerifyPaths are directories with additional certificate authorities.
	VerifyPaths []string
	// DefaultVerifyPath adds the system's certificate pool.
	DefaultVerifyPath bool
	// VerifyDepth limits the length of a peer's chain below its authority. Zero is unlimited.
	VerifyDepth int
	VerifyMode  TLSVerifyMode

	CertificateChainFile string
	PrivateKeyFile       string
	RSAPrivateKeyFile    string

	// TmpDHFile is not supported; Go negotiates ephemeral keys itself.
	TmpDHFile string

	Options       TLSOptions
	HandshakeRole TLSHandshakeRole

	// ServerName overrides the name expected in a server's certificate.
	ServerName string
}

// DefaultTLSConfig verifies peers and lets the connecting side be the TLS client.
func DefaultTLSConfig() TLSConfig {
	return TLSConfig{
		VerifyMode:    VerifyPeer,
		HandshakeRole: RoleDefault,
		Options:       TLSDefaultWorkarounds | TLSNoSSLv2 | TLSNoSSLv3,
	}
}

// Validate the TLSConfig without loading any file.
func (tc TLSConfig) Validate() (errs error) {
	if tc.TmpDHFile != "" {
		errs = multierror.Append(errs, fmt.Errorf("TmpDHFile %s is not supported", tc.TmpDHFile))
	}
	if tc.CertificateChainFile != "" && tc.PrivateKeyFile == "" && tc.RSAPrivateKeyFile == "" {
		errs = multierror.Append(errs, fmt.Errorf("CertificateChainFile requires a private key file"))
	}
	if tc.HandshakeRole > RoleServer {
		errs = multierror.Append(errs, fmt.Errorf("unknown handshake role %d", tc.HandshakeRole))
	}
	if tc.VerifyDepth < 0 {
		errs = multierror.Append(errs, fmt.Errorf("VerifyDepth must not be negative"))
	}
	return
}

// tlsConfigs for both TLS roles, built from the TLSConfig's files.
type tlsConfigs struct {
	client *tls.Config
	server *tls.Config
	role   TLSHandshakeRole
}

// forConnect returns the configuration for the connecting side and if it acts as TLS client.
func (tcs *tlsConfigs) forConnect() (*tls.Config, bool) {
	if tcs.role == RoleServer {
		return tcs.server, false
	}
	return tcs.client, true
}

// forAccept returns the configuration for the accepting side and if it acts as TLS client.
func (tcs *tlsConfigs) forAccept() (*tls.Config, bool) {
	if tcs.role == RoleServer {
		return tcs.client, true
	}
	return tcs.server, false
}

// build both TLS configurations. Every unreadable file is reported.
func (tc TLSConfig) build() (tcs *tlsConfigs, errs error) {
	if errs = tc.Validate(); errs != nil {
		return
	}

	var certs []tls.Certificate
	if tc.CertificateChainFile != "" {
		if cert, err := tc.loadCertificate(); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			certs = append(certs, cert)
		}
	}

	pool, poolErr := tc.loadCertPool()
	if poolErr != nil {
		errs = multierror.Append(errs, poolErr)
	}

	if errs != nil {
		return
	}

	minVersion, maxVersion := tc.versions()

	client := &tls.Config{
		Certificates:       certs,
		RootCAs:            pool,
		ServerName:         tc.ServerName,
		InsecureSkipVerify: tc.VerifyMode&VerifyPeer == 0,
		MinVersion:         minVersion,
		MaxVersion:         maxVersion,
	}

	server := &tls.Config{
		Certificates: certs,
		ClientCAs:    pool,
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
	}
	switch {
	case tc.VerifyMode&VerifyPeer == 0:
		server.ClientAuth = tls.NoClientCert
	case tc.VerifyMode&VerifyFailIfNoPeerCert != 0:
		server.ClientAuth = tls.RequireAndVerifyClientCert
	default:
		server.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if tc.VerifyDepth > 0 {
		depthCheck := tc.verifyDepth
		client.VerifyPeerCertificate = depthCheck
		server.VerifyPeerCertificate = depthCheck
	}

	tcs = &tlsConfigs{client: client, server: server, role: tc.HandshakeRole}
	return
}

func (tc TLSConfig) versions() (minVersion, maxVersion uint16) {
	minVersion = tls.VersionTLS10
	maxVersion = tls.VersionTLS13

	if tc.Options&TLSNoTLSv1 != 0 {
		minVersion = tls.VersionTLS11
	}
	if tc.Options&TLSNoTLSv1_1 != 0 && minVersion < tls.VersionTLS12 {
		minVersion = tls.VersionTLS12
	}
	if tc.Options&TLSNoTLSv1_2 != 0 && minVersion < tls.VersionTLS13 {
		minVersion = tls.VersionTLS13
	}
	if tc.Options&TLSNoTLSv1_3 != 0 {
		maxVersion = tls.VersionTLS12
	}
	return
}

func (tc TLSConfig) verifyDepth(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
	for _, chain := range verifiedChains {
		if len(chain)-1 <= tc.VerifyDepth {
			return nil
		}
	}
	if len(verifiedChains) == 0 {
		return nil
	}
	return fmt.Errorf("peer's certificate chain exceeds the verify depth of %d", tc.VerifyDepth)
}

func (tc TLSConfig) loadCertificate() (cert tls.Certificate, err error) {
	certPEM, err := os.ReadFile(tc.CertificateChainFile)
	if err != nil {
		return
	}

	keyFile := tc.PrivateKeyFile
	if keyFile == "" {
		keyFile = tc.RSAPrivateKeyFile
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return
	}

	if keyPEM, err = tc.decryptKey(keyPEM); err != nil {
		return
	}

	cert, err = tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		err = fmt.Errorf("loading %s and %s failed: %w", tc.CertificateChainFile, keyFile, err)
	}
	return
}

// decryptKey decrypts a legacy encrypted PEM private key with the configured password.
func (tc TLSConfig) decryptKey(keyPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil || !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		return keyPEM, nil
	}

	if tc.Password == "" {
		return nil, fmt.Errorf("private key is encrypted, but no password is configured")
	}

	der, err := x509.DecryptPEMBlock(block, []byte(tc.Password)) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("decrypting private key failed: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

func (tc TLSConfig) loadCertPool() (pool *x509.CertPool, errs error) {
	if tc.VerifyFile == "" && len(tc.VerifyPaths) == 0 && !tc.DefaultVerifyPath {
		return
	}

	if tc.DefaultVerifyPath {
		if sysPool, err := x509.SystemCertPool(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("loading system certificates failed: %w", err))
			pool = x509.NewCertPool()
		} else {
			pool = sysPool
		}
	} else {
		pool = x509.NewCertPool()
	}

	files := make([]string, 0, 1)
	if tc.VerifyFile != "" {
		files = append(files, tc.VerifyFile)
	}
	for _, dir := range tc.VerifyPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() && (strings.HasSuffix(name, ".pem") || strings.HasSuffix(name, ".crt")) {
				files = append(files, filepath.Join(dir, name))
			}
		}
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else if !pool.AppendCertsFromPEM(data) {
			errs = multierror.Append(errs, fmt.Errorf("no certificate found in %s", file))
		}
	}
	return
}
