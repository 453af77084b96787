// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
	"github.com/dtn7/rtps-go/pkg/transport/tcp"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging   logConf
	Transport transportConf
	Input     []inputConf
	Peer      []peerConf
	Api       apiConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string

	// File enables logging into a rotated file instead of stderr.
	File       string
	MaxSize    int  `toml:"max-size"`
	MaxBackups int  `toml:"max-backups"`
	MaxAge     int  `toml:"max-age"`
	Compress   bool `toml:"compress"`
}

// transportConf describes the Transport-configuration block. Unset fields keep their default.
type transportConf struct {
	GuidPrefix    string   `toml:"guid-prefix"`
	ListenAddress string   `toml:"listen-address"`
	ListenPorts   []uint16 `toml:"listen-ports"`

	SendBufferSize    *uint32 `toml:"send-buffer-size"`
	ReceiveBufferSize *uint32 `toml:"receive-buffer-size"`
	MaxMessageSize    *uint32 `toml:"max-message-size"`

	KeepAliveFrequency string `toml:"keep-alive-frequency"`
	KeepAliveTimeout   string `toml:"keep-alive-timeout"`

	MaxLogicalPort       *uint16 `toml:"max-logical-port"`
	LogicalPortRange     *uint16 `toml:"logical-port-range"`
	LogicalPortIncrement *uint16 `toml:"logical-port-increment"`

	TCPNegotiationTimeout string `toml:"tcp-negotiation-timeout"`
	WaitForTCPNegotiation *bool  `toml:"wait-for-tcp-negotiation"`
	EnableTCPNoDelay      *bool  `toml:"tcp-no-delay"`
	CalculateCRC          *bool  `toml:"calculate-crc"`
	CheckCRC              *bool  `toml:"check-crc"`

	TLS *tlsConf
}

// tlsConf describes the optional TLS-configuration block, enabling the secure variant.
type tlsConf struct {
	Password             string
	VerifyFile           string   `toml:"verify-file"`
	VerifyPaths          []string `toml:"verify-paths"`
	DefaultVerifyPath    bool     `toml:"default-verify-path"`
	VerifyDepth          int      `toml:"verify-depth"`
	VerifyMode           []string `toml:"verify-mode"`
	CertificateChainFile string   `toml:"certificate-chain-file"`
	PrivateKeyFile       string   `toml:"private-key-file"`
	RSAPrivateKeyFile    string   `toml:"rsa-private-key-file"`
	TmpDHFile            string   `toml:"tmp-dh-file"`
	Options              []string
	HandshakeRole        string `toml:"handshake-role"`
	ServerName           string `toml:"server-name"`
}

// inputConf describes an "input" block, a logical port to receive on.
type inputConf struct {
	Port uint16
}

// peerConf describes a "peer" block, a named output locator like "127.0.0.1:5100".
type peerConf struct {
	Name        string
	Address     string
	LogicalPort uint16 `toml:"logical-port"`
}

// apiConf describes the Api-configuration block.
type apiConf struct {
	Listen string
}

// daemonConf is the parsed configuration.
type daemonConf struct {
	logging    logConf
	descriptor tcp.Descriptor
	prefix     rtps.GuidPrefix
	inputs     []uint16
	peers      map[string]locator.Locator
	apiListen  string
}

// readConfig decodes a TOML file.
func readConfig(filename string) (conf tomlConfig, err error) {
	_, err = toml.DecodeFile(filename, &conf)
	return
}

// parseConfig reads and checks the whole configuration. Every problem is reported.
func parseConfig(filename string) (dc daemonConf, err error) {
	conf, err := readConfig(filename)
	if err != nil {
		return
	}

	var errs error

	dc.logging = conf.Logging

	if dc.descriptor, err = parseTransport(conf.Transport); err != nil {
		errs = multierror.Append(errs, err)
	}

	if conf.Transport.GuidPrefix != "" {
		if dc.prefix, err = rtps.ParseGuidPrefix(conf.Transport.GuidPrefix); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("transport.guid-prefix: %w", err))
		}
	}

	for _, input := range conf.Input {
		if input.Port == 0 {
			errs = multierror.Append(errs, fmt.Errorf("input.port must not be 0"))
			continue
		}
		dc.inputs = append(dc.inputs, input.Port)
	}

	dc.peers = make(map[string]locator.Locator)
	for _, peer := range conf.Peer {
		if peer.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("peer %s has no name", peer.Address))
			continue
		} else if _, exists := dc.peers[peer.Name]; exists {
			errs = multierror.Append(errs, fmt.Errorf("peer %s is configured twice", peer.Name))
			continue
		} else if peer.LogicalPort == 0 {
			errs = multierror.Append(errs, fmt.Errorf("peer %s has no logical port", peer.Name))
			continue
		}

		loc, locErr := locator.Parse(peer.Address, peer.LogicalPort)
		if locErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("peer %s: %w", peer.Name, locErr))
			continue
		}
		dc.peers[peer.Name] = loc
	}

	dc.apiListen = conf.Api.Listen

	err = errs
	return
}

func parseDuration(name, value string, target *time.Duration) error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("transport.%s: %w", name, err)
	}
	*target = d
	return nil
}

// parseTransport into a validated Descriptor.
func parseTransport(conf transportConf) (desc tcp.Descriptor, errs error) {
	desc = tcp.DefaultDescriptor()
	desc.ListenAddress = conf.ListenAddress
	desc.ListeningPorts = conf.ListenPorts

	setUint32 := func(target *uint32, value *uint32) {
		if value != nil {
			*target = *value
		}
	}
	setUint16 := func(target *uint16, value *uint16) {
		if value != nil {
			*target = *value
		}
	}
	setBool := func(target *bool, value *bool) {
		if value != nil {
			*target = *value
		}
	}

	setUint32(&desc.SendBufferSize, conf.SendBufferSize)
	setUint32(&desc.ReceiveBufferSize, conf.ReceiveBufferSize)
	setUint32(&desc.MaxMessageSize, conf.MaxMessageSize)
	setUint16(&desc.MaxLogicalPort, conf.MaxLogicalPort)
	setUint16(&desc.LogicalPortRange, conf.LogicalPortRange)
	setUint16(&desc.LogicalPortIncrement, conf.LogicalPortIncrement)
	setBool(&desc.WaitForTCPNegotiation, conf.WaitForTCPNegotiation)
	setBool(&desc.EnableTCPNoDelay, conf.EnableTCPNoDelay)
	setBool(&desc.CalculateCRC, conf.CalculateCRC)
	setBool(&desc.CheckCRC, conf.CheckCRC)

	for _, d := range []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"keep-alive-frequency", conf.KeepAliveFrequency, &desc.KeepAliveFrequency},
		{"keep-alive-timeout", conf.KeepAliveTimeout, &desc.KeepAliveTimeout},
		{"tcp-negotiation-timeout", conf.TCPNegotiationTimeout, &desc.TCPNegotiationTimeout},
	} {
		if err := parseDuration(d.name, d.value, d.target); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if conf.TLS != nil {
		desc.ApplySecurity = true
		if err := parseTLS(*conf.TLS, &desc.TLS); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if errs != nil {
		return
	}

	if err := desc.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return
}

var (
	verifyModes = map[string]tcp.TLSVerifyMode{
		"none":                 tcp.VerifyNone,
		"peer":                 tcp.VerifyPeer,
		"fail-if-no-peer-cert": tcp.VerifyFailIfNoPeerCert,
		"client-once":          tcp.VerifyClientOnce,
	}

	tlsOptions = map[string]tcp.TLSOptions{
		"default-workarounds": tcp.TLSDefaultWorkarounds,
		"no-compression":      tcp.TLSNoCompression,
		"no-sslv2":            tcp.TLSNoSSLv2,
		"no-sslv3":            tcp.TLSNoSSLv3,
		"no-tlsv1":            tcp.TLSNoTLSv1,
		"no-tlsv1.1":          tcp.TLSNoTLSv1_1,
		"no-tlsv1.2":          tcp.TLSNoTLSv1_2,
		"no-tlsv1.3":          tcp.TLSNoTLSv1_3,
		"single-dh-use":       tcp.TLSSingleDHUse,
	}

	handshakeRoles = map[string]tcp.TLSHandshakeRole{
		"":        tcp.RoleDefault,
		"default": tcp.RoleDefault,
		"client":  tcp.RoleClient,
		"server":  tcp.RoleServer,
	}
)

func parseTLS(conf tlsConf, tc *tcp.TLSConfig) (errs error) {
	tc.Password = conf.Password
	tc.VerifyFile = conf.VerifyFile
	tc.VerifyPaths = conf.VerifyPaths
	tc.DefaultVerifyPath = conf.DefaultVerifyPath
	tc.VerifyDepth = conf.VerifyDepth
	tc.CertificateChainFile = conf.CertificateChainFile
	tc.PrivateKeyFile = conf.PrivateKeyFile
	tc.RSAPrivateKeyFile = conf.RSAPrivateKeyFile
	tc.TmpDHFile = conf.TmpDHFile
	tc.ServerName = conf.ServerName

	if conf.VerifyMode != nil {
		tc.VerifyMode = tcp.VerifyNone
		for _, name := range conf.VerifyMode {
			if mode, ok := verifyModes[name]; ok {
				tc.VerifyMode |= mode
			} else {
				errs = multierror.Append(errs, fmt.Errorf("transport.tls.verify-mode: unknown mode %q", name))
			}
		}
	}

	if conf.Options != nil {
		tc.Options = 0
		for _, name := range conf.Options {
			if option, ok := tlsOptions[name]; ok {
				tc.Options |= option
			} else {
				errs = multierror.Append(errs, fmt.Errorf("transport.tls.options: unknown option %q", name))
			}
		}
	}

	if role, ok := handshakeRoles[conf.HandshakeRole]; ok {
		tc.HandshakeRole = role
	} else {
		errs = multierror.Append(errs, fmt.Errorf("transport.tls.handshake-role: unknown role %q", conf.HandshakeRole))
	}

	return
}

// logFile is the currently used rotating log file, closed when being replaced.
var logFile io.Closer

// applyLogging configures logrus. It might be called again when the configuration changes.
func applyLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}

	previous := logFile
	if conf.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
			Compress:   conf.Compress,
		}
		log.SetOutput(rotated)
		logFile = rotated
	} else {
		log.SetOutput(os.Stderr)
		logFile = nil
	}

	if previous != nil {
		_ = previous.Close()
	}
}
