// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	// MaxMessageSizeLimit is the greatest supported MaxMessageSize.
	MaxMessageSizeLimit uint32 = 65000

	// minimumSocketBufferSize is used if the system's default is smaller.
	minimumSocketBufferSize uint32 = 65536
)

// Descriptor configures a Transport. Create one by DefaultDescriptor and modify its fields.
type Descriptor struct {
	// ListeningPorts are the physical ports to accept connections on. A port of 0 picks a free
	// port; ListeningLocators reports the resulting ones.
	ListeningPorts []uint16

	// ListenAddress restricts the acceptors to one local address. Empty means all interfaces.
	ListenAddress string

	// SendBufferSize and ReceiveBufferSize of each socket. Zero means the system's default.
	SendBufferSize    uint32
	ReceiveBufferSize uint32

	// MaxMessageSize is the greatest payload a frame might carry.
	MaxMessageSize uint32

	KeepAliveFrequency time.Duration
	KeepAliveTimeout   time.Duration

	// MaxLogicalPort is the greatest offset to a rejected logical port while negotiating.
	MaxLogicalPort       uint16
	LogicalPortRange     uint16
	LogicalPortIncrement uint16

	// TCPNegotiationTimeout for WaitForTCPNegotiation.
	TCPNegotiationTimeout time.Duration
	// WaitForTCPNegotiation makes a send wait until the peer confirmed the logical port.
	// Otherwise sending to a port not yet opened fails immediately.
	WaitForTCPNegotiation bool

	EnableTCPNoDelay bool

	CalculateCRC bool
	CheckCRC     bool

	// ApplySecurity enables TLS, configured by TLS.
	ApplySecurity bool
	TLS           TLSConfig
}

// DefaultDescriptor without any listening port.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		MaxMessageSize:        MaxMessageSizeLimit,
		KeepAliveFrequency:    10 * time.Second,
		KeepAliveTimeout:      30 * time.Second,
		MaxLogicalPort:        100,
		LogicalPortRange:      20,
		LogicalPortIncrement:  2,
		TCPNegotiationTimeout: 5 * time.Second,
		WaitForTCPNegotiation: false,
		EnableTCPNoDelay:      false,
		CalculateCRC:          true,
		CheckCRC:              true,
		ApplySecurity:         false,
		TLS:                   DefaultTLSConfig(),
	}
}

// Validate checks the Descriptor and reports every problem at once.
func (desc Descriptor) Validate() (errs error) {
	if desc.MaxMessageSize == 0 {
		errs = multierror.Append(errs, fmt.Errorf("MaxMessageSize must not be zero"))
	} else if desc.MaxMessageSize > MaxMessageSizeLimit {
		errs = multierror.Append(errs,
			fmt.Errorf("MaxMessageSize %d exceeds the limit of %d", desc.MaxMessageSize, MaxMessageSizeLimit))
	}

	if desc.SendBufferSize != 0 && desc.MaxMessageSize > desc.SendBufferSize {
		errs = multierror.Append(errs,
			fmt.Errorf("MaxMessageSize %d exceeds SendBufferSize %d", desc.MaxMessageSize, desc.SendBufferSize))
	}
	if desc.ReceiveBufferSize != 0 && desc.MaxMessageSize > desc.ReceiveBufferSize {
		errs = multierror.Append(errs,
			fmt.Errorf("MaxMessageSize %d exceeds ReceiveBufferSize %d", desc.MaxMessageSize, desc.ReceiveBufferSize))
	}

	if desc.LogicalPortIncrement == 0 {
		errs = multierror.Append(errs, fmt.Errorf("LogicalPortIncrement must not be zero"))
	}
	if desc.LogicalPortRange == 0 {
		errs = multierror.Append(errs, fmt.Errorf("LogicalPortRange must not be zero"))
	}

	if desc.KeepAliveFrequency < 0 || desc.KeepAliveTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("keep-alive durations must not be negative"))
	}
	if desc.WaitForTCPNegotiation && desc.TCPNegotiationTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("WaitForTCPNegotiation requires a positive TCPNegotiationTimeout"))
	}

	if desc.ApplySecurity {
		if tlsErr := desc.TLS.Validate(); tlsErr != nil {
			errs = multierror.Append(errs, tlsErr)
		}
	}

	return
}

// resolveBufferSizes replaces zero buffer sizes by the system's default.
func (desc *Descriptor) resolveBufferSizes() {
	if desc.SendBufferSize != 0 && desc.ReceiveBufferSize != 0 {
		return
	}

	sndBuf, rcvBuf := systemBufferSizes()
	if desc.SendBufferSize == 0 {
		desc.SendBufferSize = maxUint32(sndBuf, minimumSocketBufferSize)
	}
	if desc.ReceiveBufferSize == 0 {
		desc.ReceiveBufferSize = maxUint32(rcvBuf, minimumSocketBufferSize)
	}
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// candidatePorts for negotiating a logical port, starting after offset from. At most
// LogicalPortRange ports are returned; an empty result means the negotiation is exhausted.
func (desc Descriptor) candidatePorts(port uint16, from uint16) (candidates []uint16) {
	inc := uint32(desc.LogicalPortIncrement)
	if inc == 0 {
		return
	}

	for offset := uint32(from) + inc; offset <= uint32(desc.MaxLogicalPort); offset += inc {
		if len(candidates) >= int(desc.LogicalPortRange) || uint32(port)+offset > 0xffff {
			break
		}
		candidates = append(candidates, uint16(uint32(port)+offset))
	}
	return
}
