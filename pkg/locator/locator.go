// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package locator describes transport addresses.
//
// A Locator carries a transport kind, an IP address and a 32 bit port. For stream transports
// the port is split into a physical port, the lower 16 bits, used for the socket, and a
// logical port, the upper 16 bits, which multiplexes many data streams over one connection.
package locator

import (
	"fmt"
	"net"
	"strconv"
)

// Kind of a Locator's transport.
type Kind int32

const (
	// KindInvalid marks an unset Locator.
	KindInvalid Kind = -1

	// KindTCPv4 is a TCP over IPv4 Locator.
	KindTCPv4 Kind = 4

	// KindTCPv6 is a TCP over IPv6 Locator.
	KindTCPv6 Kind = 8
)

func (k Kind) String() string {
	switch k {
	case KindTCPv4:
		return "TCPv4"
	case KindTCPv6:
		return "TCPv6"
	default:
		return "INVALID"
	}
}

// Locator is a comparable address tuple and therefore might be used as a map key.
type Locator struct {
	Kind    Kind
	Port    uint32
	Address [16]byte
}

// New Locator for a kind, an IP address and both ports.
func New(kind Kind, ip net.IP, physicalPort, logicalPort uint16) (loc Locator) {
	loc.Kind = kind
	loc.SetIP(ip)
	loc.SetPhysicalPort(physicalPort)
	loc.SetLogicalPort(logicalPort)
	return
}

// FromTCPAddr creates a physical Locator, without any logical port, from a net.TCPAddr.
func FromTCPAddr(addr *net.TCPAddr) Locator {
	kind := KindTCPv6
	if addr.IP.To4() != nil {
		kind = KindTCPv4
	}
	return New(kind, addr.IP, uint16(addr.Port), 0)
}

// Parse a Locator from an address like "127.0.0.1:5100". The logical port is set separately.
func Parse(address string, logicalPort uint16) (loc Locator, err error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return
	}

	var ip net.IP
	if host == "" {
		ip = net.IPv4zero
	} else if ip = net.ParseIP(host); ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil {
			err = lookupErr
			return
		} else if len(ips) == 0 {
			err = fmt.Errorf("no IP address for host %s", host)
			return
		}
		ip = ips[0]
	}

	kind := KindTCPv6
	if ip.To4() != nil {
		kind = KindTCPv4
	}

	loc = New(kind, ip, uint16(port), logicalPort)
	return
}

// PhysicalPort is the lower half of the Port.
func (loc Locator) PhysicalPort() uint16 {
	return uint16(loc.Port & 0xffff)
}

// LogicalPort is the upper half of the Port.
func (loc Locator) LogicalPort() uint16 {
	return uint16(loc.Port >> 16)
}

// SetPhysicalPort replaces the lower half of the Port.
func (loc *Locator) SetPhysicalPort(port uint16) {
	loc.Port = loc.Port&0xffff0000 | uint32(port)
}

// SetLogicalPort replaces the upper half of the Port.
func (loc *Locator) SetLogicalPort(port uint16) {
	loc.Port = loc.Port&0x0000ffff | uint32(port)<<16
}

// ToPhysical returns a copy of this Locator without a logical port, identifying a connection.
func (loc Locator) ToPhysical() Locator {
	physical := loc
	physical.SetLogicalPort(0)
	return physical
}

// WithLogicalPort returns a copy of this Locator with another logical port.
func (loc Locator) WithLogicalPort(port uint16) Locator {
	other := loc
	other.SetLogicalPort(port)
	return other
}

// SetIP stores an IPv4 address in the last four bytes or an IPv6 address in all 16 bytes.
func (loc *Locator) SetIP(ip net.IP) {
	loc.Address = [16]byte{}
	if ip == nil {
		return
	}

	if loc.Kind == KindTCPv4 {
		if ip4 := ip.To4(); ip4 != nil {
			copy(loc.Address[12:], ip4)
		}
	} else if ip16 := ip.To16(); ip16 != nil {
		copy(loc.Address[:], ip16)
	}
}

// IP address of this Locator.
func (loc Locator) IP() net.IP {
	if loc.Kind == KindTCPv4 {
		return net.IPv4(loc.Address[12], loc.Address[13], loc.Address[14], loc.Address[15])
	}

	ip := make(net.IP, net.IPv6len)
	copy(ip, loc.Address[:])
	return ip
}

// IsValid checks the Locator's kind.
func (loc Locator) IsValid() bool {
	return loc.Kind == KindTCPv4 || loc.Kind == KindTCPv6
}

// IsAny checks for an unspecified address, i.e., 0.0.0.0 or ::.
func (loc Locator) IsAny() bool {
	return loc.IP().IsUnspecified()
}

// IsLoopback checks for a loopback address.
func (loc Locator) IsLoopback() bool {
	return loc.IP().IsLoopback()
}

// SameIP compares the IP addresses of two Locators.
func (loc Locator) SameIP(other Locator) bool {
	return loc.IP().Equal(other.IP())
}

// HostPort of the physical address to be used with net.Dial.
func (loc Locator) HostPort() string {
	return net.JoinHostPort(loc.IP().String(), strconv.Itoa(int(loc.PhysicalPort())))
}

func (loc Locator) String() string {
	return fmt.Sprintf("%v:[%v]:%d-%d", loc.Kind, loc.IP(), loc.PhysicalPort(), loc.LogicalPort())
}
