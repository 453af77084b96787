// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package locator

import (
	"net"
	"testing"
)

func TestLocatorPorts(t *testing.T) {
	loc := New(KindTCPv4, net.ParseIP("192.168.1.23"), 5100, 7400)

	if p := loc.PhysicalPort(); p != 5100 {
		t.Fatalf("physical port %d", p)
	}
	if p := loc.LogicalPort(); p != 7400 {
		t.Fatalf("logical port %d", p)
	}

	phys := loc.ToPhysical()
	if phys.LogicalPort() != 0 || phys.PhysicalPort() != 5100 {
		t.Fatalf("ToPhysical: %v", phys)
	}
	if loc.WithLogicalPort(7410).ToPhysical() != phys {
		t.Fatal("locators with different logical ports differ physically")
	}

	loc.SetPhysicalPort(1)
	if loc.LogicalPort() != 7400 || loc.PhysicalPort() != 1 {
		t.Fatalf("SetPhysicalPort changed the logical port: %v", loc)
	}
}

func TestLocatorAddress(t *testing.T) {
	tests := []struct {
		address string
		kind    Kind
		str     string
	}{
		{"127.0.0.1:5100", KindTCPv4, "TCPv4:[127.0.0.1]:5100-7"},
		{"[::1]:5100", KindTCPv6, "TCPv6:[::1]:5100-7"},
		{":4000", KindTCPv4, "TCPv4:[0.0.0.0]:4000-7"},
	}

	for _, test := range tests {
		loc, err := Parse(test.address, 7)
		if err != nil {
			t.Fatal(err)
		}

		if loc.Kind != test.kind {
			t.Fatalf("%s: kind %v, expected %v", test.address, loc.Kind, test.kind)
		}
		if s := loc.String(); s != test.str {
			t.Fatalf("%s: String() = %s, expected %s", test.address, s, test.str)
		}
	}

	if _, err := Parse("127.0.0.1", 0); err == nil {
		t.Fatal("address without port was parsed")
	}
	if _, err := Parse("127.0.0.1:70000", 0); err == nil {
		t.Fatal("port out of range was parsed")
	}
}

func TestLocatorFromTCPAddr(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1234}
	loc := FromTCPAddr(addr)

	if loc.Kind != KindTCPv4 || !loc.IP().Equal(addr.IP) || loc.PhysicalPort() != 1234 {
		t.Fatalf("unexpected locator %v", loc)
	}
	if hp := loc.HostPort(); hp != "10.0.0.1:1234" {
		t.Fatalf("HostPort() = %s", hp)
	}

	m := map[Locator]int{loc: 1}
	if _, ok := m[FromTCPAddr(addr)]; !ok {
		t.Fatal("equal locators are not equal map keys")
	}
}
