// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/locator"
)

// localInterfaceIPs lists the addresses of all local network interfaces.
func localInterfaceIPs() (ips []net.IP) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		log.WithError(err).Warn("Listing local interface addresses failed")
		return
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			ips = append(ips, ipNet.IP)
		}
	}
	return
}

// isLocal checks if a locator addresses this host.
func (t *Transport) isLocal(loc locator.Locator) bool {
	if loc.IsLoopback() {
		return true
	}

	ip := loc.IP()
	for _, local := range t.localIPs {
		if local.Equal(ip) {
			return true
		}
	}
	return false
}

// ShrinkLocatorLists merges locator lists. Supported locators addressing a local interface
// are replaced by the loopback address with the same ports, and duplicates are removed. The
// order of the first occurrences is kept.
func (t *Transport) ShrinkLocatorLists(lists [][]locator.Locator) []locator.Locator {
	var (
		result []locator.Locator
		seen   = make(map[locator.Locator]struct{})
	)

	for _, list := range lists {
		for _, loc := range list {
			if t.IsLocatorSupported(loc) && !loc.IsAny() && t.isLocal(loc) {
				loopback := net.IPv4(127, 0, 0, 1)
				if loc.Kind == locator.KindTCPv6 {
					loopback = net.IPv6loopback
				}
				loc.SetIP(loopback)
			}

			if _, dup := seen[loc]; dup {
				continue
			}
			seen[loc] = struct{}{}
			result = append(result, loc)
		}
	}
	return result
}
