// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"sort"
	"time"
)

// notifyPorts wakes up everyone waiting for a port or status change.
func (ch *channel) notifyPorts() {
	ch.portsMutex.Lock()
	close(ch.portsNotify)
	ch.portsNotify = make(chan struct{})
	ch.portsMutex.Unlock()
}

// notifyPortsLocked is notifyPorts for callers holding portsMutex.
func (ch *channel) notifyPortsLocked() {
	close(ch.portsNotify)
	ch.portsNotify = make(chan struct{})
}

// AddLogicalPort registers one more user of a logical port. True is returned if the port
// was not added before and is therefore pending.
func (ch *channel) AddLogicalPort(port uint16) bool {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	if lp, ok := ch.ports[port]; ok {
		lp.users++
		return false
	}

	ch.ports[port] = &logicalPort{users: 1, negotiated: port}
	return true
}

// RemoveLogicalPort drops one user of a logical port. True is returned if the channel has no
// logical port left afterwards.
func (ch *channel) RemoveLogicalPort(port uint16) bool {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	if lp, ok := ch.ports[port]; ok {
		if lp.users--; lp.users <= 0 {
			delete(ch.ports, port)
			ch.notifyPortsLocked()
		}
	}
	return len(ch.ports) == 0
}

// HasLogicalPorts checks if any logical port is added.
func (ch *channel) HasLogicalPorts() bool {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()
	return len(ch.ports) > 0
}

// IsLogicalPortAdded checks if a port was added, regardless of it being opened.
func (ch *channel) IsLogicalPortAdded(port uint16) bool {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	_, ok := ch.ports[port]
	return ok
}

// IsLogicalPortOpened checks if the peer confirmed a port.
func (ch *channel) IsLogicalPortOpened(port uint16) bool {
	_, opened := ch.wirePort(port)
	return opened
}

// wirePort is the port to be written into frames for a logical port.
func (ch *channel) wirePort(port uint16) (wire uint16, opened bool) {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	if lp, ok := ch.ports[port]; ok {
		return lp.negotiated, lp.opened
	}
	return port, false
}

// LogicalPorts returns all added ports in increasing order.
func (ch *channel) LogicalPorts() []uint16 {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	ports := make([]uint16, 0, len(ch.ports))
	for port := range ch.ports {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// takePendingPorts marks all ports neither opened nor requested as requested and returns
// them in increasing order.
func (ch *channel) takePendingPorts() []uint16 {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	var ports []uint16
	for port, lp := range ch.ports {
		if !lp.opened && !lp.requested {
			lp.requested = true
			ports = append(ports, port)
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// abortRequest makes a requested port pending again, e.g., after a failed write.
func (ch *channel) abortRequest(port uint16) {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	if lp, ok := ch.ports[port]; ok {
		lp.requested = false
	}
}

// openLogicalPort after the peer confirmed the wire port for a logical port.
func (ch *channel) openLogicalPort(port, wire uint16) bool {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	lp, ok := ch.ports[port]
	if !ok {
		return false
	}

	lp.negotiated = wire
	lp.opened = true
	lp.requested = false
	ch.notifyPortsLocked()
	return true
}

// nextCandidates of a rejected logical port, advancing its negotiation. An empty result
// means the negotiation is exhausted; the port stays pending until it is requested again.
func (ch *channel) nextCandidates(port uint16) []uint16 {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	lp, ok := ch.ports[port]
	if !ok {
		return nil
	}

	candidates := ch.desc.candidatePorts(port, lp.offset)
	if len(candidates) == 0 {
		lp.requested = false
		lp.offset = 0
		return nil
	}

	lp.offset = candidates[len(candidates)-1] - port
	return candidates
}

// SetLogicalPortPending after the peer closed the port. The peer names its own port, which
// is the negotiated one.
func (ch *channel) SetLogicalPortPending(wire uint16) {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	for port, lp := range ch.ports {
		if lp.negotiated == wire {
			lp.negotiated = port
			lp.opened = false
			lp.requested = false
			lp.offset = 0
		}
	}
	ch.notifyPortsLocked()
}

// SetAllPortsPending after the connection was lost.
func (ch *channel) SetAllPortsPending() {
	ch.portsMutex.Lock()
	defer ch.portsMutex.Unlock()

	for port, lp := range ch.ports {
		lp.negotiated = port
		lp.opened = false
		lp.requested = false
		lp.offset = 0
	}
	ch.notifyPortsLocked()
}

// WaitUntilPortIsOpen blocks until the port is opened, the channel leaves the ESTABLISHED
// status or the timeout elapsed.
func (ch *channel) WaitUntilPortIsOpen(port uint16, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		ch.portsMutex.Lock()
		lp, added := ch.ports[port]
		opened := added && lp.opened
		notify := ch.portsNotify
		ch.portsMutex.Unlock()

		if opened {
			return true
		} else if !added || ch.Status() != statusEstablished || ch.isDisabled() {
			return false
		}

		select {
		case <-notify:
		case <-timer.C:
			return false
		}
	}
}
