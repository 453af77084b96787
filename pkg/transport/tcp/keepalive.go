// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	log "github.com/sirupsen/logrus"
)

// onKeepAlive pings every established channel and disconnects those without any inbound
// traffic for longer than KeepAliveTimeout. Pending logical ports are requested again, which
// restarts exhausted negotiations.
func (t *Transport) onKeepAlive() {
	t.keepAliveMutex.Lock()
	defer t.keepAliveMutex.Unlock()

	if t.isClosed() {
		return
	}

	for _, ch := range t.acquireChannels() {
		status := ch.Status()

		if status > statusConnecting && t.desc.KeepAliveTimeout > 0 && ch.idle() > t.desc.KeepAliveTimeout {
			ch.log().WithFields(log.Fields{
				"idle":    ch.idle(),
				"timeout": t.desc.KeepAliveTimeout,
			}).Info("Channel timed out, disconnecting")
			ch.disconnect(nil)
		} else if status == statusEstablished {
			if err := t.rtcp.sendKeepAlive(ch); err == nil {
				t.rtcp.openPendingPorts(ch)
			}
		} else if status == statusDisconnected && ch.connType == connectType && ch.HasLogicalPorts() {
			t.connect(ch)
		}

		ch.release()
	}

	if !t.isClosed() {
		t.keepAlive.RestartTimer()
	}
}
