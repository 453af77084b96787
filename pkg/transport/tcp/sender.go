// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"sync"
	"sync/atomic"

	"github.com/dtn7/rtps-go/pkg/locator"
)

// SenderResource sends to one remote locator, including its logical port. It holds a
// reference to its channel until Close is called.
type SenderResource struct {
	transport *Transport
	locator   locator.Locator

	mutex   sync.Mutex
	channel *channel

	// closed is accessed by sync.atomic functions
	closed uint32
}

// Locator this SenderResource sends to.
func (sr *SenderResource) Locator() locator.Locator {
	return sr.locator
}

func (sr *SenderResource) currentChannel() *channel {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	return sr.channel
}

// Send data to the remote locator. Sending blocks until the frame was written.
//
// A SenderResource whose channel vanished moves to an outbound channel for the same physical
// locator first.
func (sr *SenderResource) Send(data []byte) error {
	if atomic.LoadUint32(&sr.closed) != 0 {
		return ErrChannelDisabled
	}

	ch, err := sr.reopen()
	if err != nil {
		return err
	}
	return sr.transport.send(ch, sr.locator, data)
}

// reopen replaces a disabled channel or a disconnected accepted one. The logical port
// registration moves along. A disconnected outbound channel reconnects on send instead.
func (sr *SenderResource) reopen() (*channel, error) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	old := sr.channel
	if !old.isDisabled() && (old.connType == connectType || old.Status() != statusDisconnected) {
		return old, nil
	}

	ch, err := sr.transport.outputChannel(sr.locator)
	if err != nil {
		return nil, err
	}

	old.RemoveLogicalPort(sr.locator.LogicalPort())
	old.release()

	sr.channel = ch
	ch.log().WithField("previous", old.id).Debug("Sender moved to another channel")
	return ch, nil
}

// Close this SenderResource, releasing its logical port.
func (sr *SenderResource) Close() {
	sr.transport.CloseOutputChannel(sr)
}
