// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/transport/tcp"
)

// input counts the frames received on one logical port.
type input struct {
	port uint16

	// frames and bytes are accessed by sync.atomic functions
	frames uint64
	bytes  uint64
}

func (in *input) OnDataReceived(data []byte, local, remote locator.Locator) {
	atomic.AddUint64(&in.frames, 1)
	atomic.AddUint64(&in.bytes, uint64(len(data)))

	log.WithFields(log.Fields{
		"port":   local.LogicalPort(),
		"remote": remote,
		"size":   len(data),
	}).Info("Received frame")
}

// daemon runs one Transport with its configured inputs and peers.
type daemon struct {
	transport *tcp.Transport
	inputs    []*input

	peersMutex sync.Mutex
	peers      map[string]locator.Locator
	senders    map[string]*tcp.SenderResource
}

// startDaemon creates the Transport and opens all inputs and peers.
func startDaemon(dc daemonConf) (*daemon, error) {
	transport, err := tcp.NewTransport(dc.descriptor, tcp.WithGuidPrefix(dc.prefix))
	if err != nil {
		return nil, err
	}

	d := &daemon{
		transport: transport,
		peers:     dc.peers,
		senders:   make(map[string]*tcp.SenderResource),
	}

	locs := transport.ListeningLocators()
	if len(locs) == 0 && len(dc.inputs) > 0 {
		transport.Close()
		return nil, fmt.Errorf("inputs require at least one listening port")
	}

	for _, port := range dc.inputs {
		in := &input{port: port}
		if !transport.OpenInputChannel(locs[0].WithLogicalPort(port), in) {
			transport.Close()
			return nil, fmt.Errorf("opening input on logical port %d failed", port)
		}
		d.inputs = append(d.inputs, in)
	}

	for name := range dc.peers {
		if _, err := d.sender(name); err != nil {
			log.WithField("peer", name).WithError(err).Warn("Opening peer failed")
		}
	}

	log.WithFields(log.Fields{
		"listening": locs,
		"inputs":    dc.inputs,
		"peers":     len(dc.peers),
	}).Info("Started rtcpd")

	return d, nil
}

// sender for a named peer, opened on first use.
func (d *daemon) sender(name string) (*tcp.SenderResource, error) {
	d.peersMutex.Lock()
	defer d.peersMutex.Unlock()

	if sr, ok := d.senders[name]; ok {
		return sr, nil
	}

	loc, ok := d.peers[name]
	if !ok {
		return nil, fmt.Errorf("unknown peer %s", name)
	}

	sr, err := d.transport.OpenOutputChannel(loc)
	if err != nil {
		return nil, err
	}
	d.senders[name] = sr
	return sr, nil
}

// send data to a named peer.
func (d *daemon) send(name string, data []byte) error {
	sr, err := d.sender(name)
	if err != nil {
		return err
	}
	return sr.Send(data)
}

// close all senders and the Transport.
func (d *daemon) close() {
	d.peersMutex.Lock()
	for name, sr := range d.senders {
		sr.Close()
		delete(d.senders, name)
	}
	d.peersMutex.Unlock()

	d.transport.Close()
}
