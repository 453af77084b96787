// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
	"github.com/dtn7/rtps-go/pkg/transport/tcp/internal/msgs"
)

// VendorId announced in connection requests.
const VendorId uint16 = 0x01d7

// rtcpHost is the part of the Transport the control protocol works on.
type rtcpHost interface {
	// guidPrefix of the local participant.
	guidPrefix() rtps.GuidPrefix

	// localLocator announced to the peer of a channel.
	localLocator(ch *channel) locator.Locator

	// isInputOpen checks if a receiver is registered for a logical port.
	isInputOpen(port uint16) bool

	// bindChannel registers an accepted channel under the peer's physical locator.
	bindChannel(ch *channel, remote locator.Locator)
}

// rtcpManager implements the control protocol on logical port 0.
//
// The manager is owned by one Transport. It is reference counted by every in-flight control
// operation; dispose rejects new operations and waits for the running ones.
type rtcpManager struct {
	host rtcpHost

	mutex    sync.Mutex
	users    int
	disposed bool
	drained  *sync.Cond
}

func newRtcpManager(host rtcpHost) *rtcpManager {
	m := &rtcpManager{host: host}
	m.drained = sync.NewCond(&m.mutex)
	return m
}

// acquire the manager for one operation. False is returned after dispose.
func (m *rtcpManager) acquire() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.disposed {
		return false
	}
	m.users++
	return true
}

func (m *rtcpManager) release() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.users--; m.users == 0 {
		m.drained.Broadcast()
	}
}

// dispose rejects further operations and waits until the in-flight ones finished.
func (m *rtcpManager) dispose() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.disposed = true
	for m.users > 0 {
		m.drained.Wait()
	}
}

// send a control message. Requests are registered as pending before being written.
func (m *rtcpManager) send(ch *channel, tid uint32, body msgs.Body, req *pendingRequest) error {
	payload, err := msgs.Encode(msgs.NewMessage(tid, body))
	if err != nil {
		return err
	}

	if req != nil {
		ch.addPending(tid, *req)
	}

	if _, err := ch.writeFrame(0, payload); err != nil {
		ch.log().WithError(err).WithField("message", body).Debug("Sending control message failed")
		return err
	}

	ch.log().WithFields(log.Fields{
		"message": body,
		"tid":     tid,
	}).Debug("Sent control message")
	return nil
}

// sendRequest with a fresh transaction id.
func (m *rtcpManager) sendRequest(ch *channel, body msgs.Body, port uint16, candidates []uint16) error {
	if !m.acquire() {
		return ErrChannelDisabled
	}
	defer m.release()

	var req *pendingRequest
	if kind := body.Kind(); kind.ResponseKind() != kind {
		req = &pendingRequest{kind: kind, port: port, candidates: candidates}
	}
	return m.send(ch, ch.nextTransactionId(), body, req)
}

// sendConnectionRequest starts the handshake of an outbound channel.
func (m *rtcpManager) sendConnectionRequest(ch *channel) error {
	ch.setStatus(statusWaitingForBindResponse)

	return m.sendRequest(ch, &msgs.ConnectionRequest{
		Version:    msgs.CurrentVersion,
		VendorId:   VendorId,
		GuidPrefix: m.host.guidPrefix(),
		Locator:    m.host.localLocator(ch),
	}, 0, nil)
}

// openPendingPorts requests all pending logical ports of an established channel.
func (m *rtcpManager) openPendingPorts(ch *channel) {
	if ch.Status() != statusEstablished {
		return
	}

	for _, port := range ch.takePendingPorts() {
		if err := m.sendRequest(ch, &msgs.OpenLogicalPortRequest{Port: port}, port, nil); err != nil {
			ch.abortRequest(port)
			return
		}
	}
}

// sendCheckLogicalPort continues the negotiation of a rejected logical port.
func (m *rtcpManager) sendCheckLogicalPort(ch *channel, port uint16) {
	candidates := ch.nextCandidates(port)
	if len(candidates) == 0 {
		ch.log().WithField("port", port).Warn("Logical port negotiation exhausted, port stays pending")
		return
	}

	if err := m.sendRequest(ch, &msgs.CheckLogicalPortRequest{Ports: candidates}, port, candidates); err != nil {
		ch.abortRequest(port)
	}
}

// sendKeepAlive pings an established channel.
func (m *rtcpManager) sendKeepAlive(ch *channel) error {
	atomic.StoreUint32(&ch.waitingForKeepAlive, 1)
	return m.sendRequest(ch, &msgs.KeepAliveRequest{Locator: m.host.localLocator(ch)}, 0, nil)
}

// sendLogicalPortIsClosed informs the peer about a closed input.
func (m *rtcpManager) sendLogicalPortIsClosed(ch *channel, port uint16) error {
	return m.sendRequest(ch, &msgs.LogicalPortIsClosed{Port: port}, port, nil)
}

// sendUnbind announces a graceful shutdown.
func (m *rtcpManager) sendUnbind(ch *channel) error {
	return m.sendRequest(ch, &msgs.UnbindConnection{}, 0, nil)
}

// respond to a request, reusing its transaction id.
func (m *rtcpManager) respond(ch *channel, tid uint32, body msgs.Body) bool {
	return m.send(ch, tid, body, nil) == nil
}

// process a control message received on a channel. False is returned if the channel should
// be closed.
func (m *rtcpManager) process(ch *channel, payload []byte) bool {
	if !m.acquire() {
		return false
	}
	defer m.release()

	msg, err := msgs.Decode(payload)
	if err != nil {
		ch.log().WithError(err).Warn("Received an undecodable control message")
		return true
	}

	logger := ch.log().WithFields(log.Fields{
		"message": msg.Body,
		"tid":     msg.TransactionId,
	})
	logger.Debug("Received control message")

	if kind := msg.Kind(); kind.IsResponse() {
		req, ok := ch.takePending(msg.TransactionId, kind)
		if !ok {
			logger.Debug("Ignoring response to an unknown request")
			return true
		}
		return m.processResponse(ch, msg, req, logger)
	}

	if !ch.acceptPeerRequest(msg.TransactionId) {
		logger.Debug("Ignoring duplicate or stale request")
		return true
	}
	return m.processRequest(ch, msg, logger)
}

func (m *rtcpManager) processRequest(ch *channel, msg *msgs.Message, logger *log.Entry) bool {
	switch body := msg.Body.(type) {
	case *msgs.ConnectionRequest:
		return m.processConnectionRequest(ch, msg.TransactionId, body, logger)

	case *msgs.BindConnection:
		if ch.connType != acceptType || ch.Status() != statusWaitingForBind {
			logger.WithField("status", ch.Status()).Warn("Unexpected bind request")
			return true
		}

		remote := ch.Remote()
		if body.Locator.IsValid() && body.Locator.PhysicalPort() != 0 {
			remote.SetPhysicalPort(body.Locator.PhysicalPort())
		}
		m.host.bindChannel(ch, remote)
		ch.setStatus(statusEstablished)
		logger.WithField("peer", remote).Info("Channel established")

		m.openPendingPorts(ch)
		return true

	case *msgs.UnbindConnection:
		logger.Info("Peer unbinds the connection")
		return false

	case *msgs.OpenLogicalPortRequest:
		code := msgs.ResponseInvalidPort
		if m.host.isInputOpen(body.Port) {
			code = msgs.ResponseOK
		}
		return m.respond(ch, msg.TransactionId, &msgs.OpenLogicalPortResponse{Code: code, Port: body.Port})

	case *msgs.CheckLogicalPortRequest:
		available := make([]uint16, 0, len(body.Ports))
		for _, port := range body.Ports {
			if m.host.isInputOpen(port) {
				available = append(available, port)
			}
		}
		return m.respond(ch, msg.TransactionId, &msgs.CheckLogicalPortResponse{Ports: available})

	case *msgs.LogicalPortIsClosed:
		ch.SetLogicalPortPending(body.Port)
		return true

	case *msgs.KeepAliveRequest:
		return m.respond(ch, msg.TransactionId, &msgs.KeepAliveResponse{Code: msgs.ResponseOK})

	default:
		logger.Warn("Unexpected control message")
		return true
	}
}

func (m *rtcpManager) processConnectionRequest(ch *channel, tid uint32, req *msgs.ConnectionRequest, logger *log.Entry) bool {
	if ch.connType != acceptType || ch.Status() != statusWaitingForBind {
		logger.WithField("status", ch.Status()).Warn("Unexpected connection request")
		return m.respond(ch, tid, &msgs.ConnectionResponse{
			Code:       msgs.ResponseBadRequest,
			GuidPrefix: m.host.guidPrefix(),
			Locator:    m.host.localLocator(ch),
		})
	}

	code := msgs.ResponseOK
	if !msgs.CurrentVersion.Compatible(req.Version) {
		code = msgs.ResponseIncompatibleVersion
	}

	ch.setRemotePrefix(req.GuidPrefix)

	ok := m.respond(ch, tid, &msgs.ConnectionResponse{
		Code:       code,
		GuidPrefix: m.host.guidPrefix(),
		Locator:    m.host.localLocator(ch),
	})

	if code != msgs.ResponseOK {
		logger.WithField("version", req.Version).Warn("Rejected peer with an incompatible protocol version")
		return false
	}
	return ok
}

func (m *rtcpManager) processResponse(ch *channel, msg *msgs.Message, req pendingRequest, logger *log.Entry) bool {
	switch body := msg.Body.(type) {
	case *msgs.ConnectionResponse:
		if body.Code != msgs.ResponseOK {
			logger.Warn("Peer rejected the connection")
			return false
		}
		if !ch.compareAndSwapStatus(statusWaitingForBindResponse, statusEstablished) {
			logger.WithField("status", ch.Status()).Warn("Unexpected connection response")
			return true
		}

		ch.setRemotePrefix(body.GuidPrefix)

		// The bind request is written after the status change, but before any other
		// request, on this goroutine.
		if err := m.sendRequest(ch, &msgs.BindConnection{Locator: m.host.localLocator(ch)}, 0, nil); err != nil {
			return false
		}
		logger.Info("Channel established")

		m.openPendingPorts(ch)
		return true

	case *msgs.OpenLogicalPortResponse:
		switch body.Code {
		case msgs.ResponseOK:
			ch.openLogicalPort(req.port, req.port)
		case msgs.ResponseInvalidPort:
			logger.WithField("port", req.port).Debug("Peer rejected logical port, negotiating")
			m.sendCheckLogicalPort(ch, req.port)
		default:
			ch.abortRequest(req.port)
		}
		return true

	case *msgs.CheckLogicalPortResponse:
		for _, port := range body.Ports {
			if containsPort(req.candidates, port) {
				ch.openLogicalPort(req.port, port)
				logger.WithFields(log.Fields{
					"port":       req.port,
					"negotiated": port,
				}).Info("Negotiated logical port")
				return true
			}
		}
		m.sendCheckLogicalPort(ch, req.port)
		return true

	case *msgs.KeepAliveResponse:
		atomic.StoreUint32(&ch.waitingForKeepAlive, 0)
		return true

	default:
		logger.Warn("Unexpected control response")
		return true
	}
}

func containsPort(ports []uint16, port uint16) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}
