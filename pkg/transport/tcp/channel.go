// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
	"github.com/dtn7/rtps-go/pkg/transport/tcp/internal/frame"
	"github.com/dtn7/rtps-go/pkg/transport/tcp/internal/msgs"
)

var (
	// ErrChannelDisabled is returned by every operation on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrChannelDisconnected is returned when sending on a channel without an established
	// connection. Outbound channels reconnect in the background.
	ErrChannelDisconnected = errors.New("channel is not connected")

	// ErrPortNotOpen is returned when the peer has not yet opened the logical port.
	ErrPortNotOpen = errors.New("logical port is not opened by the peer")

	// ErrMessageTooLarge is returned for payloads exceeding MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds the maximum message size")

	// ErrFrameTooLarge is returned for a received frame exceeding the receive capacity. The
	// frame was drained from the connection, which is still usable.
	ErrFrameTooLarge = errors.New("received frame exceeds the receive capacity")
)

// channelStatus is ordered; a channel above statusConnecting has a session.
type channelStatus int32

const (
	statusDisconnected channelStatus = iota
	statusConnecting
	statusConnected
	statusWaitingForBind
	statusWaitingForBindResponse
	statusEstablished
	statusUnbinding
)

func (s channelStatus) String() string {
	switch s {
	case statusDisconnected:
		return "DISCONNECTED"
	case statusConnecting:
		return "CONNECTING"
	case statusConnected:
		return "CONNECTED"
	case statusWaitingForBind:
		return "WAITING_FOR_BIND"
	case statusWaitingForBindResponse:
		return "WAITING_FOR_BIND_RESPONSE"
	case statusEstablished:
		return "ESTABLISHED"
	case statusUnbinding:
		return "UNBINDING"
	default:
		return "INVALID"
	}
}

// connectionType tells who created the physical connection.
type connectionType uint8

const (
	// connectType channels were dialed by us and reconnect on demand.
	connectType connectionType = iota
	// acceptType channels were accepted and vanish when disconnected.
	acceptType
)

func (ct connectionType) String() string {
	if ct == connectType {
		return "connect"
	}
	return "accept"
}

// logicalPort is one multiplexed stream of a channel.
type logicalPort struct {
	// users counts the senders using this port.
	users int
	// negotiated is the peer's port used on the wire; it differs after a negotiation.
	negotiated uint16
	// opened if the peer confirmed the negotiated port.
	opened bool
	// requested while an open or check request is in flight.
	requested bool
	// offset of the last negotiation window's greatest candidate.
	offset uint16
}

// pendingRequest is a control request awaiting its response.
type pendingRequest struct {
	kind       msgs.Kind
	port       uint16
	candidates []uint16
}

// channel owns one physical connection and the logical ports multiplexed over it.
//
// A channel is reference counted. The Transport's registry, the listen goroutine, each
// SenderResource and each in-flight connect hold one reference. A disabled channel refuses
// every operation; its done channel is closed after the last reference was released.
type channel struct {
	id        uint64
	connType  connectionType
	connector connector
	desc      *Descriptor

	remoteMutex sync.RWMutex
	remote      locator.Locator

	// status is accessed by sync.atomic functions
	status int32

	sessionMutex sync.Mutex
	session      net.Conn
	writeMutex   sync.Mutex

	portsMutex  sync.Mutex
	ports       map[uint16]*logicalPort
	portsNotify chan struct{}

	controlMutex    sync.Mutex
	pending         map[uint32]pendingRequest
	lastPeerRequest uint32
	remotePrefix    rtps.GuidPrefix

	// nextTid, lastReceive, backoffUntil, waitingForKeepAlive, connectAttempts, refs and
	// disabled are accessed by sync.atomic functions
	nextTid             uint32
	lastReceive         int64
	backoffUntil        int64
	waitingForKeepAlive uint32
	connectAttempts     uint32

	refs     int32
	disabled uint32
	done     chan struct{}
}

var channelIds uint64

func newChannel(connType connectionType, remote locator.Locator, conn connector, desc *Descriptor) *channel {
	channelsGauge.Inc()

	return &channel{
		id:          atomic.AddUint64(&channelIds, 1),
		connType:    connType,
		connector:   conn,
		desc:        desc,
		remote:      remote,
		status:      int32(statusDisconnected),
		ports:       make(map[uint16]*logicalPort),
		portsNotify: make(chan struct{}),
		pending:     make(map[uint32]pendingRequest),
		refs:        1,
		done:        make(chan struct{}),
	}
}

func (ch *channel) log() *log.Entry {
	return log.WithFields(log.Fields{
		"channel": ch.id,
		"remote":  ch.Remote(),
		"type":    ch.connType,
	})
}

func (ch *channel) String() string {
	return fmt.Sprintf("channel(%d, %v, %v, %v)", ch.id, ch.Remote(), ch.connType, ch.Status())
}

// Remote is the peer's physical locator.
func (ch *channel) Remote() locator.Locator {
	ch.remoteMutex.RLock()
	defer ch.remoteMutex.RUnlock()
	return ch.remote
}

func (ch *channel) setRemote(remote locator.Locator) {
	ch.remoteMutex.Lock()
	ch.remote = remote
	ch.remoteMutex.Unlock()
}

// Status of the connection.
func (ch *channel) Status() channelStatus {
	return channelStatus(atomic.LoadInt32(&ch.status))
}

func (ch *channel) setStatus(status channelStatus) {
	atomic.StoreInt32(&ch.status, int32(status))
	ch.notifyPorts()
}

func (ch *channel) compareAndSwapStatus(previous, next channelStatus) bool {
	if atomic.CompareAndSwapInt32(&ch.status, int32(previous), int32(next)) {
		ch.notifyPorts()
		return true
	}
	return false
}

// acquire a reference. This fails for disabled or released channels.
func (ch *channel) acquire() bool {
	for {
		refs := atomic.LoadInt32(&ch.refs)
		if refs <= 0 || ch.isDisabled() {
			return false
		}
		if atomic.CompareAndSwapInt32(&ch.refs, refs, refs+1) {
			return true
		}
	}
}

// release a reference. The last one disables the channel and closes done.
func (ch *channel) release() {
	if refs := atomic.AddInt32(&ch.refs, -1); refs == 0 {
		ch.disable()
		channelsGauge.Dec()
		close(ch.done)
	} else if refs < 0 {
		ch.log().Warn("Channel reference released too often")
	}
}

// Done is closed after the last reference was released.
func (ch *channel) Done() <-chan struct{} {
	return ch.done
}

// disable marks the channel unusable and closes its session, waking up blocked readers and
// writers.
func (ch *channel) disable() {
	if atomic.CompareAndSwapUint32(&ch.disabled, 0, 1) {
		ch.log().Debug("Disabling channel")
		ch.disconnect(nil)
	}
}

func (ch *channel) isDisabled() bool {
	return atomic.LoadUint32(&ch.disabled) != 0
}

// attachSession after a successful connect or accept. False is returned if the channel was
// disabled meanwhile; the connection is closed then.
func (ch *channel) attachSession(conn net.Conn) bool {
	ch.sessionMutex.Lock()
	defer ch.sessionMutex.Unlock()

	if ch.isDisabled() {
		_ = conn.Close()
		return false
	}

	ch.session = conn
	ch.touch()
	atomic.StoreUint32(&ch.waitingForKeepAlive, 0)
	return true
}

func (ch *channel) currentSession() net.Conn {
	ch.sessionMutex.Lock()
	defer ch.sessionMutex.Unlock()
	return ch.session
}

// disconnect the given session, or the current one for nil. The status becomes
// DISCONNECTED before the connection is closed and all logical ports become pending. True is
// returned if this call closed the session.
func (ch *channel) disconnect(conn net.Conn) bool {
	ch.sessionMutex.Lock()
	if conn == nil {
		conn = ch.session
	}
	if conn == nil || ch.session != conn {
		ch.sessionMutex.Unlock()
		if conn == nil {
			ch.setStatus(statusDisconnected)
		}
		return false
	}
	ch.session = nil
	ch.setStatus(statusDisconnected)
	ch.sessionMutex.Unlock()

	_ = conn.Close()

	ch.SetAllPortsPending()
	ch.clearPending()
	return true
}

// touch records inbound traffic.
func (ch *channel) touch() {
	atomic.StoreInt64(&ch.lastReceive, time.Now().UnixNano())
}

// idle is the duration since the last inbound traffic.
func (ch *channel) idle() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&ch.lastReceive)))
}

// backoff delays the next connect attempt.
func (ch *channel) backoff(d time.Duration) {
	atomic.StoreInt64(&ch.backoffUntil, time.Now().Add(d).UnixNano())
}

func (ch *channel) inBackoff() bool {
	return time.Now().UnixNano() < atomic.LoadInt64(&ch.backoffUntil)
}

// ConnectAttempts made by this outbound channel.
func (ch *channel) ConnectAttempts() uint32 {
	return atomic.LoadUint32(&ch.connectAttempts)
}

// writeFrame writes header and payload as one unit. Any error closes the session.
func (ch *channel) writeFrame(port uint16, payload []byte) (int, error) {
	if ch.isDisabled() {
		return 0, ErrChannelDisabled
	}

	conn := ch.currentSession()
	if conn == nil {
		return 0, ErrChannelDisconnected
	}

	buf := make([]byte, frame.Size+len(payload))
	frame.NewHeader(port, payload, ch.desc.CalculateCRC).Put(buf)
	copy(buf[frame.Size:], payload)

	ch.writeMutex.Lock()
	n, err := conn.Write(buf)
	ch.writeMutex.Unlock()

	if err == nil && n != len(buf) {
		err = fmt.Errorf("short write of %d out of %d bytes", n, len(buf))
	}
	if err != nil {
		ch.log().WithError(err).Info("Writing frame failed, closing connection")
		ch.disconnect(conn)
		return n, err
	}

	framesSentTotal.WithLabelValues(frameType(port)).Inc()
	bytesSentTotal.Add(float64(n))
	return n, nil
}

// nextTransactionId for an outgoing control message.
func (ch *channel) nextTransactionId() uint32 {
	return atomic.AddUint32(&ch.nextTid, 1)
}

func (ch *channel) addPending(tid uint32, req pendingRequest) {
	ch.controlMutex.Lock()
	ch.pending[tid] = req
	ch.controlMutex.Unlock()
}

// takePending removes the request answered by a response of the given kind.
func (ch *channel) takePending(tid uint32, responseKind msgs.Kind) (req pendingRequest, ok bool) {
	ch.controlMutex.Lock()
	defer ch.controlMutex.Unlock()

	req, ok = ch.pending[tid]
	if !ok || req.kind.ResponseKind() != responseKind {
		return pendingRequest{}, false
	}
	delete(ch.pending, tid)
	return
}

func (ch *channel) clearPending() {
	ch.controlMutex.Lock()
	ch.pending = make(map[uint32]pendingRequest)
	ch.lastPeerRequest = 0
	ch.controlMutex.Unlock()
}

// acceptPeerRequest checks a request's transaction id against the last one of the peer.
func (ch *channel) acceptPeerRequest(tid uint32) bool {
	ch.controlMutex.Lock()
	defer ch.controlMutex.Unlock()

	if tid <= ch.lastPeerRequest {
		return false
	}
	ch.lastPeerRequest = tid
	return true
}

func (ch *channel) setRemotePrefix(prefix rtps.GuidPrefix) {
	ch.controlMutex.Lock()
	ch.remotePrefix = prefix
	ch.controlMutex.Unlock()
}

// RemotePrefix is the GUID prefix of the peer, known after the handshake.
func (ch *channel) RemotePrefix() rtps.GuidPrefix {
	ch.controlMutex.Lock()
	defer ch.controlMutex.Unlock()
	return ch.remotePrefix
}
