// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/locator"
)

// acceptRetryDelay after a failed Accept call.
const acceptRetryDelay = 200 * time.Millisecond

// acceptor listens on one physical port and hands new connections to the Transport.
type acceptor struct {
	transport *Transport
	listener  net.Listener
	locator   locator.Locator

	stopSyn chan struct{}
}

// newAcceptor starts listening on the address and runs the accept loop.
func newAcceptor(t *Transport, address string) (*acceptor, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	loc := locatorFromAddr(ln.Addr())
	loc.Kind = t.kind

	a := &acceptor{
		transport: t,
		listener:  ln,
		locator:   loc,
		stopSyn:   make(chan struct{}),
	}

	t.wg.Add(1)
	go a.handle()

	return a, nil
}

func (a *acceptor) log() *log.Entry {
	return log.WithField("acceptor", a.listener.Addr())
}

func (a *acceptor) handle() {
	defer a.transport.wg.Done()

	a.log().Debug("Acceptor started")

	for {
		raw, err := a.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				a.log().Debug("Acceptor stopped")
				return
			}

			a.log().WithError(err).Warn("Accepting a connection failed")
			select {
			case <-a.stopSyn:
				return
			case <-time.After(acceptRetryDelay):
				continue
			}
		}

		a.transport.wg.Add(1)
		go a.transport.accept(raw)
	}
}

// close stops listening. Running accept goroutines are tracked by the Transport.
func (a *acceptor) close() {
	select {
	case <-a.stopSyn:
		return
	default:
		close(a.stopSyn)
	}

	if err := a.listener.Close(); err != nil {
		a.log().WithError(err).Debug("Closing listener errored")
	}
}

// accept sets up a channel for an accepted connection. The channel waits for the peer's
// handshake and is bound to the peer's physical locator afterwards.
func (t *Transport) accept(raw net.Conn) {
	defer t.wg.Done()

	logger := t.log().WithField("peer", raw.RemoteAddr())

	conn, err := t.connector.Accept(raw)
	if err != nil {
		acceptedConnectionsTotal.WithLabelValues("failure").Inc()
		logger.WithError(err).Info("Accepting a connection failed")
		return
	}

	ch := newChannel(acceptType, locatorFromAddr(conn.RemoteAddr()), t.connector, &t.desc)
	if !ch.attachSession(conn) {
		ch.release()
		return
	}
	ch.setStatus(statusWaitingForBind)

	if !t.registerChannel(ch) {
		acceptedConnectionsTotal.WithLabelValues("failure").Inc()
		ch.disable()
		ch.release()
		return
	}
	acceptedConnectionsTotal.WithLabelValues("success").Inc()
	logger.WithField("channel", ch.id).Debug("Accepted connection")

	t.startListening(ch, conn)
}
