// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"errors"
	"fmt"
	"io"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/transport/tcp/internal/frame"
)

// readFrame reads the next frame. The body of a frame exceeding the capacity of buf is
// drained in blocks of buf's size and ErrFrameTooLarge is returned together with the header.
// Every other error leaves the stream in an undefined state.
func readFrame(r io.Reader, buf []byte) (hdr frame.Header, payload []byte, err error) {
	if err = hdr.Unmarshal(r); err != nil {
		return
	}

	length := hdr.PayloadLength()
	if length > uint32(len(buf)) {
		for remaining := length; remaining > 0; {
			block := buf
			if remaining < uint32(len(block)) {
				block = block[:remaining]
			}

			if _, err = io.ReadFull(r, block); err != nil {
				return
			}
			remaining -= uint32(len(block))
		}

		err = fmt.Errorf("%w: %d bytes, capacity is %d", ErrFrameTooLarge, length, len(buf))
		return
	}

	payload = make([]byte, length)
	_, err = io.ReadFull(r, payload)
	return
}

// listen is a channel's receive loop for one session. It runs while the channel has a
// session and holds a channel reference, which is released at the end.
func (t *Transport) listen(ch *channel, conn net.Conn) {
	defer t.wg.Done()
	defer ch.release()
	defer t.onSessionClosed(ch, conn)

	var (
		logger = ch.log()
		buf    = make([]byte, t.desc.MaxMessageSize)
		local  = locatorFromAddr(conn.LocalAddr())
	)

	logger.Debug("Channel starts listening")

	for ch.Status() > statusConnecting {
		hdr, payload, err := readFrame(conn, buf)

		switch {
		case errors.Is(err, ErrFrameTooLarge):
			frameErrorsTotal.WithLabelValues("too_large").Inc()
			bytesReceivedTotal.Add(float64(hdr.Length))
			ch.touch()
			logger.WithError(err).Warn("Dropped oversized frame")
			continue

		case errors.Is(err, frame.ErrBadTag), errors.Is(err, frame.ErrBadLength):
			frameErrorsTotal.WithLabelValues("bad_header").Inc()
			logger.WithError(err).Warn("Received an invalid frame header, closing connection")
			return

		case err != nil:
			if ch.Status() > statusConnecting && !ch.isDisabled() {
				logger.WithError(err).Info("Reading from connection failed")
			}
			return
		}

		ch.touch()
		framesReceivedTotal.WithLabelValues(frameType(hdr.LogicalPort)).Inc()
		bytesReceivedTotal.Add(float64(hdr.Length))

		if t.desc.CheckCRC && !hdr.Verify(payload) {
			frameErrorsTotal.WithLabelValues("checksum").Inc()
			logger.WithFields(log.Fields{
				"port": hdr.LogicalPort,
				"crc":  hdr.CRC,
			}).Warn("Received frame has an invalid checksum")
		}

		if hdr.IsControl() {
			if !t.rtcp.process(ch, payload) {
				logger.Debug("Control message processing requested closing the connection")
				return
			}
			continue
		}

		t.dispatch(ch, local.WithLogicalPort(hdr.LogicalPort), payload)
	}
}

// locatorFromAddr creates a physical locator from a TCP address.
func locatorFromAddr(addr net.Addr) locator.Locator {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return locator.FromTCPAddr(tcpAddr)
	}
	return locator.Locator{Kind: locator.KindInvalid}
}
