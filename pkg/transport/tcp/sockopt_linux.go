// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package tcp

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// systemBufferSizes queries the default send and receive buffer sizes of a fresh TCP socket.
// Zero is returned for sizes which could not be queried.
func systemBufferSizes() (sndBuf, rcvBuf uint32) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		log.WithError(err).Debug("Creating a socket to query buffer sizes failed")
		return
	}
	defer unix.Close(fd)

	if v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil && v > 0 {
		sndBuf = uint32(v)
	}
	if v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil && v > 0 {
		rcvBuf = uint32(v)
	}
	return
}
