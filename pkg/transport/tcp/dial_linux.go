// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package tcp

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Outbound connections get TCP keepalive and user timeout options to notice a lost peer
// before the control protocol's keep-alive does. See tcp(7).

// dialControl is the net.Dialer's Control function to set the socket options.
func dialControl(_, _ string, rawConn syscall.RawConn) (err error) {
	const (
		// dialTcpKeepCnt sets TCP_KEEPCNT, the number of unanswered keepalives until the
		// connection is dropped.
		dialTcpKeepCnt int = 3

		// dialTcpKeepIdle sets TCP_KEEPIDLE in seconds.
		dialTcpKeepIdle int = 5

		// dialTcpKeepIntvl sets TCP_KEEPINTVL in seconds.
		dialTcpKeepIntvl int = 3

		// dialTcpUserTimeout sets TCP_USER_TIMEOUT in milliseconds.
		dialTcpUserTimeout int = 10000
	)

	opts := map[int]int{
		unix.TCP_KEEPCNT:      dialTcpKeepCnt,
		unix.TCP_KEEPIDLE:     dialTcpKeepIdle,
		unix.TCP_KEEPINTVL:    dialTcpKeepIntvl,
		unix.TCP_USER_TIMEOUT: dialTcpUserTimeout,
	}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		if err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return
		}
		for opt, value := range opts {
			if err = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, opt, value); err != nil {
				return
			}
		}
	})
	if ctrlErr != nil {
		err = ctrlErr
	}
	return
}

// dial a new TCP connection with socket options set.
func dial(address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: dialControl,
	}
	return dialer.Dial("tcp", address)
}
