// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package tcp

// systemBufferSizes is unknown outside Linux; the minimum sizes are used.
func systemBufferSizes() (sndBuf, rcvBuf uint32) {
	return 0, 0
}
