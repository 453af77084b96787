// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package frame

import "math"

// AddToCRC adds one byte to a running checksum. An overflowing sum wraps around by
// subtracting the byte's complement to the maximum value.
func AddToCRC(crc uint32, b byte) uint32 {
	if crc > math.MaxUint32-uint32(b) {
		return crc - (math.MaxUint32 - uint32(b))
	}
	return crc + uint32(b)
}

// Checksum of a payload.
func Checksum(payload []byte) (crc uint32) {
	for _, b := range payload {
		crc = AddToCRC(crc, b)
	}
	return
}
