// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package frame contains the header prefixed to every message sent over a TCP channel.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Size of an encoded Header in bytes.
const Size = 14

// ControlPort is the logical port reserved for control messages.
const ControlPort uint16 = 0

var tag = [4]byte{'R', 'T', 'C', 'P'}

var (
	// ErrBadTag is returned for a header not starting with "RTCP".
	ErrBadTag = errors.New("frame header has an invalid tag")

	// ErrBadLength is returned for a header declaring a length below Size.
	ErrBadLength = errors.New("frame header has an invalid length")
)

// Header of a frame. Length is the total length, including the header itself.
type Header struct {
	Length      uint32
	CRC         uint32
	LogicalPort uint16
}

// NewHeader for a payload, optionally calculating its checksum.
func NewHeader(logicalPort uint16, payload []byte, calculateCRC bool) Header {
	h := Header{
		Length:      uint32(Size + len(payload)),
		LogicalPort: logicalPort,
	}
	if calculateCRC {
		h.CRC = Checksum(payload)
	}
	return h
}

// PayloadLength is the length of the payload following this header.
func (h Header) PayloadLength() uint32 {
	if h.Length < Size {
		return 0
	}
	return h.Length - Size
}

// IsControl checks if this frame carries a control message.
func (h Header) IsControl() bool {
	return h.LogicalPort == ControlPort
}

// Verify the payload's checksum. A zero checksum is always accepted, it is sent by peers
// not calculating checksums.
func (h Header) Verify(payload []byte) bool {
	return h.CRC == 0 || h.CRC == Checksum(payload)
}

// MarshalBinary into a Size long buffer.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	h.Put(buf)
	return buf, nil
}

// Put encodes the header into the first Size bytes of buf.
func (h Header) Put(buf []byte) {
	copy(buf[0:4], tag[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
	binary.LittleEndian.PutUint32(buf[8:12], h.CRC)
	binary.LittleEndian.PutUint16(buf[12:14], h.LogicalPort)
}

// UnmarshalBinary checks the tag and the length field.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return fmt.Errorf("frame header needs %d bytes, got %d: %w", Size, len(data), io.ErrUnexpectedEOF)
	}

	if data[0] != tag[0] || data[1] != tag[1] || data[2] != tag[2] || data[3] != tag[3] {
		return ErrBadTag
	}

	h.Length = binary.LittleEndian.Uint32(data[4:8])
	h.CRC = binary.LittleEndian.Uint32(data[8:12])
	h.LogicalPort = binary.LittleEndian.Uint16(data[12:14])

	if h.Length < Size {
		return fmt.Errorf("%w: %d", ErrBadLength, h.Length)
	}
	return nil
}

// Marshal writes this header to w.
func (h Header) Marshal(w io.Writer) error {
	var buf [Size]byte
	h.Put(buf[:])

	_, err := w.Write(buf[:])
	return err
}

// Unmarshal reads exactly Size bytes from r.
func (h *Header) Unmarshal(r io.Reader) error {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	return h.UnmarshalBinary(buf[:])
}

func (h Header) String() string {
	return fmt.Sprintf("Header(length=%d, crc=%d, port=%d)", h.Length, h.CRC, h.LogicalPort)
}
