// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rtps

import "fmt"

// SequenceNumber identifies a change produced by one writer. It is totally ordered and
// represented as a signed high and an unsigned low word.
type SequenceNumber struct {
	High int32
	Low  uint32
}

// SequenceNumberUnknown is the reserved value for an unknown sequence number.
var SequenceNumberUnknown = SequenceNumber{High: -1, Low: 0}

// NewSequenceNumber from a combined 64 bit value.
func NewSequenceNumber(value uint64) SequenceNumber {
	return SequenceNumber{
		High: int32(value >> 32),
		Low:  uint32(value),
	}
}

// Value returns the combined 64 bit representation.
func (sn SequenceNumber) Value() uint64 {
	return uint64(uint32(sn.High))<<32 | uint64(sn.Low)
}

// IsUnknown checks if this is SequenceNumberUnknown.
func (sn SequenceNumber) IsUnknown() bool {
	return sn == SequenceNumberUnknown
}

// Add n to this SequenceNumber.
func (sn SequenceNumber) Add(n uint64) SequenceNumber {
	return NewSequenceNumber(sn.Value() + n)
}

// Sub n from this SequenceNumber.
func (sn SequenceNumber) Sub(n uint64) SequenceNumber {
	return NewSequenceNumber(sn.Value() - n)
}

// Inc returns the successor.
func (sn SequenceNumber) Inc() SequenceNumber {
	return sn.Add(1)
}

// Dec returns the predecessor.
func (sn SequenceNumber) Dec() SequenceNumber {
	return sn.Sub(1)
}

// Compare returns -1, 0 or +1 if sn is less, equal or greater than other.
func (sn SequenceNumber) Compare(other SequenceNumber) int {
	switch {
	case sn.High < other.High:
		return -1
	case sn.High > other.High:
		return 1
	case sn.Low < other.Low:
		return -1
	case sn.Low > other.Low:
		return 1
	default:
		return 0
	}
}

// Less is a shortcut for Compare(other) < 0.
func (sn SequenceNumber) Less(other SequenceNumber) bool {
	return sn.Compare(other) < 0
}

// LessOrEqual is a shortcut for Compare(other) <= 0.
func (sn SequenceNumber) LessOrEqual(other SequenceNumber) bool {
	return sn.Compare(other) <= 0
}

func (sn SequenceNumber) String() string {
	return fmt.Sprintf("%d", sn.Value())
}
