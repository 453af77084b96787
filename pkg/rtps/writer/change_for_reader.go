// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package writer

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/dtn7/rtps-go/pkg/rtps"
)

// ChangeForReaderStatus is the delivery status of one change regarding one remote reader.
type ChangeForReaderStatus uint8

const (
	// Unsent changes are due for (re)sending.
	Unsent ChangeForReaderStatus = iota

	// Unacknowledged changes were sent and are assumed to be in flight or lost.
	Unacknowledged

	// Requested changes were negatively acknowledged by the reader.
	Requested

	// Acknowledged changes were confirmed by the reader. This status is terminal.
	Acknowledged

	// Underway changes were handed to the transport recently; the nack-supression delay runs.
	Underway
)

func (s ChangeForReaderStatus) String() string {
	switch s {
	case Unsent:
		return "UNSENT"
	case Unacknowledged:
		return "UNACKNOWLEDGED"
	case Requested:
		return "REQUESTED"
	case Acknowledged:
		return "ACKNOWLEDGED"
	case Underway:
		return "UNDERWAY"
	default:
		return "INVALID"
	}
}

// ChangeForReader associates a change of the writer's history with one remote reader.
//
// For fragmented changes, the fragment numbers not yet sent are tracked. Fragment numbers
// start at 1.
type ChangeForReader struct {
	SequenceNumber rtps.SequenceNumber
	IsRelevant     bool

	status ChangeForReaderStatus

	fragmentCount   uint32
	unsentFragments *bitset.BitSet
}

// NewChangeForReader in status Unsent. A fragmentCount of zero marks an unfragmented change.
func NewChangeForReader(seq rtps.SequenceNumber, fragmentCount uint32) ChangeForReader {
	cfr := ChangeForReader{
		SequenceNumber: seq,
		IsRelevant:     true,
		status:         Unsent,
		fragmentCount:  fragmentCount,
	}

	if fragmentCount > 0 {
		cfr.unsentFragments = bitset.New(uint(fragmentCount) + 1)
		cfr.MarkAllFragmentsAsUnsent()
	}

	return cfr
}

// clone returns a copy which does not share its fragment state.
func (cfr ChangeForReader) clone() ChangeForReader {
	if cfr.unsentFragments != nil {
		cfr.unsentFragments = cfr.unsentFragments.Clone()
	}
	return cfr
}

// Status of this change.
func (cfr ChangeForReader) Status() ChangeForReaderStatus {
	return cfr.status
}

// FragmentCount is zero for unfragmented changes.
func (cfr ChangeForReader) FragmentCount() uint32 {
	return cfr.fragmentCount
}

// UnsentFragments of a fragmented change, in increasing order.
func (cfr ChangeForReader) UnsentFragments() (fragments []rtps.FragmentNumber) {
	if cfr.unsentFragments == nil {
		return
	}

	for i, ok := cfr.unsentFragments.NextSet(1); ok; i, ok = cfr.unsentFragments.NextSet(i + 1) {
		fragments = append(fragments, rtps.FragmentNumber(i))
	}
	return
}

// MarkFragmentAsSent removes one fragment from the unsent ones. True is returned if no unsent
// fragment remains afterwards.
func (cfr *ChangeForReader) MarkFragmentAsSent(fn rtps.FragmentNumber) bool {
	if cfr.unsentFragments == nil {
		return true
	}

	if fn >= 1 && uint32(fn) <= cfr.fragmentCount {
		cfr.unsentFragments.Clear(uint(fn))
	}
	return cfr.unsentFragments.None()
}

// MarkAllFragmentsAsUnsent resets the fragment tracking.
func (cfr *ChangeForReader) MarkAllFragmentsAsUnsent() {
	if cfr.unsentFragments == nil {
		return
	}

	for fn := uint(1); fn <= uint(cfr.fragmentCount); fn++ {
		cfr.unsentFragments.Set(fn)
	}
}

// MarkFragmentsAsUnsent for all members of the set which belong to this change.
func (cfr *ChangeForReader) MarkFragmentsAsUnsent(set rtps.FragmentNumberSet) {
	if cfr.unsentFragments == nil {
		return
	}

	set.ForEach(func(fn rtps.FragmentNumber) {
		if fn >= 1 && uint32(fn) <= cfr.fragmentCount {
			cfr.unsentFragments.Set(uint(fn))
		}
	})
}

func (cfr ChangeForReader) String() string {
	return fmt.Sprintf("ChangeForReader(%v, %v)", cfr.SequenceNumber, cfr.status)
}
