// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rtps

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// MaxSetBits is the maximum amount of members a SequenceNumberSet or FragmentNumberSet might
// address relative to its base.
const MaxSetBits uint = 256

// SequenceNumberSet is a bitmap of sequence numbers, starting at Base and covering at most
// MaxSetBits numbers. It is used within acknowledgements, where Base is the first sequence
// number not yet received and the members are the missing ones.
type SequenceNumberSet struct {
	Base SequenceNumber

	bits *bitset.BitSet
}

// NewSequenceNumberSet with the given base and no members.
func NewSequenceNumberSet(base SequenceNumber) SequenceNumberSet {
	return SequenceNumberSet{
		Base: base,
		bits: bitset.New(MaxSetBits),
	}
}

// Add a sequence number to this set. False is returned if the number cannot be addressed
// relative to the Base.
func (set *SequenceNumberSet) Add(sn SequenceNumber) bool {
	if sn.Less(set.Base) {
		return false
	}

	offset := sn.Value() - set.Base.Value()
	if offset >= uint64(MaxSetBits) {
		return false
	}

	if set.bits == nil {
		set.bits = bitset.New(MaxSetBits)
	}
	set.bits.Set(uint(offset))
	return true
}

// AddRange adds all sequence numbers from from up to to, both inclusive.
func (set *SequenceNumberSet) AddRange(from, to SequenceNumber) {
	for sn := from; sn.LessOrEqual(to); sn = sn.Inc() {
		if !set.Add(sn) && set.Base.LessOrEqual(sn) {
			return
		}
	}
}

// IsSetMember checks if the sequence number is a member of this set.
func (set SequenceNumberSet) IsSetMember(sn SequenceNumber) bool {
	if set.bits == nil || sn.Less(set.Base) {
		return false
	}

	offset := sn.Value() - set.Base.Value()
	return offset < uint64(MaxSetBits) && set.bits.Test(uint(offset))
}

// Empty checks if there are no members.
func (set SequenceNumberSet) Empty() bool {
	return set.bits == nil || set.bits.None()
}

// Count of the set's members.
func (set SequenceNumberSet) Count() uint {
	if set.bits == nil {
		return 0
	}
	return set.bits.Count()
}

// ForEach calls f for every member in increasing order.
func (set SequenceNumberSet) ForEach(f func(SequenceNumber)) {
	if set.bits == nil {
		return
	}

	for i, ok := set.bits.NextSet(0); ok; i, ok = set.bits.NextSet(i + 1) {
		f(set.Base.Add(uint64(i)))
	}
}

// Max returns the highest member or the Base for an empty set.
func (set SequenceNumberSet) Max() SequenceNumber {
	max := set.Base
	set.ForEach(func(sn SequenceNumber) {
		max = sn
	})
	return max
}

func (set SequenceNumberSet) String() string {
	var members []string
	set.ForEach(func(sn SequenceNumber) {
		members = append(members, sn.String())
	})

	return fmt.Sprintf("SequenceNumberSet(base=%v, [%s])", set.Base, strings.Join(members, ","))
}

// FragmentNumber identifies a fragment of a change. Fragment numbers start at 1.
type FragmentNumber uint32

// FragmentNumberSet is a bitmap of fragment numbers, used within NACK_FRAG messages.
type FragmentNumberSet struct {
	Base FragmentNumber

	bits *bitset.BitSet
}

// NewFragmentNumberSet with the given base and no members.
func NewFragmentNumberSet(base FragmentNumber) FragmentNumberSet {
	return FragmentNumberSet{
		Base: base,
		bits: bitset.New(MaxSetBits),
	}
}

// Add a fragment number. False is returned if it cannot be addressed relative to the Base.
func (set *FragmentNumberSet) Add(fn FragmentNumber) bool {
	if fn < set.Base || uint(fn-set.Base) >= MaxSetBits {
		return false
	}

	if set.bits == nil {
		set.bits = bitset.New(MaxSetBits)
	}
	set.bits.Set(uint(fn - set.Base))
	return true
}

// IsSetMember checks if the fragment number is a member of this set.
func (set FragmentNumberSet) IsSetMember(fn FragmentNumber) bool {
	if set.bits == nil || fn < set.Base || uint(fn-set.Base) >= MaxSetBits {
		return false
	}
	return set.bits.Test(uint(fn - set.Base))
}

// Empty checks if there are no members.
func (set FragmentNumberSet) Empty() bool {
	return set.bits == nil || set.bits.None()
}

// ForEach calls f for every member in increasing order.
func (set FragmentNumberSet) ForEach(f func(FragmentNumber)) {
	if set.bits == nil {
		return
	}

	for i, ok := set.bits.NextSet(0); ok; i, ok = set.bits.NextSet(i + 1) {
		f(set.Base + FragmentNumber(i))
	}
}

func (set FragmentNumberSet) String() string {
	var members []string
	set.ForEach(func(fn FragmentNumber) {
		members = append(members, fmt.Sprintf("%d", fn))
	})

	return fmt.Sprintf("FragmentNumberSet(base=%d, [%s])", set.Base, strings.Join(members, ","))
}
