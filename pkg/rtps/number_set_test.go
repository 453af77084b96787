// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rtps

import (
	"reflect"
	"testing"
)

func TestSequenceNumberValue(t *testing.T) {
	tests := []struct {
		value uint64
		sn    SequenceNumber
	}{
		{0, SequenceNumber{0, 0}},
		{1, SequenceNumber{0, 1}},
		{0xffffffff, SequenceNumber{0, 0xffffffff}},
		{0x100000000, SequenceNumber{1, 0}},
		{0x500000023, SequenceNumber{5, 0x23}},
	}

	for _, test := range tests {
		if sn := NewSequenceNumber(test.value); sn != test.sn {
			t.Fatalf("NewSequenceNumber(%d) = %v, expected %v", test.value, sn, test.sn)
		} else if v := sn.Value(); v != test.value {
			t.Fatalf("Value() = %d, expected %d", v, test.value)
		}
	}
}

func TestSequenceNumberOrder(t *testing.T) {
	tests := []struct {
		a, b SequenceNumber
		cmp  int
	}{
		{NewSequenceNumber(1), NewSequenceNumber(2), -1},
		{NewSequenceNumber(2), NewSequenceNumber(2), 0},
		{NewSequenceNumber(0xffffffff), NewSequenceNumber(0x100000000), -1},
		{NewSequenceNumber(0x100000001), NewSequenceNumber(0x100000000), 1},
		{SequenceNumberUnknown, NewSequenceNumber(0), -1},
	}

	for _, test := range tests {
		if cmp := test.a.Compare(test.b); cmp != test.cmp {
			t.Fatalf("%v.Compare(%v) = %d, expected %d", test.a, test.b, cmp, test.cmp)
		}
	}

	if sn := NewSequenceNumber(0xffffffff).Inc(); sn != (SequenceNumber{1, 0}) {
		t.Fatalf("increment over the low word failed: %v", sn)
	}
	if sn := (SequenceNumber{1, 0}).Dec(); sn != (SequenceNumber{0, 0xffffffff}) {
		t.Fatalf("decrement over the low word failed: %v", sn)
	}
}

func TestSequenceNumberSet(t *testing.T) {
	set := NewSequenceNumberSet(NewSequenceNumber(10))

	if !set.Empty() {
		t.Fatal("new set is not empty")
	}

	for _, v := range []uint64{10, 12, 265} {
		if !set.Add(NewSequenceNumber(v)) {
			t.Fatalf("adding %d failed", v)
		}
	}

	if set.Add(NewSequenceNumber(9)) {
		t.Fatal("number below base was added")
	}
	if set.Add(NewSequenceNumber(266)) {
		t.Fatal("number out of range was added")
	}

	var members []uint64
	set.ForEach(func(sn SequenceNumber) {
		members = append(members, sn.Value())
	})

	if expected := []uint64{10, 12, 265}; !reflect.DeepEqual(members, expected) {
		t.Fatalf("members %v, expected %v", members, expected)
	}

	if !set.IsSetMember(NewSequenceNumber(12)) || set.IsSetMember(NewSequenceNumber(11)) {
		t.Fatal("IsSetMember mismatches")
	}
	if max := set.Max(); max.Value() != 265 {
		t.Fatalf("Max() = %v", max)
	}
	if n := set.Count(); n != 3 {
		t.Fatalf("Count() = %d", n)
	}
}

func TestSequenceNumberSetAddRange(t *testing.T) {
	set := NewSequenceNumberSet(NewSequenceNumber(5))
	set.AddRange(NewSequenceNumber(3), NewSequenceNumber(7))

	var members []uint64
	set.ForEach(func(sn SequenceNumber) {
		members = append(members, sn.Value())
	})

	if expected := []uint64{5, 6, 7}; !reflect.DeepEqual(members, expected) {
		t.Fatalf("members %v, expected %v", members, expected)
	}
}

func TestFragmentNumberSet(t *testing.T) {
	set := NewFragmentNumberSet(3)

	for _, fn := range []FragmentNumber{3, 4, 100} {
		if !set.Add(fn) {
			t.Fatalf("adding %d failed", fn)
		}
	}
	if set.Add(2) || set.Add(3+FragmentNumber(MaxSetBits)) {
		t.Fatal("out of range fragment was added")
	}

	var members []FragmentNumber
	set.ForEach(func(fn FragmentNumber) {
		members = append(members, fn)
	})

	if expected := []FragmentNumber{3, 4, 100}; !reflect.DeepEqual(members, expected) {
		t.Fatalf("members %v, expected %v", members, expected)
	}
}

func TestParseGuidPrefix(t *testing.T) {
	prefix, err := ParseGuidPrefix("010f0a0b0c0d0e0f01020304")
	if err != nil {
		t.Fatal(err)
	}
	if prefix.String() != "010f0a0b0c0d0e0f01020304" {
		t.Fatalf("String() = %s", prefix)
	}

	if _, err := ParseGuidPrefix("0102"); err == nil {
		t.Fatal("short prefix was accepted")
	}
	if _, err := ParseGuidPrefix("zz0f0a0b0c0d0e0f01020304"); err == nil {
		t.Fatal("invalid hex was accepted")
	}
}
