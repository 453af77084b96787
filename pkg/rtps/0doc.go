// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rtps contains the basic types shared by the reliability and transport layers:
// sequence numbers, sequence and fragment number sets and entity identifiers.
//
// Sequence numbers are kept in their wire representation of a signed high and an unsigned
// low 32 bit word, but all arithmetic is performed on the combined 64 bit value.
//
//	sn := rtps.NewSequenceNumber(41).Inc()
//	set := rtps.NewSequenceNumberSet(sn)
//	_ = set.Add(sn.Add(3))
//	set.ForEach(func(seq rtps.SequenceNumber) {
//	  fmt.Println(seq)
//	})
package rtps
