// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package writer

import (
	"time"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
)

// ReliabilityKind of a remote reader.
type ReliabilityKind uint8

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// DurabilityKind of a remote reader.
type DurabilityKind uint8

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// RemoteReaderAttributes describe the remote reader a ReaderProxy keeps state for.
type RemoteReaderAttributes struct {
	GUID              rtps.GUID
	Reliability       ReliabilityKind
	Durability        DurabilityKind
	ExpectsInlineQos  bool
	UnicastLocators   []locator.Locator
	MulticastLocators []locator.Locator
}

// Times of the reliable writer relevant for a ReaderProxy.
type Times struct {
	// NackSupressionDuration after sending a change until it is regarded as unacknowledged.
	NackSupressionDuration time.Duration
}

// DefaultTimes of a reliable writer.
func DefaultTimes() Times {
	return Times{
		NackSupressionDuration: 0,
	}
}
