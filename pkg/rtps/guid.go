// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rtps

import (
	"encoding/hex"
	"fmt"
)

// GuidPrefix identifies a participant.
type GuidPrefix [12]byte

// ParseGuidPrefix from its hexadecimal representation, e.g., "010f0a0b0c0d0e0f01020304".
func ParseGuidPrefix(s string) (prefix GuidPrefix, err error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return
	} else if len(data) != len(prefix) {
		err = fmt.Errorf("GUID prefix needs %d bytes, got %d", len(prefix), len(data))
		return
	}

	copy(prefix[:], data)
	return
}

func (prefix GuidPrefix) String() string {
	return hex.EncodeToString(prefix[:])
}

// EntityId identifies an endpoint within a participant.
type EntityId [4]byte

func (id EntityId) String() string {
	return hex.EncodeToString(id[:])
}

// GUID is the globally unique identifier of an endpoint.
type GUID struct {
	Prefix   GuidPrefix
	EntityId EntityId
}

func (guid GUID) String() string {
	return fmt.Sprintf("%v|%v", guid.Prefix, guid.EntityId)
}
