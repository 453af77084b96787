// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/dtn7/rtps-go/pkg/locator"
)

// ResponseCode of a response message.
type ResponseCode uint64

const (
	ResponseOK ResponseCode = iota
	ResponseVoid
	ResponseExistingConnection
	ResponseInvalidPort
	ResponseBadRequest
	ResponseUnknownLocator
	ResponseIncompatibleVersion
	ResponseServerError
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseOK:
		return "OK"
	case ResponseVoid:
		return "VOID"
	case ResponseExistingConnection:
		return "EXISTING_CONNECTION"
	case ResponseInvalidPort:
		return "INVALID_PORT"
	case ResponseBadRequest:
		return "BAD_REQUEST"
	case ResponseUnknownLocator:
		return "UNKNOWN_LOCATOR"
	case ResponseIncompatibleVersion:
		return "INCOMPATIBLE_VERSION"
	case ResponseServerError:
		return "SERVER_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint64(c))
	}
}

// ProtocolVersion of the control protocol.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// CurrentVersion is spoken by this implementation.
var CurrentVersion = ProtocolVersion{Major: 2, Minor: 3}

// Compatible versions share the major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func writeLocator(loc locator.Locator, w io.Writer) error {
	kind := uint64(0)
	if loc.IsValid() {
		kind = uint64(loc.Kind)
	}

	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(kind, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(loc.Port), w); err != nil {
		return err
	}
	return cboring.WriteByteString(loc.Address[:], w)
}

func readLocator(r io.Reader) (loc locator.Locator, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 3 {
		err = fmt.Errorf("locator expected array of length 3, got %d", n)
		return
	}

	kind, err := cboring.ReadUInt(r)
	if err != nil {
		return
	}
	switch locator.Kind(kind) {
	case locator.KindTCPv4, locator.KindTCPv6:
		loc.Kind = locator.Kind(kind)
	default:
		loc.Kind = locator.KindInvalid
	}

	port, err := cboring.ReadUInt(r)
	if err != nil {
		return
	} else if port > 0xffffffff {
		err = fmt.Errorf("locator port %d exceeds 32 bit", port)
		return
	}
	loc.Port = uint32(port)

	addr, err := cboring.ReadByteString(r)
	if err != nil {
		return
	} else if len(addr) != len(loc.Address) {
		err = fmt.Errorf("locator address needs %d bytes, got %d", len(loc.Address), len(addr))
		return
	}
	copy(loc.Address[:], addr)
	return
}

func writePort(port uint16, w io.Writer) error {
	return cboring.WriteUInt(uint64(port), w)
}

func readPort(r io.Reader) (uint16, error) {
	port, err := cboring.ReadUInt(r)
	if err != nil {
		return 0, err
	} else if port > 0xffff {
		return 0, fmt.Errorf("logical port %d exceeds 16 bit", port)
	}
	return uint16(port), nil
}

func readCode(r io.Reader) (ResponseCode, error) {
	code, err := cboring.ReadUInt(r)
	return ResponseCode(code), err
}
