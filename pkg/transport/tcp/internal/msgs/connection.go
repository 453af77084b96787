// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
)

// ConnectionRequest starts the handshake of an outbound channel. Locator is the physical
// locator the requesting participant listens on.
type ConnectionRequest struct {
	Version    ProtocolVersion
	VendorId   uint16
	GuidPrefix rtps.GuidPrefix
	Locator    locator.Locator
}

// Kind of a ConnectionRequest.
func (cr *ConnectionRequest) Kind() Kind {
	return ConnectionRequestKind
}

func (cr *ConnectionRequest) String() string {
	return fmt.Sprintf("ConnectionRequest(version=%v, vendor=%04x, prefix=%v, locator=%v)",
		cr.Version, cr.VendorId, cr.GuidPrefix, cr.Locator)
}

// MarshalCbor as an array of major version, minor version, vendor id, GUID prefix, locator.
func (cr *ConnectionRequest) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}

	fields := []uint64{uint64(cr.Version.Major), uint64(cr.Version.Minor), uint64(cr.VendorId)}
	for _, field := range fields {
		if err := cboring.WriteUInt(field, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteByteString(cr.GuidPrefix[:], w); err != nil {
		return err
	}
	return writeLocator(cr.Locator, w)
}

// UnmarshalCbor reads a ConnectionRequest.
func (cr *ConnectionRequest) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("ConnectionRequest expected array of length 5, got %d", n)
	}

	var fields [3]uint64
	for i := range fields {
		if field, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			fields[i] = field
		}
	}
	if fields[0] > 0xff || fields[1] > 0xff || fields[2] > 0xffff {
		return fmt.Errorf("ConnectionRequest has invalid version %d.%d or vendor %d", fields[0], fields[1], fields[2])
	}
	cr.Version = ProtocolVersion{Major: uint8(fields[0]), Minor: uint8(fields[1])}
	cr.VendorId = uint16(fields[2])

	if err := readGuidPrefix(&cr.GuidPrefix, r); err != nil {
		return err
	}

	loc, err := readLocator(r)
	cr.Locator = loc
	return err
}

// ConnectionResponse answers a ConnectionRequest.
type ConnectionResponse struct {
	Code       ResponseCode
	GuidPrefix rtps.GuidPrefix
	Locator    locator.Locator
}

// Kind of a ConnectionResponse.
func (cr *ConnectionResponse) Kind() Kind {
	return ConnectionResponseKind
}

func (cr *ConnectionResponse) String() string {
	return fmt.Sprintf("ConnectionResponse(%v, prefix=%v, locator=%v)", cr.Code, cr.GuidPrefix, cr.Locator)
}

// MarshalCbor as an array of code, GUID prefix, locator.
func (cr *ConnectionResponse) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(cr.Code), w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(cr.GuidPrefix[:], w); err != nil {
		return err
	}
	return writeLocator(cr.Locator, w)
}

// UnmarshalCbor reads a ConnectionResponse.
func (cr *ConnectionResponse) UnmarshalCbor(r io.Reader) (err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return arrErr
	} else if n != 3 {
		return fmt.Errorf("ConnectionResponse expected array of length 3, got %d", n)
	}

	if cr.Code, err = readCode(r); err != nil {
		return
	}
	if err = readGuidPrefix(&cr.GuidPrefix, r); err != nil {
		return
	}
	cr.Locator, err = readLocator(r)
	return
}

// BindConnection finishes the handshake. The accepting side binds the channel to Locator.
type BindConnection struct {
	Locator locator.Locator
}

// Kind of a BindConnection.
func (bc *BindConnection) Kind() Kind {
	return BindConnectionKind
}

func (bc *BindConnection) String() string {
	return fmt.Sprintf("BindConnection(%v)", bc.Locator)
}

// MarshalCbor the locator.
func (bc *BindConnection) MarshalCbor(w io.Writer) error {
	return writeLocator(bc.Locator, w)
}

// UnmarshalCbor the locator.
func (bc *BindConnection) UnmarshalCbor(r io.Reader) (err error) {
	bc.Locator, err = readLocator(r)
	return
}

// UnbindConnection announces a graceful shutdown.
type UnbindConnection struct{}

// Kind of an UnbindConnection.
func (*UnbindConnection) Kind() Kind {
	return UnbindConnectionKind
}

func (*UnbindConnection) String() string {
	return "UnbindConnection"
}

// MarshalCbor as an empty array.
func (*UnbindConnection) MarshalCbor(w io.Writer) error {
	return cboring.WriteArrayLength(0, w)
}

// UnmarshalCbor an empty array.
func (*UnbindConnection) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 0 {
		return fmt.Errorf("UnbindConnection expected array of length 0, got %d", n)
	}
	return nil
}

func readGuidPrefix(prefix *rtps.GuidPrefix, r io.Reader) error {
	data, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	} else if len(data) != len(prefix) {
		return fmt.Errorf("GUID prefix needs %d bytes, got %d", len(prefix), len(data))
	}

	copy(prefix[:], data)
	return nil
}
