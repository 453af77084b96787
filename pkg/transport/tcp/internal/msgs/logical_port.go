// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// OpenLogicalPortRequest asks the peer if an input is open for a logical port.
type OpenLogicalPortRequest struct {
	Port uint16
}

// Kind of an OpenLogicalPortRequest.
func (req *OpenLogicalPortRequest) Kind() Kind {
	return OpenLogicalPortRequestKind
}

func (req *OpenLogicalPortRequest) String() string {
	return fmt.Sprintf("OpenLogicalPortRequest(%d)", req.Port)
}

// MarshalCbor the port.
func (req *OpenLogicalPortRequest) MarshalCbor(w io.Writer) error {
	return writePort(req.Port, w)
}

// UnmarshalCbor the port.
func (req *OpenLogicalPortRequest) UnmarshalCbor(r io.Reader) (err error) {
	req.Port, err = readPort(r)
	return
}

// OpenLogicalPortResponse is either OK or INVALID_PORT.
type OpenLogicalPortResponse struct {
	Code ResponseCode
	Port uint16
}

// Kind of an OpenLogicalPortResponse.
func (resp *OpenLogicalPortResponse) Kind() Kind {
	return OpenLogicalPortResponseKind
}

func (resp *OpenLogicalPortResponse) String() string {
	return fmt.Sprintf("OpenLogicalPortResponse(%v, %d)", resp.Code, resp.Port)
}

// MarshalCbor as an array of code and port.
func (resp *OpenLogicalPortResponse) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(resp.Code), w); err != nil {
		return err
	}
	return writePort(resp.Port, w)
}

// UnmarshalCbor an array of code and port.
func (resp *OpenLogicalPortResponse) UnmarshalCbor(r io.Reader) (err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		return arrErr
	} else if n != 2 {
		return fmt.Errorf("OpenLogicalPortResponse expected array of length 2, got %d", n)
	}

	if resp.Code, err = readCode(r); err != nil {
		return
	}
	resp.Port, err = readPort(r)
	return
}

// CheckLogicalPortRequest asks which of the candidate ports are open.
type CheckLogicalPortRequest struct {
	Ports []uint16
}

// Kind of a CheckLogicalPortRequest.
func (req *CheckLogicalPortRequest) Kind() Kind {
	return CheckLogicalPortRequestKind
}

func (req *CheckLogicalPortRequest) String() string {
	return fmt.Sprintf("CheckLogicalPortRequest(%v)", req.Ports)
}

// MarshalCbor the ports as an array.
func (req *CheckLogicalPortRequest) MarshalCbor(w io.Writer) error {
	return writePorts(req.Ports, w)
}

// UnmarshalCbor an array of ports.
func (req *CheckLogicalPortRequest) UnmarshalCbor(r io.Reader) (err error) {
	req.Ports, err = readPorts(r)
	return
}

// CheckLogicalPortResponse lists the open ports of a CheckLogicalPortRequest's candidates.
type CheckLogicalPortResponse struct {
	Ports []uint16
}

// Kind of a CheckLogicalPortResponse.
func (resp *CheckLogicalPortResponse) Kind() Kind {
	return CheckLogicalPortResponseKind
}

func (resp *CheckLogicalPortResponse) String() string {
	return fmt.Sprintf("CheckLogicalPortResponse(%v)", resp.Ports)
}

// MarshalCbor the ports as an array.
func (resp *CheckLogicalPortResponse) MarshalCbor(w io.Writer) error {
	return writePorts(resp.Ports, w)
}

// UnmarshalCbor an array of ports.
func (resp *CheckLogicalPortResponse) UnmarshalCbor(r io.Reader) (err error) {
	resp.Ports, err = readPorts(r)
	return
}

// LogicalPortIsClosed informs the peer that no input is open for a port anymore.
type LogicalPortIsClosed struct {
	Port uint16
}

// Kind of a LogicalPortIsClosed.
func (msg *LogicalPortIsClosed) Kind() Kind {
	return LogicalPortIsClosedKind
}

func (msg *LogicalPortIsClosed) String() string {
	return fmt.Sprintf("LogicalPortIsClosed(%d)", msg.Port)
}

// MarshalCbor the port.
func (msg *LogicalPortIsClosed) MarshalCbor(w io.Writer) error {
	return writePort(msg.Port, w)
}

// UnmarshalCbor the port.
func (msg *LogicalPortIsClosed) UnmarshalCbor(r io.Reader) (err error) {
	msg.Port, err = readPort(r)
	return
}

func writePorts(ports []uint16, w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(ports)), w); err != nil {
		return err
	}
	for _, port := range ports {
		if err := writePort(port, w); err != nil {
			return err
		}
	}
	return nil
}

func readPorts(r io.Reader) ([]uint16, error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	} else if n > 0xffff {
		return nil, fmt.Errorf("port list of length %d is too long", n)
	}

	ports := make([]uint16, 0, n)
	for i := uint64(0); i < n; i++ {
		port, err := readPort(r)
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, nil
}
