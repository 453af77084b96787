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

// KeepAliveRequest pings a channel. Locator is the sender's listening locator.
type KeepAliveRequest struct {
	Locator locator.Locator
}

// Kind of a KeepAliveRequest.
func (req *KeepAliveRequest) Kind() Kind {
	return KeepAliveRequestKind
}

func (req *KeepAliveRequest) String() string {
	return fmt.Sprintf("KeepAliveRequest(%v)", req.Locator)
}

// MarshalCbor the locator.
func (req *KeepAliveRequest) MarshalCbor(w io.Writer) error {
	return writeLocator(req.Locator, w)
}

// UnmarshalCbor the locator.
func (req *KeepAliveRequest) UnmarshalCbor(r io.Reader) (err error) {
	req.Locator, err = readLocator(r)
	return
}

// KeepAliveResponse answers a KeepAliveRequest.
type KeepAliveResponse struct {
	Code ResponseCode
}

// Kind of a KeepAliveResponse.
func (resp *KeepAliveResponse) Kind() Kind {
	return KeepAliveResponseKind
}

func (resp *KeepAliveResponse) String() string {
	return fmt.Sprintf("KeepAliveResponse(%v)", resp.Code)
}

// MarshalCbor the code.
func (resp *KeepAliveResponse) MarshalCbor(w io.Writer) error {
	return cboring.WriteUInt(uint64(resp.Code), w)
}

// UnmarshalCbor the code.
func (resp *KeepAliveResponse) UnmarshalCbor(r io.Reader) (err error) {
	resp.Code, err = readCode(r)
	return
}
