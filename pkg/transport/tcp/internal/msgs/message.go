// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package msgs contains the control messages exchanged on a channel's logical port 0.
//
// Each Message is serialized as a CBOR array of three elements: the Kind of its Body, the
// transaction id and the Body itself.
package msgs

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/dtn7/cboring"
)

// Kind of a control message.
type Kind uint64

const (
	ConnectionRequestKind Kind = iota
	ConnectionResponseKind
	BindConnectionKind
	UnbindConnectionKind
	OpenLogicalPortRequestKind
	OpenLogicalPortResponseKind
	CheckLogicalPortRequestKind
	CheckLogicalPortResponseKind
	LogicalPortIsClosedKind
	KeepAliveRequestKind
	KeepAliveResponseKind
)

// IsResponse checks if messages of this Kind answer a request. Responses carry the
// transaction id of their request.
func (k Kind) IsResponse() bool {
	switch k {
	case ConnectionResponseKind, OpenLogicalPortResponseKind, CheckLogicalPortResponseKind, KeepAliveResponseKind:
		return true
	default:
		return false
	}
}

// ResponseKind answering a request of this Kind. Kinds without a response return themselves.
func (k Kind) ResponseKind() Kind {
	switch k {
	case ConnectionRequestKind:
		return ConnectionResponseKind
	case OpenLogicalPortRequestKind:
		return OpenLogicalPortResponseKind
	case CheckLogicalPortRequestKind:
		return CheckLogicalPortResponseKind
	case KeepAliveRequestKind:
		return KeepAliveResponseKind
	default:
		return k
	}
}

func (k Kind) String() string {
	switch k {
	case ConnectionRequestKind:
		return "CONNECTION_REQUEST"
	case ConnectionResponseKind:
		return "CONNECTION_RESPONSE"
	case BindConnectionKind:
		return "BIND_CONNECTION"
	case UnbindConnectionKind:
		return "UNBIND_CONNECTION"
	case OpenLogicalPortRequestKind:
		return "OPEN_LOGICAL_PORT_REQUEST"
	case OpenLogicalPortResponseKind:
		return "OPEN_LOGICAL_PORT_RESPONSE"
	case CheckLogicalPortRequestKind:
		return "CHECK_LOGICAL_PORT_REQUEST"
	case CheckLogicalPortResponseKind:
		return "CHECK_LOGICAL_PORT_RESPONSE"
	case LogicalPortIsClosedKind:
		return "LOGICAL_PORT_IS_CLOSED"
	case KeepAliveRequestKind:
		return "KEEPALIVE_REQUEST"
	case KeepAliveResponseKind:
		return "KEEPALIVE_RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint64(k))
	}
}

// Body of a control message.
type Body interface {
	Kind() Kind

	fmt.Stringer
	cboring.CborMarshaler
}

// bodies maps each Kind to an example instance of its Body.
var bodies = map[Kind]Body{
	ConnectionRequestKind:        &ConnectionRequest{},
	ConnectionResponseKind:       &ConnectionResponse{},
	BindConnectionKind:           &BindConnection{},
	UnbindConnectionKind:         &UnbindConnection{},
	OpenLogicalPortRequestKind:   &OpenLogicalPortRequest{},
	OpenLogicalPortResponseKind:  &OpenLogicalPortResponse{},
	CheckLogicalPortRequestKind:  &CheckLogicalPortRequest{},
	CheckLogicalPortResponseKind: &CheckLogicalPortResponse{},
	LogicalPortIsClosedKind:      &LogicalPortIsClosed{},
	KeepAliveRequestKind:         &KeepAliveRequest{},
	KeepAliveResponseKind:        &KeepAliveResponse{},
}

// NewBody creates an empty Body for a Kind.
func NewBody(kind Kind) (body Body, err error) {
	bodyType, exists := bodies[kind]
	if !exists {
		err = fmt.Errorf("no control message registered for kind %d", uint64(kind))
		return
	}

	body = reflect.New(reflect.TypeOf(bodyType).Elem()).Interface().(Body)
	return
}

// Message is a control message with its transaction id.
type Message struct {
	TransactionId uint32
	Body          Body
}

// NewMessage wraps a Body.
func NewMessage(transactionId uint32, body Body) *Message {
	return &Message{TransactionId: transactionId, Body: body}
}

// Kind of the Body.
func (m Message) Kind() Kind {
	return m.Body.Kind()
}

func (m Message) String() string {
	return fmt.Sprintf("%v#%d", m.Body, m.TransactionId)
}

// MarshalCbor creates a CBOR array of kind, transaction id and body.
func (m *Message) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(m.Kind()), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.TransactionId), w); err != nil {
		return err
	}
	return cboring.Marshal(m.Body, w)
}

// UnmarshalCbor reads a CBOR array back into a Message.
func (m *Message) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("Message expected array of length 3, got %d", n)
	}

	kind, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	if m.Body, err = NewBody(Kind(kind)); err != nil {
		return err
	}

	if tid, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if tid > 0xffffffff {
		return fmt.Errorf("transaction id %d exceeds 32 bit", tid)
	} else {
		m.TransactionId = uint32(tid)
	}

	return cboring.Unmarshal(m.Body, r)
}

// Encode a Message into a frame payload.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := cboring.Marshal(m, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode a frame payload. Trailing bytes are rejected.
func Decode(payload []byte) (*Message, error) {
	r := bytes.NewReader(payload)

	m := new(Message)
	if err := cboring.Unmarshal(m, r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("control message has %d trailing bytes", r.Len())
	}
	return m, nil
}
