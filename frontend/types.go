// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"fmt"
	"time"

	"github.com/luxfi/mboxrpc"
)

// WireRecord is the flat form of a record handed across the front-end.
// Payloads always travel in full; shared memory addresses never leave the
// endpoint.
type WireRecord struct {
	Direction         uint8  `json:"direction"`
	CallKind          uint8  `json:"call_kind"`
	Command           uint32 `json:"command"`
	PayloadLen        uint32 `json:"payload_len"`
	Payload           []byte `json:"payload,omitempty"`
	CorrelationHandle uint64 `json:"correlation_handle"`
	Result            int32  `json:"result"`
}

// FromRequest flattens an inbound request.
func FromRequest(req *mboxrpc.Request) *WireRecord {
	return &WireRecord{
		Direction:         uint8(mboxrpc.DirRequest),
		CallKind:          uint8(req.Kind),
		Command:           uint32(req.Command),
		PayloadLen:        uint32(len(req.Payload)),
		Payload:           req.Payload,
		CorrelationHandle: uint64(req.Handle()),
	}
}

// Request rebuilds the request a reply record answers.
func (w *WireRecord) Request() (*mboxrpc.Request, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return mboxrpc.NewRequest(mboxrpc.Command(w.Command), mboxrpc.Kind(w.CallKind), uint32(w.CorrelationHandle), nil), nil
}

func (w *WireRecord) validate() error {
	switch {
	case int(w.PayloadLen) != len(w.Payload):
		return fmt.Errorf("%w: payload_len %d, payload %d bytes", mboxrpc.ErrInvalidLength, w.PayloadLen, len(w.Payload))
	case w.PayloadLen > mboxrpc.MaxPayloadLen:
		return fmt.Errorf("%w: %d", mboxrpc.ErrInvalidLength, w.PayloadLen)
	case w.CallKind > uint8(mboxrpc.DeferredReply):
		return fmt.Errorf("%w: call kind %d", mboxrpc.ErrFail, w.CallKind)
	case w.CorrelationHandle > 1<<32-1:
		return fmt.Errorf("%w: correlation handle %#x", mboxrpc.ErrFail, w.CorrelationHandle)
	}
	return nil
}

// Empty is the argument or reply of operations that carry nothing.
type Empty struct{}

type CallArgs struct {
	Server    uint16 `json:"server"`
	Opcode    uint16 `json:"opcode"`
	Kind      uint8  `json:"call_kind"`
	Payload   []byte `json:"payload,omitempty"`
	TimeoutMs int64  `json:"timeout_ms"`
}

func (a *CallArgs) timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// CallReply carries the response of a WaitForReply call or the token of a
// DeferredReply call.
type CallReply struct {
	Result  int32  `json:"result"`
	Status  string `json:"status"`
	Payload []byte `json:"payload,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Reply converts the wire reply back to an endpoint reply.
func (r *CallReply) Reply() *mboxrpc.Reply {
	return &mboxrpc.Reply{Status: mboxrpc.Status(r.Result), Payload: r.Payload}
}

type TokenArgs struct {
	Token     string `json:"token"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

type SessionArgs struct {
	Session string `json:"session"`
}

type SessionReply struct {
	Session string `json:"session"`
}

type RegisterArgs struct {
	Session string `json:"session"`
	Server  uint16 `json:"server"`
}

type RecvArgs struct {
	Session   string `json:"session"`
	Server    uint16 `json:"server"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type RecvReply struct {
	Record WireRecord `json:"record"`
}

type ReplyArgs struct {
	Session string     `json:"session"`
	Record  WireRecord `json:"record"`
}
