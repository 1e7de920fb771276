// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import "fmt"

// MaxPayloadLen is the largest logical payload a single call may carry.
const MaxPayloadLen = 64 * 1024

// Direction tells requests from responses.
type Direction uint8

const (
	DirRequest Direction = iota
	DirResponse
)

func (d Direction) String() string {
	if d == DirResponse {
		return "response"
	}
	return "request"
}

// Kind selects the call semantics of a request.
type Kind uint8

const (
	NoReply Kind = iota
	WaitForReply
	DeferredReply
)

func (k Kind) String() string {
	switch k {
	case NoReply:
		return "no_reply"
	case WaitForReply:
		return "wait_for_reply"
	case DeferredReply:
		return "deferred_reply"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Command packs a server id in its high 16 bits and an opcode in the low 16.
type Command uint32

func NewCommand(server, opcode uint16) Command {
	return Command(uint32(server)<<16 | uint32(opcode))
}

func (c Command) Server() uint16 { return uint16(c >> 16) }
func (c Command) Opcode() uint16 { return uint16(c) }

func (c Command) String() string {
	return fmt.Sprintf("%d:%d", c.Server(), c.Opcode())
}

// Correlation matches a response to the pending call that issued the
// request. Seq is the sequence tag of an out-of-band payload.
type Correlation struct {
	Handle uint32
	Seq    uint32
}

// Payload is either *Inline or *OutOfBand.
type Payload interface {
	Len() int
	Bytes() []byte
	payload()
}

// Inline is a payload carried inside the mailbox frame.
type Inline struct {
	n   int
	buf [InlineCapacity]byte
}

func (p *Inline) Len() int      { return p.n }
func (p *Inline) Bytes() []byte { return p.buf[:p.n] }
func (*Inline) payload()        {}

// OutOfBand is a payload left in shared memory; only its address crosses
// the mailbox.
type OutOfBand struct {
	Region *Region
}

func (p *OutOfBand) Len() int      { return p.Region.Len() }
func (p *OutOfBand) Bytes() []byte { return p.Region.Bytes() }
func (*OutOfBand) payload()        {}

// NewPayload copies b into an inline payload, or into a region allocated
// from mem when it does not fit inline. An empty b yields a nil payload.
func NewPayload(mem Memory, b []byte) (Payload, error) {
	switch {
	case len(b) > MaxPayloadLen:
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidLength, len(b), MaxPayloadLen)
	case len(b) == 0:
		return nil, nil
	case len(b) <= InlineCapacity:
		p := &Inline{n: len(b)}
		copy(p.buf[:], b)
		return p, nil
	}
	r, err := mem.Alloc(len(b))
	if err != nil {
		return nil, err
	}
	copy(r.Bytes(), b)
	return &OutOfBand{Region: r}, nil
}

// Record is the logical unit moved across the mailbox.
type Record struct {
	Direction   Direction
	Kind        Kind
	Command     Command
	Payload     Payload
	Correlation Correlation
	Result      Status
}

// Len returns the logical payload length.
func (r *Record) Len() int {
	if r.Payload == nil {
		return 0
	}
	return r.Payload.Len()
}

// Bytes returns the payload bytes without copying.
func (r *Record) Bytes() []byte {
	if r.Payload == nil {
		return nil
	}
	return r.Payload.Bytes()
}

// OutOfBand reports whether the payload lives in shared memory.
func (r *Record) OutOfBand() bool {
	_, ok := r.Payload.(*OutOfBand)
	return ok
}

// Release frees the shared memory region of an out-of-band payload. The
// side that consumes a record releases it.
func (r *Record) Release() {
	if p, ok := r.Payload.(*OutOfBand); ok && p.Region != nil {
		p.Region.Free()
		p.Region = nil
		r.Payload = nil
	}
}

// respond builds the response skeleton for a request.
func (r *Record) respond(status Status) Record {
	return Record{
		Direction:   DirResponse,
		Kind:        r.Kind,
		Command:     r.Command,
		Correlation: Correlation{Handle: r.Correlation.Handle},
		Result:      status,
	}
}
