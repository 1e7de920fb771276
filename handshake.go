// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	defaultReadyDeadline = 10 * time.Millisecond
	defaultReadyInterval = 20 * time.Microsecond
)

// SequenceCounter hands out the tags stamped on out-of-band payloads.
// Zero is never returned, so a region that was never stamped never
// matches.
type SequenceCounter struct {
	mu sync.Mutex
	v  uint32
}

func (c *SequenceCounter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v++
	if c.v == 0 {
		c.v++
	}
	return c.v
}

// Handshake makes the arrival of a pointer-carried payload observable to
// the receiver without copying it through the mailbox.
type Handshake struct {
	seq      *SequenceCounter
	deadline time.Duration
	interval time.Duration
}

func NewHandshake(seq *SequenceCounter, deadline time.Duration) *Handshake {
	if deadline <= 0 {
		deadline = defaultReadyDeadline
	}
	return &Handshake{
		seq:      seq,
		deadline: deadline,
		interval: defaultReadyInterval,
	}
}

// Stamp writes the next sequence value into rec's correlation and into the
// tag after the payload. Inline records are left alone.
func (h *Handshake) Stamp(rec *Record) {
	p, ok := rec.Payload.(*OutOfBand)
	if !ok {
		return
	}
	v := h.seq.Next()
	rec.Correlation.Seq = v
	p.Region.setTag(v)
}

// AwaitReady polls the tag of an out-of-band payload until it matches the
// sequence value carried by rec. It returns ErrDataNotReady if the deadline
// passes first; the payload must then not be trusted.
func (h *Handshake) AwaitReady(ctx context.Context, rec *Record) error {
	p, ok := rec.Payload.(*OutOfBand)
	if !ok {
		return nil
	}
	want := rec.Correlation.Seq
	if want == 0 {
		return ErrDataNotReady
	}
	if p.Region.Tag() == want {
		return nil
	}
	err := wait.PollImmediateWithContext(ctx, h.interval, h.deadline, func(context.Context) (bool, error) {
		return p.Region.Tag() == want, nil
	})
	if err != nil {
		return ErrDataNotReady
	}
	return nil
}
