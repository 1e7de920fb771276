// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sim provides an in-process mailbox pair standing in for the
// hardware between two cores.
package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/mboxrpc"
)

// slot is one direction of the mailbox. It stays busy from the writer's
// Write until the reader's Read.
type slot struct {
	mu    sync.Mutex
	frame mboxrpc.Frame
	busy  atomic.Bool

	writes atomic.Uint64
	reads  atomic.Uint64
}

// Mailbox is one side of a simulated mailbox pair.
type Mailbox struct {
	name  string
	out   *slot
	in    *slot
	irq   chan struct{}
	peer  *Mailbox
	stuck atomic.Bool
}

var _ mboxrpc.Mailbox = (*Mailbox)(nil)

// Option configures a pair.
type Option func(*config)

type config struct {
	arenaLimit int
	tagDelay   time.Duration
}

// WithArenaLimit bounds the bytes of shared memory live at once.
func WithArenaLimit(n int) Option {
	return func(c *config) { c.arenaLimit = n }
}

// WithTagDelay delays sequence tag visibility, the way an asynchronous
// copy engine would.
func WithTagDelay(d time.Duration) Option {
	return func(c *config) { c.tagDelay = d }
}

// NewPair returns the two sides of a mailbox and the memory they share.
func NewPair(opts ...Option) (*Mailbox, *Mailbox, *mboxrpc.Arena) {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	ab, ba := &slot{}, &slot{}
	a := &Mailbox{name: "a", out: ab, in: ba, irq: make(chan struct{}, 1)}
	b := &Mailbox{name: "b", out: ba, in: ab, irq: make(chan struct{}, 1)}
	a.peer, b.peer = b, a

	arena := mboxrpc.NewArena(c.arenaLimit)
	arena.SetTagDelay(c.tagDelay)
	return a, b, arena
}

func (m *Mailbox) Busy() bool {
	return m.stuck.Load() || m.out.busy.Load()
}

func (m *Mailbox) Write(f *mboxrpc.Frame) {
	m.out.mu.Lock()
	m.out.frame = *f
	m.out.busy.Store(true)
	m.out.mu.Unlock()
	m.out.writes.Add(1)
}

func (m *Mailbox) Trigger() {
	select {
	case m.peer.irq <- struct{}{}:
	default:
	}
}

func (m *Mailbox) Read(f *mboxrpc.Frame) {
	m.in.mu.Lock()
	*f = m.in.frame
	m.in.frame = mboxrpc.Frame{}
	m.in.busy.Store(false)
	m.in.mu.Unlock()
	m.in.reads.Add(1)
}

func (m *Mailbox) Interrupts() <-chan struct{} { return m.irq }

// SetStuck pins the outbound busy flag, as a wedged remote core would.
func (m *Mailbox) SetStuck(stuck bool) { m.stuck.Store(stuck) }

// Sent returns the number of frames written to the outbound slot.
func (m *Mailbox) Sent() uint64 { return m.out.writes.Load() }

// Received returns the number of frames read from the inbound slot.
func (m *Mailbox) Received() uint64 { return m.in.reads.Load() }

func (m *Mailbox) String() string { return "sim-mailbox-" + m.name }
