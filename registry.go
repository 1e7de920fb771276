// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MaxServers bounds the server ids a registry can hold.
const MaxServers = 256

// Owner is the execution context allowed to drain a server's fifo.
type Owner interface {
	Alive() bool
}

// Session is an Owner that stays alive until it is ended.
type Session struct {
	id    uuid.UUID
	ended atomic.Bool
}

func NewSession() *Session {
	return &Session{id: uuid.New()}
}

func (s *Session) ID() string     { return s.id.String() }
func (s *Session) Alive() bool    { return !s.ended.Load() }
func (s *Session) End()           { s.ended.Store(true) }
func (s *Session) String() string { return s.ID() }

type serverSlot struct {
	fifo  *CallFifo
	owner Owner
}

// Registry binds server ids to call fifos. The lock only guards slot
// creation and teardown; lookups from the dispatcher are lock free.
type Registry struct {
	mu       sync.Mutex
	slots    [MaxServers]atomic.Pointer[serverSlot]
	capacity int

	// drop disposes of requests still queued when a fifo is cleared
	drop func(Record)
}

// NewRegistry returns a registry creating fifos of the given capacity.
func NewRegistry(capacity int) (*Registry, error) {
	if _, err := NewCallFifo(capacity); err != nil {
		return nil, err
	}
	return &Registry{capacity: capacity, drop: func(rec Record) { rec.Release() }}, nil
}

// Register binds id to owner. Registering again with the same owner clears
// and reuses the existing fifo. A different owner gets ErrBusy while the
// current one is alive; a dead owner is replaced by a fresh fifo and its
// blocked Pops return ErrInterrupted. Cleared requests are answered with
// StatusNoServer when the registry belongs to an Endpoint.
func (r *Registry) Register(id uint16, owner Owner) error {
	if int(id) >= MaxServers {
		return fmt.Errorf("%w: %d", ErrInvalidServer, id)
	}
	if owner == nil {
		return fmt.Errorf("%w: nil owner", ErrFail)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.slots[id].Load(); cur != nil {
		switch {
		case cur.owner == owner:
			for _, rec := range cur.fifo.reset() {
				r.drop(rec)
			}
			return nil
		case cur.owner.Alive():
			return fmt.Errorf("%w: server %d is owned", ErrBusy, id)
		}
		r.teardown(id, cur)
	}

	fifo, err := NewCallFifo(r.capacity)
	if err != nil {
		return err
	}
	r.slots[id].Store(&serverSlot{fifo: fifo, owner: owner})
	return nil
}

// Lookup returns the fifo bound to id.
func (r *Registry) Lookup(id uint16) (*CallFifo, bool) {
	if int(id) >= MaxServers {
		return nil, false
	}
	s := r.slots[id].Load()
	if s == nil {
		return nil, false
	}
	return s.fifo, true
}

// fifoFor returns the fifo bound to id if owner may drain it.
func (r *Registry) fifoFor(id uint16, owner Owner) (*CallFifo, error) {
	if int(id) >= MaxServers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidServer, id)
	}
	s := r.slots[id].Load()
	switch {
	case s == nil:
		return nil, fmt.Errorf("%w: %d", ErrNoServer, id)
	case s.owner != owner:
		return nil, fmt.Errorf("%w: server %d is owned", ErrBusy, id)
	}
	return s.fifo, nil
}

// OwnedBy reports whether owner holds server id.
func (r *Registry) OwnedBy(id uint16, owner Owner) bool {
	_, err := r.fifoFor(id, owner)
	return err == nil
}

// Unregister tears down id if owner holds it.
func (r *Registry) Unregister(id uint16, owner Owner) error {
	if int(id) >= MaxServers {
		return fmt.Errorf("%w: %d", ErrInvalidServer, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[id].Load()
	if s == nil || s.owner != owner {
		return fmt.Errorf("%w: %d", ErrNoServer, id)
	}
	r.teardown(id, s)
	return nil
}

// UnregisterAll tears down every slot held by owner and returns how many
// there were.
func (r *Registry) UnregisterAll(owner Owner) int {
	return r.sweep(func(s *serverSlot) bool { return s.owner == owner })
}

// Reap tears down every slot whose owner is dead.
func (r *Registry) Reap() int {
	return r.sweep(func(s *serverSlot) bool { return !s.owner.Alive() })
}

func (r *Registry) sweep(match func(*serverSlot) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id := range r.slots {
		if s := r.slots[id].Load(); s != nil && match(s) {
			r.teardown(uint16(id), s)
			n++
		}
	}
	return n
}

// teardown unbinds id and closes its fifo, so a dispatcher still holding
// the fifo from Lookup gets ErrClosed from Push.
func (r *Registry) teardown(id uint16, s *serverSlot) {
	r.slots[id].Store(nil)
	s.fifo.Close()
	s.fifo.drain(r.drop)
}

// Servers returns the ids currently registered.
func (r *Registry) Servers() []uint16 {
	var ids []uint16
	for id := range r.slots {
		if r.slots[id].Load() != nil {
			ids = append(ids, uint16(id))
		}
	}
	return ids
}
