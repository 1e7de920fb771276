// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// CallFifo is a bounded circular queue of records. Push never blocks; Pop
// blocks until a record is available.
//
// The write and read counters grow without bound and are reduced modulo the
// capacity only to index the backing array, so 0 <= write-read <= capacity
// always holds.
type CallFifo struct {
	slots []Record
	mask  uint64

	pushMu sync.Mutex
	popMu  sync.Mutex
	write  atomic.Uint64
	read   atomic.Uint64
	closed atomic.Bool

	cell *WaitCell
}

// NewCallFifo returns a fifo holding capacity records. The capacity must
// be a power of two.
func NewCallFifo(capacity int) (*CallFifo, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("mboxrpc: fifo capacity %d is not a power of two", capacity)
	}
	return &CallFifo{
		slots: make([]Record, capacity),
		mask:  uint64(capacity - 1),
		cell:  Untimed(),
	}, nil
}

func (q *CallFifo) Cap() int { return len(q.slots) }

func (q *CallFifo) Len() int {
	return int(q.write.Load() - q.read.Load())
}

// Push appends rec, or returns ErrFull without touching the queue. A
// closed fifo refuses every record with ErrClosed.
func (q *CallFifo) Push(rec Record) error {
	q.pushMu.Lock()
	if q.closed.Load() {
		q.pushMu.Unlock()
		return ErrClosed
	}
	w, r := q.write.Load(), q.read.Load()
	if w-r >= uint64(len(q.slots)) {
		q.pushMu.Unlock()
		return ErrFull
	}
	q.slots[w&q.mask] = rec
	// the counter store publishes the slot to the consumer
	q.write.Store(w + 1)
	q.pushMu.Unlock()

	q.cell.Signal()
	return nil
}

// Pop removes the oldest record, waiting for one if the queue is empty.
func (q *CallFifo) Pop(ctx context.Context) (Record, error) {
	for {
		if rec, ok := q.TryPop(); ok {
			return rec, nil
		}
		// a coalesced or stale permit wakes us with nothing queued; the
		// emptiness check above runs again
		if err := q.cell.Wait(ctx); err != nil {
			return Record{}, err
		}
	}
}

// TryPop removes the oldest record if there is one. Records left in a
// closed fifo belong to whoever closed it.
func (q *CallFifo) TryPop() (Record, bool) {
	return q.take(false)
}

func (q *CallFifo) take(closed bool) (Record, bool) {
	q.popMu.Lock()
	defer q.popMu.Unlock()
	if q.closed.Load() != closed {
		return Record{}, false
	}
	r, w := q.read.Load(), q.write.Load()
	if w == r {
		return Record{}, false
	}
	i := r & q.mask
	rec := q.slots[i]
	q.slots[i] = Record{}
	q.read.Store(r + 1)
	return rec, true
}

// Interrupt wakes a blocked Pop with ErrInterrupted.
func (q *CallFifo) Interrupt() { q.cell.Interrupt() }

// Close stops the fifo for good: Push fails with ErrClosed and blocked or
// later Pops return ErrInterrupted. Queued records stay for drain.
func (q *CallFifo) Close() {
	q.pushMu.Lock()
	q.popMu.Lock()
	q.closed.Store(true)
	q.popMu.Unlock()
	q.pushMu.Unlock()
	q.cell.Interrupt()
}

// Reset empties the queue, releasing queued out-of-band payloads, and
// re-arms its wait cell.
func (q *CallFifo) Reset() {
	for _, rec := range q.reset() {
		rec.Release()
	}
}

// reset empties the queue and re-arms its wait cell. The removed records
// are returned to the caller.
func (q *CallFifo) reset() []Record {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()
	q.popMu.Lock()
	defer q.popMu.Unlock()

	var recs []Record
	for r, w := q.read.Load(), q.write.Load(); r != w; r++ {
		recs = append(recs, q.slots[r&q.mask])
		q.slots[r&q.mask] = Record{}
	}
	q.write.Store(0)
	q.read.Store(0)
	q.cell.Reset()
	return recs
}

// drain hands every queued record to drop.
func (q *CallFifo) drain(drop func(Record)) {
	for {
		rec, ok := q.take(true)
		if !ok {
			return
		}
		drop(rec)
	}
}
