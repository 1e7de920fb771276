// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"sync"
	"sync/atomic"
)

// PendingCall is the caller side of an outstanding request.
//
// The dispatcher and the caller both reach for it: the dispatcher to
// deliver a response, the caller to give up after a timeout or an Abandon.
// Ownership goes to whichever side removes it from the pending table first;
// the loser never releases anything the winner still uses.
type PendingCall struct {
	handle uint32
	kind   Kind
	cell   *WaitCell

	mu        sync.Mutex
	reply     Record
	err       error
	delivered bool
	abandoned bool

	redeemed atomic.Bool
}

// pendingTable maps correlation handles to pending calls.
type pendingTable struct {
	calls  sync.Map // handle -> *PendingCall
	nextID atomic.Uint32
}

func (t *pendingTable) add(kind Kind, cell *WaitCell) *PendingCall {
	id := t.nextID.Add(1)
	if id == 0 {
		id = t.nextID.Add(1)
	}
	pc := &PendingCall{handle: id, kind: kind, cell: cell}
	t.calls.Store(id, pc)
	return pc
}

// take removes the call for handle. Only the taker may complete it.
func (t *pendingTable) take(handle uint32) (*PendingCall, bool) {
	v, ok := t.calls.LoadAndDelete(handle)
	if !ok {
		return nil, false
	}
	return v.(*PendingCall), true
}

// complete hands a response to its pending call. A response nobody waits
// for any more is released here.
func (t *pendingTable) complete(rec Record) bool {
	pc, ok := t.take(rec.Correlation.Handle)
	if !ok {
		rec.Release()
		return false
	}
	pc.deliver(rec, nil)
	return true
}

// fail interrupts every outstanding call.
func (t *pendingTable) fail(err error) {
	t.calls.Range(func(k, _ interface{}) bool {
		if pc, ok := t.take(k.(uint32)); ok {
			pc.deliver(Record{}, err)
		}
		return true
	})
}

func (t *pendingTable) len() int {
	n := 0
	t.calls.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func (pc *PendingCall) deliver(rec Record, err error) {
	pc.mu.Lock()
	if pc.abandoned {
		pc.mu.Unlock()
		rec.Release()
		return
	}
	pc.reply = rec
	pc.err = err
	pc.delivered = true
	pc.mu.Unlock()
	pc.cell.Signal()
}

// result returns the delivered response, if any.
func (pc *PendingCall) result() (Record, bool, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.reply, pc.delivered, pc.err
}

// abandon marks the call dead. A response delivered before that point is
// released; one delivered after it is released by deliver.
func (pc *PendingCall) abandon() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.abandoned {
		return
	}
	pc.abandoned = true
	if pc.delivered {
		pc.reply.Release()
		pc.reply = Record{}
	}
}
