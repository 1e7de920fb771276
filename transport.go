// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	defaultHwTimeout    = 50 * time.Millisecond
	defaultBusyInterval = 20 * time.Microsecond
)

// Mailbox is the hardware backend: a pair of mirrored record slots, a
// trigger bit and an interrupt line. Slot accesses have side effects, so
// Write and Read are each called once per transfer.
type Mailbox interface {
	// Busy reports whether the remote side has not yet consumed the last
	// outbound frame.
	Busy() bool
	// Write copies f into the outbound slot.
	Write(f *Frame)
	// Trigger raises the remote interrupt.
	Trigger()
	// Read copies the inbound slot into f and hands the slot back.
	Read(f *Frame)
	// Interrupts delivers one value per remote trigger.
	Interrupts() <-chan struct{}
}

// Transport moves single records across a Mailbox. Sends are serialized by
// one lock, so at most one record is in flight outbound.
type Transport struct {
	mbox Mailbox
	mem  Memory
	hs   *Handshake

	txMu         sync.Mutex
	hwTimeout    time.Duration
	busyInterval time.Duration
}

func NewTransport(mbox Mailbox, mem Memory, hs *Handshake, hwTimeout time.Duration) *Transport {
	if hwTimeout <= 0 {
		hwTimeout = defaultHwTimeout
	}
	return &Transport{
		mbox:         mbox,
		mem:          mem,
		hs:           hs,
		hwTimeout:    hwTimeout,
		busyInterval: defaultBusyInterval,
	}
}

// Send writes rec to the outbound slot and triggers the remote side. It
// fails with ErrHwTimeout if the slot stays busy past the hardware timeout.
// Out-of-band payloads are stamped before their address is written.
func (t *Transport) Send(ctx context.Context, rec *Record) error {
	t.txMu.Lock()
	defer t.txMu.Unlock()

	if t.mbox.Busy() {
		err := wait.PollImmediateWithContext(ctx, t.busyInterval, t.hwTimeout, func(context.Context) (bool, error) {
			return !t.mbox.Busy(), nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
			}
			return ErrHwTimeout
		}
	}

	if rec.OutOfBand() {
		t.hs.Stamp(rec)
	}
	var f Frame
	encodeFrame(rec, &f)
	t.mbox.Write(&f)
	t.mbox.Trigger()
	return nil
}

// Receive reads the inbound slot once. A pointer-carried payload is
// resolved in shared memory, not copied.
func (t *Transport) Receive() (Record, error) {
	var f Frame
	t.mbox.Read(&f)
	return decodeFrame(&f, t.mem)
}
