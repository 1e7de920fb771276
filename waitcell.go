// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"sync"
	"time"
)

// WaitCell is a single-owner wait point. An untimed cell is a binary
// semaphore; a timed cell gives up after its timeout.
type WaitCell struct {
	timeout time.Duration
	permit  chan struct{}

	mu   sync.Mutex
	intr chan struct{}
}

// Untimed returns a cell whose Wait blocks until Signal or interruption.
func Untimed() *WaitCell { return NewWaitCell(0) }

// Timed returns a cell whose Wait fails with ErrTimeout after d.
func Timed(d time.Duration) *WaitCell { return NewWaitCell(d) }

// NewWaitCell returns a timed cell, or an untimed one when timeout is zero.
func NewWaitCell(timeout time.Duration) *WaitCell {
	if timeout < 0 {
		timeout = 0
	}
	return &WaitCell{
		timeout: timeout,
		permit:  make(chan struct{}, 1),
		intr:    make(chan struct{}),
	}
}

// Timeout returns zero for an untimed cell.
func (c *WaitCell) Timeout() time.Duration { return c.timeout }

// Wait consumes the permit. It returns ErrInterrupted when ctx is done or
// the cell is interrupted, and ErrTimeout when a timed cell expires.
func (c *WaitCell) Wait(ctx context.Context) error {
	c.mu.Lock()
	intr := c.intr
	c.mu.Unlock()

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-c.permit:
		return nil
	case <-expired:
		// a signal racing the timer still wins
		select {
		case <-c.permit:
			return nil
		default:
		}
		return ErrTimeout
	case <-intr:
		return ErrInterrupted
	case <-ctx.Done():
		return ErrInterrupted
	}
}

// Signal releases the permit. Signals on a cell that already holds the
// permit coalesce.
func (c *WaitCell) Signal() {
	select {
	case c.permit <- struct{}{}:
	default:
	}
}

// Interrupt fails the current and future waits with ErrInterrupted until
// Reset.
func (c *WaitCell) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.intr:
	default:
		close(c.intr)
	}
}

// Reset drops a pending permit and clears an interruption.
func (c *WaitCell) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.permit:
	default:
	}
	select {
	case <-c.intr:
		c.intr = make(chan struct{})
	default:
	}
}
