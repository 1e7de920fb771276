// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitCellUntimed(t *testing.T) {
	ctx := context.Background()
	c := Untimed()
	if c.Timeout() != 0 {
		t.Fatalf("untimed cell has timeout %v", c.Timeout())
	}

	c.Signal()
	c.Signal() // coalesces
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}
}

func TestWaitCellTimed(t *testing.T) {
	c := Timed(10 * time.Millisecond)
	start := time.Now()
	if err := c.Wait(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("timed out after %v", elapsed)
	}

	c = Timed(time.Second)
	go func() {
		time.Sleep(2 * time.Millisecond)
		c.Signal()
	}()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitCellInterrupt(t *testing.T) {
	c := Untimed()
	errc := make(chan error, 1)
	go func() { errc <- c.Wait(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	c.Interrupt()
	c.Interrupt()
	if err := <-errc; !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}

	c.Reset()
	c.Signal()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait after Reset: %v", err)
	}
}
