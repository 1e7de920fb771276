// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func req(opcode uint16) Record {
	return Record{Direction: DirRequest, Kind: NoReply, Command: NewCommand(1, opcode)}
}

func TestCallFifoCapacity(t *testing.T) {
	for _, n := range []int{0, -1, 3, 12, 100} {
		if _, err := NewCallFifo(n); err == nil {
			t.Errorf("NewCallFifo(%d): expected error", n)
		}
	}
	q, err := NewCallFifo(16)
	if err != nil {
		t.Fatalf("NewCallFifo: %v", err)
	}
	if q.Cap() != 16 {
		t.Errorf("got cap %d, want 16", q.Cap())
	}
}

func TestCallFifoOrder(t *testing.T) {
	ctx := context.Background()
	q, _ := NewCallFifo(4)

	// several laps so the counters run well past the capacity
	next := uint16(0)
	for lap := 0; lap < 10; lap++ {
		for i := 0; i < 3; i++ {
			if err := q.Push(req(next + uint16(i))); err != nil {
				t.Fatalf("Push: %v", err)
			}
		}
		for i := 0; i < 3; i++ {
			rec, err := q.Pop(ctx)
			if err != nil {
				t.Fatalf("Pop: %v", err)
			}
			if got := rec.Command.Opcode(); got != next {
				t.Fatalf("lap %d: got opcode %d, want %d", lap, got, next)
			}
			next++
		}
	}
	if w := q.write.Load(); w != 30 {
		t.Errorf("write counter %d, want 30", w)
	}
	if q.Len() != 0 {
		t.Errorf("len %d, want 0", q.Len())
	}
}

func TestCallFifoFull(t *testing.T) {
	q, _ := NewCallFifo(4)
	for i := 0; i < 4; i++ {
		if err := q.Push(req(uint16(i))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if err := q.Push(req(99)); !errors.Is(err, ErrFull) {
		t.Fatalf("got %v, want ErrFull", err)
	}
	if q.Len() != 4 {
		t.Fatalf("len %d after failed push, want 4", q.Len())
	}
	for i := 0; i < 4; i++ {
		rec, ok := q.TryPop()
		if !ok || rec.Command.Opcode() != uint16(i) {
			t.Fatalf("pop %d: got %v %v", i, rec.Command, ok)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty fifo succeeded")
	}
}

func TestCallFifoPopBlocks(t *testing.T) {
	q, _ := NewCallFifo(2)
	got := make(chan Record, 1)
	go func() {
		rec, err := q.Pop(context.Background())
		if err == nil {
			got <- rec
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned on an empty fifo")
	case <-time.After(20 * time.Millisecond):
	}

	if err := q.Push(req(7)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	select {
	case rec := <-got:
		if rec.Command.Opcode() != 7 {
			t.Errorf("got opcode %d, want 7", rec.Command.Opcode())
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestCallFifoInterruptAndReset(t *testing.T) {
	q, _ := NewCallFifo(2)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errc <- err
	}()
	time.Sleep(5 * time.Millisecond)
	q.Interrupt()
	if err := <-errc; !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}

	_ = q.Push(req(1))
	q.Reset()
	if q.Len() != 0 {
		t.Fatalf("len %d after reset", q.Len())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted from ctx", err)
	}
}

func TestCallFifoResetReleases(t *testing.T) {
	arena := NewArena(0)
	q, _ := NewCallFifo(2)
	p, err := NewPayload(arena, make([]byte, 1000))
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	_ = q.Push(Record{Payload: p})
	q.Reset()
	if n := arena.InUse(); n != 0 {
		t.Fatalf("%d regions leaked", n)
	}
}

func TestCallFifoClose(t *testing.T) {
	q, _ := NewCallFifo(4)
	_ = q.Push(req(1))
	q.Close()

	if err := q.Push(req(2)); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("popped from a closed fifo")
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}

	var left []uint16
	q.drain(func(rec Record) { left = append(left, rec.Command.Opcode()) })
	if len(left) != 1 || left[0] != 1 {
		t.Fatalf("drained %v, want [1]", left)
	}
}
