// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
	"unsafe"
)

func oobRecord(t *testing.T, arena *Arena, n int) Record {
	t.Helper()
	p, err := NewPayload(arena, make([]byte, n))
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	return Record{Payload: p}
}

func TestSequenceCounterSkipsZero(t *testing.T) {
	c := &SequenceCounter{v: math.MaxUint32 - 1}
	if got := c.Next(); got != math.MaxUint32 {
		t.Fatalf("got %d", got)
	}
	if got := c.Next(); got != 1 {
		t.Fatalf("got %d after wrap, want 1", got)
	}
}

func TestHandshakeStamp(t *testing.T) {
	arena := NewArena(0)
	hs := NewHandshake(&SequenceCounter{}, 0)
	ctx := context.Background()

	rec := oobRecord(t, arena, 2049)
	if err := hs.AwaitReady(ctx, &rec); !errors.Is(err, ErrDataNotReady) {
		t.Fatalf("unstamped payload: got %v, want ErrDataNotReady", err)
	}

	hs.Stamp(&rec)
	if rec.Correlation.Seq != 1 {
		t.Fatalf("seq %d, want 1", rec.Correlation.Seq)
	}
	region := rec.Payload.(*OutOfBand).Region
	if region.Tag() != 1 {
		t.Fatalf("tag %d, want 1", region.Tag())
	}
	if err := hs.AwaitReady(ctx, &rec); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}

	inline := Record{Payload: &Inline{n: 1}}
	hs.Stamp(&inline)
	if inline.Correlation.Seq != 0 {
		t.Error("inline record was stamped")
	}
	if err := hs.AwaitReady(ctx, &inline); err != nil {
		t.Errorf("AwaitReady on inline: %v", err)
	}
}

func TestHandshakeDataNotReady(t *testing.T) {
	arena := NewArena(0)
	hs := NewHandshake(&SequenceCounter{}, 5*time.Millisecond)

	rec := oobRecord(t, arena, 4096)
	rec.Correlation.Seq = 77
	start := time.Now()
	if err := hs.AwaitReady(context.Background(), &rec); !errors.Is(err, ErrDataNotReady) {
		t.Fatalf("got %v, want ErrDataNotReady", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("AwaitReady took %v", elapsed)
	}
}

func TestHandshakeDelayedTag(t *testing.T) {
	arena := NewArena(0)
	arena.SetTagDelay(2 * time.Millisecond)
	hs := NewHandshake(&SequenceCounter{}, 500*time.Millisecond)

	rec := oobRecord(t, arena, 4096)
	hs.Stamp(&rec)
	if err := hs.AwaitReady(context.Background(), &rec); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
}

func TestRegionLayout(t *testing.T) {
	arena := NewArena(0)
	for _, n := range []int{1, 3, 233, 2048, 4095} {
		r, err := arena.Alloc(n)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", n, err)
		}
		if len(r.Bytes()) != n {
			t.Errorf("Alloc(%d): %d bytes", n, len(r.Bytes()))
		}
		if addr := uintptr(unsafe.Pointer(&r.Bytes()[0])); addr%cacheLine != 0 {
			t.Errorf("Alloc(%d): payload at %#x is not cache aligned", n, addr)
		}
		tagOff := uintptr(unsafe.Pointer(r.tag)) - uintptr(unsafe.Pointer(&r.Bytes()[0]))
		if int(tagOff) != alignUp(n, tagSize) {
			t.Errorf("Alloc(%d): tag at offset %d", n, tagOff)
		}
		r.Free()
	}
	if arena.InUse() != 0 {
		t.Fatalf("%d regions leaked", arena.InUse())
	}
}

func TestArenaLimit(t *testing.T) {
	arena := NewArena(1024)
	r, err := arena.Alloc(1000)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if _, err := arena.Alloc(100); !errors.Is(err, ErrFail) {
		t.Fatalf("got %v, want ErrFail", err)
	}
	r.Free()
	if _, err := arena.Alloc(100); err != nil {
		t.Fatalf("Alloc after Free: %v", err)
	}
}
