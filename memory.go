// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	cacheLine = 64
	tagSize   = 4
)

// Addr is an address in shared memory as carried by a mailbox frame.
type Addr uint64

// Memory is the shared memory both cores can address.
type Memory interface {
	// Alloc returns a cache aligned region with room for n payload bytes
	// and the trailing sequence tag.
	Alloc(n int) (*Region, error)
	// Resolve returns the region allocated at addr.
	Resolve(addr Addr, n int) (*Region, error)
	// Free returns a region to the allocator.
	Free(r *Region)
}

// Region is a payload buffer in shared memory followed by a 4-byte
// sequence tag.
type Region struct {
	mem   Memory
	addr  Addr
	n     int
	data  []byte
	tag   *uint32
	delay time.Duration
}

func newRegion(mem Memory, addr Addr, n int) *Region {
	tagOff := alignUp(n, tagSize)
	backing := make([]uint64, (tagOff+tagSize+cacheLine)/8+1)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&backing[0])), len(backing)*8)
	off := int((cacheLine - uintptr(unsafe.Pointer(&raw[0]))%cacheLine) % cacheLine)
	raw = raw[off:]
	return &Region{
		mem:  mem,
		addr: addr,
		n:    n,
		data: raw[:n:n],
		tag:  (*uint32)(unsafe.Pointer(&raw[tagOff])),
	}
}

func (r *Region) Addr() Addr    { return r.addr }
func (r *Region) Len() int      { return r.n }
func (r *Region) Bytes() []byte { return r.data }

// Tag loads the sequence tag that follows the payload.
func (r *Region) Tag() uint32 { return atomic.LoadUint32(r.tag) }

// setTag publishes the sequence tag. With a publication delay the store
// lands asynchronously, the way a remote copy engine would.
func (r *Region) setTag(v uint32) {
	if r.delay <= 0 {
		atomic.StoreUint32(r.tag, v)
		return
	}
	time.AfterFunc(r.delay, func() { atomic.StoreUint32(r.tag, v) })
}

// Free returns the region to its allocator.
func (r *Region) Free() {
	if r.mem != nil {
		r.mem.Free(r)
	}
}

func alignUp(n, a int) int { return (n + a - 1) &^ (a - 1) }

// Arena is an in-process Memory shared by both endpoints of a simulated
// mailbox.
type Arena struct {
	mu      sync.Mutex
	next    Addr
	limit   int
	used    int
	delay   time.Duration
	regions map[Addr]*Region
}

const arenaBase Addr = 0x4000_0000

// NewArena returns an arena holding at most limit payload bytes at a time.
// A limit of zero means no limit.
func NewArena(limit int) *Arena {
	return &Arena{
		next:    arenaBase,
		limit:   limit,
		regions: make(map[Addr]*Region),
	}
}

// SetTagDelay delays the visibility of sequence tags in regions allocated
// afterwards.
func (a *Arena) SetTagDelay(d time.Duration) {
	a.mu.Lock()
	a.delay = d
	a.mu.Unlock()
}

func (a *Arena) Alloc(n int) (*Region, error) {
	if n <= 0 || n > MaxPayloadLen {
		return nil, fmt.Errorf("%w: alloc %d", ErrInvalidLength, n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limit > 0 && a.used+n > a.limit {
		return nil, fmt.Errorf("%w: arena exhausted (%d/%d)", ErrFail, a.used, a.limit)
	}
	r := newRegion(a, a.next, n)
	r.delay = a.delay
	a.regions[r.addr] = r
	a.next += Addr(alignUp(n+tagSize, cacheLine))
	a.used += n
	return r, nil
}

func (a *Arena) Resolve(addr Addr, n int) (*Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.regions[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrBadAddress, uint64(addr))
	}
	if r.n != n {
		return nil, fmt.Errorf("%w: %#x holds %d bytes, frame says %d", ErrBadAddress, uint64(addr), r.n, n)
	}
	return r, nil
}

func (a *Arena) Free(r *Region) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.regions[r.addr]; !ok {
		return
	}
	delete(a.regions, r.addr)
	a.used -= r.n
}

// InUse returns the number of live regions.
func (a *Arena) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.regions)
}
