// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sim_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/mboxrpc"
	"github.com/luxfi/mboxrpc/sim"
)

func TestPairSlotHandoff(t *testing.T) {
	a, b, _ := sim.NewPair()
	require.False(t, a.Busy())

	var out mboxrpc.Frame
	out[0] = 0x80
	out[mboxrpc.FrameSize-1] = 0x5a
	a.Write(&out)
	assert.True(t, a.Busy(), "slot must stay busy until the peer reads it")
	assert.False(t, b.Busy(), "directions are independent")

	a.Trigger()
	a.Trigger() // coalesces with the pending interrupt
	select {
	case <-b.Interrupts():
	case <-time.After(time.Second):
		t.Fatal("no interrupt on the peer")
	}
	select {
	case <-b.Interrupts():
		t.Fatal("second trigger queued a second interrupt")
	default:
	}

	var in mboxrpc.Frame
	b.Read(&in)
	assert.Equal(t, out, in)
	assert.False(t, a.Busy())
	assert.EqualValues(t, 1, a.Sent())
	assert.EqualValues(t, 1, b.Received())

	// the slot is consumed by the read
	b.Read(&in)
	assert.Equal(t, mboxrpc.Frame{}, in)
}

func TestPairStuck(t *testing.T) {
	a, _, _ := sim.NewPair()
	a.SetStuck(true)
	assert.True(t, a.Busy())
	a.SetStuck(false)
	assert.False(t, a.Busy())
}

func TestPairArena(t *testing.T) {
	_, _, arena := sim.NewPair(sim.WithArenaLimit(4096), sim.WithTagDelay(time.Millisecond))

	r, err := arena.Alloc(4000)
	require.NoError(t, err)
	_, err = arena.Alloc(200)
	require.ErrorIs(t, err, mboxrpc.ErrFail)

	got, err := arena.Resolve(r.Addr(), 4000)
	require.NoError(t, err)
	assert.Same(t, r, got)

	_, err = arena.Resolve(r.Addr(), 10)
	assert.ErrorIs(t, err, mboxrpc.ErrBadAddress)

	r.Free()
	assert.Zero(t, arena.InUse())
}
