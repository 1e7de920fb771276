// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Reply is the outcome of a call that expected a response. Busy and
// NoServer come back as a Reply with the matching Status, not as an error.
type Reply struct {
	Status  Status
	Payload []byte
}

// Err returns the error matching the reply status, or nil on success.
func (r *Reply) Err() error { return r.Status.Err() }

// Token identifies a deferred call until it is redeemed or abandoned.
type Token struct {
	call *PendingCall
}

// Handle returns the correlation handle of the deferred call.
func (t *Token) Handle() uint32 { return t.call.handle }

// Call sends a WaitForReply request and blocks for the response. A zero
// timeout waits indefinitely; a nonzero one below the configured floor is
// raised to the floor.
func (e *Endpoint) Call(ctx context.Context, cmd Command, payload []byte, timeout time.Duration) (*Reply, error) {
	reply, _, err := e.Invoke(ctx, cmd, payload, WaitForReply, timeout)
	return reply, err
}

// Notify sends a NoReply request.
func (e *Endpoint) Notify(ctx context.Context, cmd Command, payload []byte) error {
	_, _, err := e.Invoke(ctx, cmd, payload, NoReply, 0)
	return err
}

// CallDeferred sends a DeferredReply request and returns at once. The
// timeout applies when the token is redeemed.
func (e *Endpoint) CallDeferred(ctx context.Context, cmd Command, payload []byte, timeout time.Duration) (*Token, error) {
	_, tok, err := e.Invoke(ctx, cmd, payload, DeferredReply, timeout)
	return tok, err
}

// Invoke issues a request with the given call semantics. It returns a Reply
// for WaitForReply, a Token for DeferredReply and neither for NoReply.
func (e *Endpoint) Invoke(ctx context.Context, cmd Command, payload []byte, kind Kind, timeout time.Duration) (*Reply, *Token, error) {
	if e.closed.Load() {
		return nil, nil, ErrClosed
	}
	if len(payload) > MaxPayloadLen {
		e.metrics.observeCall(kind, StatusInvalidLength)
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrInvalidLength, len(payload), MaxPayloadLen)
	}
	p, err := NewPayload(e.mem, payload)
	if err != nil {
		e.metrics.observeCall(kind, StatusOf(err))
		return nil, nil, err
	}

	rec := Record{Direction: DirRequest, Kind: kind, Command: cmd, Payload: p}
	var pc *PendingCall
	if kind != NoReply {
		pc = e.pending.add(kind, NewWaitCell(e.armTimeout(timeout)))
		rec.Correlation.Handle = pc.handle
		// Close may have swept the table between the check above and add
		if e.closed.Load() {
			e.pending.take(pc.handle)
			rec.Release()
			return nil, nil, ErrClosed
		}
	}

	if err := e.transport.Send(ctx, &rec); err != nil {
		if pc != nil {
			e.pending.take(pc.handle)
		}
		rec.Release()
		if errors.Is(err, ErrHwTimeout) {
			e.metrics.hwTimeouts.Inc()
			e.log.WithField("command", cmd).Warn("Mailbox stayed busy, request not sent")
		}
		e.metrics.observeCall(kind, StatusOf(err))
		return nil, nil, err
	}

	switch kind {
	case NoReply:
		e.metrics.observeCall(kind, StatusSuccess)
		return nil, nil, nil
	case DeferredReply:
		return nil, &Token{call: pc}, nil
	}
	reply, err := e.await(ctx, pc)
	return reply, nil, err
}

// Redeem waits for the response of a deferred call. A token can be
// redeemed or abandoned once; later attempts return ErrRedeemed.
func (e *Endpoint) Redeem(ctx context.Context, tok *Token) (*Reply, error) {
	if tok == nil || tok.call == nil {
		return nil, fmt.Errorf("%w: nil token", ErrFail)
	}
	if !tok.call.redeemed.CompareAndSwap(false, true) {
		return nil, ErrRedeemed
	}
	return e.await(ctx, tok.call)
}

// Abandon gives up on a deferred call. A response that arrives later is
// released by the dispatcher.
func (e *Endpoint) Abandon(tok *Token) error {
	if tok == nil || tok.call == nil {
		return fmt.Errorf("%w: nil token", ErrFail)
	}
	if !tok.call.redeemed.CompareAndSwap(false, true) {
		return ErrRedeemed
	}
	e.pending.take(tok.call.handle)
	tok.call.abandon()
	return nil
}

func (e *Endpoint) await(ctx context.Context, pc *PendingCall) (*Reply, error) {
	if err := pc.cell.Wait(ctx); err != nil {
		if _, ok := e.pending.take(pc.handle); ok {
			pc.abandon()
			e.metrics.observeCall(pc.kind, StatusOf(err))
			return nil, err
		}
		// the dispatcher got there first; use its delivery if it landed
		if _, ok, _ := pc.result(); !ok {
			pc.abandon()
			e.metrics.observeCall(pc.kind, StatusOf(err))
			return nil, err
		}
	}

	rec, _, err := pc.result()
	if err != nil {
		e.metrics.observeCall(pc.kind, StatusOf(err))
		return nil, err
	}
	return e.finish(ctx, pc.kind, rec)
}

func (e *Endpoint) finish(ctx context.Context, kind Kind, rec Record) (*Reply, error) {
	defer rec.Release()
	if rec.OutOfBand() {
		if err := e.hs.AwaitReady(ctx, &rec); err != nil {
			e.metrics.dataNotReady.Inc()
			e.metrics.observeCall(kind, StatusDataNotReady)
			return nil, err
		}
	}
	e.metrics.observeCall(kind, rec.Result)
	reply := &Reply{Status: rec.Result}
	if rec.Len() > 0 {
		reply.Payload = append([]byte(nil), rec.Bytes()...)
	}
	return reply, nil
}

func (e *Endpoint) armTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < e.opts.callTimeoutFloor {
		return e.opts.callTimeoutFloor
	}
	return timeout
}
