// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Request is an inbound call as seen by a server.
type Request struct {
	Command Command
	Kind    Kind
	Payload []byte

	corr Correlation
}

// Handle returns the correlation handle the response must carry.
func (r *Request) Handle() uint32 { return r.corr.Handle }

// NewRequest rebuilds a request received elsewhere, for instance by a
// front-end that handed it out and now relays the reply.
func NewRequest(cmd Command, kind Kind, handle uint32, payload []byte) *Request {
	return &Request{Command: cmd, Kind: kind, Payload: payload, corr: Correlation{Handle: handle}}
}

// Handler serves the requests of one server id.
type Handler interface {
	HandleCall(ctx context.Context, req *Request) (Status, []byte)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, req *Request) (Status, []byte)

func (f HandlerFunc) HandleCall(ctx context.Context, req *Request) (Status, []byte) {
	return f(ctx, req)
}

// Serve answers the requests of server id with h until ctx is done or the
// registration is torn down. It registers id for owner unless owner
// already holds it, in which case requests queued since then are kept.
func (e *Endpoint) Serve(ctx context.Context, id uint16, owner Owner, h Handler) error {
	if !e.registry.OwnedBy(id, owner) {
		if err := e.registry.Register(id, owner); err != nil {
			return err
		}
	}
	defer e.registry.Unregister(id, owner)

	log := e.log.WithField("server", id)
	log.Debug("Serving")
	for {
		req, err := e.Recv(ctx, id, owner)
		switch {
		case errors.Is(err, ErrDataNotReady):
			log.WithError(err).Warn("Dropping request with unreadable payload")
			continue
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, ErrInterrupted) {
				return nil
			}
			return err
		}

		status, payload := h.HandleCall(ctx, req)
		if err := e.Reply(ctx, req, status, payload); err != nil {
			log.WithError(err).WithField("opcode", req.Command.Opcode()).Warn("Failed to queue response")
		}
	}
}

// Recv blocks for the next request queued for server id. Only the owner
// that registered id may drain it. An out-of-band payload that never
// becomes ready is answered with StatusDataNotReady and reported as
// ErrDataNotReady.
func (e *Endpoint) Recv(ctx context.Context, id uint16, owner Owner) (*Request, error) {
	fifo, err := e.registry.fifoFor(id, owner)
	if err != nil {
		return nil, err
	}
	rec, err := fifo.Pop(ctx)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	req := &Request{Command: rec.Command, Kind: rec.Kind, corr: rec.Correlation}
	if rec.OutOfBand() {
		if err := e.hs.AwaitReady(ctx, &rec); err != nil {
			e.metrics.dataNotReady.Inc()
			if rerr := e.Reply(ctx, req, StatusDataNotReady, nil); rerr != nil {
				e.log.WithError(rerr).Warn("Failed to report unreadable payload")
			}
			return nil, err
		}
	}
	if rec.Len() > 0 {
		req.Payload = append([]byte(nil), rec.Bytes()...)
	}
	return req, nil
}

// Reply queues the response to req for the response worker. NoReply
// requests get no response. When the outgoing fifo stays full for the
// hardware timeout the reply fails with ErrBusy.
func (e *Endpoint) Reply(ctx context.Context, req *Request, status Status, payload []byte) error {
	if req.Kind == NoReply {
		return nil
	}
	p, err := NewPayload(e.mem, payload)
	if err != nil {
		return err
	}
	resp := Record{
		Direction:   DirResponse,
		Kind:        req.Kind,
		Command:     req.Command,
		Payload:     p,
		Correlation: Correlation{Handle: req.corr.Handle},
		Result:      status,
	}

	push := func(context.Context) (bool, error) {
		switch err := e.outgoing.Push(resp); {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrFull):
			return false, nil
		default:
			return false, err
		}
	}
	if err := wait.PollImmediateWithContext(ctx, defaultBusyInterval, e.opts.hwTimeout, push); err != nil {
		resp.Release()
		return fmt.Errorf("%w: outgoing fifo full", ErrBusy)
	}
	return nil
}
