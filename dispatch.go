// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// pollInterrupts runs the interrupt path: one inbound record per remote
// trigger.
func (e *Endpoint) pollInterrupts(ctx context.Context) error {
	irq := e.mbox.Interrupts()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-irq:
			e.handleInterrupt()
		}
	}
}

// handleInterrupt consumes the inbound slot. It never blocks: requests go
// to the server fifo or are answered with a synthesized response, and
// responses wake their caller.
func (e *Endpoint) handleInterrupt() {
	rec, err := e.transport.Receive()
	if err != nil {
		e.log.WithError(err).Warn("Dropping undecodable mailbox frame")
		return
	}

	if rec.Direction == DirResponse {
		e.dispatchResponse(rec)
		return
	}
	e.dispatchRequest(rec)
}

func (e *Endpoint) dispatchRequest(rec Record) {
	fifo, ok := e.registry.Lookup(rec.Command.Server())
	if !ok {
		e.reject(rec, StatusNoServer)
		return
	}
	switch err := fifo.Push(rec); {
	case errors.Is(err, ErrClosed):
		// torn down between Lookup and Push
		e.reject(rec, StatusNoServer)
	case err != nil:
		e.reject(rec, StatusBusy)
	}
}

// dropQueued answers a request that was queued for a server whose fifo got
// cleared before anyone popped it.
func (e *Endpoint) dropQueued(rec Record) {
	e.metrics.cleared.Inc()
	e.reject(rec, StatusNoServer)
}

// reject answers a request the local side cannot queue. If the outgoing
// fifo is itself full the answer is dropped and the remote caller is left
// to its own timeout.
func (e *Endpoint) reject(rec Record, status Status) {
	resp := rec.respond(status)
	rec.Release()
	e.metrics.synthesized.WithLabelValues(status.String()).Inc()

	fields := logrus.Fields{
		"command": rec.Command,
		"handle":  rec.Correlation.Handle,
		"status":  status,
	}
	if err := e.outgoing.Push(resp); err != nil {
		e.metrics.dropped.Inc()
		e.log.WithFields(fields).Warn("Outgoing response fifo full, dropping synthesized response")
		return
	}
	e.log.WithFields(fields).Debug("Synthesized response")
}

func (e *Endpoint) dispatchResponse(rec Record) {
	if rec.Kind == NoReply {
		rec.Release()
		return
	}
	if !e.pending.complete(rec) {
		e.log.WithField("handle", rec.Correlation.Handle).Debug("Response for a call nobody waits on")
	}
}
