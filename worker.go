// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"errors"
)

// respond drains locally produced responses into the mailbox until ctx is
// done.
func (e *Endpoint) respond(ctx context.Context) error {
	for ctx.Err() == nil {
		rec, err := e.outgoing.Pop(ctx)
		if err != nil {
			continue
		}
		if err := e.transport.Send(ctx, &rec); err != nil {
			rec.Release()
			if errors.Is(err, ErrHwTimeout) {
				e.metrics.hwTimeouts.Inc()
			}
			e.log.WithError(err).WithField("command", rec.Command).Warn("Failed to send response")
		}
	}
	return nil
}
