// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"errors"
	"fmt"
)

var (
	ErrHwTimeout     = errors.New("mboxrpc: hardware transmit timeout")
	ErrTimeout       = errors.New("mboxrpc: call timed out")
	ErrBusy          = errors.New("mboxrpc: server busy")
	ErrNoServer      = errors.New("mboxrpc: no such server")
	ErrDataNotReady  = errors.New("mboxrpc: out-of-band data not ready")
	ErrInvalidLength = errors.New("mboxrpc: invalid payload length")
	ErrInterrupted   = errors.New("mboxrpc: wait interrupted")
	ErrFail          = errors.New("mboxrpc: call failed")

	ErrFull          = errors.New("mboxrpc: fifo full")
	ErrRedeemed      = errors.New("mboxrpc: token already redeemed")
	ErrClosed        = errors.New("mboxrpc: endpoint closed")
	ErrInvalidServer = errors.New("mboxrpc: invalid server id")
	ErrBadAddress    = errors.New("mboxrpc: bad shared memory address")
)

// Status is the result code carried by response records.
type Status int32

const (
	StatusSuccess       Status = 0
	StatusFail          Status = -1
	StatusBusy          Status = -2
	StatusNoServer      Status = -3
	StatusTimeout       Status = -4
	StatusHwTimeout     Status = -5
	StatusDataNotReady  Status = -6
	StatusInvalidLength Status = -7
	StatusInterrupted   Status = -8
)

var statusErrors = map[Status]error{
	StatusFail:          ErrFail,
	StatusBusy:          ErrBusy,
	StatusNoServer:      ErrNoServer,
	StatusTimeout:       ErrTimeout,
	StatusHwTimeout:     ErrHwTimeout,
	StatusDataNotReady:  ErrDataNotReady,
	StatusInvalidLength: ErrInvalidLength,
	StatusInterrupted:   ErrInterrupted,
}

// Err returns the error for s, or nil for StatusSuccess.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	if err, ok := statusErrors[s]; ok {
		return err
	}
	return fmt.Errorf("%w: status %d", ErrFail, int32(s))
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	case StatusBusy:
		return "busy"
	case StatusNoServer:
		return "no_server"
	case StatusTimeout:
		return "timeout"
	case StatusHwTimeout:
		return "hw_timeout"
	case StatusDataNotReady:
		return "data_not_ready"
	case StatusInvalidLength:
		return "invalid_length"
	case StatusInterrupted:
		return "interrupted"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// StatusOf maps an error returned by this package back to its status code.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	for s, target := range statusErrors {
		if errors.Is(err, target) {
			return s
		}
	}
	return StatusFail
}
