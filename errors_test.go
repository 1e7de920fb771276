// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusErrors(t *testing.T) {
	if StatusSuccess.Err() != nil {
		t.Fatal("success maps to an error")
	}
	if StatusOf(nil) != StatusSuccess {
		t.Fatal("nil error is not success")
	}
	for s, want := range statusErrors {
		if !errors.Is(s.Err(), want) {
			t.Errorf("%v.Err() = %v, want %v", s, s.Err(), want)
		}
		if got := StatusOf(fmt.Errorf("wrapped: %w", want)); got != s {
			t.Errorf("StatusOf(%v) = %v, want %v", want, got, s)
		}
	}
	if got := StatusOf(errors.New("other")); got != StatusFail {
		t.Errorf("unknown error maps to %v", got)
	}
	if !errors.Is(Status(-99).Err(), ErrFail) {
		t.Error("unknown status does not map to ErrFail")
	}
}
