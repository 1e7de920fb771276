// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Dial connects to a front-end Service using the default transport (JSON).
// Use WithTransport for transport selection.
func Dial(ctx context.Context, addr string, opts ...DialOption) (Client, error) {
	o := &dialOptions{
		transport: DefaultTransport,
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(o)
	}

	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	inv, err := t.dial(ctx, addr, o)
	if err != nil {
		return nil, err
	}
	return &client{inv: inv}, nil
}

// Listen exposes svc on addr using the default transport (JSON).
func Listen(addr string, svc *Service, opts ...ServerOption) (Server, error) {
	o := &serverOptions{
		transport: DefaultTransport,
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(o)
	}

	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	return t.listen(addr, svc, o)
}
