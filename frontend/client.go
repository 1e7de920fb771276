// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luxfi/mboxrpc"
)

// Client is the front-end view of a mailbox endpoint.
// All application code should use this interface.
type Client interface {
	// Call makes a WaitForReply call
	Call(ctx context.Context, server, opcode uint16, payload []byte, timeout time.Duration) (*mboxrpc.Reply, error)

	// CallDeferred makes a DeferredReply call and returns its token
	CallDeferred(ctx context.Context, server, opcode uint16, payload []byte, timeout time.Duration) (string, error)

	// Redeem waits for the reply of a deferred call
	Redeem(ctx context.Context, token string) (*mboxrpc.Reply, error)

	// Abandon drops a deferred call
	Abandon(ctx context.Context, token string) error

	// Notify sends a one-way message (no response expected)
	Notify(ctx context.Context, server, opcode uint16, payload []byte) error

	// OpenSession creates an owner for servers
	OpenSession(ctx context.Context) (string, error)

	// CloseSession ends a session and unregisters its servers
	CloseSession(ctx context.Context, session string) error

	// Register binds a server id to a session
	Register(ctx context.Context, session string, server uint16) error

	// Unregister releases a server id
	Unregister(ctx context.Context, session string, server uint16) error

	// Recv waits for the next request to a server
	Recv(ctx context.Context, session string, server uint16, timeout time.Duration) (*WireRecord, error)

	// Reply answers a request returned by Recv
	Reply(ctx context.Context, session string, req *WireRecord, status mboxrpc.Status, payload []byte) error

	// Close closes the connection
	Close() error
}

// Server is a listening front-end.
type Server interface {
	// Serve starts serving requests (blocks until context cancelled)
	Serve(ctx context.Context) error

	// Close stops the server
	Close() error

	// Addr returns the server's listen address
	Addr() string
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	transport string // "json", "grpc"
	log       *logrus.Entry
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithLogger sets the client logger
func WithLogger(l *logrus.Entry) DialOption {
	return func(o *dialOptions) { o.log = l }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	transport string
	log       *logrus.Entry
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithServerLogger sets the server logger
func WithServerLogger(l *logrus.Entry) ServerOption {
	return func(o *serverOptions) { o.log = l }
}

// invoker performs one front-end operation on a remote Service.
type invoker interface {
	io.Closer
	invoke(ctx context.Context, method string, args, reply interface{}) error
}

// client implements Client on top of any transport
type client struct {
	inv invoker
}

func (c *client) Call(ctx context.Context, server, opcode uint16, payload []byte, timeout time.Duration) (*mboxrpc.Reply, error) {
	var reply CallReply
	err := c.inv.invoke(ctx, "Call", &CallArgs{
		Server:    server,
		Opcode:    opcode,
		Kind:      uint8(mboxrpc.WaitForReply),
		Payload:   payload,
		TimeoutMs: timeout.Milliseconds(),
	}, &reply)
	if err != nil {
		return nil, err
	}
	return reply.Reply(), nil
}

func (c *client) CallDeferred(ctx context.Context, server, opcode uint16, payload []byte, timeout time.Duration) (string, error) {
	var reply CallReply
	err := c.inv.invoke(ctx, "Call", &CallArgs{
		Server:    server,
		Opcode:    opcode,
		Kind:      uint8(mboxrpc.DeferredReply),
		Payload:   payload,
		TimeoutMs: timeout.Milliseconds(),
	}, &reply)
	if err != nil {
		return "", err
	}
	return reply.Token, nil
}

func (c *client) Redeem(ctx context.Context, token string) (*mboxrpc.Reply, error) {
	var reply CallReply
	if err := c.inv.invoke(ctx, "Redeem", &TokenArgs{Token: token}, &reply); err != nil {
		return nil, err
	}
	return reply.Reply(), nil
}

func (c *client) Abandon(ctx context.Context, token string) error {
	return c.inv.invoke(ctx, "Abandon", &TokenArgs{Token: token}, &Empty{})
}

func (c *client) Notify(ctx context.Context, server, opcode uint16, payload []byte) error {
	return c.inv.invoke(ctx, "Call", &CallArgs{
		Server:  server,
		Opcode:  opcode,
		Kind:    uint8(mboxrpc.NoReply),
		Payload: payload,
	}, &CallReply{})
}

func (c *client) OpenSession(ctx context.Context) (string, error) {
	var reply SessionReply
	if err := c.inv.invoke(ctx, "OpenSession", &Empty{}, &reply); err != nil {
		return "", err
	}
	return reply.Session, nil
}

func (c *client) CloseSession(ctx context.Context, session string) error {
	return c.inv.invoke(ctx, "CloseSession", &SessionArgs{Session: session}, &Empty{})
}

func (c *client) Register(ctx context.Context, session string, server uint16) error {
	return c.inv.invoke(ctx, "Register", &RegisterArgs{Session: session, Server: server}, &Empty{})
}

func (c *client) Unregister(ctx context.Context, session string, server uint16) error {
	return c.inv.invoke(ctx, "Unregister", &RegisterArgs{Session: session, Server: server}, &Empty{})
}

func (c *client) Recv(ctx context.Context, session string, server uint16, timeout time.Duration) (*WireRecord, error) {
	var reply RecvReply
	err := c.inv.invoke(ctx, "Recv", &RecvArgs{
		Session:   session,
		Server:    server,
		TimeoutMs: timeout.Milliseconds(),
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply.Record, nil
}

func (c *client) Reply(ctx context.Context, session string, req *WireRecord, status mboxrpc.Status, payload []byte) error {
	resp := *req
	resp.Direction = uint8(mboxrpc.DirResponse)
	resp.Result = int32(status)
	resp.Payload = payload
	resp.PayloadLen = uint32(len(payload))
	return c.inv.invoke(ctx, "Reply", &ReplyArgs{Session: session, Record: resp}, &Empty{})
}

func (c *client) Close() error {
	return c.inv.Close()
}

var remoteErrors = []error{
	mboxrpc.ErrHwTimeout,
	mboxrpc.ErrTimeout,
	mboxrpc.ErrBusy,
	mboxrpc.ErrNoServer,
	mboxrpc.ErrDataNotReady,
	mboxrpc.ErrInvalidLength,
	mboxrpc.ErrInterrupted,
	mboxrpc.ErrRedeemed,
	mboxrpc.ErrClosed,
	mboxrpc.ErrInvalidServer,
	mboxrpc.ErrBadAddress,
	mboxrpc.ErrFail,
}

// RemoteError is an error reported by the Service on the far side of a
// transport. It unwraps to the matching mboxrpc error when there is one.
type RemoteError struct {
	Msg  string
	kind error
}

func (e *RemoteError) Error() string { return e.Msg }
func (e *RemoteError) Unwrap() error { return e.kind }

// remoteError rebuilds a Service error from its message.
func remoteError(msg string) error {
	for _, kind := range remoteErrors {
		if strings.Contains(msg, kind.Error()) {
			return &RemoteError{Msg: msg, kind: kind}
		}
	}
	return &RemoteError{Msg: msg}
}

// IsRemote reports whether err came from the far side of a transport.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func methodName(service, method string) string {
	return fmt.Sprintf("%s.%s", service, method)
}
