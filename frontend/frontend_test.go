// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/mboxrpc"
	"github.com/luxfi/mboxrpc/sim"
)

const echoServer = 7

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// startPair returns the host and remote endpoints of a simulated mailbox.
// The remote serves echoServer.
func startPair(t *testing.T) (*mboxrpc.Endpoint, *mboxrpc.Endpoint) {
	t.Helper()
	a, b, arena := sim.NewPair()
	opts := []mboxrpc.Option{
		mboxrpc.WithLogger(quietLogger()),
		mboxrpc.WithCallTimeoutFloor(0),
	}
	host, err := mboxrpc.New(a, arena, opts...)
	require.NoError(t, err)
	remote, err := mboxrpc.New(b, arena, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, host.Start(ctx))
	require.NoError(t, remote.Start(ctx))

	owner := mboxrpc.NewSession()
	require.NoError(t, remote.Registry().Register(echoServer, owner))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = remote.Serve(ctx, echoServer, owner, mboxrpc.HandlerFunc(
			func(_ context.Context, req *mboxrpc.Request) (mboxrpc.Status, []byte) {
				return mboxrpc.StatusSuccess, req.Payload
			}))
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = host.Close()
		_ = remote.Close()
	})
	return host, remote
}

// startFrontend exposes host over transport and returns a connected client.
func startFrontend(t *testing.T, host *mboxrpc.Endpoint, transport string) Client {
	t.Helper()
	svc := NewService(host, quietLogger())
	server, err := Listen("127.0.0.1:0", svc,
		WithServerTransport(transport),
		WithServerLogger(quietLogger()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	client, err := Dial(ctx, server.Addr(), WithTransport(transport), WithLogger(quietLogger()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		require.NoError(t, <-done)
	})
	return client
}

func forEachTransport(t *testing.T, fn func(t *testing.T, transport string)) {
	for _, transport := range []string{TransportJSON, TransportGRPC} {
		transport := transport
		t.Run(transport, func(t *testing.T) { fn(t, transport) })
	}
}

func TestAvailableTransports(t *testing.T) {
	require.Equal(t, []string{TransportGRPC, TransportJSON}, AvailableTransports())
	require.True(t, HasTransport(DefaultTransport))
	require.False(t, HasTransport("zap"))

	_, err := Dial(context.Background(), "127.0.0.1:1", WithTransport("zap"))
	require.Error(t, err)
}

func TestCallRoundTrip(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transport string) {
		host, _ := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, size := range []int{0, 1, mboxrpc.InlineCapacity, mboxrpc.InlineCapacity + 1, 4096} {
			payload := bytes.Repeat([]byte{0xa5}, size)
			reply, err := client.Call(ctx, echoServer, 1, payload, time.Second)
			require.NoError(t, err)
			require.NoError(t, reply.Err())
			require.Equal(t, len(payload), len(reply.Payload))
			if size > 0 {
				require.Equal(t, payload, reply.Payload)
			}
		}
	})
}

func TestCallNoServer(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transport string) {
		host, _ := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reply, err := client.Call(ctx, 99, 1, []byte("x"), time.Second)
		require.NoError(t, err)
		require.Equal(t, mboxrpc.StatusNoServer, reply.Status)
		require.ErrorIs(t, reply.Err(), mboxrpc.ErrNoServer)
	})
}

func TestRemoteErrors(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transport string) {
		host, _ := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := client.Call(ctx, echoServer, 1, make([]byte, mboxrpc.MaxPayloadLen+1), time.Second)
		require.ErrorIs(t, err, mboxrpc.ErrInvalidLength)
		require.True(t, IsRemote(err))

		_, err = client.Redeem(ctx, "no-such-token")
		require.ErrorIs(t, err, mboxrpc.ErrRedeemed)
	})
}

func TestDeferredCall(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transport string) {
		host, _ := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		token, err := client.CallDeferred(ctx, echoServer, 2, []byte("later"), time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		reply, err := client.Redeem(ctx, token)
		require.NoError(t, err)
		require.Equal(t, []byte("later"), reply.Payload)

		_, err = client.Redeem(ctx, token)
		require.ErrorIs(t, err, mboxrpc.ErrRedeemed)

		token, err = client.CallDeferred(ctx, echoServer, 2, []byte("dropped"), time.Second)
		require.NoError(t, err)
		require.NoError(t, client.Abandon(ctx, token))
		require.Eventually(t, func() bool { return host.Pending() == 0 }, time.Second, time.Millisecond)
	})
}

func TestNotify(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transport string) {
		host, _ := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, client.Notify(ctx, echoServer, 3, []byte("fire")))
		require.Equal(t, 0, host.Pending())
	})
}

func TestSessionServe(t *testing.T) {
	const hostServer = 9

	forEachTransport(t, func(t *testing.T, transport string) {
		host, remote := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		session, err := client.OpenSession(ctx)
		require.NoError(t, err)
		require.NoError(t, client.Register(ctx, session, hostServer))

		other, err := client.OpenSession(ctx)
		require.NoError(t, err)
		err = client.Register(ctx, other, hostServer)
		require.ErrorIs(t, err, mboxrpc.ErrBusy)

		type result struct {
			reply *mboxrpc.Reply
			err   error
		}
		results := make(chan result, 1)
		go func() {
			reply, err := remote.Call(ctx, mboxrpc.NewCommand(hostServer, 5), []byte("question"), 2*time.Second)
			results <- result{reply, err}
		}()

		req, err := client.Recv(ctx, session, hostServer, 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, []byte("question"), req.Payload)
		require.Equal(t, uint32(mboxrpc.NewCommand(hostServer, 5)), req.Command)

		err = client.Reply(ctx, other, req, mboxrpc.StatusSuccess, []byte("wrong owner"))
		require.ErrorIs(t, err, mboxrpc.ErrBusy)
		require.NoError(t, client.Reply(ctx, session, req, mboxrpc.StatusSuccess, []byte("answer")))

		res := <-results
		require.NoError(t, res.err)
		require.NoError(t, res.reply.Err())
		require.Equal(t, []byte("answer"), res.reply.Payload)

		require.NoError(t, client.CloseSession(ctx, session))
		_, ok := host.Registry().Lookup(hostServer)
		require.False(t, ok)

		err = client.CloseSession(ctx, session)
		require.True(t, errors.Is(err, mboxrpc.ErrFail))
	})
}

func TestRecvTimeout(t *testing.T) {
	forEachTransport(t, func(t *testing.T, transport string) {
		host, _ := startPair(t)
		client := startFrontend(t, host, transport)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		session, err := client.OpenSession(ctx)
		require.NoError(t, err)
		require.NoError(t, client.Register(ctx, session, 11))
		require.NoError(t, client.Unregister(ctx, session, 11))

		_, err = client.Recv(ctx, session, 11, 20*time.Millisecond)
		require.ErrorIs(t, err, mboxrpc.ErrNoServer)

		require.NoError(t, client.Register(ctx, session, 11))
		_, err = client.Recv(ctx, session, 11, 20*time.Millisecond)
		require.Error(t, err)
		require.True(t, IsRemote(err))
	})
}

func TestWireRecordValidate(t *testing.T) {
	w := &WireRecord{PayloadLen: 3, Payload: []byte("ab")}
	_, err := w.Request()
	require.ErrorIs(t, err, mboxrpc.ErrInvalidLength)

	w = &WireRecord{CallKind: 9}
	_, err = w.Request()
	require.ErrorIs(t, err, mboxrpc.ErrFail)

	w = &WireRecord{CallKind: uint8(mboxrpc.WaitForReply), Command: uint32(mboxrpc.NewCommand(4, 2)), CorrelationHandle: 17}
	req, err := w.Request()
	require.NoError(t, err)
	require.Equal(t, uint32(17), req.Handle())
	require.Equal(t, uint16(4), req.Command.Server())
}

func TestRemoteErrorUnwrap(t *testing.T) {
	err := remoteError("mboxrpc: something new")
	require.True(t, IsRemote(err))
	require.Nil(t, errors.Unwrap(err))

	err = remoteError("wrapped: " + mboxrpc.ErrTimeout.Error())
	require.ErrorIs(t, err, mboxrpc.ErrTimeout)
}
