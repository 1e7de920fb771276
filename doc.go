// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mboxrpc implements a remote procedure call transport between two
// processor cores that share a small fixed-size mailbox and an interrupt line.
//
// # Model
//
// Each side owns an [Endpoint]. An endpoint sends one [Record] at a time
// through its outbound mailbox slot and receives records from the inbound
// slot when the remote side raises its interrupt:
//
//	caller -> Endpoint.Call -> Transport.Send -> mailbox -> remote dispatcher
//	remote server -> outgoing fifo -> response worker -> mailbox -> dispatcher -> caller
//
// Payloads that fit in [InlineCapacity] bytes travel inside the mailbox
// frame. Larger payloads live in shared [Memory] and the frame only carries
// their address; a sequence tag written after the payload tells the
// receiver when the bytes have actually landed.
//
// # Call semantics
//
//   - [NoReply]: fire and forget, see [Endpoint.Notify].
//   - [WaitForReply]: block until the response arrives, see [Endpoint.Call].
//   - [DeferredReply]: get a [Token] now and [Endpoint.Redeem] it later.
//
// # Usage
//
//	a, b, mem := sim.NewPair()
//	host, err := mboxrpc.New(a, mem)
//	if err != nil {
//	    return err
//	}
//	remote, _ := mboxrpc.New(b, mem, mboxrpc.WithName("remote"))
//	host.Start(ctx)
//	remote.Start(ctx)
//	defer host.Close()
//
//	owner := mboxrpc.NewSession()
//	go remote.Serve(ctx, 7, owner, mboxrpc.HandlerFunc(func(ctx context.Context, req *mboxrpc.Request) (mboxrpc.Status, []byte) {
//	    return mboxrpc.StatusSuccess, req.Payload
//	}))
//
//	reply, err := host.Call(ctx, mboxrpc.NewCommand(7, 1), []byte("ping"), 0)
//
// # Architecture
//
//   - record.go, frame.go: logical records and their mailbox encoding
//   - memory.go, handshake.go: shared memory regions and the sequence tag
//   - waitcell.go, fifo.go: blocking primitives
//   - transport.go: exclusive access to the mailbox slots
//   - dispatch.go, worker.go: interrupt path and response worker
//   - pending.go, call.go: caller side
//   - registry.go, server.go: server side
//   - endpoint.go: lifecycle and options
package mboxrpc
