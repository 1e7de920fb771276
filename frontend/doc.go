// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package frontend exposes a mailbox endpoint to other processes.
//
// # Transport Selection
//
// JSON-RPC 2.0 over HTTP is the default transport. gRPC is available with
// the same messages, carried by a JSON content subtype:
//
//	client, err := frontend.Dial(ctx, "localhost:9650")
//	client, err := frontend.Dial(ctx, "localhost:9651", frontend.WithTransport(frontend.TransportGRPC))
//
// # Usage
//
// Client usage:
//
//	reply, err := client.Call(ctx, 7, 1, []byte("ping"), time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := reply.Err(); err != nil {
//	    // the remote side answered with a failure status
//	}
//
// Serving a server id from another process:
//
//	session, _ := client.OpenSession(ctx)
//	_ = client.Register(ctx, session, 9)
//	req, _ := client.Recv(ctx, session, 9, 0)
//	_ = client.Reply(ctx, session, req, mboxrpc.StatusSuccess, answer)
//
// Server usage:
//
//	svc := frontend.NewService(endpoint, log)
//	server, err := frontend.Listen(":9650", svc)
//	server.Serve(ctx)
//
// Errors raised by the remote Service come back as *RemoteError and still
// match the mboxrpc sentinels with errors.Is.
//
// # Architecture
//
//   - client.go: Client and Server interfaces, the shared client
//   - service.go: Service, the operations every transport exposes
//   - types.go: argument, reply and record messages
//   - codec.go: Codec interface and the gRPC codec adapter
//   - transport.go: transport registry
//   - dial.go: Dial and Listen factory functions
//   - json.go: JSON-RPC transport (default)
//   - grpc.go: gRPC transport
package frontend
