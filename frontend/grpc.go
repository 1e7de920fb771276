// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/luxfi/mboxrpc"
)

const grpcServiceName = "mboxrpc." + ServiceName

func init() {
	registerTransport(TransportGRPC, dialGRPC, listenGRPC)
}

// mailboxHandler is the handler type checked by grpc.Server.RegisterService.
type mailboxHandler interface {
	Call(context.Context, *CallArgs, *CallReply) error
	Redeem(context.Context, *TokenArgs, *CallReply) error
	Abandon(context.Context, *TokenArgs, *Empty) error
	OpenSession(context.Context, *Empty, *SessionReply) error
	CloseSession(context.Context, *SessionArgs, *Empty) error
	Register(context.Context, *RegisterArgs, *Empty) error
	Unregister(context.Context, *RegisterArgs, *Empty) error
	Recv(context.Context, *RecvArgs, *RecvReply) error
	Reply(context.Context, *ReplyArgs, *Empty) error
}

var mailboxServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*mailboxHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary("Call", mailboxHandler.Call),
		unary("Redeem", mailboxHandler.Redeem),
		unary("Abandon", mailboxHandler.Abandon),
		unary("OpenSession", mailboxHandler.OpenSession),
		unary("CloseSession", mailboxHandler.CloseSession),
		unary("Register", mailboxHandler.Register),
		unary("Unregister", mailboxHandler.Unregister),
		unary("Recv", mailboxHandler.Recv),
		unary("Reply", mailboxHandler.Reply),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mboxrpc/mailbox",
}

// unary builds the method descriptor for one Service operation.
func unary[A, R any](name string, fn func(mailboxHandler, context.Context, *A, *R) error) grpc.MethodDesc {
	fullMethod := "/" + grpcServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			args := new(A)
			if err := dec(args); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req interface{}) (interface{}, error) {
				reply := new(R)
				if err := fn(srv.(mailboxHandler), ctx, req.(*A), reply); err != nil {
					return nil, toStatus(err)
				}
				return reply, nil
			}
			if interceptor == nil {
				return call(ctx, args)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, args, info, call)
		},
	}
}

// toStatus picks a gRPC code for a Service error. The message is kept
// verbatim so the client can recover the mboxrpc error.
func toStatus(err error) error {
	code := codes.Unknown
	switch {
	case errors.Is(err, mboxrpc.ErrTimeout), errors.Is(err, mboxrpc.ErrHwTimeout):
		code = codes.DeadlineExceeded
	case errors.Is(err, mboxrpc.ErrBusy):
		code = codes.ResourceExhausted
	case errors.Is(err, mboxrpc.ErrNoServer), errors.Is(err, mboxrpc.ErrRedeemed):
		code = codes.NotFound
	case errors.Is(err, mboxrpc.ErrInvalidLength), errors.Is(err, mboxrpc.ErrInvalidServer):
		code = codes.InvalidArgument
	case errors.Is(err, mboxrpc.ErrInterrupted), errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, mboxrpc.ErrClosed):
		code = codes.Unavailable
	case errors.Is(err, mboxrpc.ErrDataNotReady):
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}

// grpcServer implements Server using gRPC
type grpcServer struct {
	listener net.Listener
	server   *grpc.Server
	log      *logrus.Entry
}

func listenGRPC(addr string, svc *Service, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer()
	server.RegisterService(&mailboxServiceDesc, svc)
	return &grpcServer{
		listener: listener,
		server:   server,
		log:      o.log.WithField("transport", TransportGRPC),
	}, nil
}

func (s *grpcServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		// Recv may block for a long time; GracefulStop would wait on it.
		s.server.Stop()
	}()
	s.log.WithField("addr", s.Addr()).Info("serving")
	err := s.server.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (s *grpcServer) Close() error {
	s.server.Stop()
	return nil
}

func (s *grpcServer) Addr() string {
	return s.listener.Addr().String()
}

// grpcClient implements invoker using gRPC
type grpcClient struct {
	conn *grpc.ClientConn
	log  *logrus.Entry
}

func dialGRPC(_ context.Context, addr string, o *dialOptions) (invoker, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcClient{conn: conn, log: o.log.WithField("transport", TransportGRPC)}, nil
}

func (c *grpcClient) invoke(ctx context.Context, method string, args, reply interface{}) error {
	err := c.conn.Invoke(ctx, "/"+grpcServiceName+"/"+method, args, reply)
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		if !errors.Is(remoteError(st.Message()), mboxrpc.ErrClosed) {
			return fmt.Errorf("grpc %s: %w", method, err)
		}
	case codes.Canceled, codes.DeadlineExceeded:
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return remoteError(st.Message())
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}
