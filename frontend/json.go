// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/sirupsen/logrus"
)

const (
	// ServiceName is the name the Service is registered under by every
	// transport.
	ServiceName = "Mailbox"

	jsonPath = "/rpc"

	maxRetries    = 3
	retryBaseWait = 100 * time.Millisecond
)

func init() {
	registerTransport(TransportJSON, dialJSON, listenJSON)
}

// jsonService adapts Service to the gorilla method signature.
type jsonService struct {
	svc *Service
}

func (j *jsonService) Call(r *http.Request, args *CallArgs, reply *CallReply) error {
	return j.svc.Call(r.Context(), args, reply)
}

func (j *jsonService) Redeem(r *http.Request, args *TokenArgs, reply *CallReply) error {
	return j.svc.Redeem(r.Context(), args, reply)
}

func (j *jsonService) Abandon(r *http.Request, args *TokenArgs, reply *Empty) error {
	return j.svc.Abandon(r.Context(), args, reply)
}

func (j *jsonService) OpenSession(r *http.Request, args *Empty, reply *SessionReply) error {
	return j.svc.OpenSession(r.Context(), args, reply)
}

func (j *jsonService) CloseSession(r *http.Request, args *SessionArgs, reply *Empty) error {
	return j.svc.CloseSession(r.Context(), args, reply)
}

func (j *jsonService) Register(r *http.Request, args *RegisterArgs, reply *Empty) error {
	return j.svc.Register(r.Context(), args, reply)
}

func (j *jsonService) Unregister(r *http.Request, args *RegisterArgs, reply *Empty) error {
	return j.svc.Unregister(r.Context(), args, reply)
}

func (j *jsonService) Recv(r *http.Request, args *RecvArgs, reply *RecvReply) error {
	return j.svc.Recv(r.Context(), args, reply)
}

func (j *jsonService) Reply(r *http.Request, args *ReplyArgs, reply *Empty) error {
	return j.svc.Reply(r.Context(), args, reply)
}

// NewJSONHandler returns the JSON-RPC 2.0 handler for svc.
func NewJSONHandler(svc *Service) (http.Handler, error) {
	server := rpc.NewServer()
	codec := json2.NewCodec()
	server.RegisterCodec(codec, "application/json")
	if err := server.RegisterService(&jsonService{svc: svc}, ServiceName); err != nil {
		return nil, fmt.Errorf("register %s: %w", ServiceName, err)
	}
	return server, nil
}

// jsonServer implements Server using JSON-RPC over HTTP
type jsonServer struct {
	listener net.Listener
	http     *http.Server
	log      *logrus.Entry
}

func listenJSON(addr string, svc *Service, o *serverOptions) (Server, error) {
	handler, err := NewJSONHandler(svc)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(jsonPath, handler)
	return &jsonServer{
		listener: listener,
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: o.log.WithField("transport", TransportJSON),
	}, nil
}

func (s *jsonServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.http.Close()
	}()
	s.log.WithField("addr", s.Addr()).Info("serving")
	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *jsonServer) Close() error {
	return s.http.Close()
}

func (s *jsonServer) Addr() string {
	return s.listener.Addr().String()
}

// jsonClient implements invoker using JSON-RPC over HTTP
type jsonClient struct {
	uri  *url.URL
	http *http.Client
	log  *logrus.Entry
}

func dialJSON(_ context.Context, addr string, o *dialOptions) (invoker, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	uri, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", addr, err)
	}
	if uri.Path == "" || uri.Path == "/" {
		uri.Path = jsonPath
	}
	return &jsonClient{
		uri:  uri,
		http: &http.Client{Transport: &http.Transport{}},
		log:  o.log.WithField("transport", TransportJSON),
	}, nil
}

func (c *jsonClient) invoke(ctx context.Context, method string, args, reply interface{}) error {
	return SendJSONRequest(ctx, c.http, c.uri, methodName(ServiceName, method), args, reply, c.log)
}

func (c *jsonClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// CleanlyCloseBody drains and closes an HTTP response body so the
// connection can be reused.
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError reports whether the request never reached the server.
// Only those are retried: mailbox calls are not idempotent.
func isRetryableError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// SendJSONRequest issues one JSON-RPC 2.0 request and decodes its reply.
// Errors reported by the remote Service come back as *RemoteError.
func SendJSONRequest(
	ctx context.Context,
	hc *http.Client,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	log *logrus.Entry,
) error {
	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			uri.String(),
			bytes.NewReader(requestBodyBytes),
		)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		request.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(request)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				log.WithError(err).WithField("attempt", attempt+1).Debug("request failed, retrying")
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = CleanlyCloseBody(resp.Body)
			return fmt.Errorf("received status code: %d", resp.StatusCode)
		}

		err = json2.DecodeClientResponse(resp.Body, reply)
		_ = CleanlyCloseBody(resp.Body)
		var rpcErr *json2.Error
		switch {
		case errors.As(err, &rpcErr):
			return remoteError(rpcErr.Message)
		case err != nil:
			return fmt.Errorf("failed to decode client response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to issue request after %d retries: %w", maxRetries, lastErr)
}
