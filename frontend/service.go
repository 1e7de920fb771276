// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frontend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/mboxrpc"
)

// Service exposes an endpoint to front-end clients. Sessions stand for the
// client processes that own servers; tokens stand for deferred calls.
type Service struct {
	ep  *mboxrpc.Endpoint
	log *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*mboxrpc.Session
	tokens   map[string]*mboxrpc.Token
}

// NewService returns a service backed by ep.
func NewService(ep *mboxrpc.Endpoint, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		ep:       ep,
		log:      log.WithField("component", "frontend"),
		sessions: make(map[string]*mboxrpc.Session),
		tokens:   make(map[string]*mboxrpc.Token),
	}
}

func (s *Service) Call(ctx context.Context, args *CallArgs, reply *CallReply) error {
	cmd := mboxrpc.NewCommand(args.Server, args.Opcode)
	kind := mboxrpc.Kind(args.Kind)
	if kind > mboxrpc.DeferredReply {
		return fmt.Errorf("%w: call kind %d", mboxrpc.ErrFail, args.Kind)
	}

	res, tok, err := s.ep.Invoke(ctx, cmd, args.Payload, kind, args.timeout())
	if err != nil {
		return err
	}
	switch {
	case tok != nil:
		id := uuid.NewString()
		s.mu.Lock()
		s.tokens[id] = tok
		s.mu.Unlock()
		reply.Token = id
		reply.Status = mboxrpc.StatusSuccess.String()
	case res != nil:
		setReply(reply, res)
	default:
		reply.Status = mboxrpc.StatusSuccess.String()
	}
	return nil
}

func (s *Service) Redeem(ctx context.Context, args *TokenArgs, reply *CallReply) error {
	tok, err := s.takeToken(args.Token)
	if err != nil {
		return err
	}
	if args.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	res, err := s.ep.Redeem(ctx, tok)
	if err != nil {
		return err
	}
	setReply(reply, res)
	return nil
}

func (s *Service) Abandon(_ context.Context, args *TokenArgs, _ *Empty) error {
	tok, err := s.takeToken(args.Token)
	if err != nil {
		return err
	}
	return s.ep.Abandon(tok)
}

func (s *Service) OpenSession(_ context.Context, _ *Empty, reply *SessionReply) error {
	sess := mboxrpc.NewSession()
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	reply.Session = sess.ID()
	s.log.WithField("session", sess.ID()).Debug("Session opened")
	return nil
}

// CloseSession ends a session and tears down every server it owns.
func (s *Service) CloseSession(_ context.Context, args *SessionArgs, _ *Empty) error {
	s.mu.Lock()
	sess, ok := s.sessions[args.Session]
	delete(s.sessions, args.Session)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown session %q", mboxrpc.ErrFail, args.Session)
	}
	sess.End()
	n := s.ep.Registry().UnregisterAll(sess)
	s.log.WithFields(logrus.Fields{"session": args.Session, "servers": n}).Debug("Session closed")
	return nil
}

func (s *Service) Register(_ context.Context, args *RegisterArgs, _ *Empty) error {
	sess, err := s.session(args.Session)
	if err != nil {
		return err
	}
	return s.ep.Registry().Register(args.Server, sess)
}

func (s *Service) Unregister(_ context.Context, args *RegisterArgs, _ *Empty) error {
	sess, err := s.session(args.Session)
	if err != nil {
		return err
	}
	return s.ep.Registry().Unregister(args.Server, sess)
}

// Recv waits for the next request of a server the session owns.
func (s *Service) Recv(ctx context.Context, args *RecvArgs, reply *RecvReply) error {
	sess, err := s.session(args.Session)
	if err != nil {
		return err
	}
	if args.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	req, err := s.ep.Recv(ctx, args.Server, sess)
	if err != nil {
		return err
	}
	reply.Record = *FromRequest(req)
	return nil
}

// Reply answers a request previously handed out by Recv.
func (s *Service) Reply(ctx context.Context, args *ReplyArgs, _ *Empty) error {
	sess, err := s.session(args.Session)
	if err != nil {
		return err
	}
	req, err := args.Record.Request()
	if err != nil {
		return err
	}
	if !s.ep.Registry().OwnedBy(req.Command.Server(), sess) {
		return fmt.Errorf("%w: server %d is not owned by session", mboxrpc.ErrBusy, req.Command.Server())
	}
	return s.ep.Reply(ctx, req, mboxrpc.Status(args.Record.Result), args.Record.Payload)
}

func (s *Service) session(id string) (*mboxrpc.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %q", mboxrpc.ErrFail, id)
	}
	return sess, nil
}

// takeToken hands a token out once. The endpoint itself reports a second
// use of the same Token as ErrRedeemed; here the id is simply gone.
func (s *Service) takeToken(id string) (*mboxrpc.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token %q", mboxrpc.ErrRedeemed, id)
	}
	delete(s.tokens, id)
	return tok, nil
}

func setReply(reply *CallReply, res *mboxrpc.Reply) {
	reply.Result = int32(res.Status)
	reply.Status = res.Status.String()
	reply.Payload = res.Payload
}
