// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mboxrpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultFifoCapacity     = 16
	DefaultResponseCapacity = 64
	DefaultCallTimeoutFloor = 7000 * time.Millisecond
	DefaultReapInterval     = time.Second
)

// Option configures an Endpoint.
type Option func(*options)

type options struct {
	fifoCapacity     int
	responseCapacity int
	hwTimeout        time.Duration
	readyDeadline    time.Duration
	callTimeoutFloor time.Duration
	reapInterval     time.Duration
	logger           *logrus.Entry
	registerer       prometheus.Registerer
	name             string
}

// WithFifoCapacity sets the per-server fifo capacity, a power of two.
func WithFifoCapacity(n int) Option {
	return func(o *options) { o.fifoCapacity = n }
}

// WithResponseCapacity sets the outgoing response fifo capacity, a power
// of two.
func WithResponseCapacity(n int) Option {
	return func(o *options) { o.responseCapacity = n }
}

// WithHwTimeout bounds the wait for the outbound slot to free up.
func WithHwTimeout(d time.Duration) Option {
	return func(o *options) { o.hwTimeout = d }
}

// WithReadyDeadline bounds the wait for an out-of-band sequence tag.
func WithReadyDeadline(d time.Duration) Option {
	return func(o *options) { o.readyDeadline = d }
}

// WithCallTimeoutFloor sets the smallest nonzero call timeout.
func WithCallTimeoutFloor(d time.Duration) Option {
	return func(o *options) { o.callTimeoutFloor = d }
}

// WithReapInterval sets how often servers of dead owners are torn down.
// Zero disables reaping.
func WithReapInterval(d time.Duration) Option {
	return func(o *options) { o.reapInterval = d }
}

// WithLogger sets the log entry the endpoint logs through.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the endpoint metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithName labels the endpoint in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Endpoint is one side of a mailbox. It owns the server registry, the
// sequence counter, the pending call table and the outgoing response fifo
// for that side.
type Endpoint struct {
	mbox      Mailbox
	mem       Memory
	seq       *SequenceCounter
	hs        *Handshake
	transport *Transport
	registry  *Registry
	outgoing  *CallFifo
	pending   pendingTable

	opts    options
	log     *logrus.Entry
	metrics *Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
	closed atomic.Bool
}

// New returns an endpoint on mbox. Call Start before use.
func New(mbox Mailbox, mem Memory, opts ...Option) (*Endpoint, error) {
	o := options{
		fifoCapacity:     DefaultFifoCapacity,
		responseCapacity: DefaultResponseCapacity,
		hwTimeout:        defaultHwTimeout,
		readyDeadline:    defaultReadyDeadline,
		callTimeoutFloor: DefaultCallTimeoutFloor,
		reapInterval:     DefaultReapInterval,
		name:             "mbox",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.NewEntry(logrus.StandardLogger())
	}

	registry, err := NewRegistry(o.fifoCapacity)
	if err != nil {
		return nil, fmt.Errorf("server fifo: %w", err)
	}
	outgoing, err := NewCallFifo(o.responseCapacity)
	if err != nil {
		return nil, fmt.Errorf("response fifo: %w", err)
	}
	metrics, err := newMetrics(o.name, o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	seq := &SequenceCounter{}
	hs := NewHandshake(seq, o.readyDeadline)
	e := &Endpoint{
		mbox:      mbox,
		mem:       mem,
		seq:       seq,
		hs:        hs,
		transport: NewTransport(mbox, mem, hs, o.hwTimeout),
		registry:  registry,
		outgoing:  outgoing,
		opts:      o,
		log:       o.logger.WithField("endpoint", o.name),
		metrics:   metrics,
	}
	registry.drop = e.dropQueued
	return e, nil
}

// Registry returns the endpoint's server registry.
func (e *Endpoint) Registry() *Registry { return e.registry }

// Memory returns the shared memory the endpoint allocates payloads from.
func (e *Endpoint) Memory() Memory { return e.mem }

// Pending returns the number of calls waiting for a response.
func (e *Endpoint) Pending() int { return e.pending.len() }

// Start runs the interrupt poller, the response worker and the dead owner
// reaper until ctx is done or Close is called.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	if e.group != nil {
		return fmt.Errorf("mboxrpc: endpoint %s already started", e.opts.name)
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.group, ctx = errgroup.WithContext(ctx)
	e.group.Go(func() error { return e.pollInterrupts(ctx) })
	e.group.Go(func() error { return e.respond(ctx) })
	if e.opts.reapInterval > 0 {
		e.group.Go(func() error {
			wait.Until(func() {
				if n := e.registry.Reap(); n > 0 {
					e.log.WithField("servers", n).Info("Reaped servers of dead owners")
				}
			}, e.opts.reapInterval, ctx.Done())
			return nil
		})
	}
	e.log.Debug("Endpoint started")
	return nil
}

// Close stops the endpoint. Calls still waiting for a response fail with
// ErrInterrupted.
func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending.fail(ErrInterrupted)
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	err := e.group.Wait()
	e.outgoing.Reset()
	e.log.Debug("Endpoint closed")
	return err
}

// Metrics returns the endpoint counters.
func (e *Endpoint) Metrics() *Metrics { return e.metrics }
