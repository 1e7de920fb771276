// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/mboxrpc"
	"github.com/luxfi/mboxrpc/frontend"
	"github.com/luxfi/mboxrpc/internal/config"
	"github.com/luxfi/mboxrpc/sim"
)

const configKey = "config"

func main() {
	app := &cli.App{
		Name:  "mboxd",
		Usage: "mailbox RPC daemon over a simulated mailbox pair",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: trace, debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "json-listen",
				Usage: "JSON-RPC listen address (empty disables)",
			},
			&cli.StringFlag{
				Name:  "grpc-listen",
				Usage: "gRPC listen address (empty disables)",
			},
			&cli.StringFlag{
				Name:  "metrics-listen",
				Usage: "Prometheus /metrics listen address (empty disables)",
			},
		},
		Before: loadConfig,
		Action: runDaemon,
		Commands: []*cli.Command{
			configCommand,
			callCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// loadConfig builds the configuration from defaults, the config file and
// the command line, in that order.
func loadConfig(c *cli.Context) error {
	conf := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		if err := conf.UpdateFromFile(path); err != nil {
			return err
		}
	}
	if c.IsSet("log-level") {
		conf.LogLevel = c.String("log-level")
	}
	if c.IsSet("json-listen") {
		conf.Frontend.JSONListen = c.String("json-listen")
	}
	if c.IsSet("grpc-listen") {
		conf.Frontend.GRPCListen = c.String("grpc-listen")
	}
	if c.IsSet("metrics-listen") {
		conf.Frontend.MetricsListen = c.String("metrics-listen")
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = conf
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

var echo = mboxrpc.HandlerFunc(func(_ context.Context, req *mboxrpc.Request) (mboxrpc.Status, []byte) {
	return mboxrpc.StatusSuccess, req.Payload
})

func runDaemon(c *cli.Context) error {
	conf := configFrom(c)
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	log := logrus.WithField("component", "mboxd")

	a, b, arena := sim.NewPair(conf.SimOptions()...)
	endpoint := func(mbox mboxrpc.Mailbox, name string) (*mboxrpc.Endpoint, error) {
		opts := append(conf.EndpointOptions(),
			mboxrpc.WithName(name),
			mboxrpc.WithLogger(log),
			mboxrpc.WithRegisterer(reg),
		)
		ep, err := mboxrpc.New(mbox, arena, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s endpoint: %w", name, err)
		}
		return ep, ep.Start(ctx)
	}
	host, err := endpoint(a, "host")
	if err != nil {
		return err
	}
	defer host.Close()
	remote, err := endpoint(b, "remote")
	if err != nil {
		return err
	}
	defer remote.Close()

	g, gctx := errgroup.WithContext(ctx)

	for _, id := range conf.Sim.EchoServers {
		id := id
		owner := mboxrpc.NewSession()
		if err := remote.Registry().Register(id, owner); err != nil {
			return fmt.Errorf("echo server %d: %w", id, err)
		}
		g.Go(func() error { return remote.Serve(gctx, id, owner, echo) })
		log.WithField("server", id).Info("Echo server registered on remote")
	}

	svc := frontend.NewService(host, log)
	for transport, addr := range conf.Listeners() {
		srv, err := frontend.Listen(addr, svc,
			frontend.WithServerTransport(transport),
			frontend.WithServerLogger(log),
		)
		if err != nil {
			return fmt.Errorf("%s listen: %w", transport, err)
		}
		g.Go(func() error { return srv.Serve(gctx) })
	}

	if addr := conf.Frontend.MetricsListen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.WithField("addr", addr).Info("Serving metrics")
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return hs.Close()
		})
	}

	<-gctx.Done()
	log.Info("Shutting down")
	return g.Wait()
}
