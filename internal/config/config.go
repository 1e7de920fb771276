// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the mboxd daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/mboxrpc"
	"github.com/luxfi/mboxrpc/frontend"
	"github.com/luxfi/mboxrpc/sim"
)

// Duration is a time.Duration written as a string ("50ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// EndpointConfig tunes both mailbox endpoints.
type EndpointConfig struct {
	FifoCapacity     int      `toml:"fifo_capacity"`
	ResponseCapacity int      `toml:"response_capacity"`
	HwTimeout        Duration `toml:"hw_timeout"`
	ReadyDeadline    Duration `toml:"ready_deadline"`
	CallTimeoutFloor Duration `toml:"call_timeout_floor"`
	ReapInterval     Duration `toml:"reap_interval"`
}

// FrontendConfig holds the listen addresses. An empty address disables
// that listener.
type FrontendConfig struct {
	JSONListen    string `toml:"json_listen"`
	GRPCListen    string `toml:"grpc_listen"`
	MetricsListen string `toml:"metrics_listen"`
}

// SimConfig shapes the simulated hardware.
type SimConfig struct {
	ArenaLimit  int      `toml:"arena_limit"`
	TagDelay    Duration `toml:"tag_delay"`
	EchoServers []uint16 `toml:"echo_servers"`
}

// Config is the mboxd configuration.
type Config struct {
	LogLevel string         `toml:"log_level"`
	Endpoint EndpointConfig `toml:"endpoint"`
	Frontend FrontendConfig `toml:"frontend"`
	Sim      SimConfig      `toml:"sim"`
}

// tomlConfig nests Config under an [mboxd] table.
type tomlConfig struct {
	Mboxd Config `toml:"mboxd"`
}

// DefaultConfig returns the default configuration for mboxd.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Endpoint: EndpointConfig{
			FifoCapacity:     mboxrpc.DefaultFifoCapacity,
			ResponseCapacity: mboxrpc.DefaultResponseCapacity,
			HwTimeout:        Duration{50 * time.Millisecond},
			ReadyDeadline:    Duration{10 * time.Millisecond},
			CallTimeoutFloor: Duration{mboxrpc.DefaultCallTimeoutFloor},
			ReapInterval:     Duration{mboxrpc.DefaultReapInterval},
		},
		Frontend: FrontendConfig{
			JSONListen:    "127.0.0.1:9650",
			GRPCListen:    "127.0.0.1:9651",
			MetricsListen: "127.0.0.1:9652",
		},
		Sim: SimConfig{
			ArenaLimit:  16 << 20,
			EchoServers: []uint16{1},
		},
	}
}

// UpdateFromFile populates the Config from the TOML-encoded file at the
// given path. Keys missing from the file keep their current values.
func (c *Config) UpdateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	t := &tomlConfig{Mboxd: *c}
	meta, err := toml.Decode(string(data), t)
	if err != nil {
		return fmt.Errorf("unable to decode configuration %v: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logrus.Warnf("Ignoring unknown configuration keys in %s: %v", path, undecoded)
	}
	*c = t.Mboxd
	return nil
}

// ToFile outputs the Config as a TOML-encoded file at the given path.
func (c *Config) ToFile(path string) error {
	var w bytes.Buffer
	if err := toml.NewEncoder(&w).Encode(tomlConfig{Mboxd: *c}); err != nil {
		return err
	}
	return os.WriteFile(path, w.Bytes(), 0o644)
}

// Validate checks the configuration for values the endpoint would reject
// or that cannot work.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	e := c.Endpoint
	for name, n := range map[string]int{
		"fifo_capacity":     e.FifoCapacity,
		"response_capacity": e.ResponseCapacity,
	} {
		if n <= 0 || bits.OnesCount(uint(n)) != 1 {
			return fmt.Errorf("endpoint.%s: %d is not a power of two", name, n)
		}
	}
	if e.HwTimeout.Duration <= 0 {
		return errors.New("endpoint.hw_timeout must be positive")
	}
	if e.ReadyDeadline.Duration <= 0 {
		return errors.New("endpoint.ready_deadline must be positive")
	}
	if e.CallTimeoutFloor.Duration < 0 {
		return errors.New("endpoint.call_timeout_floor must not be negative")
	}
	if e.ReapInterval.Duration <= 0 {
		return errors.New("endpoint.reap_interval must be positive")
	}
	if c.Sim.ArenaLimit <= 0 {
		return errors.New("sim.arena_limit must be positive")
	}
	for _, id := range c.Sim.EchoServers {
		if int(id) >= mboxrpc.MaxServers {
			return fmt.Errorf("sim.echo_servers: %w: %d", mboxrpc.ErrInvalidServer, id)
		}
	}
	return nil
}

// EndpointOptions returns the endpoint options the configuration selects.
func (c *Config) EndpointOptions() []mboxrpc.Option {
	e := c.Endpoint
	return []mboxrpc.Option{
		mboxrpc.WithFifoCapacity(e.FifoCapacity),
		mboxrpc.WithResponseCapacity(e.ResponseCapacity),
		mboxrpc.WithHwTimeout(e.HwTimeout.Duration),
		mboxrpc.WithReadyDeadline(e.ReadyDeadline.Duration),
		mboxrpc.WithCallTimeoutFloor(e.CallTimeoutFloor.Duration),
		mboxrpc.WithReapInterval(e.ReapInterval.Duration),
	}
}

// SimOptions returns the options for the simulated mailbox pair.
func (c *Config) SimOptions() []sim.Option {
	opts := []sim.Option{sim.WithArenaLimit(c.Sim.ArenaLimit)}
	if c.Sim.TagDelay.Duration > 0 {
		opts = append(opts, sim.WithTagDelay(c.Sim.TagDelay.Duration))
	}
	return opts
}

// Listeners returns the front-end transports to start, keyed by transport
// name.
func (c *Config) Listeners() map[string]string {
	l := make(map[string]string, 2)
	if c.Frontend.JSONListen != "" {
		l[frontend.TransportJSON] = c.Frontend.JSONListen
	}
	if c.Frontend.GRPCListen != "" {
		l[frontend.TransportGRPC] = c.Frontend.GRPCListen
	}
	return l
}
