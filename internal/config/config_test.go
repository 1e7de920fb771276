// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/mboxrpc"
	"github.com/luxfi/mboxrpc/frontend"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mboxd.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Len(t, c.EndpointOptions(), 6)
	require.Equal(t, map[string]string{
		frontend.TransportJSON: "127.0.0.1:9650",
		frontend.TransportGRPC: "127.0.0.1:9651",
	}, c.Listeners())
}

func TestUpdateFromFile(t *testing.T) {
	path := writeFile(t, `
[mboxd]
log_level = "debug"

[mboxd.endpoint]
fifo_capacity = 32
hw_timeout = "75ms"

[mboxd.frontend]
grpc_listen = ""

[mboxd.sim]
tag_delay = "1ms"
echo_servers = [1, 2, 3]
`)
	c := DefaultConfig()
	require.NoError(t, c.UpdateFromFile(path))
	require.NoError(t, c.Validate())

	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, 32, c.Endpoint.FifoCapacity)
	require.Equal(t, 75*time.Millisecond, c.Endpoint.HwTimeout.Duration)
	// untouched keys keep their defaults
	require.Equal(t, mboxrpc.DefaultResponseCapacity, c.Endpoint.ResponseCapacity)
	require.Equal(t, time.Millisecond, c.Sim.TagDelay.Duration)
	require.Equal(t, []uint16{1, 2, 3}, c.Sim.EchoServers)
	require.Len(t, c.SimOptions(), 2)
	require.Equal(t, map[string]string{frontend.TransportJSON: "127.0.0.1:9650"}, c.Listeners())
}

func TestUpdateFromFileErrors(t *testing.T) {
	c := DefaultConfig()
	require.Error(t, c.UpdateFromFile(filepath.Join(t.TempDir(), "missing.conf")))
	require.Error(t, c.UpdateFromFile(writeFile(t, "[mboxd\n")))
	require.Error(t, c.UpdateFromFile(writeFile(t, "[mboxd.endpoint]\nhw_timeout = \"soon\"\n")))
}

func TestToFileRoundTrip(t *testing.T) {
	c := DefaultConfig()
	c.Sim.EchoServers = []uint16{4, 5}
	c.Endpoint.ReadyDeadline = Duration{3 * time.Millisecond}
	path := filepath.Join(t.TempDir(), "out.conf")
	require.NoError(t, c.ToFile(path))

	got := &Config{}
	require.NoError(t, got.UpdateFromFile(path))
	require.Equal(t, c, got)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"log level":         func(c *Config) { c.LogLevel = "loud" },
		"fifo capacity":     func(c *Config) { c.Endpoint.FifoCapacity = 12 },
		"response capacity": func(c *Config) { c.Endpoint.ResponseCapacity = 0 },
		"hw timeout":        func(c *Config) { c.Endpoint.HwTimeout = Duration{} },
		"ready deadline":    func(c *Config) { c.Endpoint.ReadyDeadline = Duration{-time.Second} },
		"timeout floor":     func(c *Config) { c.Endpoint.CallTimeoutFloor = Duration{-time.Second} },
		"reap interval":     func(c *Config) { c.Endpoint.ReapInterval = Duration{} },
		"arena limit":       func(c *Config) { c.Sim.ArenaLimit = 0 },
		"echo server":       func(c *Config) { c.Sim.EchoServers = []uint16{mboxrpc.MaxServers} },
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
