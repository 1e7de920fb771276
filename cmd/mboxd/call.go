// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/luxfi/mboxrpc/frontend"
)

var callCommand = &cli.Command{
	Name:      "call",
	Usage:     "call a server through a running mboxd",
	ArgsUsage: "PAYLOAD",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "front-end address",
			Value: "127.0.0.1:9650",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "front-end transport: json or grpc",
			Value: frontend.DefaultTransport,
		},
		&cli.UintFlag{
			Name:  "server",
			Usage: "server id",
			Value: 1,
		},
		&cli.UintFlag{
			Name:  "opcode",
			Usage: "opcode",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "call timeout, 0 waits forever",
		},
		&cli.BoolFlag{
			Name:  "notify",
			Usage: "send without waiting for a reply",
		},
		&cli.BoolFlag{
			Name:  "deferred",
			Usage: "make a deferred call and redeem it",
		},
	},
	Action: func(c *cli.Context) error {
		server, opcode := c.Uint("server"), c.Uint("opcode")
		if server > 0xffff || opcode > 0xffff {
			return fmt.Errorf("server and opcode must fit in 16 bits")
		}
		client, err := frontend.Dial(c.Context, c.String("addr"),
			frontend.WithTransport(c.String("transport")))
		if err != nil {
			return err
		}
		defer client.Close()

		payload := []byte(c.Args().First())
		if c.Bool("notify") {
			return client.Notify(c.Context, uint16(server), uint16(opcode), payload)
		}

		timeout := c.Duration("timeout")
		if c.Bool("deferred") {
			token, err := client.CallDeferred(c.Context, uint16(server), uint16(opcode), payload, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "token %s\n", token)
			reply, err := client.Redeem(c.Context, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s %q\n", reply.Status, reply.Payload)
			return nil
		}

		reply, err := client.Call(c.Context, uint16(server), uint16(opcode), payload, timeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s %q\n", reply.Status, reply.Payload)
		return nil
	},
}
