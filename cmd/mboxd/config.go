// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/urfave/cli/v2"

	"github.com/luxfi/mboxrpc/internal/config"
)

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "write the mboxd configuration file",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "default",
			Usage: "output the default configuration",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "path to write the configuration to",
			Value: "/dev/stdout",
		},
	},
	Action: func(c *cli.Context) error {
		// app.Before has already merged the config file and flags.
		conf := configFrom(c)
		if c.Bool("default") {
			conf = config.DefaultConfig()
		}
		if err := conf.Validate(); err != nil {
			return err
		}
		return conf.ToFile(c.String("output"))
	},
}
