//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "temporal property store"
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		logger, err := opts.logger()
		if err != nil {
			return err
		}
		cli.opts = &opts
		cli.logger = logger
		return command.Execute(args)
	}

	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.command); err != nil {
			logrus.WithError(err).Fatal("register command")
		}
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// Options are shared by all commands.
type Options struct {
	Config    string `long:"config" short:"c" description:"path to a yaml config file"`
	DataPath  string `long:"data-path" description:"store directory, overrides the config"`
	LogLevel  string `long:"log-level" description:"logrus level" default:"info"`
	LogFormat string `long:"log-format" description:"text or json" default:"text" choice:"text" choice:"json"`
}

func (o *Options) logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if o.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}
