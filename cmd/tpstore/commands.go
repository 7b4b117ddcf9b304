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
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/weaviate/tpstore/adapters/repos/db/tpstore"
	"github.com/weaviate/tpstore/entities/temporal"
	"github.com/weaviate/tpstore/usecases/config"
)

// cli carries the parsed global options into the commands.
var cli struct {
	opts   *Options
	logger *logrus.Logger
}

var commands = []struct {
	name, short, long string
	command           interface{}
}{
	{"put", "write a value", "Sets a property of an entity during an interval.", &putCommand{}},
	{"get", "read a value", "Reads a property of an entity at one instant.", &getCommand{}},
	{"range", "read a history", "Prints every value a property held during an interval.", &rangeCommand{}},
	{"declare", "declare a property kind", "Fixes the value kind of a property.", &declareCommand{}},
	{"scan", "dump the store", "Prints every entry of the store in key order.", &scanCommand{}},
	{"flush", "merge the memtable", "Merges buffered writes into the property files.", &flushCommand{}},
	{"stats", "describe the store", "Prints the files and buffers of every property.", &statsCommand{}},
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if path := cli.opts.Config; path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := config.FromEnv(&cfg); err != nil {
		return cfg, err
	}
	if cli.opts.DataPath != "" {
		cfg.DataPath = cli.opts.DataPath
	}
	return cfg, cfg.Validate()
}

// withStore opens the store, runs fn and shuts the store down, which
// merges whatever fn wrote.
func withStore(fn func(s *tpstore.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	s, err := tpstore.New(cfg.DataPath, cli.logger, tpstore.OptionsFromConfig(cfg)...)
	if err != nil {
		return err
	}

	runErr := fn(s)
	if err := s.Shutdown(context.Background()); err != nil {
		cli.logger.WithField("action", "tpstore_shutdown").
			WithError(err).
			Error("shutdown store")
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func parseTimePoint(s string) (temporal.TimePoint, error) {
	if strings.EqualFold(s, "now") {
		return temporal.Now, nil
	}
	t, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(temporal.ErrInvalidArgument, "time point %q", s)
	}
	return temporal.TimePoint(t), nil
}

type Target struct {
	Entity   uint64 `long:"entity" short:"e" description:"entity id" required:"true"`
	Property int32  `long:"property" short:"p" description:"property id" required:"true"`
}

type putCommand struct {
	Target
	Start   string `long:"start" description:"first instant" required:"true"`
	End     string `long:"end" description:"last instant or now" default:"now"`
	Value   string `long:"value" description:"value to store"`
	Invalid bool   `long:"invalid" description:"mark the property as having no value"`
}

func (c *putCommand) Execute(args []string) error {
	start, err := parseTimePoint(c.Start)
	if err != nil {
		return err
	}
	end, err := parseTimePoint(c.End)
	if err != nil {
		return err
	}

	vt, value := temporal.Value, []byte(c.Value)
	if c.Invalid {
		vt, value = temporal.Invalid, nil
	}
	return withStore(func(s *tpstore.Store) error {
		return s.SetProperty(c.Entity, c.Property, start, end, vt, value)
	})
}

type getCommand struct {
	Target
	At string `long:"at" description:"instant to read" required:"true"`
}

func (c *getCommand) Execute(args []string) error {
	at, err := parseTimePoint(c.At)
	if err != nil {
		return err
	}
	return withStore(func(s *tpstore.Store) error {
		l, err := s.GetPointLookup(c.Entity, c.Property, at)
		if err != nil {
			return err
		}
		switch l.State {
		case temporal.LookupKnown:
			fmt.Println(string(l.Value))
		case temporal.LookupInvalid:
			fmt.Println("<invalid>")
		default:
			fmt.Println("<unknown>")
		}
		return nil
	})
}

type rangeCommand struct {
	Target
	Start string `long:"start" description:"first instant" default:"0"`
	End   string `long:"end" description:"last instant or now" default:"now"`
}

func (c *rangeCommand) Execute(args []string) error {
	start, err := parseTimePoint(c.Start)
	if err != nil {
		return err
	}
	end, err := parseTimePoint(c.End)
	if err != nil {
		return err
	}
	return withStore(func(s *tpstore.Store) error {
		res, err := s.GetRangeValue(c.Entity, c.Property, start, end,
			tpstore.NewIntervalCollector(end))
		if err != nil {
			return err
		}
		for _, iv := range res.([]tpstore.IntervalValue) {
			if iv.Type == temporal.Value {
				fmt.Printf("%s\t%s\n", iv.Interval, iv.Value)
				continue
			}
			fmt.Printf("%s\t<invalid>\n", iv.Interval)
		}
		return nil
	})
}

type declareCommand struct {
	Property int32  `long:"property" short:"p" description:"property id" required:"true"`
	Kind     string `long:"kind" description:"value kind" required:"true" choice:"bytes" choice:"int32" choice:"int64" choice:"float32" choice:"float64" choice:"string"`
}

func (c *declareCommand) Execute(args []string) error {
	kind, err := temporal.ParsePropertyKind(c.Kind)
	if err != nil {
		return err
	}
	return withStore(func(s *tpstore.Store) error {
		return s.DeclareProperty(c.Property, kind)
	})
}

type scanCommand struct{}

func (c *scanCommand) Execute(args []string) error {
	return withStore(func(s *tpstore.Store) error {
		return s.Scan(func(e tpstore.Entry) bool {
			fmt.Println(e)
			return true
		})
	})
}

type flushCommand struct{}

func (c *flushCommand) Execute(args []string) error {
	return withStore(func(s *tpstore.Store) error {
		if err := s.FlushMemTable2Disk(); err != nil {
			return err
		}
		return s.FlushMetaInfo2Disk()
	})
}

type statsCommand struct{}

func (c *statsCommand) Execute(args []string) error {
	return withStore(func(s *tpstore.Store) error {
		out, err := yaml.Marshal(s.Stats())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	})
}
