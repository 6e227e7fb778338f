// Blendix Serial Core
// Copyright (c) 2026 The Blendix Serial Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Blendix Serial Core.
//
// Blendix Serial Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blendix Serial Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Blendix Serial Core.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/cli"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/config"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(nil)

	if err := flags.Pre(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, cli.ErrExit) {
			return nil
		}
		return err
	}

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	}

	cfg, err := flags.Setup(config.BaseDefaults, logWriters)
	if err != nil {
		return err
	}

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	if err := flags.Apply(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flags.Run(ctx, cfg, os.Stdout, service.WithConfigWatch()); err != nil {
		log.Error().Err(err).Msg("blendix stopped with error")
		return err
	}
	return nil
}
