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

// Package cli implements the flags of the blendix binary.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/config"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrExit means an informational flag was handled and the program should
// exit successfully.
var ErrExit = errors.New("exit requested")

// listPorts is replaced in tests.
var listPorts = transport.ListPorts

type Flags struct {
	fs        *flag.FlagSet
	Port      *string
	Baud      *int
	Mode      *string
	Config    *string
	Send      *string
	ListPorts *bool
	AllPorts  *bool
	Daemon    *bool
	Version   *bool
}

// SetupFlags defines the CLI flags on fs, or the global flag set when fs
// is nil.
func SetupFlags(fs *flag.FlagSet) *Flags {
	if fs == nil {
		fs = flag.CommandLine
	}
	return &Flags{
		fs: fs,
		Port: fs.String(
			"port",
			"",
			"serial port to connect to (overrides config)",
		),
		Baud: fs.Int(
			"baud",
			0,
			"baud rate: 9600, 14400, 19200, 38400, 57600 or 115200 (overrides config)",
		),
		Mode: fs.String(
			"mode",
			"",
			"serial mode: send, receive or both (overrides config)",
		),
		Config: fs.String(
			"config",
			"",
			"path to config file",
		),
		Send: fs.String(
			"send",
			"",
			"send one formatted line, e.g. \"1.00, 2.00, 3.00;\", and exit",
		),
		ListPorts: fs.Bool(
			"list-ports",
			false,
			"print available serial ports and exit",
		),
		AllPorts: fs.Bool(
			"all",
			false,
			"with -list-ports, include ports that are not USB serial devices",
		),
		Daemon: fs.Bool(
			"daemon",
			false,
			"log to stderr as well as the log file",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

func (f *Flags) isFlagPassed(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Pre parses args and handles flags that need no config or logging. It
// returns ErrExit when the program should stop without error.
func (f *Flags) Pre(args []string, out io.Writer) error {
	if err := f.fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	switch {
	case *f.Version:
		_, _ = fmt.Fprintf(out, "blendix v%s\n", config.AppVersion)
		return ErrExit
	case *f.ListPorts:
		ports, err := listPorts(*f.AllPorts)
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			_, _ = fmt.Fprintln(out, "no serial ports found")
		}
		for _, p := range ports {
			_, _ = fmt.Fprintln(out, p)
		}
		return ErrExit
	}
	return nil
}

// Apply overrides config values with the flags that were passed. The
// config file is not rewritten.
func (f *Flags) Apply(cfg *config.Instance) error {
	if f.isFlagPassed("port") {
		cfg.SetSerialPort(*f.Port)
	}
	if f.isFlagPassed("baud") {
		if err := cfg.SetBaudRate(*f.Baud); err != nil {
			return fmt.Errorf("invalid -baud: %w", err)
		}
	}
	if f.isFlagPassed("mode") {
		m, err := models.ParseMode(*f.Mode)
		if err != nil {
			return fmt.Errorf("invalid -mode: %w", err)
		}
		if err := cfg.SetMode(m); err != nil {
			return fmt.Errorf("invalid -mode: %w", err)
		}
	}
	return nil
}

// Setup initializes logging and loads the user config.
//
//nolint:gocritic // config struct copied for immutability
func (f *Flags) Setup(defaults config.Values, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.InitLogging(helpers.LogDir(), writers); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if _, ok := helpers.HasUserDir(); ok {
		log.Info().Msg("using 'user' directory for storage")
	}

	if *f.Config != "" {
		if err := os.Setenv(config.CfgEnv, *f.Config); err != nil {
			return nil, fmt.Errorf("failed to set config path: %w", err)
		}
	}

	cfg, err := config.NewConfig(afero.NewOsFs(), helpers.ConfigDir(), defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.Info().
		Str("path", cfg.Path()).
		Bool("deadlock_detection", syncutil.DeadlockEnabled).
		Msgf("blendix v%s", config.AppVersion)
	return cfg, nil
}
