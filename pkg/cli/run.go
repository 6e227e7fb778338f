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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/config"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/scene"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/service"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/transport"
	"github.com/rs/zerolog/log"
)

const (
	sendTimeout      = 5 * time.Second
	sendPollInterval = 10 * time.Millisecond
)

var ErrModeNoSend = errors.New("serial mode does not send")

// SceneFromConfig builds an in-memory scene holding every object and text
// target named in v.
//
//nolint:gocritic // config struct copied for immutability
func SceneFromConfig(v config.Values) *scene.MemoryScene {
	sc := scene.NewMemoryScene()
	for _, o := range v.Receive.Objects {
		if o.Object != "" {
			sc.AddObject(o.Object)
		}
		if o.AxisText != "" {
			sc.AddText(o.AxisText)
		}
	}
	for _, o := range v.Send.Objects {
		if o.Object != "" {
			sc.AddObject(o.Object)
		}
	}
	if v.Receive.ReceivedText != "" {
		sc.AddText(v.Receive.ReceivedText)
	}
	return sc
}

// Run connects to the configured port. With -send it writes one line and
// returns, otherwise it runs the service until ctx is done.
func (f *Flags) Run(ctx context.Context, cfg *config.Instance, out io.Writer, opts ...service.Option) error {
	sc := SceneFromConfig(cfg.Values())
	svc := service.New(cfg, sc, opts...)
	svc.OnStatusChange(func(state transport.State) {
		_, _ = fmt.Fprintf(out, "status: %s\n", state)
	})

	if err := svc.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := svc.Disconnect(); err != nil {
			log.Error().Err(err).Msg("error disconnecting")
		}
	}()

	if f.isFlagPassed("send") {
		return sendOnce(ctx, svc, *f.Send)
	}

	svc.OnRecord(func(rec models.Record) {
		log.Info().
			Floats64("values", rec.Values).
			Str("text", rec.Text).
			Msg("record delivered")
	})
	svc.StartMovement()

	log.Info().Str("session", svc.Session()).Msg("service running")
	err := svc.Run(ctx)
	stats := svc.Stats()
	log.Info().
		Int64("received", stats.Received).
		Int64("sent", stats.Sent).
		Int64("dropped_received", stats.DroppedReceived).
		Int64("dropped_sent", stats.DroppedSent).
		Msg("service stopped")
	if err != nil {
		return fmt.Errorf("service failed: %w", err)
	}
	return nil
}

// sendOnce queues line and waits until the worker counts it as written.
func sendOnce(ctx context.Context, svc *service.Service, line string) error {
	if mode := svc.Mode(); !mode.Sends() {
		return fmt.Errorf("%w: %s", ErrModeNoSend, mode)
	}

	before := svc.Stats()
	if err := svc.QueueLine(line); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	ticker := time.NewTicker(sendPollInterval)
	defer ticker.Stop()

	for {
		stats := svc.Stats()
		if stats.Sent > before.Sent {
			break
		}
		if stats.DroppedSent > before.DroppedSent {
			return fmt.Errorf("line was dropped by the serial worker: %q", line)
		}
		if svc.Status() != transport.StateConnected {
			return fmt.Errorf("connection lost before line was sent: %w", transport.ErrNotConnected)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for line to be sent: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	log.Info().Str("line", line).Msg("line sent")
	return nil
}
