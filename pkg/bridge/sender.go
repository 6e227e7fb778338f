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

package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/codec"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/scene"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSendInterval is the timer-driven send period.
const DefaultSendInterval = 100 * time.Millisecond

// Sink receives formatted lines. *worker.Worker satisfies it.
type Sink interface {
	QueueSend(line string)
}

// SendTarget is one object's slot in the outgoing line.
type SendTarget struct {
	Object string
	Kind   models.TransformKind
	Axes   models.AxisMask
}

type SendSettings struct {
	Targets []SendTarget
	// SkipInterval fires every tick when 0, else every SkipInterval-th.
	SkipInterval int
	Debug        bool
}

// ShouldFire reports whether tick is a send tick for skip interval k.
func ShouldFire(tick, k int) bool {
	if k <= 0 {
		return true
	}
	return tick%k == 0
}

type Sender struct {
	sink     Sink
	scene    scene.Scene
	gate     Gate
	settings SendSettings
	mu       syncutil.Mutex
}

func NewSender(sink Sink, sc scene.Scene, gate Gate) *Sender {
	return &Sender{
		sink:  sink,
		scene: sc,
		gate:  gate,
	}
}

func (s *Sender) SetSettings(settings SendSettings) {
	settings.Targets = slices.Clone(settings.Targets)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

func (s *Sender) Settings() SendSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.settings
	settings.Targets = slices.Clone(settings.Targets)
	return settings
}

// Compose reads the live transforms of every target and formats them
// into one line. Missing objects contribute 0.00 for every axis.
func (s *Sender) Compose() (string, error) {
	targets := s.Settings().Targets
	if len(targets) == 0 {
		return "", codec.ErrNothingToSend
	}

	desc := make(codec.SendDescriptor, len(targets))
	for i, t := range targets {
		item := codec.SendItem{Kind: t.Kind, Axes: t.Axes}
		if obj, ok := s.scene.Object(t.Object); ok {
			item.Value = scene.Transform(obj, t.Kind)
		} else {
			item.Missing = true
		}
		desc[i] = item
	}
	return codec.FormatOutgoing(desc), nil
}

// OnTick queues one line if tick is a send tick and the gate is open. It
// reports whether a line was queued.
func (s *Sender) OnTick(tick int) bool {
	settings := s.Settings()
	if !ShouldFire(tick, settings.SkipInterval) {
		return false
	}
	if s.gate != nil && !s.gate() {
		return false
	}

	line, err := s.Compose()
	if err != nil {
		if settings.Debug {
			log.Debug().Err(err).Int("tick", tick).Msg("nothing queued")
		}
		return false
	}

	s.sink.QueueSend(line)
	if settings.Debug {
		log.Debug().Int("tick", tick).Str("line", line).Msg("data queued to send")
	}
	return true
}

// RunTimer drives OnTick from a ticker, counting ticks from zero.
func (s *Sender) RunTimer(ctx context.Context, clock clockwork.Clock, interval time.Duration) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultSendInterval
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("send timer stopped: %w", ctx.Err())
		case <-ticker.Chan():
			s.OnTick(tick)
			tick++
		}
	}
}
