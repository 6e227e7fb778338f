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

// Package bridge moves data between the worker queues and the scene. The
// Receiver applies the newest received record on a timer; the Sender
// turns live transforms into outgoing lines on frame or timer ticks.
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

const (
	MinDelay     = time.Millisecond
	MaxDelay     = 2 * time.Second
	DefaultDelay = time.Second
)

// Gate reports whether delivery is currently allowed.
type Gate func() bool

// Source is drained by the Receiver. *queue.Queue[models.Record] satisfies
// it.
type Source interface {
	DrainLatest() (models.Record, int)
}

// ReceiveTarget binds object index i to values[3i..3i+2].
type ReceiveTarget struct {
	// Object is the scene object driven by this slot. Empty skips it.
	Object string
	Kind models.TransformKind
	Axes models.AxisMask
	// AxisText optionally names a text target showing this slot's values.
	AxisText string
	Show     models.AxisMask
}

type ReceiveSettings struct {
	Targets []ReceiveTarget
	// ReceivedText names the text target showing the text segment.
	ReceivedText    string
	Delay           time.Duration
	AxisTextNewline bool
	Debug           bool
}

// ClampDelay bounds a tick delay to [MinDelay, MaxDelay].
func ClampDelay(d time.Duration) time.Duration {
	return min(max(d, MinDelay), MaxDelay)
}

type Receiver struct {
	source      Source
	scene       scene.Scene
	gate        Gate
	last        models.Record
	settings    ReceiveSettings
	subscribers []func(models.Record)
	mu          syncutil.Mutex
	hasLast     bool
}

func NewReceiver(src Source, sc scene.Scene, gate Gate) *Receiver {
	return &Receiver{
		source:   src,
		scene:    sc,
		gate:     gate,
		settings: ReceiveSettings{Delay: DefaultDelay},
	}
}

func (r *Receiver) SetSettings(s ReceiveSettings) {
	s.Targets = slices.Clone(s.Targets)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

func (r *Receiver) Settings() ReceiveSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.settings
	s.Targets = slices.Clone(s.Targets)
	return s
}

// Subscribe registers fn to be called with every delivered record, after
// the scene has been updated.
func (r *Receiver) Subscribe(fn func(models.Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Reset forgets the last delivered record so the next one is always
// applied.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = models.Record{}
	r.hasLast = false
}

// Tick drains the source, keeps only the newest record and applies it
// unless it equals the previously delivered one. While the gate is closed
// queued records are discarded. It returns the delay until the next tick.
func (r *Receiver) Tick() time.Duration {
	r.mu.Lock()
	settings := r.settings
	r.mu.Unlock()
	delay := ClampDelay(settings.Delay)

	if r.gate != nil && !r.gate() {
		if _, n := r.source.DrainLatest(); n > 0 && settings.Debug {
			log.Debug().Int("discarded", n).Msg("delivery paused, discarding received records")
		}
		return delay
	}

	latest, n := r.source.DrainLatest()
	if n == 0 {
		return delay
	}

	r.mu.Lock()
	if r.hasLast && latest.Equal(r.last) {
		r.mu.Unlock()
		if settings.Debug {
			log.Debug().Msg("duplicate record, not applied")
		}
		return delay
	}
	r.last = latest
	r.hasLast = true
	subs := slices.Clone(r.subscribers)
	r.mu.Unlock()

	if settings.Debug {
		log.Debug().
			Int("drained", n).
			Floats64("values", latest.Values).
			Str("text", latest.Text).
			Msg("applying received record")
	}

	r.apply(latest, settings)
	for _, fn := range subs {
		fn(latest)
	}
	return delay
}

func (r *Receiver) apply(rec models.Record, settings ReceiveSettings) {
	if len(rec.Values) > 0 {
		r.applyValues(rec.Values, settings.Targets)
	}
	if rec.Text != "" {
		r.applyText(rec, settings)
	}
}

// applyValues updates each bound object whose full triple is present.
func (r *Receiver) applyValues(values []float64, targets []ReceiveTarget) {
	for i, t := range targets {
		base := i * len(models.Axes)
		if base+2 >= len(values) {
			continue
		}
		obj, ok := r.scene.Object(t.Object)
		if !ok {
			continue
		}
		for j, axis := range models.Axes {
			if !t.Axes.Has(axis) {
				continue
			}
			v := values[base+j]
			if t.Kind == models.KindRotation {
				v = codec.DegreesToRadians(v)
			}
			obj.SetAxis(t.Kind, axis, v)
		}
	}
}

func (r *Receiver) applyText(rec models.Record, settings ReceiveSettings) {
	for i, t := range settings.Targets {
		if t.AxisText == "" {
			continue
		}
		target, ok := r.scene.TextTarget(t.AxisText)
		if !ok {
			continue
		}
		target.SetText(codec.BuildAxisText(rec.Values, i, t.Show, settings.AxisTextNewline))
	}

	if settings.ReceivedText == "" {
		return
	}
	if target, ok := r.scene.TextTarget(settings.ReceivedText); ok {
		target.SetText(rec.Text)
	}
}

// Run calls Tick until ctx is done, waiting the returned delay between
// ticks.
func (r *Receiver) Run(ctx context.Context, clock clockwork.Clock) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	for {
		timer := clock.NewTimer(r.Tick())
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("receive scheduler stopped: %w", ctx.Err())
		case <-timer.Chan():
		}
	}
}
