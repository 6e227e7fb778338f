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

package worker

import (
	"sync/atomic"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Direction tells an observer which half of the cycle an event came from.
type Direction int

const (
	DirectionReceive Direction = iota
	DirectionSend
)

func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}
	return "receive"
}

// Observer is notified of every line the worker handles. Drops carry the
// codec reason so callers can count or log them. Methods are called from
// the worker goroutine and must not block.
type Observer interface {
	Received(line string, rec models.Record)
	Sent(line string)
	Dropped(dir Direction, line string, reason error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Received(string, models.Record)   {}
func (NopObserver) Sent(string)                      {}
func (NopObserver) Dropped(Direction, string, error) {}

// Stats counts worker events. Safe for concurrent use.
type Stats struct {
	received        atomic.Int64
	sent            atomic.Int64
	droppedReceived atomic.Int64
	droppedSent     atomic.Int64
}

func (s *Stats) Received(string, models.Record) {
	s.received.Add(1)
}

func (s *Stats) Sent(string) {
	s.sent.Add(1)
}

func (s *Stats) Dropped(dir Direction, _ string, _ error) {
	if dir == DirectionSend {
		s.droppedSent.Add(1)
		return
	}
	s.droppedReceived.Add(1)
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Received        int64 `json:"received"`
	Sent            int64 `json:"sent"`
	DroppedReceived int64 `json:"droppedReceived"`
	DroppedSent     int64 `json:"droppedSent"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Received:        s.received.Load(),
		Sent:            s.sent.Load(),
		DroppedReceived: s.droppedReceived.Load(),
		DroppedSent:     s.droppedSent.Load(),
	}
}

// LogOptions selects which worker events are logged at debug level.
type LogOptions struct {
	RawData    bool
	Validation bool
	Worker     bool
}

// LogObserver writes worker events to the debug log. Drop messages are
// rate limited so a noisy link cannot flood the log file.
type LogObserver struct {
	limiter    *rate.Limiter
	opts       LogOptions
	suppressed atomic.Int64
}

const (
	dropLogsPerSecond = 5
	dropLogBurst      = 20
)

func NewLogObserver(opts LogOptions) *LogObserver {
	return &LogObserver{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Second/dropLogsPerSecond), dropLogBurst),
	}
}

func (o *LogObserver) Received(line string, rec models.Record) {
	if o.opts.RawData {
		log.Debug().Str("line", line).Msg("serial data received")
	}
	if o.opts.Worker {
		log.Debug().
			Floats64("values", rec.Values).
			Str("text", rec.Text).
			Msg("queued received record")
	}
}

func (o *LogObserver) Sent(line string) {
	if o.opts.Worker {
		log.Debug().Str("line", line).Msg("sent serial data")
	}
}

func (o *LogObserver) Dropped(dir Direction, line string, reason error) {
	if !o.opts.Validation {
		return
	}
	if !o.limiter.Allow() {
		o.suppressed.Add(1)
		return
	}
	ev := log.Debug().
		Err(reason).
		Str("direction", dir.String()).
		Str("line", line)
	if n := o.suppressed.Swap(0); n > 0 {
		ev = ev.Int64("suppressed", n)
	}
	ev.Msg("dropped malformed line")
}

// Observers fans events out to several observers.
type Observers []Observer

func (obs Observers) Received(line string, rec models.Record) {
	for _, o := range obs {
		o.Received(line, rec)
	}
}

func (obs Observers) Sent(line string) {
	for _, o := range obs {
		o.Sent(line)
	}
}

func (obs Observers) Dropped(dir Direction, line string, reason error) {
	for _, o := range obs {
		o.Dropped(dir, line, reason)
	}
}
