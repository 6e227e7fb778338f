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

// Package worker runs the duplex serial loop: it reads incoming lines into
// the receive queue and writes queued outgoing lines, in the direction(s)
// selected by the current mode.
package worker

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/codec"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/queue"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSendIdle is how long a sending cycle sleeps when there is
	// nothing queued.
	DefaultSendIdle = 10 * time.Millisecond
	readBufferSize  = 1024
	maxLineLength   = 8192
)

var (
	ErrAlreadyRunning  = errors.New("serial worker already running")
	ErrTransportClosed = errors.New("serial transport closed")
)

// Transport is what the worker needs from the serial link. Read must
// return (0, nil) when no bytes arrived within its timeout.
type Transport interface {
	IsOpen() bool
	Read(p []byte) (int, error)
	WriteLine(line string) error
}

// ExitHandler is called from the worker goroutine after the loop ends.
// err is nil for an explicit Stop.
type ExitHandler func(err error)

type Worker struct {
	transport Transport
	observer  Observer
	received  *queue.Queue[models.Record]
	outgoing  *queue.Queue[string]
	onExit    ExitHandler
	done      chan struct{}
	sendIdle  time.Duration
	mode      atomic.Int32
	running   atomic.Bool
	mu        syncutil.Mutex // protects done, onExit
}

type Option func(*Worker)

func WithObserver(o Observer) Option {
	return func(w *Worker) {
		w.observer = o
	}
}

func WithExitHandler(h ExitHandler) Option {
	return func(w *Worker) {
		w.onExit = h
	}
}

func WithSendIdle(d time.Duration) Option {
	return func(w *Worker) {
		w.sendIdle = d
	}
}

// New creates an idle worker in send mode.
func New(t Transport, opts ...Option) *Worker {
	w := &Worker{
		transport: t,
		observer:  NopObserver{},
		received:  queue.New[models.Record](),
		outgoing:  queue.New[string](),
		sendIdle:  DefaultSendIdle,
	}
	w.mode.Store(int32(models.ModeSend))
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetMode changes the serviced direction(s). A running loop picks the new
// mode up on its next cycle.
func (w *Worker) SetMode(m models.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", models.ErrInvalidMode, m)
	}
	if old := models.Mode(w.mode.Swap(int32(m))); old != m {
		log.Debug().Str("mode", m.String()).Msg("serial worker mode set")
	}
	return nil
}

func (w *Worker) Mode() models.Mode {
	return models.Mode(w.mode.Load())
}

func (w *Worker) Running() bool {
	return w.running.Load()
}

// Received is the queue of parsed records, drained by the bridge.
func (w *Worker) Received() *queue.Queue[models.Record] {
	return w.received
}

// QueueSend queues a formatted line for the next sending cycle.
func (w *Worker) QueueSend(line string) {
	w.outgoing.Push(line)
}

// PendingSends returns the number of lines waiting to be written.
func (w *Worker) PendingSends() int {
	return w.outgoing.Len()
}

// SetExitHandler replaces the handler used for the next run.
func (w *Worker) SetExitHandler(h ExitHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onExit = h
}

// Done is closed when the current run ends. It is nil before the first
// Start.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Start launches the loop. Only one loop may run per worker.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		select {
		case <-w.done:
		default:
			return ErrAlreadyRunning
		}
	}

	if !w.transport.IsOpen() {
		return ErrTransportClosed
	}

	done := make(chan struct{})
	w.done = done
	w.running.Store(true)
	go w.run(done, w.onExit)

	log.Debug().Str("mode", w.Mode().String()).Msg("serial worker started")
	return nil
}

// Stop asks the loop to exit at the next cycle boundary and waits for it.
// It is safe to call from the exit handler and when the worker is idle.
func (w *Worker) Stop() {
	w.running.Store(false)
	if done := w.Done(); done != nil {
		<-done
	}
}

func (w *Worker) run(done chan struct{}, onExit ExitHandler) {
	var exitErr error
	defer func() {
		w.running.Store(false)
		close(done)
		if exitErr != nil {
			log.Error().Err(exitErr).Msg("serial worker stopped")
		} else {
			log.Debug().Msg("serial worker stopped")
		}
		if onExit != nil {
			onExit(exitErr)
		}
	}()

	lr := &lineReader{buf: make([]byte, readBufferSize)}
	for w.running.Load() {
		if !w.transport.IsOpen() {
			exitErr = ErrTransportClosed
			return
		}
		if err := w.cycle(lr); err != nil {
			exitErr = err
			return
		}
	}
}

func (w *Worker) cycle(lr *lineReader) error {
	mode := w.Mode()

	if mode.Receives() {
		if err := w.receive(lr); err != nil {
			return err
		}
	}

	if mode.Sends() {
		idle, err := w.send()
		if err != nil {
			return err
		}
		// receive-only mode never sleeps; the read timeout paces it
		if idle {
			time.Sleep(w.sendIdle)
		}
	}

	return nil
}

func (w *Worker) receive(lr *lineReader) error {
	n, err := w.transport.Read(lr.buf)
	if n > 0 {
		lr.feed(lr.buf[:n], w.handleLine, w.dropOverflow)
	}
	if err != nil {
		return fmt.Errorf("serial read failed: %w", err)
	}
	return nil
}

func (w *Worker) dropOverflow(partial []byte) {
	w.observer.Dropped(DirectionReceive, string(partial), codec.ErrLineTooLong)
}

func (w *Worker) handleLine(raw []byte) {
	if !utf8.Valid(raw) {
		w.observer.Dropped(DirectionReceive, string(raw), codec.ErrInvalidEncoding)
		return
	}

	line := strings.TrimRightFunc(string(raw), unicode.IsSpace)
	if line == "" {
		return
	}

	if err := codec.CheckReceive(line); err != nil {
		w.observer.Dropped(DirectionReceive, line, err)
		return
	}

	rec := codec.ParseReceive(line)
	w.received.Push(rec)
	w.observer.Received(line, rec)
}

// send writes every line queued when the cycle started. idle is true when
// nothing was queued.
func (w *Worker) send() (idle bool, err error) {
	pending := w.outgoing.Len()
	if pending == 0 {
		return true, nil
	}

	for range pending {
		line, ok := w.outgoing.Pop()
		if !ok {
			break
		}

		if reason := codec.CheckSend(line); reason != nil {
			w.observer.Dropped(DirectionSend, line, reason)
			continue
		}

		if err := w.transport.WriteLine(line); err != nil {
			return false, fmt.Errorf("serial write failed: %w", err)
		}
		w.observer.Sent(line)
	}
	return false, nil
}

// lineReader assembles newline-terminated lines across reads. Lines longer
// than maxLineLength are discarded up to the next terminator.
type lineReader struct {
	buf        []byte
	line       []byte
	overflowed bool
}

func (lr *lineReader) feed(data []byte, onLine func([]byte), onOverflow func([]byte)) {
	for _, b := range data {
		if b == codec.LineTerminator {
			if lr.overflowed {
				lr.overflowed = false
				lr.line = lr.line[:0]
				continue
			}
			onLine(lr.line)
			lr.line = lr.line[:0]
			continue
		}

		if lr.overflowed {
			continue
		}

		if len(lr.line) >= maxLineLength {
			onOverflow(lr.line)
			lr.line = lr.line[:0]
			lr.overflowed = true
			continue
		}

		lr.line = append(lr.line, b)
	}
}
