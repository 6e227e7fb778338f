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

// Package service owns one serial link end to end: the transport, the
// duplex worker, the bridge stages that move records between the queues
// and the scene, and the optional MQTT publisher.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/bridge"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/codec"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/config"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/publishers"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/scene"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/transport"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/worker"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownObject = errors.New("object not found in scene")

// StatusListener is called whenever the connection status changes.
type StatusListener func(state transport.State)

type Service struct {
	cfg           *config.Instance
	scene         scene.Scene
	transport     *transport.Transport
	worker        *worker.Worker
	receiver      *bridge.Receiver
	sender        *bridge.Sender
	stats         *worker.Stats
	publisher     *publishers.MQTTPublisher
	clock         clockwork.Clock
	timerRestart  chan struct{}
	session       string
	sendMethod    string
	listeners     []StatusListener
	pubOpts       []publishers.Option
	transportOpts []transport.Option
	timerInterval time.Duration
	lastStatus    transport.State
	watchConfig   bool
	moving        atomic.Bool
	mu            syncutil.Mutex // protects publisher, listeners, lastStatus, send timer settings
	connMu        syncutil.Mutex // serialises connect, disconnect and worker exit handling
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(s *Service) {
		s.transportOpts = append(s.transportOpts, opts...)
	}
}

func WithPublisherOptions(opts ...publishers.Option) Option {
	return func(s *Service) {
		s.pubOpts = append(s.pubOpts, opts...)
	}
}

// WithConfigWatch makes Run reload the config file when it changes on
// disk.
func WithConfigWatch() Option {
	return func(s *Service) {
		s.watchConfig = true
	}
}

// New builds a disconnected service with movement paused.
func New(cfg *config.Instance, sc scene.Scene, opts ...Option) *Service {
	s := &Service{
		cfg:          cfg,
		scene:        sc,
		clock:        clockwork.NewRealClock(),
		stats:        &worker.Stats{},
		session:      uuid.New().String(),
		timerRestart: make(chan struct{}, 1),
		lastStatus:   transport.StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}

	debug := cfg.Debug()
	logObserver := worker.NewLogObserver(worker.LogOptions{
		RawData:    debug.RawData,
		Validation: debug.Validation,
		Worker:     debug.Worker,
	})

	s.transport = transport.New(s.transportOpts...)
	s.worker = worker.New(s.transport,
		worker.WithObserver(worker.Observers{s.stats, logObserver}),
		worker.WithExitHandler(s.onWorkerExit),
	)
	s.receiver = bridge.NewReceiver(s.worker.Received(), sc, s.canReceive)
	s.receiver.Subscribe(s.forward)
	s.sender = bridge.NewSender(s.worker, sc, s.canSend)

	s.ApplyConfig(cfg.Values())
	select {
	case <-s.timerRestart:
	default:
	}

	log.Debug().Str("session", s.session).Msg("service created")
	return s
}

// ApplyConfig pushes config values into the running stages. Port and baud
// rate changes take effect on the next Connect.
//
//nolint:gocritic // config struct copied for immutability
func (s *Service) ApplyConfig(v config.Values) {
	s.receiver.SetSettings(receiveSettings(v))
	s.sender.SetSettings(sendSettings(v))

	if mode, err := models.ParseMode(v.Serial.Mode); err == nil {
		if err := s.worker.SetMode(mode); err != nil {
			log.Warn().Err(err).Msg("failed to apply serial mode")
		}
	}

	interval := config.SecondsToDuration(v.Send.TimerInterval)
	s.mu.Lock()
	changed := s.sendMethod != v.Send.Method || s.timerInterval != interval
	s.sendMethod = v.Send.Method
	s.timerInterval = interval
	s.mu.Unlock()

	if changed {
		select {
		case s.timerRestart <- struct{}{}:
		default:
		}
	}
}

func (s *Service) timerSettings() (method string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendMethod, s.timerInterval
}

// Connect opens the configured port and starts the duplex worker. A
// worker already running is stopped first.
func (s *Service) Connect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	port := s.cfg.SerialPort()
	if err := s.transport.Configure(port, s.cfg.BaudRate()); err != nil {
		return fmt.Errorf("failed to configure serial port: %w", err)
	}

	s.worker.Stop()
	if err := s.transport.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := s.worker.SetMode(s.cfg.Mode()); err != nil {
		_ = s.transport.Disconnect()
		return fmt.Errorf("failed to set serial mode: %w", err)
	}

	if err := s.worker.Start(); err != nil {
		_ = s.transport.Disconnect()
		return fmt.Errorf("failed to start serial worker: %w", err)
	}

	if s.cfg.Debug().Connection {
		log.Debug().Str("port", port).Int("baud", s.cfg.BaudRate()).Msg("connected")
	}
	s.notify(transport.StateConnected)
	return nil
}

// Disconnect stops the worker, then flushes and closes the port. Records
// still queued are discarded and the dedupe state is reset.
func (s *Service) Disconnect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.worker.Stop()
	err := s.transport.Disconnect()
	s.worker.Received().Clear()
	s.receiver.Reset()
	s.notify(transport.StateDisconnected)

	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	if s.cfg.Debug().Connection {
		log.Debug().Msg("disconnected")
	}
	return nil
}

// onWorkerExit runs on the worker goroutine after the loop ends. A
// transport failure moves the service to disconnected; there is no retry.
func (s *Service) onWorkerExit(err error) {
	if err == nil {
		return
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.worker.Running() {
		return
	}

	log.Error().Err(err).
		Bool("device_lost", transport.IsDisconnectionError(err)).
		Msg("serial connection lost")

	if dErr := s.transport.Disconnect(); dErr != nil {
		log.Debug().Err(dErr).Msg("failed to close serial port after error")
	}
	s.worker.Received().Clear()
	s.receiver.Reset()
	s.notify(transport.StateDisconnected)
}

// OnStatusChange registers fn for connection status changes.
func (s *Service) OnStatusChange(fn StatusListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(state transport.State) {
	s.mu.Lock()
	if s.lastStatus == state {
		s.mu.Unlock()
		return
	}
	s.lastStatus = state
	listeners := append([]StatusListener(nil), s.listeners...)
	s.mu.Unlock()

	log.Info().Str("status", state.String()).Msg("connection status changed")
	for _, fn := range listeners {
		fn(state)
	}
}

func (s *Service) Status() transport.State {
	return s.transport.State()
}

// StatusText is the status shown to users: "Connected" or "Disconnected".
func (s *Service) StatusText() string {
	return s.Status().String()
}

// SetMode changes the serviced direction(s) of the running worker and the
// in-memory config. The config file is not rewritten.
func (s *Service) SetMode(m models.Mode) error {
	if err := s.worker.SetMode(m); err != nil {
		return err
	}
	if err := s.cfg.SetMode(m); err != nil {
		return fmt.Errorf("failed to store serial mode: %w", err)
	}
	if s.cfg.Debug().Mode {
		log.Debug().Str("mode", m.String()).Msg("mode changed")
	}
	return nil
}

func (s *Service) Mode() models.Mode {
	return s.worker.Mode()
}

// StartMovement resumes receive delivery and send queueing.
func (s *Service) StartMovement() {
	if !s.moving.Swap(true) {
		log.Info().Msg("movement started")
	}
}

// StopMovement pauses receive delivery and send queueing. Records that
// arrive while paused are discarded.
func (s *Service) StopMovement() {
	if s.moving.Swap(false) {
		log.Info().Msg("movement stopped")
	}
}

func (s *Service) Moving() bool {
	return s.moving.Load()
}

func (s *Service) canReceive() bool {
	return s.moving.Load() && s.transport.IsOpen()
}

func (s *Service) canSend() bool {
	return s.moving.Load() && s.transport.IsOpen() && s.worker.Mode().Sends()
}

// OnFrame is the host frame-change hook. It only sends with the keyframe
// send method and reports whether a line was queued.
func (s *Service) OnFrame(frame int) bool {
	if method, _ := s.timerSettings(); method != config.SendMethodKeyframe {
		return false
	}
	return s.sender.OnTick(frame)
}

// QueueLine queues a preformatted line for sending. Malformed lines are
// rejected here instead of being dropped by the worker.
func (s *Service) QueueLine(line string) error {
	if err := codec.CheckSend(line); err != nil {
		return fmt.Errorf("invalid send line: %w", err)
	}
	s.worker.QueueSend(line)
	return nil
}

// ResetObject sets location and rotation to zero and scale to one.
func (s *Service) ResetObject(name string) error {
	obj, ok := s.scene.Object(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, name)
	}
	scene.Reset(obj)
	log.Info().Str("object", name).Msg("object transforms reset")
	return nil
}

// OnRecord registers fn for every record delivered to the scene.
func (s *Service) OnRecord(fn func(models.Record)) {
	s.receiver.Subscribe(fn)
}

// PendingSends returns the number of lines waiting to be written.
func (s *Service) PendingSends() int {
	return s.worker.PendingSends()
}

func (s *Service) Stats() worker.Snapshot {
	return s.stats.Snapshot()
}

// Session is the random ID of this service run, used to tag published
// records.
func (s *Service) Session() string {
	return s.session
}

// Run drives the receive scheduler, the send timer, the MQTT publisher
// and optionally the config watcher until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.receiver.Run(gctx, s.clock)
	})
	g.Go(func() error {
		return s.runSendTimer(gctx)
	})
	g.Go(func() error {
		s.startPublisher(gctx)
		return nil
	})
	if s.watchConfig {
		g.Go(func() error {
			if err := s.cfg.Watch(gctx, s.ApplyConfig); err != nil {
				log.Warn().Err(err).Msg("config watcher stopped")
			}
			return nil
		})
	}

	err := g.Wait()
	s.stopPublisher()
	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}
	return nil
}

// runSendTimer runs the timer driven sender while the timer send method is
// selected, restarting it when the method or interval changes.
func (s *Service) runSendTimer(ctx context.Context) error {
	for {
		method, interval := s.timerSettings()
		timerCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		if method == config.SendMethodTimer {
			go func() {
				done <- s.sender.RunTimer(timerCtx, s.clock, interval)
			}()
		} else {
			close(done)
		}

		select {
		case <-ctx.Done():
		case <-s.timerRestart:
		}
		cancel()

		if err := <-done; err != nil && ctx.Err() == nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Service) startPublisher(ctx context.Context) {
	m := s.cfg.MQTT()
	if !m.Enabled || m.Broker == "" {
		return
	}

	opts := append([]publishers.Option{publishers.WithCredentials(m.Username, m.Password)}, s.pubOpts...)
	p := publishers.NewMQTTPublisher(m.Broker, m.Topic, s.session, opts...)
	if err := p.Start(); err != nil {
		log.Warn().Err(err).Msg("continuing without mqtt publisher")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		p.Stop()
		return
	}
	s.publisher = p
}

func (s *Service) stopPublisher() {
	s.mu.Lock()
	p := s.publisher
	s.publisher = nil
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

func (s *Service) forward(rec models.Record) {
	s.mu.Lock()
	p := s.publisher
	s.mu.Unlock()

	if p != nil {
		p.Publish(rec)
	}
}
