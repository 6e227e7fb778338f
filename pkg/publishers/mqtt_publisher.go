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

// Package publishers forwards delivered records to external brokers.
package publishers

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	recordBufferSize  = 64
	disconnectQuiesce = 250
	connectTimeout    = 10 * time.Second
)

// RecordEvent is the JSON payload published for every delivered record.
type RecordEvent struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Text    string    `json:"text"`
	Values  []float64 `json:"values"`
}

// ClientFactory builds the MQTT client. Tests replace it with a mock.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

type Option func(*MQTTPublisher)

func WithClientFactory(f ClientFactory) Option {
	return func(p *MQTTPublisher) {
		p.newClient = f
	}
}

func WithCredentials(username, password string) Option {
	return func(p *MQTTPublisher) {
		p.username = username
		p.password = password
	}
}

// MQTTPublisher publishes delivered records to an MQTT broker.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient ClientFactory
	records   chan models.Record
	stopCh    chan struct{}
	done      chan struct{}
	now       func() time.Time
	broker    string
	topic     string
	session   string
	username  string
	password  string
	dropped   atomic.Int64
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewMQTTPublisher creates a publisher for broker (host:port or a full
// tcp://, ssl:// or ws:// URL). session tags every event.
func NewMQTTPublisher(broker, topic, session string, opts ...Option) *MQTTPublisher {
	p := &MQTTPublisher{
		broker:    normalizeBroker(broker),
		topic:     topic,
		session:   session,
		newClient: mqtt.NewClient,
		records:   make(chan models.Record, recordBufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeBroker(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Start connects to the broker and begins publishing.
func (p *MQTTPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID("blendix-publisher-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	if p.username != "" {
		opts.SetUsername(p.username)
		opts.SetPassword(p.password)
	}

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().Msgf("mqtt publisher: connected to %s (topic: %s)", p.broker, p.topic)

	p.started.Store(true)
	go p.publishRecords()
	return nil
}

// Publish queues rec for publishing. It never blocks: when the buffer is
// full the record is dropped and counted.
func (p *MQTTPublisher) Publish(rec models.Record) {
	select {
	case <-p.stopCh:
		return
	default:
	}

	select {
	case p.records <- rec:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn().Int64("dropped", n).Msg("mqtt publisher: buffer full, dropping records")
		}
	}
}

// Dropped returns how many records were discarded because the buffer was
// full.
func (p *MQTTPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Stop stops publishing and disconnects from the broker. Safe to call more
// than once.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.started.Load() {
			<-p.done
		}
		if p.client != nil && p.client.IsConnected() {
			log.Debug().Msg("mqtt publisher: disconnecting")
			p.client.Disconnect(disconnectQuiesce)
		}
	})
}

func (p *MQTTPublisher) publishRecords() {
	defer close(p.done)
	log.Debug().Msg("mqtt publisher: starting record publisher goroutine")

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("mqtt publisher: stopping record publisher")
			return
		case rec := <-p.records:
			p.publish(rec)
		}
	}
}

func (p *MQTTPublisher) publish(rec models.Record) {
	payload, err := json.Marshal(RecordEvent{
		Time:    p.now().UTC(),
		Session: p.session,
		Values:  rec.Values,
		Text:    rec.Text,
	})
	if err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to marshal record")
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Msg("mqtt publisher: failed to publish record")
		return
	}

	log.Debug().Msgf("mqtt publisher: published record to %s", p.topic)
}
