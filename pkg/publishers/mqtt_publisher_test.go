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

package publishers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBroker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		broker string
		want   string
	}{
		{name: "host and port", broker: "localhost:1883", want: "tcp://localhost:1883"},
		{name: "tcp url", broker: "tcp://broker:1883", want: "tcp://broker:1883"},
		{name: "tls url", broker: "ssl://broker:8883", want: "ssl://broker:8883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalizeBroker(tt.broker))
		})
	}
}

func TestStart_ConfiguresClient(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := NewMQTTPublisher("localhost:1883", "blendix/records", "session-1",
		WithClientFactory(client.factory()),
		WithCredentials("user", "secret"),
	)

	require.NoError(t, p.Start())
	defer p.Stop()

	require.NotNil(t, client.opts)
	require.Len(t, client.opts.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", client.opts.Servers[0].String())
	assert.True(t, strings.HasPrefix(client.opts.ClientID, "blendix-publisher-"))
	assert.Equal(t, "user", client.opts.Username)
	assert.True(t, client.IsConnected())
}

func TestStart_ConnectError(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.connectError = errors.New("refused")
	p := NewMQTTPublisher("localhost:1883", "t", "s", WithClientFactory(client.factory()))

	err := p.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to MQTT broker")

	// Stop must not block when the publisher never started
	p.Stop()
}

func TestPublish_SendsRecordEvent(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := NewMQTTPublisher("localhost:1883", "blendix/records", "abc", WithClientFactory(client.factory()))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Start())
	p.Publish(models.Record{Values: []float64{1, 2.5, 3}, Text: "hello"})

	require.Eventually(t, func() bool {
		return len(client.published()) == 1
	}, time.Second, time.Millisecond)
	p.Stop()

	msg := client.published()[0]
	assert.Equal(t, "blendix/records", msg.topic)
	assert.Equal(t, byte(0), msg.qos)
	assert.False(t, msg.retained)

	payload, ok := msg.payload.([]byte)
	require.True(t, ok)
	var ev RecordEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.True(t, fixed.Equal(ev.Time))
	assert.Equal(t, "abc", ev.Session)
	assert.Equal(t, []float64{1, 2.5, 3}, ev.Values)
	assert.Equal(t, "hello", ev.Text)
	assert.Equal(t, 1, client.disconnects())
}

func TestPublish_PublishErrorContinues(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.publishError = errors.New("not connected")
	p := NewMQTTPublisher("localhost:1883", "t", "s", WithClientFactory(client.factory()))
	require.NoError(t, p.Start())

	p.Publish(models.Record{Text: "a"})
	p.Publish(models.Record{Text: "b"})
	p.Stop()

	assert.Empty(t, client.published())
}

func TestPublish_FullBufferDrops(t *testing.T) {
	t.Parallel()

	// not started, so nothing drains the buffer
	p := NewMQTTPublisher("localhost:1883", "t", "s")
	for range recordBufferSize + 5 {
		p.Publish(models.Record{Text: "x"})
	}
	assert.Equal(t, int64(5), p.Dropped())
}

func TestPublish_AfterStopIgnored(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := NewMQTTPublisher("localhost:1883", "t", "s", WithClientFactory(client.factory()))
	require.NoError(t, p.Start())
	p.Stop()
	p.Stop()

	p.Publish(models.Record{Text: "late"})
	assert.Empty(t, client.published())
	assert.Zero(t, p.Dropped())
}
