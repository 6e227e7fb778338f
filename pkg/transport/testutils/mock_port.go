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

// Package testutils provides a scripted serial port for transport and
// worker tests.
package testutils

import (
	"bytes"
	"errors"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
)

var ErrPortClosed = errors.New("port closed")

// MockPort is an in-memory serial port. Incoming data is fed with Feed and
// everything written is captured for Written.
type MockPort struct {
	ReadError   error
	WriteError  error
	DrainError  error
	CloseError  error
	TimeoutErr  error
	ReadTimeout time.Duration
	incoming    bytes.Buffer
	written     bytes.Buffer
	Closed      bool
	Drained     bool
	mu          syncutil.Mutex
}

func NewMockPort() *MockPort {
	return &MockPort{}
}

// Feed queues bytes to be returned by later reads.
func (m *MockPort) Feed(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incoming.WriteString(data)
}

// SetReadError makes the next read fail with err.
func (m *MockPort) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadError = err
}

func (m *MockPort) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteError = err
}

// Read returns queued bytes, or sleeps for the read timeout and returns
// nothing when the buffer is empty.
func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.Closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.mu.Unlock()
		return 0, err
	}
	if m.incoming.Len() > 0 {
		n, _ := m.incoming.Read(p)
		m.mu.Unlock()
		return n, nil
	}
	timeout := m.ReadTimeout
	m.mu.Unlock()

	if timeout <= 0 {
		timeout = time.Millisecond
	}
	time.Sleep(timeout)
	return 0, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, ErrPortClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	return m.written.Write(p)
}

// Written returns everything written so far.
func (m *MockPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Drained = true
	return m.DrainError
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadTimeout = t
	return m.TimeoutErr
}

func (m *MockPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

func (m *MockPort) IsDrained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Drained
}
