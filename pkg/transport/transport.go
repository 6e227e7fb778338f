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

// Package transport owns the physical serial handle shared by the duplex
// worker and the controlling service.
package transport

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// DefaultReadTimeout bounds every read so a read on an idle link returns
// zero bytes instead of blocking.
const DefaultReadTimeout = 10 * time.Millisecond

// BaudRates are the supported line speeds.
var BaudRates = []int{9600, 14400, 19200, 38400, 57600, 115200}

var (
	ErrNotConnected    = errors.New("serial port not connected")
	ErrNoPort          = errors.New("no serial port selected")
	ErrInvalidBaudRate = errors.New("unsupported baud rate")
)

func ValidBaudRate(baud int) bool {
	return slices.Contains(BaudRates, baud)
}

// Port is the subset of serial.Port used here (for mocking in tests).
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Drain() error
	Close() error
	SetReadTimeout(t time.Duration) error
}

// PortFactory opens a serial port.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

// DefaultPortFactory opens real serial ports with go.bug.st/serial.
func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// State is the connection state of a Transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

type Transport struct {
	port        Port
	factory     PortFactory
	path        string
	baudRate    int
	readTimeout time.Duration
	state       atomic.Int32
	mu          syncutil.RWMutex // protects port, path, baudRate
}

type Option func(*Transport)

func WithPortFactory(f PortFactory) Option {
	return func(t *Transport) {
		t.factory = f
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.readTimeout = d
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{
		factory:     DefaultPortFactory,
		baudRate:    BaudRates[0],
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Configure sets the port and baud rate used by the next Connect.
func (t *Transport) Configure(path string, baudRate int) error {
	if !ValidBaudRate(baudRate) {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, baudRate)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
	t.baudRate = baudRate
	return nil
}

func (t *Transport) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

func (t *Transport) BaudRate() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baudRate
}

func (t *Transport) State() State {
	return State(t.state.Load())
}

func (t *Transport) IsOpen() bool {
	return t.State() == StateConnected
}

// Connect opens the configured port, closing any handle already held.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path == "" {
		return ErrNoPort
	}

	if t.port != nil {
		if err := t.port.Close(); err != nil {
			log.Warn().Err(err).Str("port", t.path).Msg("failed to close previous serial handle")
		}
		t.port = nil
		t.state.Store(int32(StateDisconnected))
	}

	port, err := t.factory(t.path, &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", t.path, err)
	}

	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	t.port = port
	t.state.Store(int32(StateConnected))
	log.Info().Str("port", t.path).Int("baud", t.baudRate).Msg("serial port connected")
	return nil
}

// Disconnect flushes pending output, closes and clears the handle. The
// duplex worker must already be stopped.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Store(int32(StateDisconnected))
	if t.port == nil {
		return nil
	}

	port := t.port
	t.port = nil

	if err := port.Drain(); err != nil {
		log.Debug().Err(err).Str("port", t.path).Msg("failed to flush serial port")
	}
	if err := port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.path, err)
	}

	log.Info().Str("port", t.path).Msg("serial port disconnected")
	return nil
}

func (t *Transport) current() (Port, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.port == nil || !t.IsOpen() {
		return nil, ErrNotConnected
	}
	return t.port, nil
}

// Read returns whatever bytes arrive within the read timeout. Zero bytes
// with a nil error means nothing was available.
func (t *Transport) Read(p []byte) (int, error) {
	port, err := t.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(p)
	if err != nil {
		return n, fmt.Errorf("failed to read from serial port: %w", err)
	}
	return n, nil
}

// WriteLine writes line followed by a newline terminator.
func (t *Transport) WriteLine(line string) error {
	port, err := t.current()
	if err != nil {
		return err
	}
	if _, err := port.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	return nil
}

// IsDisconnectionError reports whether err means the device went away
// rather than a configuration or permission problem.
func IsDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotConnected) {
		return true
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "port closed")
}

// ListPorts returns the USB serial devices present on the system, sorted.
// With all set, every port the OS reports is returned.
func ListPorts(all bool) ([]string, error) {
	ports, err := helpers.GetSerialDeviceList(nil, all)
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
