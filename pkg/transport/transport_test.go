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

package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/transport/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func newMockTransport(t *testing.T, port *testutils.MockPort) (*Transport, *serial.Mode) {
	t.Helper()

	var opened serial.Mode
	tr := New(WithPortFactory(func(_ string, mode *serial.Mode) (Port, error) {
		opened = *mode
		return port, nil
	}))
	require.NoError(t, tr.Configure("/dev/ttyUSB0", 115200))
	return tr, &opened
}

func TestValidBaudRate(t *testing.T) {
	t.Parallel()

	for _, b := range []int{9600, 14400, 19200, 38400, 57600, 115200} {
		assert.True(t, ValidBaudRate(b), "baud %d", b)
	}
	assert.False(t, ValidBaudRate(4800))
	assert.False(t, ValidBaudRate(0))
}

func TestConfigure_RejectsUnknownBaud(t *testing.T) {
	t.Parallel()

	tr := New()
	err := tr.Configure("/dev/ttyUSB0", 12345)
	require.ErrorIs(t, err, ErrInvalidBaudRate)
	assert.Empty(t, tr.Path())
}

func TestConnect_NoPort(t *testing.T) {
	t.Parallel()

	tr := New()
	require.ErrorIs(t, tr.Connect(), ErrNoPort)
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestConnect_OpensWithMode(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	tr, mode := newMockTransport(t, port)

	require.NoError(t, tr.Connect())
	assert.True(t, tr.IsOpen())
	assert.Equal(t, "Connected", tr.State().String())
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, DefaultReadTimeout, port.ReadTimeout)
}

func TestConnect_FactoryError(t *testing.T) {
	t.Parallel()

	tr := New(WithPortFactory(func(string, *serial.Mode) (Port, error) {
		return nil, errors.New("busy")
	}))
	require.NoError(t, tr.Configure("COM3", 9600))

	err := tr.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COM3")
	assert.False(t, tr.IsOpen())
}

func TestConnect_TimeoutErrorClosesPort(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	port.TimeoutErr = errors.New("unsupported")
	tr, _ := newMockTransport(t, port)

	require.Error(t, tr.Connect())
	assert.True(t, port.IsClosed())
	assert.False(t, tr.IsOpen())
}

func TestReadAndWriteLine(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	tr, _ := newMockTransport(t, port)
	require.NoError(t, tr.Connect())

	port.Feed("1,2,3;hi\n")
	buf := make([]byte, 64)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3;hi\n", string(buf[:n]))

	require.NoError(t, tr.WriteLine("1.00, 2.00, 3.00;"))
	assert.Equal(t, "1.00, 2.00, 3.00;\n", port.Written())
}

func TestRead_EmptyReturnsZero(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	tr, _ := newMockTransport(t, port)
	require.NoError(t, tr.Connect())

	start := time.Now()
	n, err := tr.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadWrite_NotConnected(t *testing.T) {
	t.Parallel()

	tr := New()
	_, err := tr.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, tr.WriteLine("x;"), ErrNotConnected)
}

func TestDisconnect_FlushesThenCloses(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	tr, _ := newMockTransport(t, port)
	require.NoError(t, tr.Connect())

	require.NoError(t, tr.Disconnect())
	assert.True(t, port.IsDrained())
	assert.True(t, port.IsClosed())
	assert.False(t, tr.IsOpen())

	// second disconnect is a no-op
	require.NoError(t, tr.Disconnect())
}

func TestDisconnect_CloseError(t *testing.T) {
	t.Parallel()

	port := testutils.NewMockPort()
	port.CloseError = errors.New("stuck")
	tr, _ := newMockTransport(t, port)
	require.NoError(t, tr.Connect())

	require.Error(t, tr.Disconnect())
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestConnect_ReplacesExistingHandle(t *testing.T) {
	t.Parallel()

	first := testutils.NewMockPort()
	second := testutils.NewMockPort()
	ports := []*testutils.MockPort{first, second}
	calls := 0

	tr := New(WithPortFactory(func(string, *serial.Mode) (Port, error) {
		p := ports[calls]
		calls++
		return p, nil
	}))
	require.NoError(t, tr.Configure("/dev/ttyACM0", 9600))

	require.NoError(t, tr.Connect())
	require.NoError(t, tr.Connect())

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
	assert.True(t, tr.IsOpen())
}

func TestIsDisconnectionError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err      error
		name     string
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "not connected", err: fmt.Errorf("wrap: %w", ErrNotConnected), expected: true},
		{name: "io error", err: errors.New("read /dev/ttyUSB0: input/output error"), expected: true},
		{name: "unplugged", err: errors.New("no such device"), expected: true},
		{name: "other", err: errors.New("permission denied"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsDisconnectionError(tt.err))
		})
	}
}
