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

package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned when a mode value is not send, receive or both.
var ErrInvalidMode = errors.New("invalid mode, choose send, receive or both")

// Mode selects which directions the duplex worker services.
type Mode int32

const (
	ModeSend Mode = iota + 1
	ModeReceive
	ModeBoth
)

const (
	ModeNameSend    = "send"
	ModeNameReceive = "receive"
	ModeNameBoth    = "both"
)

func (m Mode) Valid() bool {
	return m == ModeSend || m == ModeReceive || m == ModeBoth
}

// Receives reports whether the receive half of the cycle is active.
func (m Mode) Receives() bool {
	return m == ModeReceive || m == ModeBoth
}

// Sends reports whether the send half of the cycle is active.
func (m Mode) Sends() bool {
	return m == ModeSend || m == ModeBoth
}

func (m Mode) String() string {
	switch m {
	case ModeSend:
		return ModeNameSend
	case ModeReceive:
		return ModeNameReceive
	case ModeBoth:
		return ModeNameBoth
	default:
		return "invalid"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ModeNameSend:
		return ModeSend, nil
	case ModeNameReceive:
		return ModeReceive, nil
	case ModeNameBoth:
		return ModeBoth, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, ErrInvalidMode
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
