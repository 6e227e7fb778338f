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

var (
	ErrInvalidAxisMask      = errors.New("invalid axis mask")
	ErrInvalidTransformKind = errors.New("invalid transform kind")
)

// Axis is a single component of a transform vector.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists every axis in wire order.
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	default:
		return "?"
	}
}

// AxisMask selects any combination of X, Y and Z.
type AxisMask uint8

const (
	MaskX AxisMask = 1 << iota
	MaskY
	MaskZ

	MaskNone AxisMask = 0
	MaskAll           = MaskX | MaskY | MaskZ
)

// MaskOf returns the mask bit for a single axis.
func MaskOf(a Axis) AxisMask {
	switch a {
	case AxisX:
		return MaskX
	case AxisY:
		return MaskY
	case AxisZ:
		return MaskZ
	default:
		return MaskNone
	}
}

func (m AxisMask) Has(a Axis) bool {
	bit := MaskOf(a)
	return bit != MaskNone && m&bit != 0
}

func (m AxisMask) String() string {
	var sb strings.Builder
	for _, a := range Axes {
		if m.Has(a) {
			sb.WriteString(a.String())
		}
	}
	return sb.String()
}

// ParseAxisMask accepts strings like "X", "xz" or "XYZ". An empty string
// selects nothing.
func ParseAxisMask(s string) (AxisMask, error) {
	var m AxisMask
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		var bit AxisMask
		switch r {
		case 'X':
			bit = MaskX
		case 'Y':
			bit = MaskY
		case 'Z':
			bit = MaskZ
		default:
			return MaskNone, fmt.Errorf("%w: %q", ErrInvalidAxisMask, s)
		}
		if m&bit != 0 {
			return MaskNone, fmt.Errorf("%w: duplicate axis in %q", ErrInvalidAxisMask, s)
		}
		m |= bit
	}
	return m, nil
}

func (m AxisMask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *AxisMask) UnmarshalText(text []byte) error {
	parsed, err := ParseAxisMask(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TransformKind is the transform property an object binding drives.
type TransformKind int

const (
	KindLocation TransformKind = iota
	KindRotation
	KindScale
)

func (k TransformKind) String() string {
	switch k {
	case KindLocation:
		return "location"
	case KindRotation:
		return "rotation_euler"
	case KindScale:
		return "scale"
	default:
		return "unknown"
	}
}

// ParseTransformKind accepts "location", "rotation", "rotation_euler" and
// "scale", case-insensitively.
func ParseTransformKind(s string) (TransformKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "location", "loc":
		return KindLocation, nil
	case "rotation", "rotation_euler", "rot":
		return KindRotation, nil
	case "scale":
		return KindScale, nil
	default:
		return KindLocation, fmt.Errorf("%w: %q", ErrInvalidTransformKind, s)
	}
}

func (k TransformKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TransformKind) UnmarshalText(text []byte) error {
	parsed, err := ParseTransformKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Triple is one XYZ transform value.
type Triple struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (t Triple) Get(a Axis) float64 {
	switch a {
	case AxisX:
		return t.X
	case AxisY:
		return t.Y
	case AxisZ:
		return t.Z
	default:
		return 0
	}
}

func (t *Triple) Set(a Axis, v float64) {
	switch a {
	case AxisX:
		t.X = v
	case AxisY:
		t.Y = v
	case AxisZ:
		t.Z = v
	}
}
