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

package codec

import (
	"math"
	"strconv"
	"strings"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
)

const zeroValue = "0.00"

// SendItem is one object's contribution to an outgoing line. Value holds
// the live transform; rotations are in radians.
type SendItem struct {
	Value   models.Triple
	Kind    models.TransformKind
	Axes    models.AxisMask
	Missing bool
}

// SendDescriptor is the ordered list of items making up one line.
type SendDescriptor []SendItem

func RadiansToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func DegreesToRadians(deg float64) float64 {
	return deg / 360 * 2 * math.Pi
}

// FormatNumber renders v with exactly two decimals.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatTriple renders one object as "x, y, z". Unselected axes and
// missing objects render as 0.00.
func FormatTriple(item SendItem) string {
	parts := [3]string{zeroValue, zeroValue, zeroValue}
	if !item.Missing {
		for i, axis := range models.Axes {
			if !item.Axes.Has(axis) {
				continue
			}
			v := item.Value.Get(axis)
			if item.Kind == models.KindRotation {
				v = RadiansToDegrees(v)
			}
			parts[i] = FormatNumber(v)
		}
	}
	return strings.Join(parts[:], ObjectSeparator)
}

// FormatOutgoing joins every item and terminates the line with ';'. The
// newline is added by the transport.
func FormatOutgoing(d SendDescriptor) string {
	parts := make([]string, len(d))
	for i, item := range d {
		parts[i] = FormatTriple(item)
	}
	return strings.Join(parts, ObjectSeparator) + SendTerminator
}

// BuildAxisText renders the selected axes of object index for a text
// display, e.g. " 1.00\n 2.00". Axes beyond the end of values are skipped.
func BuildAxisText(values []float64, index int, show models.AxisMask, newline bool) string {
	parts := make([]string, 0, len(models.Axes))
	for i, axis := range models.Axes {
		if !show.Has(axis) {
			continue
		}
		pos := index*len(models.Axes) + i
		if pos >= len(values) {
			continue
		}
		parts = append(parts, " "+FormatNumber(values[pos]))
	}

	sep := " "
	if newline {
		sep = "\n"
	}
	return strings.Join(parts, sep)
}
