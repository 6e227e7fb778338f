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
	"math"
	"slices"
)

// Record is one parsed line from the serial link. Values holds exactly the
// numbers present on the wire, so a short vector means the trailing fields
// were absent.
type Record struct {
	Values []float64 `json:"values"`
	Text   string    `json:"text"`
}

// NewRecord copies values so the record cannot be mutated through the
// caller's slice.
func NewRecord(values []float64, text string) Record {
	return Record{
		Values: slices.Clone(values),
		Text:   text,
	}
}

// Value returns the value at index i. ok is false when the field was not
// present on the wire.
func (r Record) Value(i int) (float64, bool) {
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	return r.Values[i], true
}

// Equal reports exact value-for-value equality. A nil and an empty vector
// compare equal, and NaN equals NaN so repeated lines still dedupe.
func (r Record) Equal(o Record) bool {
	return r.Text == o.Text && slices.EqualFunc(r.Values, o.Values, sameValue)
}

func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
