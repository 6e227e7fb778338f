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

package config

import (
	"testing"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"pgregory.net/rapid"
)

var validBauds = []int{9600, 14400, 19200, 38400, 57600, 115200}

// TestPropertyValidValuesPass verifies any in-range config validates.
func TestPropertyValidValuesPass(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		v := BaseDefaults.Clone()
		v.Serial.BaudRate = rapid.SampledFrom(validBauds).Draw(t, "baud")
		v.Serial.Mode = rapid.SampledFrom([]string{"send", "receive", "both"}).Draw(t, "mode")
		v.Receive.Delay = rapid.Float64Range(0.001, 2).Draw(t, "delay")
		v.Send.FrameSkipInterval = rapid.IntRange(0, 1000).Draw(t, "skip")
		v.Send.Method = rapid.SampledFrom([]string{SendMethodKeyframe, SendMethodTimer}).Draw(t, "method")
		v.Receive.Objects = []ReceiveObject{{
			Object:   "Cube",
			Property: rapid.SampledFrom([]string{"location", "rotation_euler", "scale", ""}).Draw(t, "prop"),
			Axes:     rapid.StringMatching(`X?Y?Z?`).Draw(t, "axes"),
		}}

		if err := Validate(&v); err != nil {
			t.Fatalf("expected valid config, got %v", err)
		}
	})
}

// TestPropertyBaudOutsideSetFails verifies baud rates outside the fixed set
// are rejected.
func TestPropertyBaudOutsideSetFails(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		baud := rapid.IntRange(0, 300000).Filter(func(b int) bool {
			for _, ok := range validBauds {
				if b == ok {
					return false
				}
			}
			return true
		}).Draw(t, "baud")

		v := BaseDefaults.Clone()
		v.Serial.BaudRate = baud
		if err := Validate(&v); err == nil {
			t.Fatalf("baud %d should be rejected", baud)
		}
	})
}

// TestPropertyModeRoundTrip verifies SetMode/Mode agree for every valid mode.
func TestPropertyModeRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		m := models.Mode(rapid.IntRange(int(models.ModeSend), int(models.ModeBoth)).Draw(t, "mode"))
		cfg := &Instance{vals: BaseDefaults.Clone()}
		if err := cfg.SetMode(m); err != nil {
			t.Fatalf("SetMode(%v): %v", m, err)
		}
		if got := cfg.Mode(); got != m {
			t.Fatalf("Mode() = %v, want %v", got, m)
		}
	})
}
