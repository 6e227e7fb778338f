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

package scene

import (
	"sync"
	"testing"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObject_Defaults(t *testing.T) {
	t.Parallel()

	o := NewMemoryObject("Cube")
	assert.Equal(t, "Cube", o.Name())
	assert.Equal(t, models.Triple{}, o.Get(models.KindLocation))
	assert.Equal(t, models.Triple{}, o.Get(models.KindRotation))
	assert.Equal(t, models.Triple{X: 1, Y: 1, Z: 1}, o.Get(models.KindScale))
}

func TestMemoryObject_SetAxis(t *testing.T) {
	t.Parallel()

	o := NewMemoryObject("Cube")
	o.SetAxis(models.KindLocation, models.AxisY, 2.5)
	o.SetAxis(models.KindRotation, models.AxisZ, 1.2)
	o.SetAxis(models.TransformKind(9), models.AxisX, 7)

	assert.InDelta(t, 2.5, o.Axis(models.KindLocation, models.AxisY), 1e-9)
	assert.InDelta(t, 1.2, o.Axis(models.KindRotation, models.AxisZ), 1e-9)
	assert.Zero(t, o.Axis(models.TransformKind(9), models.AxisX))
	assert.Equal(t, models.Triple{Y: 2.5}, Transform(o, models.KindLocation))
}

func TestReset(t *testing.T) {
	t.Parallel()

	o := NewMemoryObject("Arm")
	for _, axis := range models.Axes {
		o.SetAxis(models.KindLocation, axis, 3)
		o.SetAxis(models.KindRotation, axis, 0.5)
		o.SetAxis(models.KindScale, axis, 4)
	}

	Reset(o)

	assert.Equal(t, models.Triple{}, o.Get(models.KindLocation))
	assert.Equal(t, models.Triple{}, o.Get(models.KindRotation))
	assert.Equal(t, models.Triple{X: 1, Y: 1, Z: 1}, o.Get(models.KindScale))
}

func TestMemoryScene_Lookup(t *testing.T) {
	t.Parallel()

	s := NewMemoryScene()
	cube := s.AddObject("Cube")
	assert.Same(t, cube, s.AddObject("Cube"), "AddObject returns the existing object")
	label := s.AddText("Label")

	o, ok := s.Object("Cube")
	require.True(t, ok)
	assert.Equal(t, "Cube", o.Name())

	_, ok = s.Object("Missing")
	assert.False(t, ok)

	tt, ok := s.TextTarget("Label")
	require.True(t, ok)
	tt.SetText("hello")
	assert.Equal(t, "hello", label.Text())

	_, ok = s.TextTarget("Cube")
	assert.False(t, ok)

	assert.Equal(t, []string{"Cube", "Label"}, s.Names())

	s.Remove("Cube")
	_, ok = s.Object("Cube")
	assert.False(t, ok)
}

func TestMemoryObject_Concurrent(t *testing.T) {
	t.Parallel()

	o := NewMemoryObject("Cube")
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				o.SetAxis(models.KindLocation, models.AxisX, float64(i))
				_ = o.Axis(models.KindLocation, models.AxisX)
			}
		}()
	}
	wg.Wait()

	v := o.Axis(models.KindLocation, models.AxisX)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 8.0)
}
