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

package bridge

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/queue"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/scene"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/testing/helpers"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceiveFixture(t *testing.T) (*Receiver, *queue.Queue[models.Record], *scene.MemoryScene) {
	t.Helper()

	q := queue.New[models.Record]()
	sc := scene.NewMemoryScene()
	sc.AddObject("Cube")
	sc.AddObject("Arm")
	sc.AddText("CubeText")
	sc.AddText("Status")

	r := NewReceiver(q, sc, nil)
	r.SetSettings(ReceiveSettings{
		Targets: []ReceiveTarget{
			{Object: "Cube", Kind: models.KindLocation, Axes: models.MaskAll, AxisText: "CubeText", Show: models.MaskAll},
			{Object: "Arm", Kind: models.KindRotation, Axes: models.MaskX | models.MaskZ},
		},
		ReceivedText:    "Status",
		Delay:           50 * time.Millisecond,
		AxisTextNewline: true,
	})
	return r, q, sc
}

func memObject(t *testing.T, sc *scene.MemoryScene, name string) *scene.MemoryObject {
	t.Helper()
	return sc.AddObject(name)
}

func TestClampDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MinDelay, ClampDelay(0))
	assert.Equal(t, MinDelay, ClampDelay(-time.Second))
	assert.Equal(t, 250*time.Millisecond, ClampDelay(250*time.Millisecond))
	assert.Equal(t, MaxDelay, ClampDelay(time.Minute))
}

func TestTick_ReturnsDelay(t *testing.T) {
	t.Parallel()

	r, _, _ := newReceiveFixture(t)
	assert.Equal(t, 50*time.Millisecond, r.Tick())

	s := r.Settings()
	s.Delay = 10 * time.Second
	r.SetSettings(s)
	assert.Equal(t, MaxDelay, r.Tick())
}

func TestTick_AppliesValuesAndText(t *testing.T) {
	t.Parallel()

	r, q, sc := newReceiveFixture(t)
	q.Push(models.Record{Values: []float64{1, 2, 3, 90, 45, 180}, Text: "hello"})

	r.Tick()

	assert.Equal(t, models.Triple{X: 1, Y: 2, Z: 3}, memObject(t, sc, "Cube").Get(models.KindLocation))

	// Y is not in the axis mask
	rot := memObject(t, sc, "Arm").Get(models.KindRotation)
	helpers.AssertTripleInDelta(t, models.Triple{X: math.Pi / 2, Z: math.Pi}, rot, 1e-9)

	assert.Equal(t, " 1.00\n 2.00\n 3.00", sc.AddText("CubeText").Text())
	assert.Equal(t, "hello", sc.AddText("Status").Text())
}

func TestTick_SkipsIncompleteTriples(t *testing.T) {
	t.Parallel()

	r, q, sc := newReceiveFixture(t)
	q.Push(models.Record{Values: []float64{4, 5, 6, 7, 8}})

	r.Tick()

	assert.Equal(t, models.Triple{X: 4, Y: 5, Z: 6}, memObject(t, sc, "Cube").Get(models.KindLocation))
	assert.Equal(t, models.Triple{}, memObject(t, sc, "Arm").Get(models.KindRotation))
}

func TestTick_TextOnlyLeavesTransforms(t *testing.T) {
	t.Parallel()

	r, q, sc := newReceiveFixture(t)
	q.Push(models.Record{Values: []float64{}, Text: "only text"})

	r.Tick()

	assert.Equal(t, models.Triple{}, memObject(t, sc, "Cube").Get(models.KindLocation))
	assert.Equal(t, "only text", sc.AddText("Status").Text())
	assert.Empty(t, sc.AddText("CubeText").Text())
}

func TestTick_DrainLatest(t *testing.T) {
	t.Parallel()

	r, q, sc := newReceiveFixture(t)

	var delivered []models.Record
	r.Subscribe(func(rec models.Record) {
		delivered = append(delivered, rec)
	})

	a := models.Record{Values: []float64{1, 1, 1}, Text: "A"}
	b := models.Record{Values: []float64{2, 2, 2}, Text: "B"}
	c := models.Record{Values: []float64{3, 3, 3}, Text: "C"}
	q.Push(a)
	q.Push(b)
	q.Push(c)

	r.Tick()

	require.Len(t, delivered, 1)
	assert.Equal(t, c, delivered[0])
	assert.True(t, q.Empty())
	assert.Equal(t, models.Triple{X: 3, Y: 3, Z: 3}, memObject(t, sc, "Cube").Get(models.KindLocation))

	// C again is a duplicate of the last delivery
	q.Push(a)
	q.Push(c)
	r.Tick()
	assert.Len(t, delivered, 1)
}

func TestTick_Idempotent(t *testing.T) {
	t.Parallel()

	r, q, _ := newReceiveFixture(t)

	var calls atomic.Int32
	r.Subscribe(func(models.Record) {
		calls.Add(1)
	})

	rec := models.Record{Values: []float64{1, 2, 3}, Text: "x"}
	q.Push(rec)
	r.Tick()
	q.Push(models.NewRecord(rec.Values, rec.Text))
	r.Tick()
	r.Tick()

	assert.Equal(t, int32(1), calls.Load())

	r.Reset()
	q.Push(rec)
	r.Tick()
	assert.Equal(t, int32(2), calls.Load(), "reset forgets the last delivery")
}

func TestTick_GateClosedDiscards(t *testing.T) {
	t.Parallel()

	q := queue.New[models.Record]()
	sc := scene.NewMemoryScene()
	cube := sc.AddObject("Cube")

	var open atomic.Bool
	r := NewReceiver(q, sc, open.Load)
	r.SetSettings(ReceiveSettings{
		Targets: []ReceiveTarget{{Object: "Cube", Kind: models.KindScale, Axes: models.MaskAll}},
		Delay:   time.Millisecond,
	})

	q.Push(models.Record{Values: []float64{5, 5, 5}})
	r.Tick()

	assert.True(t, q.Empty(), "paused ticks still drain")
	assert.Equal(t, models.Triple{X: 1, Y: 1, Z: 1}, cube.Get(models.KindScale))

	open.Store(true)
	q.Push(models.Record{Values: []float64{2, 2, 2}})
	r.Tick()
	assert.Equal(t, models.Triple{X: 2, Y: 2, Z: 2}, cube.Get(models.KindScale))
}

func TestTick_MissingObjectSkipped(t *testing.T) {
	t.Parallel()

	q := queue.New[models.Record]()
	sc := scene.NewMemoryScene()
	arm := sc.AddObject("Arm")

	r := NewReceiver(q, sc, nil)
	r.SetSettings(ReceiveSettings{
		Targets: []ReceiveTarget{
			{Object: "Gone", Kind: models.KindLocation, Axes: models.MaskAll},
			{Object: "Arm", Kind: models.KindLocation, Axes: models.MaskAll},
		},
	})

	q.Push(models.Record{Values: []float64{1, 2, 3, 4, 5, 6}})
	r.Tick()

	assert.Equal(t, models.Triple{X: 4, Y: 5, Z: 6}, arm.Get(models.KindLocation))
}

func TestReceiver_RunWithFakeClock(t *testing.T) {
	t.Parallel()

	r, q, sc := newReceiveFixture(t)
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, clock)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	q.Push(models.Record{Values: []float64{7, 8, 9}})
	clock.Advance(50 * time.Millisecond)

	require.Eventually(t, func() bool {
		return memObject(t, sc, "Cube").Get(models.KindLocation) == models.Triple{X: 7, Y: 8, Z: 9}
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
