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

// Package scene defines what the bridge needs from the host application's
// objects and text displays, plus an in-memory implementation used by the
// CLI and tests.
package scene

import (
	"slices"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
)

// Object is a transformable scene object. Rotations are radians.
type Object interface {
	Name() string
	Axis(kind models.TransformKind, axis models.Axis) float64
	SetAxis(kind models.TransformKind, axis models.Axis, v float64)
}

// TextTarget is a text display whose body can be replaced.
type TextTarget interface {
	Name() string
	SetText(text string)
}

// Scene looks objects and text targets up by name. ok is false when the
// name does not exist, which callers treat as "skip".
type Scene interface {
	Object(name string) (Object, bool)
	TextTarget(name string) (TextTarget, bool)
}

// Transform reads all three axes of kind from o.
func Transform(o Object, kind models.TransformKind) models.Triple {
	var t models.Triple
	for _, axis := range models.Axes {
		t.Set(axis, o.Axis(kind, axis))
	}
	return t
}

// Reset puts o back to the identity transform: location and rotation
// zero, scale one.
func Reset(o Object) {
	for _, axis := range models.Axes {
		o.SetAxis(models.KindLocation, axis, 0)
		o.SetAxis(models.KindRotation, axis, 0)
		o.SetAxis(models.KindScale, axis, 1)
	}
}

// MemoryObject is an Object held in memory. Safe for concurrent use.
type MemoryObject struct {
	name       string
	transforms [3]models.Triple
	mu         syncutil.RWMutex
}

func NewMemoryObject(name string) *MemoryObject {
	o := &MemoryObject{name: name}
	o.transforms[models.KindScale] = models.Triple{X: 1, Y: 1, Z: 1}
	return o
}

func (o *MemoryObject) Name() string {
	return o.name
}

func (o *MemoryObject) Axis(kind models.TransformKind, axis models.Axis) float64 {
	if !validKind(kind) {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transforms[kind].Get(axis)
}

func (o *MemoryObject) SetAxis(kind models.TransformKind, axis models.Axis, v float64) {
	if !validKind(kind) {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transforms[kind].Set(axis, v)
}

// Get returns a copy of the whole transform for kind.
func (o *MemoryObject) Get(kind models.TransformKind) models.Triple {
	if !validKind(kind) {
		return models.Triple{}
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transforms[kind]
}

func validKind(kind models.TransformKind) bool {
	return kind >= models.KindLocation && kind <= models.KindScale
}

// MemoryText is a TextTarget held in memory.
type MemoryText struct {
	name string
	text string
	mu   syncutil.RWMutex
}

func NewMemoryText(name string) *MemoryText {
	return &MemoryText{name: name}
}

func (t *MemoryText) Name() string {
	return t.name
}

func (t *MemoryText) SetText(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = text
}

func (t *MemoryText) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text
}

// MemoryScene is a Scene backed by maps.
type MemoryScene struct {
	objects map[string]*MemoryObject
	texts   map[string]*MemoryText
	mu      syncutil.RWMutex
}

func NewMemoryScene() *MemoryScene {
	return &MemoryScene{
		objects: make(map[string]*MemoryObject),
		texts:   make(map[string]*MemoryText),
	}
}

// AddObject returns the object called name, creating it if needed.
func (s *MemoryScene) AddObject(name string) *MemoryObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[name]; ok {
		return o
	}
	o := NewMemoryObject(name)
	s.objects[name] = o
	return o
}

// AddText returns the text target called name, creating it if needed.
func (s *MemoryScene) AddText(name string) *MemoryText {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.texts[name]; ok {
		return t
	}
	t := NewMemoryText(name)
	s.texts[name] = t
	return t
}

func (s *MemoryScene) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	delete(s.texts, name)
}

func (s *MemoryScene) Object(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return o, true
}

func (s *MemoryScene) TextTarget(name string) (TextTarget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.texts[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// Names returns every object and text target name, sorted.
func (s *MemoryScene) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects)+len(s.texts))
	for name := range s.objects {
		names = append(names, name)
	}
	for name := range s.texts {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
