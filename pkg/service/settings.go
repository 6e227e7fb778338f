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

package service

import (
	"github.com/ELECTRONICSTREE/blendixserial/pkg/bridge"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/config"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/rs/zerolog/log"
)

// parseBinding converts validated config strings. Anything unparseable
// falls back to location with no axes selected.
func parseBinding(property, axes string) (models.TransformKind, models.AxisMask) {
	kind := models.KindLocation
	if property != "" {
		k, err := models.ParseTransformKind(property)
		if err != nil {
			log.Warn().Err(err).Msg("invalid transform property in config")
		} else {
			kind = k
		}
	}

	mask, err := models.ParseAxisMask(axes)
	if err != nil {
		log.Warn().Err(err).Msg("invalid axes in config")
		mask = models.MaskNone
	}
	return kind, mask
}

//nolint:gocritic // config struct copied for immutability
func receiveSettings(v config.Values) bridge.ReceiveSettings {
	targets := make([]bridge.ReceiveTarget, 0, len(v.Receive.Objects))
	for _, o := range v.Receive.Objects {
		kind, axes := parseBinding(o.Property, o.Axes)
		_, show := parseBinding("", o.Show)
		targets = append(targets, bridge.ReceiveTarget{
			Object:   o.Object,
			Kind:     kind,
			Axes:     axes,
			AxisText: o.AxisText,
			Show:     show,
		})
	}

	return bridge.ReceiveSettings{
		Targets:         targets,
		ReceivedText:    v.Receive.ReceivedText,
		Delay:           config.SecondsToDuration(v.Receive.Delay),
		AxisTextNewline: v.Receive.AxisTextNewline,
		Debug:           v.Debug.ReceiveProcessing,
	}
}

// sendSettings fires on every timer tick; frame skipping only applies to
// the keyframe method.
//
//nolint:gocritic // config struct copied for immutability
func sendSettings(v config.Values) bridge.SendSettings {
	targets := make([]bridge.SendTarget, 0, len(v.Send.Objects))
	for _, o := range v.Send.Objects {
		kind, axes := parseBinding(o.Property, o.Axes)
		targets = append(targets, bridge.SendTarget{
			Object: o.Object,
			Kind:   kind,
			Axes:   axes,
		})
	}

	skip := v.Send.FrameSkipInterval
	if v.Send.Method == config.SendMethodTimer {
		skip = 0
	}

	return bridge.SendSettings{
		Targets:      targets,
		SkipInterval: skip,
		Debug:        v.Debug.SendProcessing,
	}
}
