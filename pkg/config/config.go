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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/helpers/syncutil"
	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	SchemaVersion = 1
	CfgEnv        = "BLENDIX_CFG"
	CfgFile       = "blendix.toml"

	SendMethodKeyframe = "keyframe"
	SendMethodTimer    = "timer"

	DefaultBaudRate      = 9600
	DefaultReceiveDelay  = 1.0
	DefaultTimerInterval = 0.1
	DefaultMQTTTopic     = "blendix/records"
)

var (
	ErrNoConfigPath   = errors.New("config path not set")
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

type Values struct {
	MQTT         MQTT    `toml:"mqtt,omitempty"`
	Serial       Serial  `toml:"serial"`
	Send         Send    `toml:"send"`
	Receive      Receive `toml:"receive"`
	Debug        Debug   `toml:"debug"`
	ConfigSchema int     `toml:"config_schema"`
	DebugLogging bool    `toml:"debug_logging"`
}

type Serial struct {
	Port     string `toml:"port"`
	Mode     string `toml:"mode" validate:"oneof=send receive both"`
	BaudRate int    `toml:"baud_rate" validate:"oneof=9600 14400 19200 38400 57600 115200"`
}

// ReceiveObject binds slot i of a received line (values 3i..3i+2) to an
// object transform.
type ReceiveObject struct {
	Object   string `toml:"object"`
	Property string `toml:"property" validate:"transform"`
	Axes     string `toml:"axes" validate:"axes"`
	AxisText string `toml:"axis_text,omitempty"`
	Show     string `toml:"show,omitempty" validate:"axes"`
}

type Receive struct {
	ReceivedText    string          `toml:"received_text,omitempty"`
	Objects         []ReceiveObject `toml:"object,omitempty" validate:"dive"`
	Delay           float64         `toml:"delay" validate:"gte=0.001,lte=2"`
	AxisTextNewline bool            `toml:"axis_text_newline"`
}

type SendObject struct {
	Object   string `toml:"object"`
	Property string `toml:"property" validate:"transform"`
	Axes     string `toml:"axes" validate:"axes"`
}

type Send struct {
	Method            string       `toml:"method" validate:"oneof=keyframe timer"`
	Objects           []SendObject `toml:"object,omitempty" validate:"dive"`
	FrameSkipInterval int          `toml:"frame_skip_interval" validate:"gte=0"`
	TimerInterval     float64      `toml:"timer_interval" validate:"gte=0.001,lte=10"`
}

// Debug enables per-category debug logging.
type Debug struct {
	Connection        bool `toml:"connection"`
	Mode              bool `toml:"mode"`
	RawData           bool `toml:"raw_data"`
	Validation        bool `toml:"validation"`
	Worker            bool `toml:"worker"`
	ReceiveProcessing bool `toml:"receive_processing"`
	SendProcessing    bool `toml:"send_processing"`
}

// Any reports whether at least one category is enabled.
func (d Debug) Any() bool {
	return d.Connection || d.Mode || d.RawData || d.Validation ||
		d.Worker || d.ReceiveProcessing || d.SendProcessing
}

type MQTT struct {
	Broker   string `toml:"broker,omitempty" validate:"omitempty,url"`
	Topic    string `toml:"topic,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	Enabled  bool   `toml:"enabled"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Serial: Serial{
		BaudRate: DefaultBaudRate,
		Mode:     models.ModeNameSend,
	},
	Receive: Receive{
		Delay:           DefaultReceiveDelay,
		AxisTextNewline: true,
	},
	Send: Send{
		Method:            SendMethodKeyframe,
		FrameSkipInterval: 1,
		TimerInterval:     DefaultTimerInterval,
	},
	MQTT: MQTT{
		Topic: DefaultMQTTTopic,
	},
}

// Clone returns a deep copy of v.
func (v Values) Clone() Values {
	v.Receive.Objects = slices.Clone(v.Receive.Objects)
	v.Send.Objects = slices.Clone(v.Send.Objects)
	return v
}

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the config file from configDir, or the path in
// BLENDIX_CFG, writing defaults first if the file does not exist.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := &Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults.Clone(),
		defaults: defaults.Clone(),
	}

	exists, err := afero.Exists(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		log.Info().Str("path", cfgPath).Msg("saving new default config to disk")
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Instance) Path() string {
	return c.cfgPath
}

// Load reads the file over a copy of the defaults, so fields missing from
// the file keep their default values. Nothing is applied if the result
// fails validation.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return ErrNoConfigPath
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	newVals := c.defaults.Clone()
	if err := toml.Unmarshal(data, &newVals); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := Validate(&newVals); err != nil {
		return fmt.Errorf("invalid config file %s: %w", c.cfgPath, err)
	}

	c.vals = newVals
	applyLogLevel(newVals)
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return ErrNoConfigPath
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := c.fs.MkdirAll(filepath.Dir(c.cfgPath), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Values returns a copy of the current values.
func (c *Instance) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Clone()
}

// Update validates v and replaces the current values with it.
//
//nolint:gocritic // config struct copied for immutability
func (c *Instance) Update(v Values) error {
	v = v.Clone()
	v.ConfigSchema = SchemaVersion
	if err := Validate(&v); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals = v
	applyLogLevel(v)
	return nil
}

func (c *Instance) SerialPort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial.Port
}

func (c *Instance) SetSerialPort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.Port = port
}

func (c *Instance) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial.BaudRate
}

func (c *Instance) SetBaudRate(baud int) error {
	if err := ValidateVar(baud, "oneof=9600 14400 19200 38400 57600 115200"); err != nil {
		return fmt.Errorf("invalid baud rate %d: %w", baud, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.BaudRate = baud
	return nil
}

// Mode returns the configured worker mode. Values are validated on load so
// an unparsable mode can only come from a zero Values and falls back to
// send.
func (c *Instance) Mode() models.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, err := models.ParseMode(c.vals.Serial.Mode)
	if err != nil {
		return models.ModeSend
	}
	return m
}

func (c *Instance) SetMode(m models.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", models.ErrInvalidMode, m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.Mode = m.String()
	return nil
}

// ReceiveDelay is the receive tick period.
func (c *Instance) ReceiveDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SecondsToDuration(c.vals.Receive.Delay)
}

// SendTimerInterval is the period used by the timer send method.
func (c *Instance) SendTimerInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SecondsToDuration(c.vals.Send.TimerInterval)
}

func (c *Instance) SendMethod() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Send.Method
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	applyLogLevel(c.vals)
}

func (c *Instance) Debug() Debug {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Debug
}

func (c *Instance) MQTT() MQTT {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.MQTT
}

func SecondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

//nolint:gocritic // read only
func applyLogLevel(v Values) {
	if v.DebugLogging || v.Debug.Any() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
