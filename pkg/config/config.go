// DSBMC Client
// Copyright (c) 2026 The DSBMC Client Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of DSBMC Client.
//
// DSBMC Client is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// DSBMC Client is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with DSBMC Client.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/syncutil"
)

const (
	SchemaVersion = 1
	CfgEnv        = "DSBMC_CFG"

	DefaultSocketPath      = "/var/run/dsbmd.socket"
	DefaultMaxCommands     = 32
	DefaultMaxEvents       = 64
	DefaultMaxDevices      = 64
	DefaultUnmountInterval = 30
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Daemon         Daemon         `toml:"daemon"`
	ErrorReporting ErrorReporting `toml:"error_reporting,omitempty"`
	Automount      Automount      `toml:"automount"`
	ConfigSchema   int            `toml:"config_schema"`
	DebugLogging   bool           `toml:"debug_logging"`
}

type Daemon struct {
	SocketPath  string `toml:"socket_path" validate:"required,startswith=/"`
	MaxCommands int    `toml:"max_commands" validate:"min=1,max=1024"`
	MaxEvents   int    `toml:"max_events" validate:"min=1,max=4096"`
	MaxDevices  int    `toml:"max_devices" validate:"min=1,max=1024"`
}

type ErrorReporting struct {
	DSN     string `toml:"dsn,omitempty" validate:"omitempty,url"`
	Enabled bool   `toml:"enabled"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Daemon: Daemon{
		SocketPath:  DefaultSocketPath,
		MaxCommands: DefaultMaxCommands,
		MaxEvents:   DefaultMaxEvents,
		MaxDevices:  DefaultMaxDevices,
	},
	Automount: Automount{
		UnmountInterval: DefaultUnmountInterval,
	},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the config file from configDir, or from the path in
// DSBMC_CFG if set. A missing file is created with the defaults.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	exists, err := afero.Exists(fs, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		log.Info().Msg("saving new default config to disk")

		if err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the config file over the defaults. The current values are
// kept if the file does not parse or fails validation.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	newVals := c.defaults
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

	if err := validate.Struct(&newVals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the location of the config file.
func (c *Instance) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfgPath
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
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func (c *Instance) SocketPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Daemon.SocketPath
}

// Limits returns the command queue, event queue and device table limits.
func (c *Instance) Limits() (commands, events, devices int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := c.vals.Daemon
	return d.MaxCommands, d.MaxEvents, d.MaxDevices
}

// ErrorReporting reports whether error reporting is on and the DSN to use.
func (c *Instance) ErrorReporting() (enabled bool, dsn string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.ErrorReporting.Enabled, c.vals.ErrorReporting.DSN
}

func (c *Instance) UnmountInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Automount.UnmountInterval) * time.Second
}
