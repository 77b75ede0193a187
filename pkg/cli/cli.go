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

// Package cli implements the dsbmc-cli command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/mrclksr/DSBMC-Cli/internal/telemetry"
	"github.com/mrclksr/DSBMC-Cli/pkg/client"
	"github.com/mrclksr/DSBMC-Cli/pkg/config"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/command"
)

const progName = "dsbmc-cli"

const usageText = `Usage: dsbmc-cli -m|-u|-e|-s dev
       dsbmc-cli [-f] -u|-e dev
       dsbmc-cli -v speed dev
       dsbmc-cli -i image
       dsbmc-cli -l
       dsbmc-cli -L
       dsbmc-cli -a
`

var errUsage = errors.New("usage")

// Env holds everything Run needs from the outside world.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Fs     afero.Fs
	Clock  clockwork.Clock
	Exec   command.Executor
	// Dial connects to the daemon. It defaults to client.Dial.
	Dial func(ctx context.Context, opts client.Options) (*client.Conn, error)
	Dirs helpers.Dirs
	// WatchConfig reloads the automount settings when the config file
	// changes on disk.
	WatchConfig bool
}

type flags struct {
	image     string
	speed     int
	mount     bool
	unmount   bool
	eject     bool
	size      bool
	list      bool
	listen    bool
	automount bool
	force     bool
	debug     bool
	version   bool
	help      bool
}

type action int

const (
	actNone action = iota
	actMount
	actUnmount
	actEject
	actSize
	actSpeed
	actMDAttach
	actList
	actListen
	actAutomount
)

func newFlagSet(f *flags) *pflag.FlagSet {
	fs := pflag.NewFlagSet(progName, pflag.ContinueOnError)
	fs.BoolVarP(&f.mount, "mount", "m", false, "mount dev")
	fs.BoolVarP(&f.unmount, "unmount", "u", false, "unmount dev")
	fs.BoolVarP(&f.eject, "eject", "e", false, "eject dev")
	fs.BoolVarP(&f.size, "size", "s", false, "print the size of the medium in dev")
	fs.IntVarP(&f.speed, "speed", "v", 0, "set the reading speed of dev")
	fs.StringVarP(&f.image, "mdattach", "i", "", "attach an image file as a memory disk")
	fs.BoolVarP(&f.list, "list", "l", false, "list devices")
	fs.BoolVarP(&f.listen, "listen", "L", false, "print device events as they happen")
	fs.BoolVarP(&f.automount, "automount", "a", false, "mount devices as they appear")
	fs.BoolVarP(&f.force, "force", "f", false, "force unmount or eject")
	fs.BoolVarP(&f.debug, "debug", "d", false, "enable debug logging")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")
	return fs
}

// parse turns the command line into an action and its operand.
func parse(args []string, stderr io.Writer) (flags, action, string, error) {
	var f flags
	fs := newFlagSet(&f)
	fs.SetOutput(stderr)
	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return f, actNone, "", errUsage
		}
		return f, actNone, "", err
	}
	if f.help {
		return f, actNone, "", errUsage
	}
	if f.version {
		return f, actNone, "", nil
	}

	var chosen []action
	pick := func(set bool, a action) {
		if set {
			chosen = append(chosen, a)
		}
	}
	pick(f.mount, actMount)
	pick(f.unmount, actUnmount)
	pick(f.eject, actEject)
	pick(f.size, actSize)
	pick(fs.Changed("speed"), actSpeed)
	pick(fs.Changed("mdattach"), actMDAttach)
	pick(f.list, actList)
	pick(f.listen, actListen)
	pick(f.automount, actAutomount)
	if len(chosen) != 1 {
		return f, actNone, "", errUsage
	}

	act := chosen[0]
	switch act {
	case actMount, actUnmount, actEject, actSize, actSpeed:
		if fs.NArg() != 1 {
			return f, actNone, "", errUsage
		}
		return f, act, fs.Arg(0), nil
	case actMDAttach:
		if f.image == "" || fs.NArg() != 0 {
			return f, actNone, "", errUsage
		}
		return f, act, f.image, nil
	default:
		if fs.NArg() != 0 {
			return f, actNone, "", errUsage
		}
		return f, act, "", nil
	}
}

// Run executes the command line and returns the exit status.
func Run(ctx context.Context, args []string, env Env) int {
	env = env.withDefaults()

	f, act, operand, err := parse(args, env.Stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			_, _ = fmt.Fprintf(env.Stderr, "%s: %v\n", progName, err)
		}
		_, _ = io.WriteString(env.Stderr, usageText)
		return 1
	}
	if f.version {
		_, _ = fmt.Fprintf(env.Stdout, "%s v%s\n", progName, config.AppVersion)
		return 0
	}

	cfg, err := setup(env, f.debug)
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "%s: %v\n", progName, err)
		return 1
	}
	defer telemetry.Close()

	commands, events, maxDevices := cfg.Limits()
	conn, err := env.Dial(ctx, client.Options{
		SocketPath:  cfg.SocketPath(),
		MaxCommands: commands,
		MaxEvents:   events,
		MaxDevices:  maxDevices,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to daemon")
		_, _ = fmt.Fprintf(env.Stderr, "%s: %v\n", progName, err)
		telemetry.Flush()
		return 1
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("closing daemon connection")
		}
	}()

	r := &runner{env: env, cfg: cfg, conn: conn, force: f.force}
	if err := r.do(ctx, act, operand, f.speed); err != nil {
		if client.IsFatal(err) {
			log.Error().Err(err).Msg("command failed")
		} else {
			log.Info().Err(err).Msg("command failed")
		}
		_, _ = fmt.Fprintf(env.Stderr, "%s: %v\n", progName, err)
		return 1
	}
	return 0
}

func (e Env) withDefaults() Env {
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Clock == nil {
		e.Clock = clockwork.NewRealClock()
	}
	if e.Exec == nil {
		e.Exec = &command.RealExecutor{}
	}
	if e.Dial == nil {
		e.Dial = client.Dial
	}
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	return e
}

// setup loads the config and starts logging and error reporting. Logging
// is left alone when no state directory is set.
func setup(env Env, debug bool) (*config.Instance, error) {
	cfg, err := config.NewConfig(env.Fs, env.Dirs.Config, config.BaseDefaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if env.Dirs.State != "" {
		if err := helpers.InitLogging(env.Dirs.State, debug || cfg.DebugLogging()); err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
	}

	enabled, dsn := cfg.ErrorReporting()
	if err := telemetry.Init(enabled, dsn, config.AppVersion); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}
	return cfg, nil
}
