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

package automount

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mrclksr/DSBMC-Cli/pkg/client"
	"github.com/mrclksr/DSBMC-Cli/pkg/config"
	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/command"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/syncutil"
	"github.com/mrclksr/DSBMC-Cli/pkg/hooks"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// Conn is the daemon connection the controller drives. *client.Conn
// implements it.
type Conn interface {
	Target
	Devices() []devices.Device
	Ready() <-chan struct{}
	FetchEvent() (*client.Event, error)
	Mount(ctx context.Context, id int) error
	FreeDevice(id int) bool
}

type Options struct {
	Clock clockwork.Clock
	Exec  command.Executor
	// LockPath is the single-instance lock file. Locking is skipped when
	// it is empty.
	LockPath string
	// WatchConfig reloads the automount section when the config file
	// changes.
	WatchConfig bool
}

// Controller mounts every eligible device it learns about and runs the
// configured hooks.
type Controller struct {
	conn  Conn
	cfg   *config.Instance
	sched *Scheduler
	hooks *hooks.Runner
	// settings is replaced as a whole on reload and guarded by mu.
	settings settings
	opts     Options
	mu       syncutil.Mutex
}

// settings is the automount section in effect for one reload generation.
type settings struct {
	blacklist   *Blacklist
	hooks       config.Hooks
	autoUnmount bool
}

func loadSettings(cfg *config.Instance) settings {
	return settings{
		blacklist:   NewBlacklist(cfg.Blacklist()),
		hooks:       cfg.Hooks(),
		autoUnmount: cfg.AutoUnmount(),
	}
}

func NewController(conn Conn, cfg *config.Instance, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Exec == nil {
		opts.Exec = &command.RealExecutor{}
	}

	c := &Controller{
		conn:     conn,
		cfg:      cfg,
		hooks:    hooks.NewRunner(opts.Exec),
		settings: loadSettings(cfg),
		opts:     opts,
	}
	c.sched = NewScheduler(conn, opts.Clock, cfg.UnmountInterval(), c.unmounted)
	return c
}

// Scheduler exposes the auto-unmount scheduler.
func (c *Controller) Scheduler() *Scheduler {
	return c.sched
}

// Run takes the single-instance lock, mounts every eligible device and
// then reacts to daemon events until ctx is done or the connection fails.
// It returns after all workers and hooks have finished.
func (c *Controller) Run(ctx context.Context) error {
	if c.opts.LockPath != "" {
		lock, err := AcquireLock(c.opts.LockPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn().Err(err).Msg("failed to release automount lock")
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	c.sweep(gctx)
	g.Go(func() error {
		return c.react(gctx)
	})
	if c.opts.WatchConfig {
		g.Go(func() error {
			if err := c.cfg.Watch(gctx, c.reload); err != nil {
				log.Warn().Err(err).Msg("config reload disabled")
			}
			return nil
		})
	}

	err := g.Wait()
	c.sched.Wait()
	c.hooks.Wait()
	return err
}

// sweep mounts the devices that were present before startup.
func (c *Controller) sweep(ctx context.Context) {
	for _, d := range c.conn.Devices() {
		if c.eligible(&d) {
			c.automount(ctx, d)
		}
	}
}

func (c *Controller) react(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.conn.Ready():
		}

		ev, err := c.conn.FetchEvent()
		if err != nil {
			if client.IsFatal(err) {
				return fmt.Errorf("automount: %w", err)
			}
			log.Error().Err(err).Msg("failed to process daemon event")
			continue
		}
		if ev != nil {
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev *client.Event) {
	if ev.Type == protocol.EventShutdown {
		log.Info().Msg("daemon is shutting down")
		return
	}

	d := ev.Device
	log.Debug().Str("event", ev.Type.String()).Str("dev", d.Path).Msg("device event")
	c.hooks.Run(ctx, hooks.Template(c.current().hooks, ev.Type), d)

	switch ev.Type {
	case protocol.EventAdd:
		if c.eligible(d) {
			c.automount(ctx, *d)
		}
	case protocol.EventDel:
		// A retained record is freed by its worker on exit instead.
		c.conn.FreeDevice(d.ID)
		c.sched.Broadcast()
	case protocol.EventUnmount:
		c.sched.Broadcast()
	}
}

func (c *Controller) eligible(d *devices.Device) bool {
	if !d.Caps.Has(protocol.CapMount) || d.Mounted || d.Removed {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settings.blacklist.Match(d) {
		log.Info().Str("dev", d.Path).Str("volid", d.VolID).Msg("skipping blacklisted device")
		return false
	}
	return true
}

func (c *Controller) automount(ctx context.Context, d devices.Device) {
	if err := c.conn.Mount(ctx, d.ID); err != nil {
		log.Error().Err(err).Str("dev", d.Path).Msg("failed to mount device")
		return
	}
	mounted, ok := c.conn.Device(d.ID)
	if !ok {
		return
	}
	log.Info().Str("dev", mounted.Path).Str("mntpt", mounted.MountPoint).Msg("mounted device")
	st := c.current()
	c.hooks.Run(ctx, st.hooks.Mount, &mounted)

	if st.autoUnmount {
		c.sched.Spawn(ctx, d.ID)
	}
}

// unmounted runs the unmount hook for a device a worker has unmounted.
// The hook sees the mount point the device had before.
func (c *Controller) unmounted(d devices.Device) {
	c.hooks.Run(context.Background(), c.current().hooks.Unmount, &d)
}

func (c *Controller) current() settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Controller) reload() {
	st := loadSettings(c.cfg)
	c.mu.Lock()
	c.settings = st
	c.mu.Unlock()
	c.sched.SetInterval(c.cfg.UnmountInterval())
	log.Debug().Msg("automount settings reloaded")
}
