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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/automount"
	"github.com/mrclksr/DSBMC-Cli/pkg/client"
	"github.com/mrclksr/DSBMC-Cli/pkg/config"
	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

const spinInterval = 100 * time.Millisecond

type runner struct {
	env   Env
	cfg   *config.Instance
	conn  *client.Conn
	force bool
}

func (r *runner) do(ctx context.Context, act action, operand string, speed int) error {
	switch act {
	case actList:
		r.list()
		return nil
	case actListen:
		return r.listen(ctx)
	case actAutomount:
		return r.automount(ctx)
	case actMDAttach:
		ch, err := r.conn.MDAttachAsync(operand)
		if err != nil {
			return err
		}
		_, err = r.wait(ctx, ch)
		return err
	}

	d, ok := r.conn.DeviceByPath(operand)
	if !ok {
		//nolint:staticcheck // message kept as users know it
		return fmt.Errorf("No such device '%s'", operand)
	}

	var (
		ch  <-chan client.Result
		err error
	)
	switch act {
	case actMount:
		ch, err = r.conn.MountAsync(d.ID)
	case actUnmount:
		ch, err = r.conn.UnmountAsync(d.ID, r.force)
	case actEject:
		ch, err = r.conn.EjectAsync(d.ID, r.force)
	case actSize:
		ch, err = r.conn.SizeAsync(d.ID)
	case actSpeed:
		ch, err = r.conn.SetSpeedAsync(d.ID, speed)
	default:
		return fmt.Errorf("unhandled action %d", act)
	}
	if err != nil {
		return err
	}

	res, err := r.wait(ctx, ch)
	if err != nil {
		return err
	}
	if act == actSize {
		_, _ = fmt.Fprintf(r.env.Stdout, "size=%d:used=%d:free=%d\n",
			res.Device.MediaSize, res.Device.Used, res.Device.Free)
	}
	return nil
}

// wait processes daemon input until the result arrives, turning a spinner
// on stderr meanwhile.
func (r *runner) wait(ctx context.Context, ch <-chan client.Result) (client.Result, error) {
	spin := &spinner{w: r.env.Stderr}
	ticker := r.env.Clock.NewTicker(spinInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-ch:
			spin.clear()
			if res.Err != nil {
				var de *protocol.DaemonError
				if errors.As(res.Err, &de) {
					//nolint:staticcheck // message kept as users know it
					return res, fmt.Errorf("Error: %w", res.Err)
				}
				return res, res.Err
			}
			return res, nil
		case <-r.conn.Ready():
			if _, err := r.conn.FetchEvent(); err != nil {
				if client.IsFatal(err) {
					spin.clear()
					return client.Result{}, err
				}
				log.Warn().Err(err).Msg("failed to process daemon event")
			}
		case <-ticker.Chan():
			spin.step()
		case <-ctx.Done():
			spin.clear()
			return client.Result{}, fmt.Errorf("waiting for reply: %w", ctx.Err())
		}
	}
}

func (r *runner) list() {
	for _, d := range r.conn.Devices() {
		if d.Removed {
			continue
		}
		_, _ = fmt.Fprintln(r.env.Stdout, formatDevice(&d))
	}
}

func formatDevice(d *devices.Device) string {
	var sb strings.Builder
	sb.WriteString("dev=")
	sb.WriteString(d.Path)
	if d.VolID != "" {
		sb.WriteString(":volid=")
		sb.WriteString(d.VolID)
	}
	if d.FSName != "" {
		sb.WriteString(":fs=")
		sb.WriteString(d.FSName)
	}
	if d.MountPoint != "" {
		sb.WriteString(":mntpt=")
		sb.WriteString(d.MountPoint)
	}
	return sb.String()
}

// listen prints events until ctx is done or the daemon shuts down.
func (r *runner) listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.conn.Ready():
		}

		ev, err := r.conn.FetchEvent()
		if err != nil {
			if client.IsFatal(err) {
				return err
			}
			log.Warn().Err(err).Msg("failed to process daemon event")
			continue
		}
		if ev == nil {
			continue
		}
		_, _ = fmt.Fprintln(r.env.Stdout, formatEvent(ev))
		if ev.Type == protocol.EventShutdown {
			return nil
		}
	}
}

func formatEvent(ev *client.Event) string {
	line := "event=" + ev.Type.String()
	if ev.Device == nil {
		return line
	}
	line += ":" + formatDevice(ev.Device)
	if ev.Type == protocol.EventSpeed {
		line += ":speed=" + strconv.Itoa(int(ev.Device.Speed))
	}
	return line
}

func (r *runner) automount(ctx context.Context) error {
	opts := automount.Options{
		Clock:       r.env.Clock,
		Exec:        r.env.Exec,
		WatchConfig: r.env.WatchConfig,
	}
	if r.env.Dirs.Runtime != "" {
		opts.LockPath = r.env.Dirs.LockPath()
	}
	log.Info().Bool("auto_unmount", r.cfg.AutoUnmount()).Msg("starting automount")
	return automount.NewController(r.conn, r.cfg, opts).Run(ctx)
}

const spinFrames = `-|/-\|/`

type spinner struct {
	w     io.Writer
	n     int
	shown bool
}

func (s *spinner) step() {
	_, _ = fmt.Fprintf(s.w, "\r%c", spinFrames[s.n%len(spinFrames)])
	s.n++
	s.shown = true
}

func (s *spinner) clear() {
	if s.shown {
		_, _ = io.WriteString(s.w, "\r")
	}
}
