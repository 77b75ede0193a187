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

// Package hooks runs user-configured shell commands on device events.
//
// A hook template may contain the placeholders %d (device path),
// %m (mount point), %l (label), %t (media type) and %% (a literal percent
// sign). Substituted values are single-quoted for the shell.
package hooks

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/config"
	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/command"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// Runner runs hooks in the background so that a slow hook never holds up
// event processing.
type Runner struct {
	exec command.Executor
	wg   sync.WaitGroup
}

func NewRunner(exec command.Executor) *Runner {
	return &Runner{exec: exec}
}

// Template picks the hook for an event type.
func Template(h config.Hooks, t protocol.EventType) string {
	switch t {
	case protocol.EventAdd:
		return h.Add
	case protocol.EventDel:
		return h.Remove
	case protocol.EventMount:
		return h.Mount
	case protocol.EventUnmount:
		return h.Unmount
	case protocol.EventSpeed:
		return h.Speed
	default:
		return ""
	}
}

// Run expands tmpl for d and runs it with sh -c. Empty templates are
// skipped. Failures are logged.
func (r *Runner) Run(ctx context.Context, tmpl string, d *devices.Device) {
	if tmpl == "" {
		return
	}
	line := Expand(tmpl, d)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := command.Shell(ctx, r.exec, line); err != nil {
			log.Warn().Err(err).Str("hook", line).Msg("hook failed")
			return
		}
		log.Debug().Str("hook", line).Msg("hook finished")
	}()
}

// Wait blocks until every started hook has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Expand substitutes the placeholders in tmpl. Unknown placeholders are
// left as they are.
func Expand(tmpl string, d *devices.Device) string {
	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		if ch != '%' || i+1 == len(tmpl) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch tmpl[i] {
		case 'd':
			sb.WriteString(quote(d.Path))
		case 'm':
			sb.WriteString(quote(d.MountPoint))
		case 'l':
			sb.WriteString(quote(d.VolID))
		case 't':
			sb.WriteString(quote(d.Type.String()))
		case '%':
			sb.WriteByte('%')
		default:
			sb.WriteByte('%')
			sb.WriteByte(tmpl[i])
		}
	}
	return sb.String()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
