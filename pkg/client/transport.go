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

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

const (
	DefaultMaxCommands = 32
	DefaultMaxEvents   = 64

	// The daemon never sends a record longer than this, but the line
	// buffer grows past it if it has to.
	initialLineBuffer = 2048
	readChunkSize     = 4096
	chunkBacklog      = 64
)

// Options configures a connection. Zero values select the defaults.
type Options struct {
	SocketPath   string
	MaxCommands  int
	MaxEvents    int
	MaxDevices   int
	WarnInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.SocketPath == "" {
		o.SocketPath = protocol.SocketPath
	}
	if o.MaxCommands <= 0 {
		o.MaxCommands = DefaultMaxCommands
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
	if o.MaxDevices <= 0 {
		o.MaxDevices = devices.DefaultMaxDevices
	}
	if o.WarnInterval <= 0 {
		o.WarnInterval = time.Minute
	}
	return o
}

// Dial connects to the daemon's unix socket and performs the handshake.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", opts.SocketPath)
	if err != nil {
		return nil, newError(KindSys|KindFatal, fmt.Sprintf("connect(%s)", opts.SocketPath), err)
	}
	log.Debug().Str("socket", opts.SocketPath).Msg("connected to daemon")
	return New(ctx, nc, opts)
}

type chunk struct {
	err  error
	data []byte
}

// readLoop moves raw input from the transport to the connection. It is the
// only goroutine that reads the transport, so the connection can poll for
// input without blocking while holding its lock.
func (c *Conn) readLoop() {
	for {
		b := make([]byte, readChunkSize)
		n, err := c.transport.Read(b)
		if n > 0 {
			select {
			case c.chunks <- chunk{data: b[:n]}:
				c.signal()
			case <-c.done:
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("daemon closed the connection")
			}
			select {
			case c.chunks <- chunk{err: err}:
				c.signal()
			case <-c.done:
			}
			return
		}
	}
}

func (c *Conn) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}
