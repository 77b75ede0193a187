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
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// Result is the outcome of an asynchronous command.
type Result struct {
	// Err is nil on success, a *protocol.DaemonError if the daemon
	// rejected the command, or a connection error.
	Err error
	// Device is the device as it was after the reply was applied. It is
	// zero for mdattach.
	Device devices.Device
	// Seq increases by one with every completed command on a connection.
	Seq uint64
	Cmd protocol.Command
}

type pending struct {
	result chan Result
	line   string
	dev    int
	cmd    protocol.Command
}

// resolve returns the live device with the given id.
func (c *Conn) resolve(id int) (*devices.Device, error) {
	d := c.table.LookupID(id)
	if d == nil || d.Removed {
		return nil, newError(KindInvalidDevice, fmt.Sprintf("invalid device id %d", id), nil)
	}
	return d, nil
}

func (c *Conn) usable() error {
	if c.lost {
		return c.lostErr
	}
	if c.closed {
		return newError(KindFatal, "connection", ErrClosed)
	}
	return nil
}

// submit queues a command. The command goes on the wire right away if the
// queue was empty, otherwise once every command ahead of it has been
// answered.
func (c *Conn) submit(id int, req protocol.Request) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil

	if err := c.usable(); err != nil {
		return nil, c.fail(err)
	}
	if id != 0 {
		d, err := c.resolve(id)
		if err != nil {
			return nil, c.fail(err)
		}
		req.Arg = d.Path
	}
	if len(c.queue) >= c.opts.MaxCommands {
		return nil, c.fail(newError(KindQueueBusy, "Command queue busy", nil))
	}
	line, err := req.Line()
	if err != nil {
		return nil, c.fail(newError(0, req.Cmd.String(), err))
	}

	p := &pending{
		result: make(chan Result, 1),
		line:   line,
		dev:    id,
		cmd:    req.Cmd,
	}
	if id != 0 {
		c.table.Retain(id)
	}
	c.queue = append(c.queue, p)
	if len(c.queue) > 1 {
		log.Debug().Str("cmd", req.Cmd.String()).Int("queued", len(c.queue)).Msg("command queued")
		return p.result, nil
	}

	if err := c.send(line); err != nil {
		c.queue = c.queue[:0]
		if id != 0 {
			c.table.Release(id)
		}
		return nil, c.fail(err)
	}
	return p.result, nil
}

// complete finishes the command at the head of the queue with a reply and
// writes the next queued command.
func (c *Conn) complete(rec *protocol.Record) error {
	if c.stale > 0 {
		c.stale--
		log.Debug().Str("type", rec.Type.String()).Msg("discarding reply to abandoned command")
		return nil
	}
	if len(c.queue) == 0 {
		log.Debug().Str("type", rec.Type.String()).Msg("reply without pending command")
		return nil
	}

	p := c.queue[0]
	res := Result{Cmd: p.cmd}
	d := c.table.LookupID(p.dev)

	if rec.Type == protocol.EventError {
		res.Err = replyError(rec)
	} else if d != nil {
		switch p.cmd {
		case protocol.CmdMount:
			if rec.Device.MountPoint == "" {
				res.Err = newError(KindProtocol, "mount reply without mount point", nil)
				break
			}
			d.MountPoint = rec.Device.MountPoint
			d.Mounted = true
		case protocol.CmdUnmount:
			d.MountPoint = ""
			d.Mounted = false
		case protocol.CmdSize:
			d.MediaSize = rec.MediaSize
			d.Used = rec.Used
			d.Free = rec.Free
		default:
		}
	}
	if d != nil {
		res.Device = d.Snapshot()
	}
	c.seq++
	res.Seq = c.seq
	p.result <- res

	if p.dev != 0 {
		c.table.Release(p.dev)
	}
	c.queue[0] = nil
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		return nil
	}
	return c.send(c.queue[0].line)
}

// failPending completes every queued command with err.
func (c *Conn) failPending(err error) {
	for i, p := range c.queue {
		c.seq++
		res := Result{Cmd: p.cmd, Err: err, Seq: c.seq}
		if d := c.table.LookupID(p.dev); d != nil {
			res.Device = d.Snapshot()
		}
		p.result <- res
		if p.dev != 0 {
			c.table.Release(p.dev)
		}
		c.queue[i] = nil
	}
	c.queue = c.queue[:0]
}

// roundTrip writes a command and blocks until its reply. Records that
// arrive in between are queued for FetchEvent. It refuses to run while
// asynchronous commands are outstanding, since their replies would be
// indistinguishable from its own.
func (c *Conn) roundTrip(ctx context.Context, req protocol.Request) (*protocol.Record, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if len(c.queue) > 0 {
		return nil, newError(KindCommandInProgress, "Command already in progress", nil)
	}
	line, err := req.Line()
	if err != nil {
		return nil, newError(0, req.Cmd.String(), err)
	}
	if err := c.send(line); err != nil {
		return nil, err
	}
	defer c.rearm()

	for {
		l, err := c.readLine(ctx, true)
		if err != nil {
			if ctx.Err() != nil {
				c.stale++
			}
			return nil, err
		}
		if t := recordType(l); t == protocol.EventSuccess || t == protocol.EventError {
			rec, err := c.dec.Decode(l)
			if err != nil {
				return nil, newError(KindProtocol, "decode reply", err)
			}
			if c.stale > 0 {
				c.stale--
				continue
			}
			if rec.Type == protocol.EventError {
				return rec, replyError(rec)
			}
			return rec, nil
		}
		if err := c.pushEvent(l); err != nil {
			return nil, err
		}
	}
}

func replyError(rec *protocol.Record) error {
	return &protocol.DaemonError{Command: rec.Command, Code: rec.Code, MountCmdErr: rec.MountCmdErr}
}

// Pending returns the number of queued commands, the one on the wire
// included.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
