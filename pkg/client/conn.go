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

// Package client implements a connection to the DSBMD mount daemon. A Conn
// keeps a device table in sync with the daemon's announcements, queues
// commands so that only one is on the wire at a time, and buffers
// unsolicited records for the caller to fetch.
//
// All methods are safe for concurrent use. Every method that touches the
// socket, the device table, the command queue or the event queue does so
// under a single connection lock.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/syncutil"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// Conn is a session with the daemon.
type Conn struct {
	transport io.ReadWriteCloser
	lastErr   error
	lostErr   error
	dec       *protocol.Decoder
	table     *devices.Table
	chunks    chan chunk
	ready     chan struct{}
	done      chan struct{}
	buf       []byte
	queue     []*pending
	events    []string
	opts      Options
	seq       uint64
	stale     int
	mu        syncutil.Mutex
	closeOnce sync.Once
	lost      bool
	closed    bool
}

// New runs the handshake over an established transport and returns the
// connection with its device table filled in. The transport is closed if
// the handshake fails.
func New(ctx context.Context, transport io.ReadWriteCloser, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	c := &Conn{
		transport: transport,
		opts:      opts,
		dec:       protocol.NewDecoder(opts.WarnInterval),
		table:     devices.NewTable(opts.MaxDevices),
		chunks:    make(chan chunk, chunkBacklog),
		ready:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		buf:       make([]byte, 0, initialLineBuffer),
	}
	go c.readLoop()

	c.mu.Lock()
	err := c.handshake(ctx)
	if err == nil {
		c.rearm()
	}
	c.mu.Unlock()

	if err != nil {
		c.shutdown()
		return nil, err
	}
	log.Info().Int("devices", c.table.Len()).Msg("daemon handshake complete")
	return c, nil
}

// handshake reads the initial device list up to the end-of-list marker.
func (c *Conn) handshake(ctx context.Context) error {
	for {
		line, err := c.readLine(ctx, true)
		if err != nil {
			return c.fail(err)
		}
		rec, err := c.dec.Decode(line)
		if err != nil {
			return c.fail(newError(KindProtocol|KindFatal, "handshake", err))
		}

		switch rec.Type {
		case protocol.EventAdd:
			if _, err := c.table.Add(rec.Device); err != nil {
				return c.fail(newError(KindFatal, "handshake", err))
			}
		case protocol.EventEndOfList:
			return nil
		case protocol.EventError:
			if rec.Code == protocol.CodePermissionDenied {
				return c.fail(newError(KindPermission|KindFatal, "Permission denied", nil))
			}
			return c.fail(newError(KindProtocol|KindFatal, "handshake",
				&protocol.DaemonError{Command: rec.Command, Code: rec.Code, MountCmdErr: rec.MountCmdErr}))
		default:
			return c.fail(newError(KindProtocol|KindFatal,
				fmt.Sprintf("unexpected event (%s) received", rec.Type), nil))
		}
	}
}

// readLine returns the next complete record including its newline. In
// non-blocking mode an empty line with a nil error means no complete
// record is buffered.
func (c *Conn) readLine(ctx context.Context, block bool) (string, error) {
	for {
		if i := bytes.IndexByte(c.buf, '\n'); i >= 0 {
			line := string(c.buf[:i+1])
			n := copy(c.buf, c.buf[i+1:])
			c.buf = c.buf[:n]
			return line, nil
		}
		if c.lost {
			return "", c.lostErr
		}

		var ch chunk
		if block {
			select {
			case ch = <-c.chunks:
			case <-ctx.Done():
				return "", fmt.Errorf("waiting for daemon: %w", ctx.Err())
			case <-c.done:
				return "", newError(KindFatal, "read", ErrClosed)
			}
		} else {
			select {
			case ch = <-c.chunks:
			default:
				return "", nil
			}
		}

		if ch.err != nil {
			c.markLost(ch.err)
			return "", c.lostErr
		}
		c.buf = append(c.buf, ch.data...)
	}
}

func (c *Conn) send(line string) error {
	if c.lost {
		return c.lostErr
	}
	if c.closed {
		return newError(KindFatal, "write", ErrClosed)
	}
	if _, err := io.WriteString(c.transport, line); err != nil {
		return newError(KindSys|KindFatal, "write to daemon", err)
	}
	return nil
}

// markLost records that the peer went away. Every queued command is
// completed with the lost-connection error.
func (c *Conn) markLost(cause error) {
	if c.lost {
		return
	}
	if errors.Is(cause, io.EOF) {
		cause = nil
	}
	c.lost = true
	c.lostErr = newError(KindLostConnection|KindSys|KindFatal, "Lost connection to daemon", cause)
	c.failPending(c.lostErr)
	log.Error().Err(c.lostErr).Msg("connection lost")
}

func (c *Conn) fail(err error) error {
	c.lastErr = err
	return err
}

func (c *Conn) hasInput() bool {
	return len(c.events) > 0 || len(c.chunks) > 0 || bytes.IndexByte(c.buf, '\n') >= 0
}

// rearm signals Ready again if input is left over after the lock holder
// consumed from the transport. A lost connection keeps Ready signalled so
// that reactors get to see the error.
func (c *Conn) rearm() {
	if c.hasInput() || c.lost {
		c.signal()
	}
}

// Ready returns a channel that receives a value whenever unprocessed input
// may be available. Reactors wait on it and then call FetchEvent.
func (c *Conn) Ready() <-chan struct{} {
	return c.ready
}

// Err returns the error recorded by the last failed operation, or nil if
// the last operation succeeded.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Lost reports whether the daemon closed the connection. Once set it stays
// set.
func (c *Conn) Lost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// Devices returns a snapshot of the device table in table order, removed
// entries included.
func (c *Conn) Devices() []devices.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Snapshot()
}

// Device returns a snapshot of the device with the given id.
func (c *Conn) Device(id int) (devices.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.table.LookupID(id)
	if d == nil {
		return devices.Device{}, false
	}
	return d.Snapshot(), true
}

// DeviceByPath returns a snapshot of the live device with the given path.
func (c *Conn) DeviceByPath(path string) (devices.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.table.LookupPath(path)
	if d == nil || d.Removed {
		return devices.Device{}, false
	}
	return d.Snapshot(), true
}

// Retain keeps the device record alive after the daemon removes it, until
// a matching Release.
func (c *Conn) Retain(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Retain(id)
}

// Release drops a reference taken with Retain and frees the record if the
// device was removed and nothing else holds it.
func (c *Conn) Release(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table.Release(id)
}

// FreeDevice frees a removed device that nothing retains.
func (c *Conn) FreeDevice(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Free(id)
}

// Close says goodbye to the daemon and closes the transport. Queued
// commands complete with ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if !c.lost {
		if err := c.send("quit\n"); err != nil {
			log.Debug().Err(err).Msg("sending quit")
		}
	}
	c.closed = true
	c.failPending(newError(KindFatal, "close", ErrClosed))
	c.table.Clear()
	clear(c.events)
	c.events = c.events[:0]
	c.mu.Unlock()

	return c.shutdown()
}

func (c *Conn) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	if err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}
