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
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// Event is an unsolicited record from the daemon, after it has been applied
// to the device table.
type Event struct {
	// Device is a snapshot of the affected device. It is nil for
	// shutdown events.
	Device *devices.Device
	Code   int
	Type   protocol.EventType
}

// FetchEvent moves every complete record that has arrived into the event
// queue, then processes the oldest one. It returns the event for device
// and shutdown records, and nil if the queue was empty or the processed
// record was a command reply. Device table changes are applied before it
// returns.
func (c *Conn) FetchEvent() (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.rearm()
	c.lastErr = nil

	if c.closed {
		return nil, c.fail(newError(KindFatal, "fetch event", ErrClosed))
	}
	for len(c.events) < c.opts.MaxEvents {
		line, err := c.readLine(context.Background(), false)
		if err != nil {
			if c.lost && len(c.events) > 0 {
				// Deliver what arrived before the peer went away.
				break
			}
			return nil, c.fail(err)
		}
		if line == "" {
			break
		}
		c.events = append(c.events, line)
	}
	if len(c.events) == 0 {
		if c.lost {
			return nil, c.fail(c.lostErr)
		}
		return nil, nil
	}

	line := c.events[0]
	c.events[0] = ""
	c.events = c.events[1:]

	ev, err := c.process(line)
	if err != nil {
		return nil, c.fail(err)
	}
	return ev, nil
}

// pushEvent queues a record read while waiting for a synchronous reply.
func (c *Conn) pushEvent(line string) error {
	if len(c.events) >= c.opts.MaxEvents {
		return newError(KindFatal, fmt.Sprintf("event queue limit of %d exceeded", c.opts.MaxEvents), nil)
	}
	c.events = append(c.events, line)
	return nil
}

func (c *Conn) process(line string) (*Event, error) {
	rec, err := c.dec.Decode(line)
	if err != nil {
		return nil, newError(KindProtocol, "decode record", err)
	}

	switch rec.Type {
	case protocol.EventSuccess, protocol.EventError:
		return nil, c.complete(rec)
	case protocol.EventWarning, protocol.EventInfo:
		log.Info().
			Str("type", rec.Type.String()).
			Str("command", rec.Command).
			Int("code", rec.Code).
			Msg("daemon message")
		return nil, nil
	case protocol.EventEndOfList:
		return nil, nil
	case protocol.EventShutdown:
		log.Info().Msg("daemon is shutting down")
		return &Event{Type: rec.Type}, nil
	case protocol.EventAdd:
		d, err := c.table.Add(rec.Device)
		if err != nil {
			return nil, newError(KindProtocol, "add device", err)
		}
		return newEvent(rec, d), nil
	case protocol.EventDel:
		d := c.table.MarkRemoved(rec.Device.Path)
		if d == nil {
			log.Warn().Str("dev", rec.Device.Path).Msg("removal of unknown device")
			return nil, nil
		}
		ev := newEvent(rec, d)
		c.table.Compact()
		return ev, nil
	case protocol.EventMount, protocol.EventUnmount, protocol.EventSpeed:
		d := c.table.LookupPath(rec.Device.Path)
		if d == nil {
			return nil, newError(KindProtocol, fmt.Sprintf("Unknown device %s", rec.Device.Path), nil)
		}
		switch rec.Type {
		case protocol.EventMount:
			d.MountPoint = rec.Device.MountPoint
			d.Mounted = d.MountPoint != ""
		case protocol.EventUnmount:
			d.MountPoint = ""
			d.Mounted = false
		default:
			d.Speed = rec.Device.Speed
		}
		return newEvent(rec, d), nil
	default:
		return nil, newError(KindProtocol, fmt.Sprintf("invalid event %q received", byte(rec.Type)), nil)
	}
}

func newEvent(rec *protocol.Record, d *devices.Device) *Event {
	snap := d.Snapshot()
	return &Event{Type: rec.Type, Code: rec.Code, Device: &snap}
}

// recordType finds the type tag of a raw record without decoding it.
func recordType(line string) protocol.EventType {
	var t protocol.EventType
	for _, tok := range strings.Split(strings.TrimSuffix(line, "\n"), ":") {
		if len(tok) == 1 && protocol.EventType(tok[0]).Valid() {
			t = protocol.EventType(tok[0])
		}
	}
	return t
}
