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

	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// MountAsync queues a mount of the device. The device's mount point is
// updated before the result is delivered.
func (c *Conn) MountAsync(id int) (<-chan Result, error) {
	return c.submit(id, protocol.Request{Cmd: protocol.CmdMount})
}

// UnmountAsync queues an unmount of the device.
func (c *Conn) UnmountAsync(id int, force bool) (<-chan Result, error) {
	return c.submit(id, protocol.Request{Cmd: protocol.CmdUnmount, Force: force})
}

// EjectAsync queues an eject of the device.
func (c *Conn) EjectAsync(id int, force bool) (<-chan Result, error) {
	return c.submit(id, protocol.Request{Cmd: protocol.CmdEject, Force: force})
}

// SetSpeedAsync queues a change of the device's reading speed.
func (c *Conn) SetSpeedAsync(id, speed int) (<-chan Result, error) {
	return c.submit(id, protocol.Request{Cmd: protocol.CmdSpeed, Speed: speed})
}

// SizeAsync queues a query of the device's media size and usage.
func (c *Conn) SizeAsync(id int) (<-chan Result, error) {
	return c.submit(id, protocol.Request{Cmd: protocol.CmdSize})
}

// MDAttachAsync queues attaching a disk image as a memory disk.
func (c *Conn) MDAttachAsync(image string) (<-chan Result, error) {
	return c.submit(0, protocol.Request{Cmd: protocol.CmdMDAttach, Arg: image})
}

// Mount mounts the device and waits for the reply. Daemon rejections are
// returned as *protocol.DaemonError.
func (c *Conn) Mount(ctx context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil

	d, err := c.resolve(id)
	if err != nil {
		return c.fail(err)
	}
	rec, err := c.roundTrip(ctx, protocol.Request{Cmd: protocol.CmdMount, Arg: d.Path})
	if err != nil {
		return c.syncFail(err)
	}
	if rec.Device.MountPoint == "" {
		return c.fail(newError(KindProtocol, "mount reply without mount point", nil))
	}
	d.MountPoint = rec.Device.MountPoint
	d.Mounted = true
	return nil
}

// Unmount unmounts the device and waits for the reply.
func (c *Conn) Unmount(ctx context.Context, id int, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil

	d, err := c.resolve(id)
	if err != nil {
		return c.fail(err)
	}
	if _, err := c.roundTrip(ctx, protocol.Request{Cmd: protocol.CmdUnmount, Arg: d.Path, Force: force}); err != nil {
		return c.syncFail(err)
	}
	d.MountPoint = ""
	d.Mounted = false
	return nil
}

// Eject ejects the device and waits for the reply.
func (c *Conn) Eject(ctx context.Context, id int, force bool) error {
	return c.simple(ctx, id, protocol.Request{Cmd: protocol.CmdEject, Force: force})
}

// SetSpeed sets the device's reading speed and waits for the reply.
func (c *Conn) SetSpeed(ctx context.Context, id, speed int) error {
	return c.simple(ctx, id, protocol.Request{Cmd: protocol.CmdSpeed, Speed: speed})
}

// Size queries the device's media size and usage and stores them in the
// device table.
func (c *Conn) Size(ctx context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil

	d, err := c.resolve(id)
	if err != nil {
		return c.fail(err)
	}
	rec, err := c.roundTrip(ctx, protocol.Request{Cmd: protocol.CmdSize, Arg: d.Path})
	if err != nil {
		return c.syncFail(err)
	}
	d.MediaSize = rec.MediaSize
	d.Used = rec.Used
	d.Free = rec.Free
	return nil
}

// MDAttach attaches a disk image as a memory disk and waits for the reply.
func (c *Conn) MDAttach(ctx context.Context, image string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil

	_, err := c.roundTrip(ctx, protocol.Request{Cmd: protocol.CmdMDAttach, Arg: image})
	return c.syncFail(err)
}

func (c *Conn) simple(ctx context.Context, id int, req protocol.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil

	d, err := c.resolve(id)
	if err != nil {
		return c.fail(err)
	}
	req.Arg = d.Path
	_, err = c.roundTrip(ctx, req)
	return c.syncFail(err)
}

// syncFail records client errors as the last error. Daemon replies are
// returned as they are.
func (c *Conn) syncFail(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := protocol.ReplyCode(err); ok {
		return err
	}
	return c.fail(err)
}
