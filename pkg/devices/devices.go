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

// Package devices holds the client's directory of devices known from the
// daemon. A Table is not safe for concurrent use; the owning connection
// serialises access with its own mutex.
package devices

import (
	"errors"
	"fmt"

	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// DefaultMaxDevices matches the daemon's own device limit.
const DefaultMaxDevices = 64

var (
	ErrDuplicate = errors.New("device already present")
	ErrTableFull = errors.New("device table full")
)

// Device is a removable device as reported by the daemon.
type Device struct {
	Path       string
	VolID      string
	MountPoint string
	FSName     string
	ID         int
	MediaSize  uint64
	Used       uint64
	Free       uint64
	refs       int
	Type       protocol.MediaType
	Caps       protocol.Capability
	Speed      uint8
	Mounted    bool
	Removed    bool
}

// Snapshot returns a copy of d that callers may keep after the table lock
// has been released.
func (d *Device) Snapshot() Device {
	c := *d
	c.refs = 0
	return c
}

// Table is an ordered device directory.
type Table struct {
	devs   []*Device
	limit  int
	nextID int
}

// NewTable returns an empty table holding at most limit devices. A limit
// of zero or less selects DefaultMaxDevices.
func NewTable(limit int) *Table {
	if limit <= 0 {
		limit = DefaultMaxDevices
	}
	return &Table{limit: limit, nextID: 1}
}

// Len returns the number of entries, removed ones included.
func (t *Table) Len() int {
	return len(t.devs)
}

// Add inserts a device built from info. It fails with ErrDuplicate if a
// live device with the same path exists, leaving the table untouched.
func (t *Table) Add(info protocol.DeviceInfo) (*Device, error) {
	if d := t.LookupPath(info.Path); d != nil && !d.Removed {
		return nil, fmt.Errorf("%s: %w", info.Path, ErrDuplicate)
	}
	if len(t.devs) >= t.limit {
		return nil, fmt.Errorf("%s: %w", info.Path, ErrTableFull)
	}

	d := &Device{
		ID:         t.nextID,
		Path:       info.Path,
		VolID:      info.VolID,
		MountPoint: info.MountPoint,
		FSName:     info.FSName,
		Type:       info.Type,
		Caps:       info.Caps,
		Speed:      info.Speed,
		Mounted:    info.MountPoint != "",
	}
	t.nextID++

	if d.VolID == "" {
		d.VolID = defaultLabel(info.Type, info.Path)
	}
	if info.Type.Playable() {
		d.Caps |= protocol.CapPlay
	}
	if info.Caps.Has(protocol.CapMount) {
		d.Caps |= protocol.CapOpen
	}

	t.devs = append(t.devs, d)
	return d, nil
}

func defaultLabel(mt protocol.MediaType, path string) string {
	switch mt {
	case protocol.MediaAudioCD:
		return "Audio CD"
	case protocol.MediaDVD:
		return "DVD"
	case protocol.MediaSVCD:
		return "SVCD"
	case protocol.MediaVCD:
		return "VCD"
	default:
		return path
	}
}

// Remove hard deletes the device at path, preferring a live entry over a
// removed one. The remaining entries keep their relative order.
func (t *Table) Remove(path string) bool {
	d := t.LookupPath(path)
	if d == nil {
		return false
	}
	return t.RemoveID(d.ID)
}

// RemoveID hard deletes the device with the given id.
func (t *Table) RemoveID(id int) bool {
	for i, d := range t.devs {
		if d.ID == id {
			copy(t.devs[i:], t.devs[i+1:])
			t.devs[len(t.devs)-1] = nil
			t.devs = t.devs[:len(t.devs)-1]
			return true
		}
	}
	return false
}

// MarkRemoved soft deletes the device at path. The record stays readable
// for pending commands and workers until it is compacted or freed.
func (t *Table) MarkRemoved(path string) *Device {
	d := t.LookupPath(path)
	if d == nil {
		return nil
	}
	d.Removed = true
	return d
}

// Compact reclaims the trailing run of removed entries that nobody retains.
// Removed entries in the interior of the table are left alone until they
// become trailing, and live entries never move.
func (t *Table) Compact() int {
	n := len(t.devs)
	for n > 0 && t.devs[n-1].Removed && t.devs[n-1].refs == 0 {
		t.devs[n-1] = nil
		n--
	}
	reclaimed := len(t.devs) - n
	t.devs = t.devs[:n]
	return reclaimed
}

// LookupPath finds a device by path, preferring a live entry and falling
// back to a removed one so that late replies can still be resolved.
func (t *Table) LookupPath(path string) *Device {
	var removed *Device
	for _, d := range t.devs {
		if d.Path != path {
			continue
		}
		if !d.Removed {
			return d
		}
		if removed == nil {
			removed = d
		}
	}
	return removed
}

// LookupID finds a device by id. It returns nil once the record is freed.
func (t *Table) LookupID(id int) *Device {
	for _, d := range t.devs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Retain marks the device as needed by a worker or a pending command,
// keeping it from being compacted away after removal.
func (t *Table) Retain(id int) bool {
	d := t.LookupID(id)
	if d == nil {
		return false
	}
	d.refs++
	return true
}

// Release drops one reference taken with Retain. A removed device with no
// references left is freed; Release reports whether that happened.
func (t *Table) Release(id int) bool {
	d := t.LookupID(id)
	if d == nil {
		return false
	}
	if d.refs > 0 {
		d.refs--
	}
	if d.Removed && d.refs == 0 {
		return t.RemoveID(id)
	}
	return false
}

// Free hard deletes a removed device unless something still retains it.
func (t *Table) Free(id int) bool {
	d := t.LookupID(id)
	if d == nil || !d.Removed || d.refs > 0 {
		return false
	}
	return t.RemoveID(id)
}

// Snapshot copies every entry in table order.
func (t *Table) Snapshot() []Device {
	out := make([]Device, 0, len(t.devs))
	for _, d := range t.devs {
		out = append(out, d.Snapshot())
	}
	return out
}

// Clear drops every entry. Ids keep increasing afterwards.
func (t *Table) Clear() {
	clear(t.devs)
	t.devs = t.devs[:0]
}
