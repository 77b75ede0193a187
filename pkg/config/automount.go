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

package config

import "slices"

type Automount struct {
	Hooks           Hooks    `toml:"hooks,omitempty"`
	Blacklist       []string `toml:"blacklist,omitempty,multiline"`
	UnmountInterval int      `toml:"unmount_interval" validate:"min=1,max=86400"`
	AutoUnmount     bool     `toml:"auto_unmount"`
}

// Hooks are shell command templates run on device events. An empty
// template disables the hook.
type Hooks struct {
	Add     string `toml:"add,omitempty"`
	Remove  string `toml:"remove,omitempty"`
	Mount   string `toml:"mount,omitempty"`
	Unmount string `toml:"unmount,omitempty"`
	Speed   string `toml:"speed,omitempty"`
}

func (c *Instance) AutoUnmount() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Automount.AutoUnmount
}

func (c *Instance) SetAutoUnmount(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Automount.AutoUnmount = enabled
}

func (c *Instance) Blacklist() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Automount.Blacklist)
}

func (c *Instance) SetBlacklist(entries []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Automount.Blacklist = slices.Clone(entries)
}

func (c *Instance) Hooks() Hooks {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Automount.Hooks
}

func (c *Instance) SetHooks(h Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Automount.Hooks = h
}
