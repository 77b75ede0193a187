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
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
)

const volidPrefix = "volid="

// Blacklist holds devices that are never mounted automatically. Entries
// are either volid=LABEL, matched without regard to case, or a device
// path, matched after resolving symlinks.
type Blacklist struct {
	fold   cases.Caser
	labels []string
	paths  []string
}

func NewBlacklist(entries []string) *Blacklist {
	b := &Blacklist{fold: cases.Fold()}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case strings.HasPrefix(e, volidPrefix):
			b.labels = append(b.labels, b.fold.String(strings.TrimPrefix(e, volidPrefix)))
		default:
			b.paths = append(b.paths, canonicalPath(e))
		}
	}
	return b
}

// Match reports whether d is blacklisted.
func (b *Blacklist) Match(d *devices.Device) bool {
	if len(b.labels) > 0 && d.VolID != "" {
		label := b.fold.String(d.VolID)
		for _, l := range b.labels {
			if l == label {
				return true
			}
		}
	}
	if len(b.paths) > 0 {
		path := canonicalPath(d.Path)
		for _, p := range b.paths {
			if p == path {
				return true
			}
		}
	}
	return false
}

func canonicalPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}
