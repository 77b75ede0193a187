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

package helpers

import (
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/mrclksr/DSBMC-Cli/pkg/config"
)

// Dirs are the per-user directories of the client.
type Dirs struct {
	Config  string
	State   string
	Runtime string
}

// UserDirs returns the XDG base directories for the client.
func UserDirs() Dirs {
	return Dirs{
		Config:  filepath.Join(xdg.ConfigHome, config.AppName),
		State:   filepath.Join(xdg.StateHome, config.AppName),
		Runtime: filepath.Join(xdg.RuntimeDir, config.AppName),
	}
}

// LockPath is the per-user automount lock file.
func (d Dirs) LockPath() string {
	return filepath.Join(d.Runtime, config.LockFile)
}
