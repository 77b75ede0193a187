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

package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadArgument is returned for request arguments that cannot be sent on
// a line based wire.
var ErrBadArgument = errors.New("argument must be a non-empty single line")

// Command is the verb of a client request.
type Command uint8

const (
	CmdMount Command = iota + 1
	CmdUnmount
	CmdEject
	CmdSpeed
	CmdSize
	CmdMDAttach
	CmdQuit
)

var commandVerbs = map[Command]string{
	CmdMount:    "mount",
	CmdUnmount:  "unmount",
	CmdEject:    "eject",
	CmdSpeed:    "speed",
	CmdSize:     "size",
	CmdMDAttach: "mdattach",
	CmdQuit:     "quit",
}

func (c Command) String() string {
	if verb, ok := commandVerbs[c]; ok {
		return verb
	}
	return "unknown"
}

// Request is a single client request line.
type Request struct {
	// Arg is the device path, or the image path for mdattach.
	Arg   string
	Speed int
	Cmd   Command
	Force bool
}

// Line encodes the request including its trailing newline.
func (r Request) Line() (string, error) {
	verb, ok := commandVerbs[r.Cmd]
	if !ok {
		return "", fmt.Errorf("unknown command %d", r.Cmd)
	}
	if r.Cmd == CmdQuit {
		return "quit\n", nil
	}
	if r.Arg == "" || strings.ContainsAny(r.Arg, "\n\r") {
		return "", fmt.Errorf("%s: %w", verb, ErrBadArgument)
	}

	var sb strings.Builder
	sb.WriteString(verb)
	if r.Force && (r.Cmd == CmdUnmount || r.Cmd == CmdEject) {
		sb.WriteString(" -f")
	}
	sb.WriteByte(' ')
	sb.WriteString(r.Arg)
	if r.Cmd == CmdSpeed {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(r.Speed))
	}
	sb.WriteByte('\n')
	return sb.String(), nil
}
