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
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
		req  Request
	}{
		{name: "mount", req: Request{Cmd: CmdMount, Arg: "/dev/da1"}, want: "mount /dev/da1\n"},
		{name: "unmount", req: Request{Cmd: CmdUnmount, Arg: "/dev/da1"}, want: "unmount /dev/da1\n"},
		{name: "forced unmount", req: Request{Cmd: CmdUnmount, Arg: "/dev/da1", Force: true}, want: "unmount -f /dev/da1\n"},
		{name: "forced eject", req: Request{Cmd: CmdEject, Arg: "/dev/cd0", Force: true}, want: "eject -f /dev/cd0\n"},
		{name: "speed", req: Request{Cmd: CmdSpeed, Arg: "/dev/cd0", Speed: 4}, want: "speed /dev/cd0 4\n"},
		{name: "size", req: Request{Cmd: CmdSize, Arg: "/dev/da1"}, want: "size /dev/da1\n"},
		{name: "mdattach", req: Request{Cmd: CmdMDAttach, Arg: "/tmp/disk.img"}, want: "mdattach /tmp/disk.img\n"},
		{name: "force ignored for mount", req: Request{Cmd: CmdMount, Arg: "/dev/da1", Force: true}, want: "mount /dev/da1\n"},
		{name: "quit", req: Request{Cmd: CmdQuit}, want: "quit\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.req.Line()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestLine_RejectsBadArguments(t *testing.T) {
	t.Parallel()

	_, err := Request{Cmd: CmdMount}.Line()
	require.ErrorIs(t, err, ErrBadArgument)

	_, err = Request{Cmd: CmdMount, Arg: "/dev/da1\nquit"}.Line()
	require.ErrorIs(t, err, ErrBadArgument)

	_, err = Request{Cmd: Command(99), Arg: "x"}.Line()
	require.Error(t, err)
}

func TestCodeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, syscall.EACCES.Error(), CodeString(int(syscall.EACCES)))
	assert.Equal(t, "Device busy", CodeString(CodeDeviceBusy))
	assert.Equal(t, "Not a regular file", CodeString(CodeNotAFile))
	assert.Equal(t, "Unknown error code 999", CodeString(999))
}

func TestDaemonError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("unmount: %w", &DaemonError{Code: CodeDeviceBusy})
	require.ErrorIs(t, err, ErrDeviceBusy)
	assert.NotErrorIs(t, err, &DaemonError{Code: CodeNoMedia})

	code, ok := ReplyCode(err)
	assert.True(t, ok)
	assert.Equal(t, CodeDeviceBusy, code)

	_, ok = ReplyCode(errors.New("plain"))
	assert.False(t, ok)

	mc := &DaemonError{Code: CodeMountCmdFailed, MountCmdErr: 2}
	assert.Equal(t, "Mount command failed (exit status 2)", mc.Error())
}

func TestMediaTypeAndCapabilities(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		"HDD", "USBDISK", "DATACD", "AUDIOCD", "RAWCD", "DVD",
		"VCD", "SVCD", "FLOPPY", "MMC", "MTP", "PTP",
	} {
		mt, ok := ParseMediaType(name)
		require.True(t, ok, name)
		assert.Equal(t, name, mt.String())
	}

	_, ok := ParseMediaType("usbdisk")
	assert.False(t, ok, "media type names are case sensitive")

	assert.True(t, MediaVCD.Playable())
	assert.False(t, MediaUSBDisk.Playable())

	caps := ParseCapabilities("mount,unmount,eject")
	assert.True(t, caps.Has(CapMount|CapEject))
	assert.False(t, caps.Has(CapSize))
	assert.Equal(t, "mount,unmount,eject", caps.String())
	assert.Equal(t, "mount,open", (CapMount | CapOpen).String())
}

func TestEventType(t *testing.T) {
	t.Parallel()

	assert.True(t, EventSuccess.IsReply())
	assert.True(t, EventError.IsReply())
	assert.False(t, EventMount.IsReply())
	assert.Equal(t, "unmount", EventUnmount.String())
	assert.False(t, EventType('x').Valid())
}
