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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecode_AddRecord(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("+:dev=/dev/da1:type=USBDISK:cmds=mount,unmount:fs=msdosfs:volid=STICK\n")
	require.NoError(t, err)

	assert.Equal(t, EventAdd, rec.Type)
	assert.Equal(t, "/dev/da1", rec.Device.Path)
	assert.Equal(t, MediaUSBDisk, rec.Device.Type)
	assert.Equal(t, CapMount|CapUnmount, rec.Device.Caps)
	assert.Equal(t, "msdosfs", rec.Device.FSName)
	assert.Equal(t, "STICK", rec.Device.VolID)
	assert.Empty(t, rec.Device.MountPoint)
}

func TestDecode_SizeReply(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("O:mediasize=1000:used=400:free=600")
	require.NoError(t, err)

	assert.Equal(t, EventSuccess, rec.Type)
	assert.Equal(t, uint64(1000), rec.MediaSize)
	assert.Equal(t, uint64(400), rec.Used)
	assert.Equal(t, uint64(600), rec.Free)
}

func TestDecode_ErrorReply(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("E:code=270:mntcmderr=3:command=mount /dev/da1")
	require.NoError(t, err)

	assert.Equal(t, EventError, rec.Type)
	assert.Equal(t, CodeMountCmdFailed, rec.Code)
	assert.Equal(t, 3, rec.MountCmdErr)
	assert.Equal(t, "mount /dev/da1", rec.Command)
}

func TestDecode_ResetsBetweenRecords(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	_, err := d.Decode("+:dev=/dev/cd0:type=AUDIOCD:volid=X:mntpt=/mnt/x:cmds=eject:speed=8:code=1")
	require.NoError(t, err)

	rec, err := d.Decode("-:dev=/dev/da0")
	require.NoError(t, err)

	assert.Equal(t, EventDel, rec.Type)
	assert.Equal(t, "/dev/da0", rec.Device.Path)
	assert.Empty(t, rec.Device.VolID)
	assert.Empty(t, rec.Device.MountPoint)
	assert.Equal(t, MediaUnknown, rec.Device.Type)
	assert.Zero(t, rec.Device.Caps)
	assert.Zero(t, rec.Device.Speed)
	assert.Zero(t, rec.Code)
}

func TestDecode_UnknownKeywordSkipped(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("M:dev=/dev/da1:color=blue:mntpt=/media/da1:?")
	require.NoError(t, err)

	assert.Equal(t, EventMount, rec.Type)
	assert.Equal(t, "/dev/da1", rec.Device.Path)
	assert.Equal(t, "/media/da1", rec.Device.MountPoint)
}

func TestDecode_UnknownTypeNameLeavesType(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("+:dev=/dev/cd0:type=DATACD:type=BLURAY")
	require.NoError(t, err)
	assert.Equal(t, MediaDataCD, rec.Device.Type)
}

func TestDecode_UnknownCommandNamesIgnored(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("+:dev=/dev/da1:cmds=mount,levitate,size")
	require.NoError(t, err)
	assert.Equal(t, CapMount|CapSize, rec.Device.Caps)
}

func TestDecode_MalformedNumberDecodesZero(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)
	rec, err := d.Decode("V:dev=/dev/cd0:speed=fast")
	require.NoError(t, err)
	assert.Zero(t, rec.Device.Speed)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	d := NewDecoder(time.Minute)

	_, err := d.Decode("\n")
	require.ErrorIs(t, err, ErrEmptyRecord)

	_, err = d.Decode("dev=/dev/da1")
	require.ErrorIs(t, err, ErrNoEventType)
}

func TestPropertyDecodeNeverLeaksFields(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		d := NewDecoder(time.Hour)

		first := "+:dev=" + rapid.StringMatching(`/dev/[a-z]{2,4}[0-9]`).Draw(t, "dev") +
			":volid=" + rapid.StringMatching(`[A-Z]{1,8}`).Draw(t, "volid") +
			":mntpt=/media/x:code=" + rapid.StringMatching(`[1-9][0-9]{0,2}`).Draw(t, "code")
		if _, err := d.Decode(first); err != nil {
			t.Fatalf("decode %q: %v", first, err)
		}

		rec, err := d.Decode("U")
		if err != nil {
			t.Fatalf("decode U: %v", err)
		}
		if rec.Device.Path != "" || rec.Device.VolID != "" || rec.Device.MountPoint != "" || rec.Code != 0 {
			t.Fatalf("stale fields after reset: %+v", *rec)
		}
	})
}
