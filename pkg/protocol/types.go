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

// Package protocol implements the DSBMD wire grammar: newline terminated,
// colon separated records sent by the daemon, and the request lines sent
// by clients.
package protocol

import "strings"

// SocketPath is the well-known location of the daemon socket.
const SocketPath = "/var/run/dsbmd.socket"

// EventType is the single character tag that starts every daemon record.
type EventType byte

const (
	EventSuccess   EventType = 'O'
	EventWarning   EventType = 'W'
	EventError     EventType = 'E'
	EventInfo      EventType = 'I'
	EventAdd       EventType = '+'
	EventDel       EventType = '-'
	EventEndOfList EventType = '='
	EventMount     EventType = 'M'
	EventUnmount   EventType = 'U'
	EventSpeed     EventType = 'V'
	EventShutdown  EventType = 'S'
)

var eventNames = map[EventType]string{
	EventSuccess:   "success",
	EventWarning:   "warning",
	EventError:     "error",
	EventInfo:      "info",
	EventAdd:       "add",
	EventDel:       "remove",
	EventEndOfList: "end-of-list",
	EventMount:     "mount",
	EventUnmount:   "unmount",
	EventSpeed:     "speed",
	EventShutdown:  "shutdown",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the tags the daemon sends.
func (t EventType) Valid() bool {
	_, ok := eventNames[t]
	return ok
}

// IsReply reports whether records of this type complete a pending command.
func (t EventType) IsReply() bool {
	return t == EventSuccess || t == EventError
}

// MediaType identifies the kind of medium in a device.
type MediaType uint8

const (
	MediaUnknown MediaType = iota
	MediaHDD
	MediaUSBDisk
	MediaDataCD
	MediaAudioCD
	MediaRawCD
	MediaDVD
	MediaVCD
	MediaSVCD
	MediaFloppy
	MediaMMC
	MediaMTP
	MediaPTP
)

var mediaTypeNames = []struct {
	name string
	typ  MediaType
}{
	{"AUDIOCD", MediaAudioCD},
	{"DATACD", MediaDataCD},
	{"RAWCD", MediaRawCD},
	{"USBDISK", MediaUSBDisk},
	{"FLOPPY", MediaFloppy},
	{"DVD", MediaDVD},
	{"VCD", MediaVCD},
	{"SVCD", MediaSVCD},
	{"HDD", MediaHDD},
	{"MMC", MediaMMC},
	{"MTP", MediaMTP},
	{"PTP", MediaPTP},
}

// ParseMediaType maps a wire name such as "USBDISK" to its MediaType.
func ParseMediaType(name string) (MediaType, bool) {
	for _, mt := range mediaTypeNames {
		if mt.name == name {
			return mt.typ, true
		}
	}
	return MediaUnknown, false
}

func (m MediaType) String() string {
	for _, mt := range mediaTypeNames {
		if mt.typ == m {
			return mt.name
		}
	}
	return "UNKNOWN"
}

// Playable reports whether media of this type can be handed to a player.
func (m MediaType) Playable() bool {
	switch m {
	case MediaAudioCD, MediaDVD, MediaSVCD, MediaVCD:
		return true
	default:
		return false
	}
}

// Capability is a bitset of the operations a device supports.
type Capability uint8

const (
	CapMount Capability = 1 << iota
	CapUnmount
	CapEject
	CapPlay
	CapOpen
	CapSpeed
	CapSize
	CapMDAttach
)

// capabilityNames lists the names accepted in a cmds= value. PLAY and OPEN
// are never sent by the daemon; they are derived locally.
var capabilityNames = []struct {
	name string
	cap  Capability
}{
	{"mount", CapMount},
	{"unmount", CapUnmount},
	{"eject", CapEject},
	{"speed", CapSpeed},
	{"size", CapSize},
	{"mdattach", CapMDAttach},
}

// ParseCapabilities maps a comma separated cmds= value to a bitset.
// Unknown names are ignored.
func ParseCapabilities(list string) Capability {
	var caps Capability
	for _, name := range strings.Split(list, ",") {
		for _, cn := range capabilityNames {
			if cn.name == name {
				caps |= cn.cap
			}
		}
	}
	return caps
}

// Has reports whether every bit of other is set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	names := make([]string, 0, 8)
	for _, cn := range []struct {
		name string
		cap  Capability
	}{
		{"mount", CapMount},
		{"unmount", CapUnmount},
		{"eject", CapEject},
		{"play", CapPlay},
		{"open", CapOpen},
		{"speed", CapSpeed},
		{"size", CapSize},
		{"mdattach", CapMDAttach},
	} {
		if c&cn.cap != 0 {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, ",")
}
