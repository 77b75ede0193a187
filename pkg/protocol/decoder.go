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
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyRecord = errors.New("empty record")
	ErrNoEventType = errors.New("record has no event type")
)

// DeviceInfo holds the device fields carried by a record.
type DeviceInfo struct {
	Path       string
	VolID      string
	MountPoint string
	FSName     string
	Type       MediaType
	Caps       Capability
	Speed      uint8
}

// Record is one decoded daemon record.
type Record struct {
	Command     string
	Device      DeviceInfo
	MediaSize   uint64
	Used        uint64
	Free        uint64
	Code        int
	MountCmdErr int
	Type        EventType
}

// Reset clears every field so nothing leaks from the previous record.
func (r *Record) Reset() {
	*r = Record{}
}

type keyword struct {
	set func(r *Record, value string) error
	key string
}

func stringField(field func(r *Record) *string) func(*Record, string) error {
	return func(r *Record, v string) error {
		*field(r) = v
		return nil
	}
}

func intField(field func(r *Record) *int) func(*Record, string) error {
	return func(r *Record, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(r) = n
		return nil
	}
}

func uint64Field(field func(r *Record) *uint64) func(*Record, string) error {
	return func(r *Record, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		*field(r) = n
		return nil
	}
}

// keywords is ordered the same way the daemon documents them.
var keywords = []keyword{
	{key: "command", set: stringField(func(r *Record) *string { return &r.Command })},
	{key: "dev", set: stringField(func(r *Record) *string { return &r.Device.Path })},
	{key: "fs", set: stringField(func(r *Record) *string { return &r.Device.FSName })},
	{key: "volid", set: stringField(func(r *Record) *string { return &r.Device.VolID })},
	{key: "mntpt", set: stringField(func(r *Record) *string { return &r.Device.MountPoint })},
	{key: "type", set: func(r *Record, v string) error {
		if mt, ok := ParseMediaType(v); ok {
			r.Device.Type = mt
		}
		return nil
	}},
	{key: "speed", set: func(r *Record, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return err
		}
		r.Device.Speed = uint8(n)
		return nil
	}},
	{key: "code", set: intField(func(r *Record) *int { return &r.Code })},
	{key: "cmds", set: func(r *Record, v string) error {
		r.Device.Caps = ParseCapabilities(v)
		return nil
	}},
	{key: "mntcmderr", set: intField(func(r *Record) *int { return &r.MountCmdErr })},
	{key: "mediasize", set: uint64Field(func(r *Record) *uint64 { return &r.MediaSize })},
	{key: "used", set: uint64Field(func(r *Record) *uint64 { return &r.Used })},
	{key: "free", set: uint64Field(func(r *Record) *uint64 { return &r.Free })},
}

// Decoder turns wire records into Records. It owns a single Record that is
// reused for every call, so the result is only valid until the next Decode.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	warn rate.Sometimes
	rec  Record
}

// NewDecoder returns a Decoder whose unknown-keyword warnings are limited to
// one per interval.
func NewDecoder(warnInterval time.Duration) *Decoder {
	return &Decoder{warn: rate.Sometimes{First: 5, Interval: warnInterval}}
}

// Decode parses one record, with or without its trailing newline.
// Unknown keywords and malformed numbers are logged and skipped.
func (d *Decoder) Decode(line string) (*Record, error) {
	d.rec.Reset()

	line = strings.TrimSuffix(line, "\n")
	if line == "" {
		return nil, ErrEmptyRecord
	}

	for _, tok := range strings.Split(line, ":") {
		if tok == "" {
			continue
		}
		if len(tok) == 1 {
			t := EventType(tok[0])
			if !t.Valid() {
				d.warnf(tok, "unknown event type")
				continue
			}
			d.rec.Type = t
			continue
		}

		key, value, found := strings.Cut(tok, "=")
		kw := lookupKeyword(key)
		if !found || kw == nil {
			d.warnf(tok, "unknown keyword")
			continue
		}
		if err := kw.set(&d.rec, value); err != nil {
			d.warnf(tok, "malformed value")
		}
	}

	if d.rec.Type == 0 {
		return nil, ErrNoEventType
	}
	return &d.rec, nil
}

func (d *Decoder) warnf(token, msg string) {
	d.warn.Do(func() {
		log.Warn().Str("token", token).Msg(msg)
	})
}

func lookupKeyword(key string) *keyword {
	for i := range keywords {
		if keywords[i].key == key {
			return &keywords[i]
		}
	}
	return nil
}
