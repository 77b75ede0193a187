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
	"errors"
	"strings"
)

// Kind classifies a client error. Kinds combine, so a broken socket is
// reported as KindSys|KindFatal.
type Kind uint16

const (
	KindSys Kind = 1 << iota
	KindFatal
	KindLostConnection
	KindInvalidDevice
	KindQueueBusy
	KindCommandInProgress
	KindPermission
	KindProtocol
)

var (
	ErrFatal             = errors.New("fatal error")
	ErrLostConnection    = errors.New("lost connection to daemon")
	ErrInvalidDevice     = errors.New("invalid device")
	ErrQueueBusy         = errors.New("command queue busy")
	ErrCommandInProgress = errors.New("command already in progress")
	ErrPermission        = errors.New("permission denied")
	ErrProtocol          = errors.New("protocol error")
	ErrClosed            = errors.New("connection closed")
)

var kindSentinels = []struct {
	err  error
	kind Kind
}{
	{kind: KindFatal, err: ErrFatal},
	{kind: KindLostConnection, err: ErrLostConnection},
	{kind: KindInvalidDevice, err: ErrInvalidDevice},
	{kind: KindQueueBusy, err: ErrQueueBusy},
	{kind: KindCommandInProgress, err: ErrCommandInProgress},
	{kind: KindPermission, err: ErrPermission},
	{kind: KindProtocol, err: ErrProtocol},
}

// Error is the error type returned by Conn. Use errors.Is with the Err*
// sentinels to test for a kind.
type Error struct {
	Err  error
	Msg  string
	Kind Kind
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Fatal() {
		sb.WriteString("Fatal error: ")
	} else {
		sb.WriteString("Error: ")
	}
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	for _, s := range kindSentinels {
		if target == s.err {
			return e.Kind&s.kind != 0
		}
	}
	return false
}

// Fatal reports whether the session cannot continue.
func (e *Error) Fatal() bool {
	return e.Kind&KindFatal != 0
}

// IsFatal reports whether err carries the fatal kind.
func IsFatal(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Fatal()
}
