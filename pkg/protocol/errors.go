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
)

// Daemon defined reply codes. Codes below 256 are errno values.
const (
	CodeAlreadyMounted    = (1 << 8) + 0x01
	CodePermissionDenied  = (1 << 8) + 0x02
	CodeNotMounted        = (1 << 8) + 0x03
	CodeDeviceBusy        = (1 << 8) + 0x04
	CodeNoSuchDevice      = (1 << 8) + 0x05
	CodeMaxConnReached    = (1 << 8) + 0x06
	CodeNotEjectable      = (1 << 8) + 0x07
	CodeUnknownCommand    = (1 << 8) + 0x08
	CodeUnknownOption     = (1 << 8) + 0x09
	CodeSyntaxError       = (1 << 8) + 0x0a
	CodeNoMedia           = (1 << 8) + 0x0b
	CodeUnknownFilesystem = (1 << 8) + 0x0c
	CodeUnknownError      = (1 << 8) + 0x0d
	CodeMountCmdFailed    = (1 << 8) + 0x0e
	CodeInvalidArgument   = (1 << 8) + 0x0f
	CodeStringTooLong     = (1 << 8) + 0x10
	CodeBadString         = (1 << 8) + 0x11
	CodeTimeout           = (1 << 8) + 0x12
	CodeNotAFile          = (1 << 8) + 0x13
)

var codeMessages = map[int]string{
	CodeAlreadyMounted:    "Device already mounted",
	CodePermissionDenied:  "Permission denied",
	CodeNotMounted:        "Device not mounted",
	CodeDeviceBusy:        "Device busy",
	CodeNoSuchDevice:      "No such device",
	CodeMaxConnReached:    "Max. number of connections reached",
	CodeNotEjectable:      "Device not ejectable",
	CodeUnknownCommand:    "Unknown command",
	CodeUnknownOption:     "Unknown option",
	CodeSyntaxError:       "Syntax error",
	CodeNoMedia:           "No media",
	CodeUnknownFilesystem: "Unknown filesystem",
	CodeUnknownError:      "Unknown error",
	CodeMountCmdFailed:    "Mount command failed",
	CodeInvalidArgument:   "Invalid argument",
	CodeStringTooLong:     "Command string too long",
	CodeBadString:         "Invalid command string",
	CodeTimeout:           "Timeout",
	CodeNotAFile:          "Not a regular file",
}

// CodeString renders a reply code. Errno values use the platform's error
// strings; daemon codes come from a fixed table.
func CodeString(code int) string {
	if code >= 0 && code < (1<<8) {
		return syscall.Errno(code).Error()
	}
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code %d", code)
}

// DaemonError is a non-zero reply code returned by the daemon for a command.
type DaemonError struct {
	Command     string
	Code        int
	MountCmdErr int
}

func (e *DaemonError) Error() string {
	if e.Code == CodeMountCmdFailed && e.MountCmdErr != 0 {
		return fmt.Sprintf("%s (exit status %d)", CodeString(e.Code), e.MountCmdErr)
	}
	return CodeString(e.Code)
}

// Is matches another DaemonError with the same code.
func (e *DaemonError) Is(target error) bool {
	var de *DaemonError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// ErrDeviceBusy matches daemon replies with CodeDeviceBusy via errors.Is.
var ErrDeviceBusy = &DaemonError{Code: CodeDeviceBusy}

// ReplyCode extracts the daemon reply code from err.
func ReplyCode(err error) (int, bool) {
	var de *DaemonError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return 0, false
}
