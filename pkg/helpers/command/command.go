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

// Package command runs external programs on behalf of hooks. Callers hold
// an Executor so tests can substitute a mock.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultWaitDelay bounds how long Run waits for a killed command's output
// pipes to close after its context is done.
const DefaultWaitDelay = 2 * time.Second

// stderrLimit caps the standard error kept for an Error.
const stderrLimit = 512

// Executor runs a program and waits for it to exit.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Error reports a program that could not be started or exited unsuccessfully.
type Error struct {
	Err    error
	Name   string
	Stderr string
}

func (e *Error) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status carried by err, or -1 if err does not
// come from a program that ran to completion.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// RealExecutor runs programs with os/exec. The zero value is ready to use.
type RealExecutor struct {
	WaitDelay time.Duration
}

// Run starts name and waits for it. On failure the tail of its standard
// error is attached to the returned *Error.
func (r *RealExecutor) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &Error{Name: name, Err: err, Stderr: tail(stderr.String())}
	}
	return nil
}

// Shell runs line through sh -c.
func Shell(ctx context.Context, e Executor, line string) error {
	return e.Run(ctx, "sh", "-c", line)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrLimit {
		s = s[len(s)-stderrLimit:]
	}
	return s
}
