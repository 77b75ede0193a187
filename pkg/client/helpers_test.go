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
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeDaemon is the server end of a pipe. Lines written by the client are
// collected on lines.
type fakeDaemon struct {
	conn  net.Conn
	lines chan string
}

func newFakeDaemon(t *testing.T) (d *fakeDaemon, clientEnd net.Conn) {
	t.Helper()
	server, clientEnd := net.Pipe()
	d = &fakeDaemon{conn: server, lines: make(chan string, 64)}
	go func() {
		defer close(d.lines)
		r := bufio.NewReader(server)
		for {
			l, err := r.ReadString('\n')
			if err != nil {
				return
			}
			d.lines <- l
		}
	}()
	t.Cleanup(func() { _ = server.Close() })
	return d, clientEnd
}

// connect starts a fake daemon that sends the handshake records and
// returns the client connected to it.
func connect(t *testing.T, opts Options, handshake ...string) (*fakeDaemon, *Conn) {
	t.Helper()
	d, clientEnd := newFakeDaemon(t)

	errc := d.writeAsync(handshake...)
	c, err := New(context.Background(), clientEnd, opts)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	t.Cleanup(func() { _ = c.Close() })
	return d, c
}

func (d *fakeDaemon) writeAsync(records ...string) <-chan error {
	errc := make(chan error, 1)
	go func() {
		for _, r := range records {
			if _, err := io.WriteString(d.conn, r+"\n"); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()
	return errc
}

func (d *fakeDaemon) write(t *testing.T, records ...string) {
	t.Helper()
	for _, r := range records {
		_, err := io.WriteString(d.conn, r+"\n")
		require.NoError(t, err)
	}
}

func (d *fakeDaemon) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case l := <-d.lines:
		require.Equal(t, want, l)
	case <-time.After(waitTimeout):
		t.Fatalf("daemon never received %q", want)
	}
}

func (d *fakeDaemon) expectNone(t *testing.T) {
	t.Helper()
	select {
	case l := <-d.lines:
		t.Fatalf("daemon received unexpected %q", l)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitResult processes incoming records until the result arrives.
func waitResult(t *testing.T, c *Conn, ch <-chan Result) Result {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case r := <-ch:
			return r
		case <-c.Ready():
			_, err := c.FetchEvent()
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("timed out waiting for command result")
		}
	}
}

// waitEvent processes incoming records until one yields an event.
func waitEvent(t *testing.T, c *Conn) *Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case <-c.Ready():
			ev, err := c.FetchEvent()
			require.NoError(t, err)
			if ev != nil {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}
