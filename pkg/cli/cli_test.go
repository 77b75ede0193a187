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

package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrclksr/DSBMC-Cli/pkg/client"
	"github.com/mrclksr/DSBMC-Cli/pkg/config"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers"
	testhelpers "github.com/mrclksr/DSBMC-Cli/pkg/testing/helpers"
)

var defaultHandshake = []string{
	"+:dev=/dev/da0:type=USBDISK:cmds=mount,unmount,size:volid=STICK:fs=msdosfs",
	"+:dev=/dev/cd0:type=AUDIOCD:cmds=eject,speed:speed=8",
	"+:dev=/dev/da1:type=USBDISK:cmds=mount,unmount:fs=ufs:volid=BACKUP:mntpt=/media/BACKUP",
	"=",
}

// daemonScript answers client requests with canned records.
type daemonScript struct {
	replies   map[string][]string
	handshake []string
	events    []string
	// hangup closes the daemon end right after the events are sent.
	hangup bool
}

func (s daemonScript) dial(t *testing.T) func(context.Context, client.Options) (*client.Conn, error) {
	t.Helper()
	return func(ctx context.Context, opts client.Options) (*client.Conn, error) {
		server, clientEnd := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })

		go func() {
			send := func(records []string) bool {
				for _, rec := range records {
					if _, err := io.WriteString(server, rec+"\n"); err != nil {
						return false
					}
				}
				return true
			}
			hs := s.handshake
			if hs == nil {
				hs = defaultHandshake
			}
			if !send(hs) || !send(s.events) {
				return
			}
			if s.hangup {
				_ = server.Close()
				return
			}
			r := bufio.NewReader(server)
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if !send(s.replies[line]) {
					return
				}
			}
		}()

		return client.New(ctx, clientEnd, opts)
	}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func run(t *testing.T, s daemonScript, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, Env{
		Stdout: &stdout,
		Stderr: &stderr,
		Fs:     afero.NewMemMapFs(),
		Clock:  clockwork.NewFakeClock(),
		Exec:   testhelpers.NewMockCommandExecutor(),
		Dial:   s.dial(t),
		Dirs:   helpers.Dirs{Config: "/home/user/.config/dsbmc"},
	})
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		operand string
		args    []string
		want    action
		wantErr bool
	}{
		{name: "mount", args: []string{"-m", "/dev/da0"}, want: actMount, operand: "/dev/da0"},
		{name: "forced unmount", args: []string{"-f", "-u", "/dev/da0"}, want: actUnmount, operand: "/dev/da0"},
		{name: "eject long", args: []string{"--eject", "/dev/cd0"}, want: actEject, operand: "/dev/cd0"},
		{name: "size", args: []string{"-s", "/dev/da0"}, want: actSize, operand: "/dev/da0"},
		{name: "speed", args: []string{"-v", "4", "/dev/cd0"}, want: actSpeed, operand: "/dev/cd0"},
		{name: "mdattach", args: []string{"-i", "/tmp/disk.img"}, want: actMDAttach, operand: "/tmp/disk.img"},
		{name: "list", args: []string{"-l"}, want: actList},
		{name: "listen", args: []string{"-L"}, want: actListen},
		{name: "automount", args: []string{"-a"}, want: actAutomount},
		{name: "no action", args: nil, wantErr: true},
		{name: "two actions", args: []string{"-m", "-u", "/dev/da0"}, wantErr: true},
		{name: "missing device", args: []string{"-m"}, wantErr: true},
		{name: "extra operand", args: []string{"-l", "/dev/da0"}, wantErr: true},
		{name: "speed not a number", args: []string{"-v", "fast", "/dev/cd0"}, wantErr: true},
		{name: "unknown flag", args: []string{"-x"}, wantErr: true},
		{name: "help", args: []string{"-h"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, act, operand, err := parse(tt.args, io.Discard)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, act)
			assert.Equal(t, tt.operand, operand)
		})
	}
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	res := run(t, daemonScript{})
	assert.Equal(t, 1, res.code)
	assert.Equal(t, usageText, res.stderr)

	res = run(t, daemonScript{}, "--bogus")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "dsbmc-cli: unknown flag: --bogus")
	assert.Contains(t, res.stderr, "Usage: dsbmc-cli")
}

func TestRun_CreatesDefaultConfig(t *testing.T) {
	t.Parallel()

	h := testhelpers.NewMemoryFS()
	code := Run(context.Background(), []string{"-l"}, Env{
		Fs:   h.Fs,
		Dial: daemonScript{}.dial(t),
		Dirs: helpers.Dirs{Config: "/cfg"},
	})
	require.Equal(t, 0, code)
	require.True(t, h.FileExists("/cfg/dsbmc.toml"))

	data, err := h.ReadFile("/cfg/dsbmc.toml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "/var/run/dsbmd.socket")
}

func TestRun_Version(t *testing.T) {
	t.Parallel()

	res := run(t, daemonScript{}, "--version")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "dsbmc-cli v"+config.AppVersion+"\n", res.stdout)
}

func TestRun_List(t *testing.T) {
	t.Parallel()

	res := run(t, daemonScript{}, "-l")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t,
		"dev=/dev/da0:volid=STICK:fs=msdosfs\n"+
			"dev=/dev/cd0:volid=Audio CD\n"+
			"dev=/dev/da1:volid=BACKUP:fs=ufs:mntpt=/media/BACKUP\n",
		res.stdout)
}

func TestRun_DeviceCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reply      map[string][]string
		wantStdout string
		wantStderr string
		args       []string
		wantCode   int
	}{
		{
			name:  "mount",
			args:  []string{"-m", "/dev/da0"},
			reply: map[string][]string{"mount /dev/da0\n": {"O:mntpt=/media/STICK"}},
		},
		{
			name:       "unmount busy",
			args:       []string{"-u", "/dev/da1"},
			reply:      map[string][]string{"unmount /dev/da1\n": {"E:code=260"}},
			wantCode:   1,
			wantStderr: "dsbmc-cli: Error: Device busy\n",
		},
		{
			name:  "forced unmount",
			args:  []string{"-f", "-u", "/dev/da1"},
			reply: map[string][]string{"unmount -f /dev/da1\n": {"O"}},
		},
		{
			name:  "eject",
			args:  []string{"-e", "/dev/cd0"},
			reply: map[string][]string{"eject /dev/cd0\n": {"O"}},
		},
		{
			name:  "speed",
			args:  []string{"-v", "4", "/dev/cd0"},
			reply: map[string][]string{"speed /dev/cd0 4\n": {"O:speed=4"}},
		},
		{
			name:       "size",
			args:       []string{"-s", "/dev/da0"},
			reply:      map[string][]string{"size /dev/da0\n": {"O:mediasize=1000:used=400:free=600"}},
			wantStdout: "size=1000:used=400:free=600\n",
		},
		{
			name: "mdattach with interleaved event",
			args: []string{"-i", "/tmp/disk.img"},
			reply: map[string][]string{"mdattach /tmp/disk.img\n": {
				"+:dev=/dev/md0:type=HDD:cmds=mount",
				"O",
			}},
		},
		{
			name:       "unknown device",
			args:       []string{"-m", "/dev/da9"},
			wantCode:   1,
			wantStderr: "dsbmc-cli: No such device '/dev/da9'\n",
		},
		{
			name:       "mount command failed",
			args:       []string{"-m", "/dev/da0"},
			reply:      map[string][]string{"mount /dev/da0\n": {"E:code=270:mntcmderr=1"}},
			wantCode:   1,
			wantStderr: "dsbmc-cli: Error: Mount command failed (exit status 1)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := run(t, daemonScript{replies: tt.reply}, tt.args...)
			assert.Equal(t, tt.wantCode, res.code, res.stderr)
			assert.Equal(t, tt.wantStdout, res.stdout)
			assert.Equal(t, tt.wantStderr, res.stderr)
		})
	}
}

func TestRun_Listen(t *testing.T) {
	t.Parallel()

	res := run(t, daemonScript{events: []string{
		"+:dev=/dev/da2:type=USBDISK:cmds=mount:volid=NEW",
		"M:dev=/dev/da2:mntpt=/media/NEW",
		"V:dev=/dev/cd0:speed=2",
		"-:dev=/dev/da2",
		"S",
	}}, "-L")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t,
		"event=add:dev=/dev/da2:volid=NEW\n"+
			"event=mount:dev=/dev/da2:volid=NEW:mntpt=/media/NEW\n"+
			"event=speed:dev=/dev/cd0:volid=Audio CD:speed=2\n"+
			"event=remove:dev=/dev/da2:volid=NEW:mntpt=/media/NEW\n"+
			"event=shutdown\n",
		res.stdout)
}

func TestRun_LostConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		wantStdout string
		script     daemonScript
		args       []string
	}{
		{
			name: "listen",
			args: []string{"-L"},
			script: daemonScript{
				events: []string{"+:dev=/dev/da2:type=USBDISK:cmds=mount:volid=NEW"},
				hangup: true,
			},
			wantStdout: "event=add:dev=/dev/da2:volid=NEW\n",
		},
		{
			name:   "automount",
			args:   []string{"-a"},
			script: daemonScript{handshake: []string{"="}, hangup: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := run(t, tt.script, tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Equal(t, tt.wantStdout, res.stdout)
			assert.Contains(t, res.stderr, "Fatal error: Lost connection to daemon")
			assert.True(t, strings.HasPrefix(res.stderr, "dsbmc-cli: "), res.stderr)
		})
	}
}

func TestRun_HandshakeFailure(t *testing.T) {
	t.Parallel()

	res := run(t, daemonScript{handshake: []string{"E:code=258"}}, "-l")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "dsbmc-cli: Fatal error: Permission denied\n", res.stderr)
}

func TestRun_ConnectFailure(t *testing.T) {
	t.Parallel()

	h := testhelpers.NewMemoryFS()
	sock := filepath.Join(t.TempDir(), "missing.socket")
	require.NoError(t, h.CreateConfigFile("/cfg/dsbmc.toml", map[string]any{
		"config_schema": config.SchemaVersion,
		"daemon":        map[string]any{"socket_path": sock},
	}))

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-l"}, Env{
		Stderr: &stderr,
		Fs:     h.Fs,
		Dirs:   helpers.Dirs{Config: "/cfg"},
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "dsbmc-cli: Fatal error: connect("+sock+")")
}
