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

// Package automount mounts removable devices as they appear and, if asked
// to, unmounts them again once they are no longer in use.
package automount

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mrclksr/DSBMC-Cli/pkg/client"
	"github.com/mrclksr/DSBMC-Cli/pkg/devices"
	"github.com/mrclksr/DSBMC-Cli/pkg/helpers/syncutil"
	"github.com/mrclksr/DSBMC-Cli/pkg/protocol"
)

// Target is the part of a daemon connection the scheduler works on.
type Target interface {
	Device(id int) (devices.Device, bool)
	Unmount(ctx context.Context, id int, force bool) error
	Retain(id int) bool
	Release(id int)
	Lost() bool
}

// Scheduler runs one worker per tracked device. A worker sleeps for the
// retry interval, or until Broadcast, then tries to unmount its device.
// It gives up once the device is gone, removed or unmounted by someone
// else, or when the connection is lost.
//
// The worker-list lock is always taken before the connection lock.
type Scheduler struct {
	conn      Target
	clock     clockwork.Clock
	wake      *syncutil.Broadcaster
	onUnmount func(devices.Device)
	workers   map[int]struct{}
	wg        sync.WaitGroup
	interval  atomic.Int64
	mu        syncutil.Mutex
}

// NewScheduler returns a scheduler for conn. onUnmount, if set, is called
// with the device as it was before a worker unmounted it.
func NewScheduler(
	conn Target,
	clock clockwork.Clock,
	interval time.Duration,
	onUnmount func(devices.Device),
) *Scheduler {
	s := &Scheduler{
		conn:      conn,
		clock:     clock,
		wake:      syncutil.NewBroadcaster(),
		onUnmount: onUnmount,
		workers:   make(map[int]struct{}),
	}
	s.SetInterval(interval)
	return s
}

// SetInterval changes the retry interval. Sleeping workers pick it up on
// their next round.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval.Store(int64(d))
}

func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Spawn starts a worker for the device unless one is already running. The
// device is retained until the worker exits.
func (s *Scheduler) Spawn(ctx context.Context, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[id]; ok {
		return false
	}
	if !s.conn.Retain(id) {
		log.Warn().Int("id", id).Msg("not tracking unknown device")
		return false
	}
	s.workers[id] = struct{}{}

	s.wg.Add(1)
	go s.run(ctx, id)
	log.Debug().Int("id", id).Msg("unmount worker started")
	return true
}

// Broadcast wakes every worker to re-check its device.
func (s *Scheduler) Broadcast() {
	s.wake.Broadcast()
}

// Workers returns the ids of the tracked devices in ascending order.
func (s *Scheduler) Workers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wait blocks until every worker has exited. Workers exit on their own or
// when the context passed to Spawn is cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, id int) {
	defer s.wg.Done()
	defer s.remove(id)

	wake := s.wake.Wait()
	for {
		timer := s.clock.NewTimer(s.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		case <-wake:
			timer.Stop()
		}

		// Broadcasts sent while attempting must not be lost.
		next := s.wake.Wait()
		if s.attempt(ctx, id) {
			return
		}
		wake = next
	}
}

// attempt re-resolves the device and tries to unmount it. It reports
// whether the worker is done.
func (s *Scheduler) attempt(ctx context.Context, id int) bool {
	if s.conn.Lost() {
		log.Debug().Int("id", id).Msg("connection lost, unmount worker exiting")
		return true
	}
	d, ok := s.conn.Device(id)
	if !ok || d.Removed {
		log.Debug().Int("id", id).Msg("device gone, unmount worker exiting")
		return true
	}
	if !d.Mounted {
		log.Debug().Str("dev", d.Path).Msg("device unmounted elsewhere, unmount worker exiting")
		return true
	}

	err := s.conn.Unmount(ctx, id, false)
	switch {
	case err == nil:
		log.Info().Str("dev", d.Path).Str("mntpt", d.MountPoint).Msg("unmounted idle device")
		if s.onUnmount != nil {
			s.onUnmount(d)
		}
		return true
	case errors.Is(err, protocol.ErrDeviceBusy), errors.Is(err, client.ErrCommandInProgress):
		log.Debug().Str("dev", d.Path).Msg("device busy, retrying later")
		return false
	case errors.Is(err, client.ErrInvalidDevice), client.IsFatal(err), ctx.Err() != nil:
		log.Debug().Err(err).Str("dev", d.Path).Msg("unmount worker exiting")
		return true
	default:
		log.Warn().Err(err).Str("dev", d.Path).Msg("unmount failed, retrying later")
		return false
	}
}

func (s *Scheduler) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, id)
	s.conn.Release(id)
	log.Debug().Int("id", id).Msg("unmount worker stopped")
}
