// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"sync"
	"sync/atomic"
	"time"

	"plantsim/internal/plant/telemetry"
)

// Subscriber receives a Snapshot after every tick. Send is non-blocking:
// if the subscriber's channel is full, the tick drops the update for that
// subscriber rather than waiting on a slow consumer. Subscribers are
// expected to buffer exactly one pending snapshot.
type Subscriber chan Snapshot

// Driver owns the single periodic tick that advances State at a fixed
// dt and fans the resulting Snapshot out to subscribers (SSE clients).
type Driver struct {
	state    *State
	dt       time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32

	subMu sync.Mutex
	subs  map[Subscriber]struct{}

	dropped atomic.Uint64
}

// NewDriver creates a driver that steps state every dt.
func NewDriver(state *State, dt time.Duration) *Driver {
	return &Driver{
		state:    state,
		dt:       dt,
		stopChan: make(chan struct{}),
		subs:     make(map[Subscriber]struct{}),
	}
}

// Start launches the tick loop in its own goroutine. It must not be
// starved by network load: it does no I/O, only Step + a
// non-blocking fan-out.
func (d *Driver) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run()
	}()
}

// Stop gracefully stops the tick loop and waits for it to exit.
func (d *Driver) Stop() {
	if !atomic.CompareAndSwapUint32(&d.stopped, 0, 1) {
		return
	}
	close(d.stopChan)
	d.wg.Wait()
}

// Warmup runs n ticks synchronously, without publishing to subscribers,
// so that a caller can let readings settle to quasi-steady before network
// servers start accepting connections.
func (d *Driver) Warmup(n int) {
	dtSeconds := d.dt.Seconds()
	for i := 0; i < n; i++ {
		d.state.Step(dtSeconds)
	}
}

func (d *Driver) run() {
	ticker := time.NewTicker(d.dt)
	defer ticker.Stop()

	dtSeconds := d.dt.Seconds()
	for {
		select {
		case <-ticker.C:
			start := time.Now()
			d.state.Step(dtSeconds)
			telemetry.TickDuration.Observe(time.Since(start).Seconds())
			telemetry.TickTotal.Inc()
			snap := d.state.Snapshot()
			observeHealth(snap)
			d.publish(snap)
		case <-d.stopChan:
			return
		}
	}
}

// Subscribe registers a new subscriber channel and returns it. The
// returned channel has buffer depth 1: at most one snapshot is ever
// in flight per subscriber.
func (d *Driver) Subscribe() Subscriber {
	ch := make(Subscriber, 1)
	d.subMu.Lock()
	d.subs[ch] = struct{}{}
	d.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (d *Driver) Unsubscribe(ch Subscriber) {
	d.subMu.Lock()
	delete(d.subs, ch)
	d.subMu.Unlock()
	close(ch)
}

// DroppedCount returns the number of snapshots dropped across all
// subscribers due to a full channel (slow consumer).
func (d *Driver) DroppedCount() uint64 {
	return d.dropped.Load()
}

func observeHealth(snap Snapshot) {
	telemetry.HealthPercent.WithLabelValues("membrane").Set(snap.State.MembraneHealth)
	telemetry.HealthPercent.WithLabelValues("pump_well").Set(snap.State.PumpWellHealth)
	telemetry.HealthPercent.WithLabelValues("pump_feed").Set(snap.State.PumpFeedHealth)
	telemetry.HealthPercent.WithLabelValues("pump_dist").Set(snap.State.PumpDistHealth)
	telemetry.HealthPercent.WithLabelValues("pipe_well").Set(snap.State.PipeWellHealth)
	telemetry.HealthPercent.WithLabelValues("pipe_feed").Set(snap.State.PipeFeedHealth)
	telemetry.HealthPercent.WithLabelValues("pipe_dist").Set(snap.State.PipeDistHealth)
}

func (d *Driver) publish(snap Snapshot) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- snap:
		default:
			d.dropped.Add(1)
			telemetry.SSEDropped.Inc()
		}
	}
}
