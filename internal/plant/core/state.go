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
	"math"
	"sync"
	"time"

	"plantsim/internal/plant/registry"
)

// State is the single owned record of the plant: controls, integrated
// physics, and health, protected by one RWMutex. There is exactly one
// instance per process — unlike a per-key sharded store, the plant is one
// coupled hydraulic system and cannot be split without breaking the
// consistent-snapshot invariant.
//
// Lock discipline: the tick takes the write lock for the full integration
// of one step (a few microseconds, purely computational, no I/O).
// Writers (Modbus/HTTP) take the write lock only to mutate Controls.
// Readers take the read lock just long enough to clone a Snapshot; all
// serialization happens after the lock is released.
type State struct {
	mu       sync.RWMutex
	controls Controls
	physics  Physics
	started  time.Time
	tick     uint64
}

// NewState builds the default cold-start state: all controls
// off except valves, which default open (resolved Open Question, see
// see DESIGN.md's Open Question resolutions); tanks at their starting
// levels; health at
// 100; chemistry at baseline.
func NewState() *State {
	s := &State{started: time.Now()}
	s.controls = Controls{
		Valve101Open: true,
		Valve201Open: true,
		Valve202Open: true,
		Valve203Open: true,
		Valve401Open: true,
	}
	s.physics = Physics{
		Levels: Levels{FeedTank: 2.5, Clearwell: 3.0},
		Chemistry: Chemistry{
			TDSFeed: 1250,
			PHTrue:  7.2,
		},
		Health: Health{
			Membrane: 100, PumpWell: 100, PumpFeed: 100,
			PumpDist: 100, PipeWell: 100, PipeFeed: 100, PipeDist: 100,
		},
	}
	return s
}

// numericRange returns the declared [lo, hi] for a numeric setpoint.
func numericRange(ctrl registry.ControlID) (lo, hi float64, ok bool) {
	switch ctrl {
	case registry.NaOHDose:
		return 0, 20, true
	case registry.ClDose:
		return 0, 5, true
	case registry.QOutSP:
		return 0, 150, true
	}
	return 0, 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ApplyControl validates and clamps raw into the declared range for ctrl
// and stores it. Boolean controls treat any nonzero raw as
// true. Returns false if ctrl names neither a boolean actuator nor a
// numeric setpoint (i.e. it addresses a read-only process variable or
// health slot) — callers translate that into a Modbus exception 02 or an
// HTTP 400, as appropriate for the transport.
func (s *State) ApplyControl(ctrl registry.ControlID, raw float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyControlLocked(ctrl, raw)
}

func (s *State) applyControlLocked(ctrl registry.ControlID, raw float64) bool {
	if bp, ok := s.controls.boolControl(ctrl); ok {
		*bp = raw != 0
		return true
	}
	if lo, hi, ok := numericRange(ctrl); ok {
		v := clamp(raw, lo, hi)
		switch ctrl {
		case registry.NaOHDose:
			s.controls.NaOHDoseMgL = v
		case registry.ClDose:
			s.controls.ClDoseMgL = v
		case registry.QOutSP:
			s.controls.QOutSPm3h = v
		}
		return true
	}
	return false
}

// ApplyBool is the typed entry point used by HTTP /sync, where JSON already
// decodes the value to a native bool.
func (s *State) ApplyBool(ctrl registry.ControlID, value bool) bool {
	raw := 0.0
	if value {
		raw = 1
	}
	return s.ApplyControl(ctrl, raw)
}

// ApplyNumeric is the typed entry point used by HTTP /sync for the three
// numeric setpoints.
func (s *State) ApplyNumeric(ctrl registry.ControlID, value float64) bool {
	return s.ApplyControl(ctrl, value)
}

// Snapshot returns a consistent, detached copy of controls + state for
// publication. The lock is released before the caller does anything with
// the result, including JSON encoding or Modbus frame serialization.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	c := s.controls
	p := s.physics
	snap := Snapshot{
		TimeS: time.Since(s.started).Seconds(),
		State: SnapshotState{
			QWellfield: p.Flows.Wellfield,
			QFeed:      p.Flows.Feed,
			QPerm:      p.Flows.Perm,
			QBrine:     p.Flows.Brine,
			QOut:       p.Flows.Out,

			PressureWell: p.Pressures.Well,
			PressureFeed: p.Pressures.Feed,
			PressureDist: p.Pressures.Dist,
			DPROTrue:     p.Pressures.DPROTrue,

			LevelFeedTank:  p.Levels.FeedTank,
			LevelClearwell: p.Levels.Clearwell,

			TDSFeed: p.Chemistry.TDSFeed,
			TDSPerm: p.Chemistry.TDSPerm,
			PHTrue:  p.Chemistry.PHTrue,
			ClTrue:  p.Chemistry.ClTrue,

			MembraneHealth: p.Health.Membrane,
			PumpWellHealth: p.Health.PumpWell,
			PumpFeedHealth: p.Health.PumpFeed,
			PumpDistHealth: p.Health.PumpDist,
			PipeWellHealth: p.Health.PipeWell,
			PipeFeedHealth: p.Health.PipeFeed,
			PipeDistHealth: p.Health.PipeDist,
		},
		Controls: SnapshotControls{
			WellfieldOn:  c.WellfieldOn,
			ROFeedPumpOn: c.ROFeedPumpOn,
			DistPumpOn:   c.DistPumpOn,
			Valve101Open: c.Valve101Open,
			Valve201Open: c.Valve201Open,
			Valve202Open: c.Valve202Open,
			Valve203Open: c.Valve203Open,
			Valve401Open: c.Valve401Open,
			NaOHPumpOn:   c.NaOHPumpOn,
			ClPumpOn:     c.ClPumpOn,
			NaOHDose:     c.NaOHDoseMgL,
			ClDose:       c.ClDoseMgL,
			QOutSP:       c.QOutSPm3h,
		},
	}
	snap.State = jitterSnapshotState(snap.State)
	return snap
}

// ResetDamage restores all seven health variables to exactly 100.0 and
// changes nothing else. Idempotent: calling it twice in a
// row leaves state identical to calling it once.
func (s *State) ResetDamage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.physics.Health = Health{
		Membrane: 100, PumpWell: 100, PumpFeed: 100,
		PumpDist: 100, PipeWell: 100, PipeFeed: 100, PipeDist: 100,
	}
}

// ReadHolding returns the current wire value for a read-only or setpoint
// holding register, used by the Modbus slave's read path.
func (s *State) ReadHolding(e registry.Entry) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.holdingEngineeringValueLocked(e)
	v = jitterPublishedHolding(e.Address, v)
	return registry.EncodeHolding(e, v)
}

func (s *State) holdingEngineeringValueLocked(e registry.Entry) float64 {
	switch e.Address {
	case 0:
		return s.controls.NaOHDoseMgL
	case 1:
		return s.controls.ClDoseMgL
	case 2:
		return s.controls.QOutSPm3h
	case 10:
		return s.physics.Flows.Wellfield
	case 11:
		return s.physics.Flows.Feed
	case 12:
		return s.physics.Flows.Perm
	case 13:
		return s.physics.Flows.Brine
	case 14:
		return s.physics.Flows.Out
	case 15:
		return s.physics.Levels.FeedTank
	case 16:
		return s.physics.Levels.Clearwell
	case 17:
		return s.physics.Pressures.Well
	case 18:
		return s.physics.Pressures.Feed
	case 19:
		return s.physics.Pressures.Dist
	case 20:
		return s.physics.Pressures.DPROTrue
	case 21:
		return s.physics.Chemistry.TDSFeed
	case 22:
		return s.physics.Chemistry.TDSPerm
	case 23:
		return s.physics.Chemistry.PHTrue
	case 24:
		return s.physics.Chemistry.ClTrue
	case 30:
		return s.physics.Health.Membrane
	case 31:
		return s.physics.Health.PumpWell
	case 32:
		return s.physics.Health.PumpFeed
	case 33:
		return s.physics.Health.PumpDist
	case 34:
		return s.physics.Health.PipeWell
	case 35:
		return s.physics.Health.PipeFeed
	case 36:
		return s.physics.Health.PipeDist
	}
	return 0
}

// ReadCoil returns the current value of a coil for the Modbus slave's read
// path.
func (s *State) ReadCoil(ctrl registry.ControlID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bp, ok := s.controls.boolControl(ctrl); ok {
		return *bp
	}
	return false
}

// WriteHolding decodes a wire value for a writable setpoint register and
// applies it via ApplyControl. Callers must have already rejected RO
// addresses (registry.Entry.Direction == RO) before calling this.
func (s *State) WriteHolding(e registry.Entry, wire uint16) {
	value := registry.DecodeHolding(e, wire)
	s.ApplyControl(e.Control, value)
}

// guardFinite resets v to fallback if v is NaN or infinite: non-finite
// arithmetic is a programmer error, never allowed to propagate.
func guardFinite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Tick returns the number of physics steps executed so far.
func (s *State) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}
