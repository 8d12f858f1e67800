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
	"testing"

	"plantsim/internal/plant/registry"
)

const dt = 0.1

func runTicks(s *State, n int) {
	for i := 0; i < n; i++ {
		s.Step(dt)
	}
}

func TestLevelsStayInBounds(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.WellfieldOn, 1)
	s.ApplyControl(registry.Valve101Open, 1)
	runTicks(s, 6000) // 600s
	if s.physics.Levels.FeedTank < 0 || s.physics.Levels.FeedTank > 5 {
		t.Fatalf("level_feed_tank out of bounds: %v", s.physics.Levels.FeedTank)
	}
	if s.physics.Levels.Clearwell < 0 || s.physics.Levels.Clearwell > 6 {
		t.Fatalf("level_clearwell out of bounds: %v", s.physics.Levels.Clearwell)
	}
}

func TestHealthMonotoneNonIncreasing(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.ROFeedPumpOn, 1)
	s.ApplyControl(registry.Valve201Open, 1) // feed valve open, 202/203 closed -> RO block, high pressure
	s.ApplyControl(registry.Valve202Open, 0)
	s.ApplyControl(registry.Valve203Open, 0)
	prev := s.physics.Health.PipeFeed
	for i := 0; i < 3000; i++ {
		s.Step(dt)
		cur := s.physics.Health.PipeFeed
		if cur > prev {
			t.Fatalf("health increased at tick %d: %v -> %v", i, prev, cur)
		}
		prev = cur
		if cur < 0 || cur > 100 {
			t.Fatalf("health out of [0,100]: %v", cur)
		}
	}
}

func TestMassBalanceWithinTolerance(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.WellfieldOn, 1)
	s.ApplyControl(registry.Valve101Open, 1)
	s.ApplyControl(registry.ROFeedPumpOn, 1)
	s.ApplyControl(registry.Valve201Open, 1)
	s.ApplyControl(registry.Valve202Open, 1)
	s.ApplyControl(registry.Valve203Open, 1)
	runTicks(s, 2000)
	diff := math.Abs(s.physics.Flows.Feed - (s.physics.Flows.Perm + s.physics.Flows.Brine))
	if diff > 1e-9 {
		t.Fatalf("Q_feed != Q_perm+Q_brine, diff=%v", diff)
	}
}

func TestResetDamageIdempotent(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.ROFeedPumpOn, 1)
	s.ApplyControl(registry.Valve201Open, 1) // drive pressure_feed high, damage membrane/pipe
	s.ApplyControl(registry.Valve202Open, 0)
	s.ApplyControl(registry.Valve203Open, 0)
	runTicks(s, 3000)
	if s.physics.Health.Membrane >= 100 {
		t.Fatalf("expected membrane damage before reset")
	}
	s.ResetDamage()
	first := s.physics.Health
	s.ResetDamage()
	second := s.physics.Health
	if first != second {
		t.Fatalf("reset_damage not idempotent: %+v vs %+v", first, second)
	}
	if first != (Health{100, 100, 100, 100, 100, 100, 100}) {
		t.Fatalf("reset_damage did not restore exactly 100: %+v", first)
	}
}

// TestS1DeadheadP201 runs an end-to-end deadhead scenario: coils
// {1:true, 4:true, 5:false, 6:false} (ro_feed_pump_on, valve_201_open,
// valve_202/203 closed). After 60s, pressure_feed > 20, membrane_health <
// 40, pipe_feed_health < 70, Q_feed ~ 0.
func TestS1DeadheadP201(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.ROFeedPumpOn, 1)
	s.ApplyControl(registry.Valve201Open, 1)
	s.ApplyControl(registry.Valve202Open, 0)
	s.ApplyControl(registry.Valve203Open, 0)
	runTicks(s, 600) // 60s at dt=0.1

	if s.physics.Pressures.Feed <= 20 {
		t.Errorf("S1: pressure_feed = %v, want > 20", s.physics.Pressures.Feed)
	}
	if s.physics.Health.Membrane >= 40 {
		t.Errorf("S1: membrane_health = %v, want < 40", s.physics.Health.Membrane)
	}
	if s.physics.Health.PipeFeed >= 70 {
		t.Errorf("S1: pipe_feed_health = %v, want < 70", s.physics.Health.PipeFeed)
	}
	if math.Abs(s.physics.Flows.Feed) > 0.5 {
		t.Errorf("S1: Q_feed = %v, want ~ 0", s.physics.Flows.Feed)
	}
}

// TestS2TankDepletionCavitation drains the feed tank to cavitation: with
// wellfield off and
// the RO feed pump on, once the feed tank drains below 0.2 m,
// pump_feed_health must drop by >= 14% over the following 30s (rate
// 0.5%/s).
func TestS2TankDepletionCavitation(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.ROFeedPumpOn, 1)
	s.ApplyControl(registry.Valve201Open, 1)
	s.ApplyControl(registry.Valve202Open, 1)
	s.ApplyControl(registry.Valve203Open, 1)

	for s.physics.Levels.FeedTank >= 0.2 {
		s.Step(dt)
	}
	healthAtDepletion := s.physics.Health.PumpFeed
	runTicks(s, 300) // 30s
	dropped := healthAtDepletion - s.physics.Health.PumpFeed
	if dropped < 14 {
		t.Errorf("S2: pump_feed_health dropped by %v over 30s, want >= 14", dropped)
	}
}

// TestS3ChlorineMembraneAttack runs sustained chlorine dosing into the
// running RO feed, starting from a healthy membrane, long enough to
// destroy it.
func TestS3ChlorineMembraneAttack(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.ROFeedPumpOn, 1)
	s.ApplyControl(registry.Valve101Open, 1)
	s.ApplyControl(registry.Valve201Open, 1)
	s.ApplyControl(registry.Valve202Open, 1)
	s.ApplyControl(registry.Valve203Open, 1)
	s.ApplyControl(registry.ClPumpOn, 1)
	s.ApplyControl(registry.ClDose, 5.0)

	runTicks(s, 8*60*10) // 8 minutes at dt=0.1

	if s.physics.Chemistry.ClTrue < 0.1 {
		t.Errorf("S3: Cl_true = %v, want >= 0.1", s.physics.Chemistry.ClTrue)
	}
	if s.physics.Health.Membrane > 20 {
		t.Errorf("S3: membrane_health = %v, want <= 20 (lost >= 80%%)", s.physics.Health.Membrane)
	}
	if s.physics.Chemistry.TDSPerm <= 100 {
		t.Errorf("S3: TDS_perm = %v, want > 100", s.physics.Chemistry.TDSPerm)
	}
}

// TestS4OverflowClamp checks that the feed tank fills and clamps
// exactly at 5.0 without breaching the invariant.
func TestS4OverflowClamp(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.WellfieldOn, 1)
	s.ApplyControl(registry.Valve101Open, 1)

	last := s.physics.Levels.FeedTank
	for i := 0; i < 100000; i++ {
		s.Step(dt)
		cur := s.physics.Levels.FeedTank
		if cur < last {
			t.Fatalf("level_feed_tank decreased at tick %d: %v -> %v", i, last, cur)
		}
		last = cur
		if cur > 5.0 {
			t.Fatalf("level_feed_tank exceeded clamp: %v", cur)
		}
	}
	if last != 5.0 {
		t.Errorf("S4: level_feed_tank = %v, want exactly 5.0", last)
	}
}

func TestClampValveDeadheadDamage(t *testing.T) {
	s := NewState()
	s.ApplyControl(registry.WellfieldOn, 1)
	s.ApplyControl(registry.Valve101Open, 0)
	prev := s.physics.Health.PumpWell
	runTicks(s, 10)
	if s.physics.Health.PumpWell >= prev {
		t.Errorf("expected pump_well_health to decrease under wellfield deadhead")
	}
}
