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
	"math/rand"
)

const (
	alphaFlow     = 0.1
	alphaPressure = 0.5

	roRecovery = 0.75
	areaFeed   = 10.0 // m^2
	areaClear  = 40.0 // m^2

	// tdsBaselineAmplitude and tdsBaselinePeriodS describe the slow
	// sinusoidal drift of the raw feed water quality. Spec §4.3.4 only
	// requires "a slow sinusoidal baseline around 1250 uS/cm"; these
	// constants pick a concrete amplitude/period (50 uS/cm, 10 minutes)
	// so the drift is visible on a dashboard trend chart without masking
	// the chlorine-attack scenario (S3) on TDS_perm.
	tdsBaselineAmplitude = 50.0
	tdsBaselinePeriodS   = 600.0
	tdsBaselineCenter    = 1250.0
)

// Step advances the plant by one fixed timestep dt (seconds), per spec
// §4.3: target computation, first-order ramp, damage accrual, chemistry,
// mass balance, in that order. It takes the write lock for the whole
// integration — the critical section is purely computational, no I/O, so
// this is a bounded, short hold.
func (s *State) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.controls
	p := &s.physics

	suctionOK := p.Levels.FeedTank > 0.2
	eta := p.Health.PumpFeed / 100

	targetQWell, targetPWell := targetWellfield(c)
	targetQFeed, targetPFeed := targetROFeed(c, suctionOK, eta)
	targetQDist, targetPDist := targetDistribution(c, p.Levels.Clearwell)

	p.Flows.Wellfield = guardFinite(p.Flows.Wellfield+(targetQWell-p.Flows.Wellfield)*alphaFlow, 0)
	p.Pressures.Well = guardFinite(p.Pressures.Well+(targetPWell-p.Pressures.Well)*alphaPressure, 0)
	p.Flows.Feed = guardFinite(p.Flows.Feed+(targetQFeed-p.Flows.Feed)*alphaFlow, 0)
	p.Pressures.Feed = guardFinite(p.Pressures.Feed+(targetPFeed-p.Pressures.Feed)*alphaPressure, 0)
	p.Flows.Out = guardFinite(p.Flows.Out+(targetQDist-p.Flows.Out)*alphaFlow, 0)
	p.Pressures.Dist = guardFinite(p.Pressures.Dist+(targetPDist-p.Pressures.Dist)*alphaPressure, 0)

	accrueDamage(c, p, suctionOK, dt)

	stepChemistry(c, p, dt, s.tick)

	stepMassBalance(p, dt)

	s.tick++
}

func targetWellfield(c Controls) (q, press float64) {
	switch {
	case c.WellfieldOn && c.Valve101Open:
		return 110, 3.0
	case c.WellfieldOn && !c.Valve101Open:
		return 0, 12.0 // deadhead
	default:
		return 0, 0
	}
}

func targetROFeed(c Controls, suctionOK bool, eta float64) (q, press float64) {
	switch {
	case c.ROFeedPumpOn && suctionOK && c.Valve201Open && c.Valve202Open && c.Valve203Open:
		return 100 * eta, 12.0
	case c.ROFeedPumpOn && suctionOK && c.Valve201Open && !(c.Valve202Open && c.Valve203Open):
		return 0, 30.0 // RO block
	case c.ROFeedPumpOn && suctionOK && !c.Valve201Open:
		return 0, 33.0 // pump-discharge deadhead
	default:
		return 0, 0
	}
}

func targetDistribution(c Controls, levelClearwell float64) (q, press float64) {
	switch {
	case c.DistPumpOn && levelClearwell > 0.1 && c.Valve401Open:
		return math.Min(c.QOutSPm3h, 120), 4.0
	case c.DistPumpOn && levelClearwell > 0.1 && !c.Valve401Open:
		return 0, 15.0
	default:
		return 0, 0
	}
}

// accrueDamage debits health according to which stress conditions are
// currently active. Every condition that
// applies this tick debits independently; health is floored at 0 and is
// never raised here (only ResetDamage raises it).
func accrueDamage(c Controls, p *Physics, suctionOK bool, dt float64) {
	debit := func(health *float64, cond bool, ratePerSec float64) {
		if !cond {
			return
		}
		*health = guardFinite(*health-ratePerSec*dt, *health)
		if *health < 0 {
			*health = 0
		}
	}

	debit(&p.Health.PumpWell, c.WellfieldOn && !c.Valve101Open, 0.3)
	debit(&p.Health.PumpFeed, c.ROFeedPumpOn && !suctionOK, 0.5)
	debit(&p.Health.PumpDist, c.DistPumpOn && p.Levels.Clearwell < 0.2, 0.5)
	debit(&p.Health.PumpDist, c.DistPumpOn && !c.Valve401Open, 0.3)
	debit(&p.Health.PipeWell, p.Pressures.Well > 10, 0.2)
	debit(&p.Health.PipeFeed, p.Pressures.Feed > 20, 0.5)
	debit(&p.Health.PipeDist, p.Pressures.Dist > 12, 0.3)
	debit(&p.Health.Membrane, p.Chemistry.ClTrue > 0.1 && p.Flows.Feed > 0, 0.2)
	debit(&p.Health.Membrane, p.Pressures.Feed > 20, 1.0)
}

// stepChemistry advances chlorine ramp, pH, rejection/TDS,
// and RO differential pressure.
func stepChemistry(c Controls, p *Physics, dt float64, tickIdx uint64) {
	var currentCl float64
	switch {
	case c.ClPumpOn && p.Flows.Feed > 5:
		currentCl = 0.9 * c.ClDoseMgL
	case c.ClPumpOn && p.Flows.Feed <= 5 && c.ClDoseMgL > 0:
		currentCl = 50.0 // stagnant super-chlorination
	default:
		currentCl = 0
	}
	p.Chemistry.ClTrue = guardFinite(p.Chemistry.ClTrue+0.1*(currentCl-p.Chemistry.ClTrue), 0)

	if c.NaOHPumpOn {
		p.Chemistry.PHTrue = guardFinite(7.0+0.15*c.NaOHDoseMgL, 7.0)
	} else {
		p.Chemistry.PHTrue = 7.0
	}

	elapsedS := float64(tickIdx) * dt
	p.Chemistry.TDSFeed = tdsBaselineCenter + tdsBaselineAmplitude*math.Sin(2*math.Pi*elapsedS/tdsBaselinePeriodS)

	rejection := 0.98 * (p.Health.Membrane / 100)
	p.Chemistry.TDSPerm = guardFinite(p.Chemistry.TDSFeed*(1-rejection), p.Chemistry.TDSPerm)

	if p.Flows.Feed > 1 {
		factor := 1.0
		if p.Health.Membrane < 30 {
			factor = 0.2
		}
		p.Pressures.DPROTrue = guardFinite((0.5+(p.Flows.Feed/100)*1.5)*factor, 0)
	} else {
		p.Pressures.DPROTrue = 0
	}
}

// stepMassBalance integrates tank levels and derives brine/permeate flow.
func stepMassBalance(p *Physics, dt float64) {
	p.Levels.FeedTank = guardFinite(p.Levels.FeedTank+(p.Flows.Wellfield-p.Flows.Feed)*dt/3600/areaFeed, p.Levels.FeedTank)

	p.Flows.Perm = p.Flows.Feed * roRecovery
	p.Flows.Brine = p.Flows.Feed - p.Flows.Perm

	p.Levels.Clearwell = guardFinite(p.Levels.Clearwell+(p.Flows.Perm-p.Flows.Out)*dt/3600/areaClear, p.Levels.Clearwell)

	p.Levels.FeedTank = clamp(p.Levels.FeedTank, 0, 5)
	p.Levels.Clearwell = clamp(p.Levels.Clearwell, 0, 6)
}

// --- Sensor emission ---
//
// Jitter is applied only at publish time, to a detached copy of the
// integrated state; it never feeds back into Step's inputs.

func jitterUniform(v, halfWidth float64) float64 {
	return v + (rand.Float64()*2-1)*halfWidth
}

func snapSmallFlow(v float64) float64 {
	if v > -1 && v < 1 {
		return 0
	}
	return v
}

// jitterSnapshotState returns a copy of raw with sensor-level noise applied
// to flows, pressures, dP, and chlorine/pH, matching the magnitudes in
// Health, TDS, and levels are not jittered.
func jitterSnapshotState(raw SnapshotState) SnapshotState {
	j := raw
	j.QWellfield = snapSmallFlow(jitterUniform(raw.QWellfield, 1))
	j.QFeed = snapSmallFlow(jitterUniform(raw.QFeed, 1))
	j.QPerm = snapSmallFlow(jitterUniform(raw.QPerm, 1))
	j.QBrine = snapSmallFlow(jitterUniform(raw.QBrine, 1))
	j.QOut = snapSmallFlow(jitterUniform(raw.QOut, 1))

	j.PressureWell = jitterUniform(raw.PressureWell, 0.1)
	j.PressureFeed = jitterUniform(raw.PressureFeed, 0.1)
	j.PressureDist = jitterUniform(raw.PressureDist, 0.1)
	j.DPROTrue = jitterUniform(raw.DPROTrue, 0.02)

	j.ClTrue = jitterUniform(raw.ClTrue, 0.01)
	j.PHTrue = jitterUniform(raw.PHTrue, 0.05)

	return j
}

// jitterPublishedHolding applies the same per-signal jitter rule as
// jitterSnapshotState, keyed by holding-register address, for Modbus PV
// reads (addresses 10-24). Setpoints, health, and any other address pass
// through unchanged.
func jitterPublishedHolding(addr uint16, v float64) float64 {
	switch addr {
	case 10, 11, 12, 13, 14:
		return snapSmallFlow(jitterUniform(v, 1))
	case 17, 18, 19:
		return jitterUniform(v, 0.1)
	case 20:
		return jitterUniform(v, 0.02)
	case 24:
		return jitterUniform(v, 0.01)
	case 23:
		return jitterUniform(v, 0.05)
	default:
		return v
	}
}
