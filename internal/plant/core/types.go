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

// Package core holds the plant simulation record and its fixed-step
// physics tick: the single source of truth for controls, integrated
// process variables, and equipment health, plus the function that advances
// it one step at a time.
package core

import "plantsim/internal/plant/registry"

// Controls is the set of actuated inputs: five pump booleans, five valve
// booleans, and three numeric setpoints.
type Controls struct {
	WellfieldOn   bool
	ROFeedPumpOn  bool
	DistPumpOn    bool
	Valve101Open  bool
	Valve201Open  bool
	Valve202Open  bool
	Valve203Open  bool
	Valve401Open  bool
	NaOHPumpOn    bool
	ClPumpOn      bool
	NaOHDoseMgL   float64 // [0, 20]
	ClDoseMgL     float64 // [0, 5]
	QOutSPm3h     float64 // [0, 150]
}

// Flows holds the integrated and derived flow quantities, in m3/h.
type Flows struct {
	Wellfield float64
	Feed      float64
	Perm      float64 // derived: Feed * ro_recovery
	Brine     float64 // derived: Feed - Perm
	Out       float64
}

// Pressures holds integrated pressures, in bar.
type Pressures struct {
	Well    float64
	Feed    float64
	Dist    float64
	DPROTrue float64
}

// Levels holds tank levels, in meters.
type Levels struct {
	FeedTank  float64 // [0, 5]
	Clearwell float64 // [0, 6]
}

// Chemistry holds the chemistry state.
type Chemistry struct {
	TDSFeed float64 // uS/cm
	TDSPerm float64 // uS/cm
	PHTrue  float64
	ClTrue  float64 // mg/L
}

// Health is the set of monotone-non-increasing equipment health values,
// each in [0, 100].
type Health struct {
	Membrane  float64
	PumpWell  float64
	PumpFeed  float64
	PumpDist  float64
	PipeWell  float64
	PipeFeed  float64
	PipeDist  float64
}

// Physics bundles the integrated state that the tick advances each step.
type Physics struct {
	Flows     Flows
	Pressures Pressures
	Levels    Levels
	Chemistry Chemistry
	Health    Health

	// Ramp targets are not stored here: Step recomputes them every tick
	// from the controls and tank levels, which they are a pure function of.
}

// Snapshot is a fully decoupled, JSON-ready copy of the plant's published
// state: safe to serialize after the state lock has been released. Field
// names match the published wire/dashboard contract.
type Snapshot struct {
	TimeS    float64          `json:"time_s"`
	State    SnapshotState    `json:"state"`
	Controls SnapshotControls `json:"controls"`
}

// SnapshotState is the process-variable + health view published to
// dashboards and the Modbus PV registers.
type SnapshotState struct {
	QWellfield float64 `json:"Q_wellfield"`
	QFeed      float64 `json:"Q_feed"`
	QPerm      float64 `json:"Q_perm"`
	QBrine     float64 `json:"Q_brine"`
	QOut       float64 `json:"Q_out"`

	PressureWell float64 `json:"pressure_well"`
	PressureFeed float64 `json:"pressure_feed"`
	PressureDist float64 `json:"pressure_dist"`
	DPROTrue     float64 `json:"dP_ro_true"`

	LevelFeedTank  float64 `json:"level_feed_tank"`
	LevelClearwell float64 `json:"level_clearwell"`

	TDSFeed float64 `json:"TDS_feed"`
	TDSPerm float64 `json:"TDS_perm"`
	PHTrue  float64 `json:"pH_true"`
	ClTrue  float64 `json:"Cl_true"`

	MembraneHealth float64 `json:"membrane_health"`
	PumpWellHealth float64 `json:"pump_well_health"`
	PumpFeedHealth float64 `json:"pump_feed_health"`
	PumpDistHealth float64 `json:"pump_dist_health"`
	PipeWellHealth float64 `json:"pipe_well_health"`
	PipeFeedHealth float64 `json:"pipe_feed_health"`
	PipeDistHealth float64 `json:"pipe_dist_health"`
}

// SnapshotControls is the controls view published alongside state.
type SnapshotControls struct {
	WellfieldOn  bool `json:"wellfield_on"`
	ROFeedPumpOn bool `json:"ro_feed_pump_on"`
	DistPumpOn   bool `json:"dist_pump_on"`
	Valve101Open bool `json:"valve_101_open"`
	Valve201Open bool `json:"valve_201_open"`
	Valve202Open bool `json:"valve_202_open"`
	Valve203Open bool `json:"valve_203_open"`
	Valve401Open bool `json:"valve_401_open"`
	NaOHPumpOn   bool `json:"naoh_pump_on"`
	ClPumpOn     bool `json:"cl_pump_on"`

	NaOHDose float64 `json:"NaOH_dose"`
	ClDose   float64 `json:"Cl_dose"`
	QOutSP   float64 `json:"Q_out_sp"`
}

// boolControl reports whether ctrl is one of the ten boolean actuators
// (as opposed to one of the three numeric setpoints), and a pointer to
// its field if so. Used by ApplyControl to route the write.
func (c *Controls) boolControl(ctrl registry.ControlID) (*bool, bool) {
	switch ctrl {
	case registry.WellfieldOn:
		return &c.WellfieldOn, true
	case registry.ROFeedPumpOn:
		return &c.ROFeedPumpOn, true
	case registry.DistPumpOn:
		return &c.DistPumpOn, true
	case registry.Valve101Open:
		return &c.Valve101Open, true
	case registry.Valve201Open:
		return &c.Valve201Open, true
	case registry.Valve202Open:
		return &c.Valve202Open, true
	case registry.Valve203Open:
		return &c.Valve203Open, true
	case registry.Valve401Open:
		return &c.Valve401Open, true
	case registry.NaOHPumpOn:
		return &c.NaOHPumpOn, true
	case registry.ClPumpOn:
		return &c.ClPumpOn, true
	}
	return nil, false
}
