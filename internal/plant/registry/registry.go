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

// Package registry binds symbolic plant signal names to their Modbus coil
// and holding-register addresses. The tables are built once at init and
// never mutated afterward, so lookups need no locking.
package registry

// ControlID is a closed enumeration of every actuated input. Replacing a
// string-keyed controls dictionary with this enum turns a write to an
// unknown key into a compile-time/schema error at the edge rather than a
// runtime map miss.
type ControlID int

const (
	WellfieldOn ControlID = iota
	ROFeedPumpOn
	DistPumpOn
	Valve101Open
	Valve201Open
	Valve202Open
	Valve203Open
	Valve401Open
	NaOHPumpOn
	ClPumpOn
	NaOHDose
	ClDose
	QOutSP
	numControls
)

// Kind distinguishes Modbus entity types.
type Kind int

const (
	Coil Kind = iota
	Holding
)

// Direction marks whether the network side may write a register/coil.
type Direction int

const (
	RW Direction = iota
	RO
)

// Entry is one row of the register map: the binding between a control or
// process-variable identifier, its Modbus address, and the integer scale
// factor applied to the wire value (wire = round(engineering * Scale)).
type Entry struct {
	Name      string
	Kind      Kind
	Address   uint16
	Scale     float64
	Direction Direction
	Control   ControlID // meaningful only for RW entries; -1 for PV/health rows
}

const noControl = ControlID(-1)

// CoilTable is the static FC 01/05/15 map, addresses 0-9, indexed directly
// by address for O(1) lookup.
var CoilTable = [10]Entry{
	{Name: "wellfield_on", Kind: Coil, Address: 0, Scale: 1, Direction: RW, Control: WellfieldOn},
	{Name: "ro_feed_pump_on", Kind: Coil, Address: 1, Scale: 1, Direction: RW, Control: ROFeedPumpOn},
	{Name: "dist_pump_on", Kind: Coil, Address: 2, Scale: 1, Direction: RW, Control: DistPumpOn},
	{Name: "valve_101_open", Kind: Coil, Address: 3, Scale: 1, Direction: RW, Control: Valve101Open},
	{Name: "valve_201_open", Kind: Coil, Address: 4, Scale: 1, Direction: RW, Control: Valve201Open},
	{Name: "valve_202_open", Kind: Coil, Address: 5, Scale: 1, Direction: RW, Control: Valve202Open},
	{Name: "valve_203_open", Kind: Coil, Address: 6, Scale: 1, Direction: RW, Control: Valve203Open},
	{Name: "valve_401_open", Kind: Coil, Address: 7, Scale: 1, Direction: RW, Control: Valve401Open},
	{Name: "naoh_pump_on", Kind: Coil, Address: 8, Scale: 1, Direction: RW, Control: NaOHPumpOn},
	{Name: "cl_pump_on", Kind: Coil, Address: 9, Scale: 1, Direction: RW, Control: ClPumpOn},
}

// HoldingMax is one past the highest holding-register address used. The
// table below is sparse (gaps at 3-9 and 25-29) but is still an
// array-indexed, not a map-indexed, lookup.
const HoldingMax = 37

// HoldingTable is the static FC 03/06/16 map, addresses 0-36. Unused
// addresses have a zero Entry with a nil/empty Name, which lookups treat as
// "not defined" (Modbus exception 02).
var HoldingTable [HoldingMax]Entry

func init() {
	set := func(addr uint16, name string, scale float64, dir Direction, ctrl ControlID) {
		HoldingTable[addr] = Entry{Name: name, Kind: Holding, Address: addr, Scale: scale, Direction: dir, Control: ctrl}
	}

	// Setpoints (RW), §6.2.
	set(0, "NaOH_dose", 10, RW, NaOHDose)
	set(1, "Cl_dose", 10, RW, ClDose)
	set(2, "Q_out_sp", 1, RW, QOutSP)

	// Process variables (RO).
	set(10, "Q_wellfield", 1, RO, noControl)
	set(11, "Q_feed", 1, RO, noControl)
	set(12, "Q_perm", 1, RO, noControl)
	set(13, "Q_brine", 1, RO, noControl)
	set(14, "Q_out", 1, RO, noControl)
	set(15, "level_feed_tank", 100, RO, noControl)
	set(16, "level_clearwell", 100, RO, noControl)
	set(17, "pressure_well", 10, RO, noControl)
	set(18, "pressure_feed", 10, RO, noControl)
	set(19, "pressure_dist", 10, RO, noControl)
	set(20, "dP_ro_true", 100, RO, noControl)
	set(21, "TDS_feed", 1, RO, noControl)
	set(22, "TDS_perm", 1, RO, noControl)
	set(23, "pH_true", 100, RO, noControl)
	set(24, "Cl_true", 100, RO, noControl)

	// Health (RO).
	set(30, "membrane_health", 10, RO, noControl)
	set(31, "pump_well_health", 10, RO, noControl)
	set(32, "pump_feed_health", 10, RO, noControl)
	set(33, "pump_dist_health", 10, RO, noControl)
	set(34, "pipe_well_health", 10, RO, noControl)
	set(35, "pipe_feed_health", 10, RO, noControl)
	set(36, "pipe_dist_health", 10, RO, noControl)

	for _, e := range CoilTable {
		ControlNames[e.Name] = e.Control
	}
	for _, e := range HoldingTable {
		if e.Direction == RW && e.Name != "" {
			ControlNames[e.Name] = e.Control
		}
	}
}

// ControlNames maps every writable signal's symbolic name (as used in
// JSON control payloads, e.g. "wellfield_on", "NaOH_dose") to its
// ControlID, built once at init from CoilTable and the RW rows of
// HoldingTable. Used by the HTTP /sync handler to route partial JSON
// control updates without a hand-maintained second table.
var ControlNames = map[string]ControlID{}

// LookupCoil returns the coil table entry for addr, or ok=false if the
// address is undefined.
func LookupCoil(addr uint16) (Entry, bool) {
	if int(addr) >= len(CoilTable) {
		return Entry{}, false
	}
	return CoilTable[addr], true
}

// LookupHolding returns the holding-register entry for addr, or ok=false if
// the address is undefined or falls in a table gap.
func LookupHolding(addr uint16) (Entry, bool) {
	if int(addr) >= HoldingMax {
		return Entry{}, false
	}
	e := HoldingTable[addr]
	if e.Name == "" {
		return Entry{}, false
	}
	return e, true
}

// EncodeHolding converts an engineering value to its wire representation
// for a holding register (wire = round(value * scale)).
func EncodeHolding(e Entry, value float64) uint16 {
	wire := value * e.Scale
	if wire < 0 {
		wire = 0
	}
	if wire > 65535 {
		wire = 65535
	}
	return uint16(wire + 0.5)
}

// DecodeHolding converts a wire value back to engineering units.
func DecodeHolding(e Entry, wire uint16) float64 {
	if e.Scale == 0 {
		return 0
	}
	return float64(wire) / e.Scale
}
