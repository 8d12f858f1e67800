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

// Package modbus exposes the plant's coil/register map as a Modbus TCP
// slave, built on github.com/simonvetter/modbus. The library owns MBAP
// framing, function-code dispatch, and per-connection goroutines; this
// package only supplies the modbus.RequestHandler that consults the
// register map (internal/plant/registry) and the shared state
// (internal/plant/core).
package modbus

import (
	"fmt"
	"log"
	"time"

	mb "github.com/simonvetter/modbus"

	"plantsim/internal/plant/audit"
	"plantsim/internal/plant/core"
	"plantsim/internal/plant/registry"
	"plantsim/internal/plant/telemetry"
)

const unitID = 1

// Slave implements mb.RequestHandler over a single core.State. It is safe
// for concurrent use: the library calls handler methods from one goroutine
// per client connection, and all reads/writes go through core.State's own
// RWMutex, matching the reference handler's own lock-protected array
// access.
type Slave struct {
	state *core.State
	audit *audit.Sink
}

// NewSlave constructs a handler bound to state. audit may be nil to
// disable write auditing.
func NewSlave(state *core.State, a *audit.Sink) *Slave {
	return &Slave{state: state, audit: a}
}

// Serve starts a Modbus TCP server at addr (e.g. "tcp://0.0.0.0:502") with
// the given idle timeout and client cap. The returned server is already
// accepting connections; call its Stop method to shut it down.
func Serve(addr string, idleTimeout time.Duration, maxClients uint, handler mb.RequestHandler) (*mb.ModbusServer, error) {
	server, err := mb.NewServer(&mb.ServerConfiguration{
		URL:        addr,
		Timeout:    idleTimeout,
		MaxClients: maxClients,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("modbus: create server: %w", err)
	}
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("modbus: start server: %w", err)
	}
	return server, nil
}

// HandleCoils implements FC 01/05/15 against registry.CoilTable.
func (h *Slave) HandleCoils(req *mb.CoilsRequest) ([]bool, error) {
	if req.UnitId != unitID {
		return nil, mb.ErrIllegalFunction
	}
	telemetry.ModbusRequests.WithLabelValues("coils").Inc()

	res := make([]bool, 0, req.Quantity)
	for i := 0; i < int(req.Quantity); i++ {
		addr := req.Addr + uint16(i)
		entry, ok := registry.LookupCoil(addr)
		if !ok {
			telemetry.ModbusExceptions.WithLabelValues("02").Inc()
			return nil, mb.ErrIllegalDataAddress
		}
		if req.IsWrite {
			h.state.ApplyControl(entry.Control, boolToFloat(req.Args[i]))
			telemetry.ControlWrites.WithLabelValues("modbus").Inc()
			h.logWrite(fmt.Sprintf("%v", req.ClientAddr), entry.Name, req.Args[i])
		}
		res = append(res, h.state.ReadCoil(entry.Control))
	}
	return res, nil
}

// HandleDiscreteInputs is unsupported: the plant has no separate discrete
// input bank, only coils.
func (h *Slave) HandleDiscreteInputs(req *mb.DiscreteInputsRequest) ([]bool, error) {
	return nil, mb.ErrIllegalFunction
}

// HandleHoldingRegisters implements FC 03/06/16 against
// registry.HoldingTable.
func (h *Slave) HandleHoldingRegisters(req *mb.HoldingRegistersRequest) ([]uint16, error) {
	if req.UnitId != unitID {
		return nil, mb.ErrIllegalFunction
	}
	telemetry.ModbusRequests.WithLabelValues("holding").Inc()

	res := make([]uint16, 0, req.Quantity)
	for i := 0; i < int(req.Quantity); i++ {
		addr := req.Addr + uint16(i)
		entry, ok := registry.LookupHolding(addr)
		if !ok {
			telemetry.ModbusExceptions.WithLabelValues("02").Inc()
			return nil, mb.ErrIllegalDataAddress
		}
		if req.IsWrite {
			if entry.Direction == registry.RO {
				// writes to a
				// read-only PV/health register return exception 02,
				// mirroring the reference handler's read-only register 80.
				log.Printf("[modbus] rejected write to read-only register %d (%s) from %s", addr, entry.Name, req.ClientAddr)
				telemetry.ModbusExceptions.WithLabelValues("02").Inc()
				return nil, mb.ErrIllegalDataAddress
			}
			h.state.WriteHolding(entry, req.Args[i])
			telemetry.ControlWrites.WithLabelValues("modbus").Inc()
			h.logWrite(fmt.Sprintf("%v", req.ClientAddr), entry.Name, registry.DecodeHolding(entry, req.Args[i]))
		}
		res = append(res, h.state.ReadHolding(entry))
	}
	return res, nil
}

// HandleInputRegisters is unsupported: the plant does not expose an input
// register bank distinct from holding registers.
func (h *Slave) HandleInputRegisters(req *mb.InputRegistersRequest) ([]uint16, error) {
	return nil, mb.ErrIllegalFunction
}

func (h *Slave) logWrite(client, key string, value interface{}) {
	if h.audit == nil {
		return
	}
	h.audit.Record(audit.Event{Source: "modbus", Client: client, Key: key, Value: value})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
