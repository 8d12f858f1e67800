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

// Package main wires the plant simulation together: a core.State and
// core.Driver ticking the physics, a Modbus TCP slave, a Publish API
// (SSE + /sync + /reset_damage), a JSONL write-audit log with optional
// Redis fan-out, and an optional standalone metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mb "github.com/simonvetter/modbus"

	"plantsim/internal/plant/audit"
	"plantsim/internal/plant/config"
	"plantsim/internal/plant/core"
	"plantsim/internal/plant/httpapi"
	"plantsim/internal/plant/modbus"
	"plantsim/internal/plant/telemetry"
)

func main() {
	cfg := config.Parse()
	fmt.Printf("plantsim starting with config: %v\n", cfg.Snapshot())

	state := core.NewState()
	driver := core.NewDriver(state, cfg.TickPeriod)

	fmt.Printf("running %d warmup ticks before accepting connections\n", cfg.WarmupTicks)
	driver.Warmup(cfg.WarmupTicks)

	auditSink, err := audit.NewSink(cfg.AuditLogPath, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to open audit log %s: %v", cfg.AuditLogPath, err)
	}

	slave := modbus.NewSlave(state, auditSink)
	modbusServer, modbusAddr, err := startModbus(cfg, slave)
	if err != nil {
		log.Fatalf("failed to start modbus server: %v", err)
	}
	fmt.Printf("modbus TCP slave listening on %s\n", modbusAddr)

	if cfg.MetricsAddr != "" {
		telemetry.ServeMetrics(cfg.MetricsAddr)
		fmt.Printf("standalone metrics endpoint listening on %s\n", cfg.MetricsAddr)
	}

	apiServer := httpapi.NewServer(state, driver, auditSink)
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		fmt.Printf("publish API listening on %s\n", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("publish API server failed: %v", err)
		}
	}()

	driver.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nshutting down plantsim...")

	if err := modbusServer.Stop(); err != nil {
		log.Printf("modbus server shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("publish API shutdown: %v", err)
	}

	driver.Stop()

	auditSink.Close()

	printFinalSummary(state, driver)
}

// startModbus binds cfg.ModbusAddr, falling back to cfg.ModbusFallbackAddr
// if the primary bind fails (port 502 typically requires root
// privileges a training rig may not be run with).
func startModbus(cfg *config.Config, slave *modbus.Slave) (*mb.ModbusServer, string, error) {
	server, err := modbus.Serve("tcp://"+stripColon(cfg.ModbusAddr), cfg.ModbusIdleTimeout, cfg.ModbusMaxClients, slave)
	if err == nil {
		return server, cfg.ModbusAddr, nil
	}
	log.Printf("modbus: failed to bind %s (%v), falling back to %s", cfg.ModbusAddr, err, cfg.ModbusFallbackAddr)

	server, err = modbus.Serve("tcp://"+stripColon(cfg.ModbusFallbackAddr), cfg.ModbusIdleTimeout, cfg.ModbusMaxClients, slave)
	if err != nil {
		return nil, "", err
	}
	return server, cfg.ModbusFallbackAddr, nil
}

// stripColon turns a ":502"-style listen address into "0.0.0.0:502" for the
// tcp:// URL the modbus library expects.
func stripColon(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}
	return addr
}

func printFinalSummary(state *core.State, driver *core.Driver) {
	snap := state.Snapshot()
	fmt.Println("plantsim final summary:")
	fmt.Printf("  ticks run:        %d\n", state.Tick())
	fmt.Printf("  sse dropped:      %d\n", driver.DroppedCount())
	fmt.Printf("  membrane health:  %.1f%%\n", snap.State.MembraneHealth)
	fmt.Printf("  pump_well health: %.1f%%\n", snap.State.PumpWellHealth)
	fmt.Printf("  pump_feed health: %.1f%%\n", snap.State.PumpFeedHealth)
	fmt.Printf("  pump_dist health: %.1f%%\n", snap.State.PumpDistHealth)
	fmt.Printf("  pipe_well health: %.1f%%\n", snap.State.PipeWellHealth)
	fmt.Printf("  pipe_feed health: %.1f%%\n", snap.State.PipeFeedHealth)
	fmt.Printf("  pipe_dist health: %.1f%%\n", snap.State.PipeDistHealth)
	fmt.Println("plantsim stopped.")
}
