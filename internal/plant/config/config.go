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

// Package config parses the flag/environment-driven configuration for the
// plant simulator into a single typed struct with a diagnostics snapshot.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Config holds every flag/env-driven knob. Each field
// has a flag and a PLANTSIM_<NAME> environment fallback; the flag wins if
// both are set.
type Config struct {
	ModbusAddr         string
	ModbusFallbackAddr string
	HTTPAddr           string
	TickPeriod         time.Duration
	WarmupTicks        int
	ModbusIdleTimeout  time.Duration
	ModbusMaxClients   uint
	AuditLogPath       string
	RedisAddr          string
	MetricsAddr        string
}

// Parse builds a Config from command-line flags, each defaulting to its
// PLANTSIM_<NAME> environment variable (or the hardcoded default if
// neither is set), then calls flag.Parse(). Intended to be called once
// from main.
func Parse() *Config {
	cfg := &Config{}

	modbusAddr := flag.String("modbus_addr", envOr("PLANTSIM_MODBUS_ADDR", ":502"), "Modbus TCP listen address")
	modbusFallback := flag.String("modbus_fallback_addr", envOr("PLANTSIM_MODBUS_FALLBACK_ADDR", ":5020"), "Fallback Modbus TCP listen address, used if binding modbus_addr fails")
	httpAddr := flag.String("http_addr", envOr("PLANTSIM_HTTP_ADDR", ":8000"), "Publish API (HTTP/SSE) listen address")
	tickMs := flag.Int64("tick_ms", envOrInt64("PLANTSIM_TICK_MS", 100), "Physics tick period, in milliseconds")
	warmupTicks := flag.Int("warmup_ticks", envOrInt("PLANTSIM_WARMUP_TICKS", 50), "Ticks run before network servers accept connections")
	modbusIdle := flag.Duration("modbus_idle_timeout", envOrDuration("PLANTSIM_MODBUS_IDLE_TIMEOUT", 120*time.Second), "Idle Modbus connection timeout")
	modbusMaxClients := flag.Int("modbus_max_clients", envOrInt("PLANTSIM_MODBUS_MAX_CLIENTS", 16), "Maximum concurrent Modbus TCP clients")
	auditLog := flag.String("audit_log", envOr("PLANTSIM_AUDIT_LOG", "audit.log"), "Path to the JSONL write-audit log")
	redisAddr := flag.String("redis_addr", envOr("PLANTSIM_REDIS_ADDR", ""), "Optional Redis address for audit pub/sub fan-out; empty disables it")
	metricsAddr := flag.String("metrics_addr", envOr("PLANTSIM_METRICS_ADDR", ""), "Optional standalone /metrics listen address; empty serves /metrics on http_addr")

	flag.Parse()

	cfg.ModbusAddr = *modbusAddr
	cfg.ModbusFallbackAddr = *modbusFallback
	cfg.HTTPAddr = *httpAddr
	cfg.TickPeriod = time.Duration(*tickMs) * time.Millisecond
	cfg.WarmupTicks = *warmupTicks
	cfg.ModbusIdleTimeout = *modbusIdle
	cfg.ModbusMaxClients = uint(*modbusMaxClients)
	cfg.AuditLogPath = *auditLog
	cfg.RedisAddr = *redisAddr
	cfg.MetricsAddr = *metricsAddr

	return cfg
}

// Snapshot renders the effective configuration for diagnostics/startup
// logging.
func (c *Config) Snapshot() map[string]string {
	return map[string]string{
		"modbus_addr":          c.ModbusAddr,
		"modbus_fallback_addr": c.ModbusFallbackAddr,
		"http_addr":            c.HTTPAddr,
		"tick_period":          c.TickPeriod.String(),
		"warmup_ticks":         fmt.Sprintf("%d", c.WarmupTicks),
		"modbus_idle_timeout":  c.ModbusIdleTimeout.String(),
		"modbus_max_clients":   fmt.Sprintf("%d", c.ModbusMaxClients),
		"audit_log":            c.AuditLogPath,
		"redis_addr":           c.RedisAddr,
		"metrics_addr":         c.MetricsAddr,
	}
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envOrInt(name string, def int) int {
	if v, ok := os.LookupEnv(name); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func envOrInt64(name string, def int64) int64 {
	if v, ok := os.LookupEnv(name); ok {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func envOrDuration(name string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
