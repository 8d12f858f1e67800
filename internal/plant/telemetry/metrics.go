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

// Package telemetry holds the process-wide Prometheus collectors for the
// plant simulator. Collectors are package-level and registered once in
// init, so any component can record a metric without an explicit wiring
// step.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plantsim_tick_duration_seconds",
		Help:    "Wall time of one physics Step.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
	TickTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantsim_tick_total",
		Help: "Total number of physics ticks executed.",
	})
	HealthPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plantsim_health_percent",
		Help: "Current health percentage per asset.",
	}, []string{"asset"})

	ModbusConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "plantsim_modbus_connections",
		Help: "Currently connected Modbus TCP clients.",
	})
	ModbusRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_modbus_requests_total",
		Help: "Modbus requests handled, by entity type.",
	}, []string{"fc"})
	ModbusExceptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_modbus_exceptions_total",
		Help: "Modbus exception responses returned, by exception code.",
	}, []string{"code"})

	SSESubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "plantsim_sse_subscribers",
		Help: "Currently connected SSE subscribers.",
	})
	SSEDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantsim_sse_dropped_total",
		Help: "Snapshots dropped for slow SSE subscribers.",
	})

	ControlWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_control_writes_total",
		Help: "Accepted control writes, by source transport.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(
		TickDuration, TickTotal, HealthPercent,
		ModbusConnections, ModbusRequests, ModbusExceptions,
		SSESubscribers, SSEDropped,
		ControlWrites,
	)
}

// ServeMetrics exposes /metrics on addr in a background goroutine,
// matching churn.startMetricsEndpoint's standalone-listener pattern. Used
// only when a separate metrics address is configured; otherwise /metrics
// is mounted on the main HTTP server's mux.
func ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
