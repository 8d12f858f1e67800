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

// Package httpapi implements the plant's publish API: an SSE
// telemetry stream, a snapshot-on-write /sync endpoint, and
// /reset_damage. Server is a *core.State-backed handler set with a
// RegisterRoutes method, plus a ListenAndServe with production timeouts.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plantsim/internal/plant/audit"
	"plantsim/internal/plant/core"
	"plantsim/internal/plant/registry"
	"plantsim/internal/plant/telemetry"
)

// Server handles the Publish API's HTTP routes.
type Server struct {
	state  *core.State
	driver *core.Driver
	audit  *audit.Sink
}

// NewServer configures a new Publish API server.
func NewServer(state *core.State, driver *core.Driver, a *audit.Sink) *Server {
	return &Server{state: state, driver: driver, audit: a}
}

// RegisterRoutes mounts the Publish API and the Prometheus exporter on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/reset_damage", s.handleResetDamage)
	mux.Handle("/metrics", promhttp.Handler())
}

// ListenAndServe starts the HTTP server on addr with the same
// production-minded timeouts as api.Server.ListenAndServe.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // /events is long-lived; WriteTimeout would kill the stream
		IdleTimeout:  120 * time.Second,
	}
	return httpServer.ListenAndServe()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// syncRequest is the body of POST /sync: a partial map of control name to
// raw JSON value (bool for actuators, number for setpoints).
type syncRequest struct {
	Controls map[string]json.RawMessage `json:"controls"`
}

// handleSync applies each provided control key via registry.ControlNames +
// core.State, then returns the post-apply snapshot. Unknown keys are
// rejected with HTTP 400 ("reject" over "ignore" was chosen for
// consistency with the Modbus side's exception-02 behavior on unknown
// addresses).
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	for key, raw := range req.Controls {
		ctrl, ok := registry.ControlNames[key]
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown control key: "+key)
			return
		}
		if !s.applyRawControl(ctrl, raw) {
			writeJSONError(w, http.StatusBadRequest, "invalid value for control key: "+key)
			return
		}
		telemetry.ControlWrites.WithLabelValues("http").Inc()
		if s.audit != nil {
			var v interface{}
			_ = json.Unmarshal(raw, &v)
			s.audit.Record(audit.Event{Source: "http", Client: r.RemoteAddr, Key: key, Value: v})
		}
	}

	snap := s.state.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) applyRawControl(ctrl registry.ControlID, raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return s.state.ApplyBool(ctrl, b)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return s.state.ApplyNumeric(ctrl, f)
	}
	return false
}

// handleResetDamage restores all health variables to 100.0.
func (s *Server) handleResetDamage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.state.ResetDamage()
	w.WriteHeader(http.StatusNoContent)
}
