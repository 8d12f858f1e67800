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

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plantsim/internal/plant/core"
	"plantsim/internal/plant/registry"
)

func newTestServer() *Server {
	state := core.NewState()
	driver := core.NewDriver(state, 10*time.Millisecond)
	return NewServer(state, driver, nil)
}

func TestHandleSyncAppliesBoolAndNumericControls(t *testing.T) {
	s := newTestServer()
	body := strings.NewReader(`{"controls":{"wellfield_on":true,"Q_out_sp":42}}`)
	req := httptest.NewRequest(http.MethodPost, "/sync", body)
	w := httptest.NewRecorder()

	s.handleSync(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var snap core.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !snap.Controls.WellfieldOn {
		t.Errorf("wellfield_on not applied")
	}
	if snap.Controls.QOutSP != 42 {
		t.Errorf("Q_out_sp = %v, want 42", snap.Controls.QOutSP)
	}
}

func TestHandleSyncUnknownKeyRejected(t *testing.T) {
	s := newTestServer()
	body := strings.NewReader(`{"controls":{"not_a_real_control":true}}`)
	req := httptest.NewRequest(http.MethodPost, "/sync", body)
	w := httptest.NewRecorder()

	s.handleSync(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleSyncInvalidValueTypeRejected(t *testing.T) {
	s := newTestServer()
	body := strings.NewReader(`{"controls":{"wellfield_on":"not-a-bool-or-number"}}`)
	req := httptest.NewRequest(http.MethodPost, "/sync", body)
	w := httptest.NewRecorder()

	s.handleSync(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleSyncRejectsNonPost(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/sync", nil)
	w := httptest.NewRecorder()

	s.handleSync(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleResetDamageResetsHealth(t *testing.T) {
	s := newTestServer()
	// Drive some damage first: RO feed pump against closed RO valves.
	s.state.ApplyControl(registry.ROFeedPumpOn, 1)
	s.state.ApplyControl(registry.Valve202Open, 0)
	s.state.ApplyControl(registry.Valve203Open, 0)
	for i := 0; i < 2000; i++ {
		s.state.Step(0.1)
	}

	req := httptest.NewRequest(http.MethodPost, "/reset_damage", nil)
	w := httptest.NewRecorder()
	s.handleResetDamage(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	snap := s.state.Snapshot()
	if snap.State.MembraneHealth != 100 {
		t.Errorf("membrane_health after reset = %v, want 100", snap.State.MembraneHealth)
	}
}

func TestHandleResetDamageRejectsNonPost(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/reset_damage", nil)
	w := httptest.NewRecorder()

	s.handleResetDamage(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}
