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

	"plantsim/internal/plant/telemetry"
)

// handleEvents serves the SSE telemetry stream. On connect it
// immediately emits the current snapshot, then forwards every snapshot
// published by the driver. Backpressure is handled entirely by
// core.Driver.Subscribe: a slow consumer's depth-1 channel simply drops
// intermediate snapshots with a non-blocking send; this handler never
// blocks the tick.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if !writeSnapshotEvent(w, s.state.Snapshot()) {
		return
	}
	flusher.Flush()

	sub := s.driver.Subscribe()
	telemetry.SSESubscribers.Inc()
	defer func() {
		s.driver.Unsubscribe(sub)
		telemetry.SSESubscribers.Dec()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if !writeSnapshotEvent(w, snap) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSnapshotEvent(w http.ResponseWriter, snap interface{}) bool {
	payload, err := json.Marshal(snap)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	_, err = w.Write([]byte("\n\n"))
	return err == nil
}
