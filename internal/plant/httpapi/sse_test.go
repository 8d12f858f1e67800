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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// flushRecorder adds http.Flusher support to httptest.ResponseRecorder,
// which does not implement it by default.
type flushRecorder struct {
	*httptest.ResponseRecorder
}

func (f flushRecorder) Flush() {}

func TestHandleEventsEmitsInitialSnapshotImmediately(t *testing.T) {
	s := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := flushRecorder{httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		s.handleEvents(w, req)
		close(done)
	}()

	// Give the handler a moment to write the initial event, then cancel
	// the request context to unblock the handler's read loop.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleEvents did not return after context cancellation")
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("body does not start with an SSE data frame: %q", body)
	}
	if !strings.Contains(body, "time_s") {
		t.Fatalf("initial event missing snapshot payload: %q", body)
	}
}

func TestHandleEventsStreamsPublishedSnapshots(t *testing.T) {
	s := newTestServer()
	s.driver.Start()
	defer s.driver.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := flushRecorder{httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		s.handleEvents(w, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleEvents did not return after context cancellation")
	}

	frames := strings.Count(w.Body.String(), "data: ")
	if frames < 2 {
		t.Fatalf("got %d SSE frames, want at least 2 (initial + streamed)", frames)
	}
}
