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

// Package audit records every accepted control write to a JSONL file and,
// optionally, fans it out over Redis pub/sub for a live SOC dashboard.
// This is observability for a cybersecurity training exercise, not
// simulation-state persistence: nothing written here is ever read back by
// the simulator itself.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// channelName is the Redis pub/sub channel used for the live audit
// fan-out.
const channelName = "plantsim:audit"

// Event is one accepted control write.
type Event struct {
	Time   time.Time   `json:"time"`
	Source string      `json:"source"` // "modbus" or "http"
	Client string      `json:"client,omitempty"`
	Key    string      `json:"key"`
	Value  interface{} `json:"value"`
}

// Sink is a buffered, JSONL append-only audit log, optionally paired with
// a Redis publisher, using a buffered writer so a burst of writes doesn't
// hit the file on every event. The buffer is flushed by a Record call that
// comes more than 100ms after the previous flush, and by Flush and Close;
// there is no background timer.
type Sink struct {
	mu        sync.Mutex
	f         *os.File
	w         *bufio.Writer
	lastFlush time.Time

	redis *redis.Client
}

// NewSink opens (or creates) the JSONL log at path in append mode. If
// redisAddr is non-empty, accepted events are also PUBLISHed to
// plantsim:audit, best-effort: fire and forget, no ack wait.
func NewSink(path string, redisAddr string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		f:         f,
		w:         bufio.NewWriterSize(f, 1<<16),
		lastFlush: time.Now(),
	}
	if redisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return s, nil
}

// Record appends ev to the JSONL log and, if configured, publishes it to
// Redis. Safe for concurrent use by multiple Modbus/HTTP handler
// goroutines.
func (s *Sink) Record(ev Event) {
	ev.Time = time.Now()

	s.mu.Lock()
	enc := json.NewEncoder(s.w)
	if err := enc.Encode(&ev); err != nil {
		_ = s.w.Flush()
		_ = enc.Encode(&ev)
	}
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		_ = s.w.Flush()
		s.lastFlush = time.Now()
	}
	s.mu.Unlock()

	if s.redis != nil {
		payload, err := json.Marshal(&ev)
		if err == nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				// Best effort: a training dashboard that misses an event is
				// not a correctness issue, so errors are not propagated.
				_ = s.redis.Publish(ctx, channelName, payload).Err()
			}()
		}
	}
}

// Flush forces any buffered JSONL data to disk.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Close flushes and closes the log file and Redis client.
func (s *Sink) Close() error {
	s.mu.Lock()
	_ = s.w.Flush()
	err := s.f.Close()
	s.mu.Unlock()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	return err
}
