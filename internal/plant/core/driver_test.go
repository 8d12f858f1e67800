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

package core

import (
	"testing"
	"time"
)

func TestWarmupAdvancesTickSynchronously(t *testing.T) {
	s := NewState()
	d := NewDriver(s, 10*time.Millisecond)
	d.Warmup(50)
	if s.Tick() != 50 {
		t.Fatalf("Warmup(50) left tick count at %d", s.Tick())
	}
}

func TestDriverPublishesToSubscriber(t *testing.T) {
	s := NewState()
	d := NewDriver(s, 5*time.Millisecond)
	sub := d.Subscribe()
	defer d.Unsubscribe(sub)

	d.Start()
	defer d.Stop()

	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first published snapshot")
	}
}

func TestDriverDropsForSlowSubscriber(t *testing.T) {
	s := NewState()
	d := NewDriver(s, 2*time.Millisecond)
	sub := d.Subscribe()
	defer d.Unsubscribe(sub)

	d.Start()
	defer d.Stop()

	// Don't drain sub; let several ticks fire so its depth-1 channel fills
	// and the driver has to drop.
	time.Sleep(100 * time.Millisecond)

	if d.DroppedCount() == 0 {
		t.Errorf("expected dropped snapshots for a non-draining subscriber")
	}
}

func TestDriverStopIsIdempotent(t *testing.T) {
	s := NewState()
	d := NewDriver(s, 5*time.Millisecond)
	d.Start()
	d.Stop()
	d.Stop() // must not panic or block
}
