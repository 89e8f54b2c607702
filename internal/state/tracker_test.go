// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package state

import (
	"sync"
	"testing"
	"time"
)

func TestTrackerTotalEvents(t *testing.T) {
	tr := NewTracker()
	if tr.TotalEvents() != 0 {
		t.Error("fresh tracker has events")
	}
	tr.RecordEvent("s1")
	tr.RecordEvent("s2")
	if tr.TotalEvents() != 2 {
		t.Errorf("total = %d, want 2", tr.TotalEvents())
	}
}

func TestTrackerEventRate(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 10; i++ {
		tr.RecordEvent("s1")
	}
	// 10 events in the 5-second window = 2/s.
	if rate := tr.EventRate(); rate != 2.0 {
		t.Errorf("rate = %v, want 2.0", rate)
	}
}

func TestTrackerActivePublishers(t *testing.T) {
	tr := NewTracker()
	tr.RecordEvent("s1")
	tr.RecordEvent("s2")
	tr.RecordEvent("s1") // duplicate source

	if got := tr.ActivePublishers(10 * time.Second); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
	if got := tr.ActivePublishers(time.Nanosecond); got != 0 {
		t.Errorf("active within 1ns = %d, want 0", got)
	}
}

func TestTrackerWSConnections(t *testing.T) {
	tr := NewTracker()
	tr.IncrementWSConnections()
	tr.IncrementWSConnections()
	tr.DecrementWSConnections()
	if got := tr.WSConnections(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			source := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				tr.RecordEvent(source)
			}
		}(i)
	}
	wg.Wait()

	if tr.TotalEvents() != 1000 {
		t.Errorf("total = %d, want 1000", tr.TotalEvents())
	}
	if got := tr.ActivePublishers(10 * time.Second); got != 10 {
		t.Errorf("active = %d, want 10", got)
	}
}
