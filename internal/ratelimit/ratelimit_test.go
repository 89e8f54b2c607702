// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package ratelimit

import (
	"testing"
	"time"
)

func TestAllowsWithinLimit(t *testing.T) {
	l := New()
	// Bucket starts full — first request must be admitted.
	if !l.CheckAndConsume("ns1", 100) {
		t.Error("first request rejected")
	}
}

func TestBlocksWhenBucketEmpty(t *testing.T) {
	l := New()
	if !l.CheckAndConsume("ns1", 1) {
		t.Fatal("first request rejected")
	}
	if l.CheckAndConsume("ns1", 1) {
		t.Error("second immediate request admitted with capacity 1")
	}
}

func TestSeparateBucketsPerNamespace(t *testing.T) {
	l := New()
	if !l.CheckAndConsume("ns1", 1) {
		t.Fatal("ns1 first request rejected")
	}
	if l.CheckAndConsume("ns1", 1) {
		t.Error("ns1 drained bucket admitted")
	}
	// ns2 has its own bucket.
	if !l.CheckAndConsume("ns2", 1) {
		t.Error("ns2 affected by ns1's bucket")
	}
}

func TestNeverExceedsCapacityWithinOneSecond(t *testing.T) {
	l := New()
	const capacity = 10

	admitted := 0
	for i := 0; i < capacity*3; i++ {
		if l.CheckAndConsume("ns1", capacity) {
			admitted++
		}
	}
	// Refill over the loop duration is well under one token.
	if admitted > capacity {
		t.Errorf("admitted %d requests, capacity %d", admitted, capacity)
	}
	if admitted < capacity {
		t.Errorf("admitted %d requests, expected the full burst of %d", admitted, capacity)
	}
}

func TestRefillOverTime(t *testing.T) {
	l := New()
	// 3600/min = 60 tokens/sec.
	const capacity = 3600

	for i := 0; i < capacity; i++ {
		l.CheckAndConsume("ns1", capacity)
	}
	if l.CheckAndConsume("ns1", capacity) {
		t.Fatal("bucket should be empty after draining")
	}

	// 50ms at 60 tokens/sec refills ~3 tokens.
	time.Sleep(50 * time.Millisecond)
	if !l.CheckAndConsume("ns1", capacity) {
		t.Error("bucket did not refill over time")
	}
}

func TestCapacityChangeTakesEffect(t *testing.T) {
	l := New()
	if !l.CheckAndConsume("ns1", 1) {
		t.Fatal("first request rejected")
	}
	if l.CheckAndConsume("ns1", 1) {
		t.Fatal("drained bucket admitted")
	}

	// The first check at the new capacity retunes the bucket; refill
	// then accrues at the faster rate (60000/min = 1000 tokens/sec).
	l.CheckAndConsume("ns1", 60000)
	time.Sleep(20 * time.Millisecond)
	if !l.CheckAndConsume("ns1", 60000) {
		t.Error("request rejected after capacity increase and refill window")
	}
}

func TestZeroCapacityRejects(t *testing.T) {
	l := New()
	if l.CheckAndConsume("ns1", 0) {
		t.Error("zero capacity admitted a request")
	}
}
