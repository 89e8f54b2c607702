// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package state

import (
	"bytes"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/broadcast"
	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/metrics"
)

// broadcastCapacity bounds each broadcast ring; lagging subscribers drop
// oldest pending values rather than block the projector.
const broadcastCapacity = 1000

// shardCount spreads entities over independent locks so reads are mostly
// uncontended and writes hold only a per-shard critical section.
const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// Engine holds the concurrent entity map and the broadcast channels.
// The projector is its only writer; readers obtain cloned snapshots and
// never hold references into the map.
type Engine struct {
	shards [shardCount]*shard

	lastProcessedSeq atomic.Uint64

	updates   *broadcast.Broadcaster[StateUpdate]
	deletions *broadcast.Broadcaster[EntityDeleted]
	metricsCh *broadcast.Broadcaster[MetricsUpdate]

	tracker *Tracker
}

// NewEngine creates an empty state engine.
func NewEngine() *Engine {
	e := &Engine{
		updates:   broadcast.New[StateUpdate](broadcastCapacity),
		deletions: broadcast.New[EntityDeleted](broadcastCapacity),
		metricsCh: broadcast.New[MetricsUpdate](broadcastCapacity),
		tracker:   NewTracker(),
	}
	for i := range e.shards {
		e.shards[i] = &shard{entities: make(map[string]Entity)}
	}
	return e
}

func (e *Engine) shardFor(entityID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	return e.shards[h.Sum32()%shardCount]
}

// UpdateProperty upserts one entity property and broadcasts the
// resulting StateUpdate.
func (e *Engine) UpdateProperty(entityID, property string, value json.RawMessage) StateUpdate {
	now := time.Now().UTC()
	s := e.shardFor(entityID)

	s.mu.Lock()
	ent, ok := s.entities[entityID]
	if !ok {
		ent = Entity{ID: entityID, Properties: make(map[string]json.RawMessage)}
	}
	oldValue := ent.Properties[property]
	ent.Properties[property] = value
	ent.LastUpdated = now
	s.entities[entityID] = ent
	s.mu.Unlock()

	update := StateUpdate{
		EntityID:  entityID,
		Property:  property,
		OldValue:  oldValue,
		NewValue:  value,
		Timestamp: now,
	}
	e.updates.Send(update)
	return update
}

// DeleteEntity removes an entity and broadcasts an EntityDeleted.
// Returns false when the entity did not exist.
func (e *Engine) DeleteEntity(entityID string) (EntityDeleted, bool) {
	s := e.shardFor(entityID)

	s.mu.Lock()
	_, existed := s.entities[entityID]
	delete(s.entities, entityID)
	s.mu.Unlock()

	if !existed {
		return EntityDeleted{}, false
	}

	deleted := EntityDeleted{EntityID: entityID, Timestamp: time.Now().UTC()}
	e.deletions.Send(deleted)
	return deleted, true
}

// GetEntity returns a cloned snapshot of one entity.
func (e *Engine) GetEntity(entityID string) (Entity, bool) {
	s := e.shardFor(entityID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entities[entityID]
	if !ok {
		return Entity{}, false
	}
	return ent.clone(), true
}

// AllEntities returns cloned snapshots of every entity.
func (e *Engine) AllEntities() []Entity {
	var out []Entity
	for _, s := range e.shards {
		s.mu.RLock()
		for _, ent := range s.entities {
			out = append(out, ent.clone())
		}
		s.mu.RUnlock()
	}
	return out
}

// EntityCount returns the number of entities in the world state.
func (e *Engine) EntityCount() int {
	count := 0
	for _, s := range e.shards {
		s.mu.RLock()
		count += len(s.entities)
		s.mu.RUnlock()
	}
	return count
}

// CountByNamespacePrefix counts entities whose id starts with
// "<namespace>/".
func (e *Engine) CountByNamespacePrefix(namespace string) uint64 {
	prefix := namespace + "/"
	var count uint64
	for _, s := range e.shards {
		s.mu.RLock()
		for id := range s.entities {
			if len(id) > len(prefix) && id[:len(prefix)] == prefix {
				count++
			}
		}
		s.mu.RUnlock()
	}
	return count
}

// LoadEntities replaces the world state with the given entities.
// Used by snapshot recovery before the projector starts.
func (e *Engine) LoadEntities(entities map[string]Entity) {
	for _, s := range e.shards {
		s.mu.Lock()
		s.entities = make(map[string]Entity)
		s.mu.Unlock()
	}
	for id, ent := range entities {
		s := e.shardFor(id)
		s.mu.Lock()
		s.entities[id] = ent.clone()
		s.mu.Unlock()
	}
}

// LastProcessedSequence returns the log sequence of the last projected
// event (0 before any event is processed).
func (e *Engine) LastProcessedSequence() uint64 {
	return e.lastProcessedSeq.Load()
}

// SetLastProcessedSequence seeds the sequence after snapshot recovery.
func (e *Engine) SetLastProcessedSequence(seq uint64) {
	e.lastProcessedSeq.Store(seq)
	metrics.LastProcessedSequence.Set(float64(seq))
}

// Tracker returns the rolling metrics tracker.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// SubscribeUpdates returns a new subscriber on the state update channel.
func (e *Engine) SubscribeUpdates() *broadcast.Subscriber[StateUpdate] {
	return e.updates.Subscribe()
}

// SubscribeDeletions returns a new subscriber on the deletion channel.
func (e *Engine) SubscribeDeletions() *broadcast.Subscriber[EntityDeleted] {
	return e.deletions.Subscribe()
}

// SubscribeMetrics returns a new subscriber on the metrics channel.
func (e *Engine) SubscribeMetrics() *broadcast.Subscriber[MetricsUpdate] {
	return e.metricsCh.Subscribe()
}

// PublishMetrics broadcasts a metrics update; send errors do not exist —
// no subscribers is normal.
func (e *Engine) PublishMetrics(update MetricsUpdate) {
	e.metricsCh.Send(update)
}

// trueLiteral matches the JSON encoding of the tombstone marker.
var trueLiteral = []byte("true")

// ProcessEvent applies one log event to the world state:
//
//  1. Extract entity_id from the payload; events without one only
//     advance the sequence.
//  2. Tombstones (properties.__deleted__ == true) remove the entity.
//  3. Otherwise every top-level properties sub-field is upserted, each
//     broadcasting a StateUpdate.
//  4. The delivered sequence becomes last_processed_sequence.
//
// Events are idempotent per (entity, property, value); at-least-once
// redelivery converges to the same state.
func (e *Engine) ProcessEvent(ev *event.Event, seq uint64) {
	e.tracker.RecordEvent(ev.Source)
	metrics.ProjectedEvents.Inc()

	entityID := ev.EntityID()
	if entityID != "" {
		props := ev.Properties()
		if deleted, ok := props["__deleted__"]; ok && bytes.Equal(bytes.TrimSpace(deleted), trueLiteral) {
			e.DeleteEntity(entityID)
		} else {
			for property, value := range props {
				e.UpdateProperty(entityID, property, value)
			}
		}
	}

	e.lastProcessedSeq.Store(seq)
	metrics.LastProcessedSequence.Set(float64(seq))
	metrics.EntityCount.Set(float64(e.EntityCount()))
}
