// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package websocket

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/EckmanTechLLC/flux/internal/broadcast"
	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/metrics"
	"github.com/EckmanTechLLC/flux/internal/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Connection multiplexes one WebSocket client: inbound subscribe /
// unsubscribe frames, state updates, metrics ticks, and deletion events,
// all handled by a single writer goroutine.
type Connection struct {
	conn          *websocket.Conn
	engine        *state.Engine
	subscriptions map[string]struct{}
}

// NewConnection wraps an upgraded WebSocket connection.
func NewConnection(conn *websocket.Conn, engine *state.Engine) *Connection {
	return &Connection{
		conn:          conn,
		engine:        engine,
		subscriptions: make(map[string]struct{}),
	}
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type updateDelivery struct {
	update  state.StateUpdate
	skipped uint64
}

type metricsDelivery struct {
	update  state.MetricsUpdate
	skipped uint64
}

type deletionDelivery struct {
	deleted state.EntityDeleted
	skipped uint64
}

// Run services the connection until the client disconnects or a send
// fails. The connection count is decremented exactly once on return.
func (c *Connection) Run(ctx context.Context) {
	tracker := c.engine.Tracker()
	tracker.IncrementWSConnections()
	metrics.WSConnections.Inc()
	logging.Info().Msg("websocket connection established")

	defer func() {
		tracker.DecrementWSConnections()
		metrics.WSConnections.Dec()
		_ = c.conn.Close()
		logging.Info().Msg("websocket connection closed")
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := c.engine.SubscribeUpdates()
	defer updates.Close()
	metricsSub := c.engine.SubscribeMetrics()
	defer metricsSub.Close()
	deletions := c.engine.SubscribeDeletions()
	defer deletions.Close()

	inbound := make(chan inboundFrame)
	go c.readPump(ctx, inbound)

	updatesCh := make(chan updateDelivery)
	go pump(ctx, updates, updatesCh, func(u state.StateUpdate, skipped uint64) updateDelivery {
		return updateDelivery{update: u, skipped: skipped}
	})

	metricsCh := make(chan metricsDelivery)
	go pump(ctx, metricsSub, metricsCh, func(u state.MetricsUpdate, skipped uint64) metricsDelivery {
		return metricsDelivery{update: u, skipped: skipped}
	})

	deletionsCh := make(chan deletionDelivery)
	go pump(ctx, deletions, deletionsCh, func(d state.EntityDeleted, skipped uint64) deletionDelivery {
		return deletionDelivery{deleted: d, skipped: skipped}
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-inbound:
			if frame.err != nil {
				if websocket.IsUnexpectedCloseError(frame.err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logging.Warn().Err(frame.err).Msg("websocket read error")
				}
				return
			}
			if frame.messageType == websocket.TextMessage {
				c.handleClientMessage(frame.data)
			}
			// Binary frames are ignored.

		case d := <-updatesCh:
			if d.skipped > 0 {
				metrics.WSLaggedDrops.Add(float64(d.skipped))
				logging.Warn().Uint64("skipped", d.skipped).Msg("websocket lagged, skipped state updates")
			}
			if c.shouldForward(d.update.EntityID) {
				if err := c.write(newStateUpdateMessage(d.update)); err != nil {
					logging.Debug().Err(err).Msg("failed to send state update")
					return
				}
			}

		case d := <-metricsCh:
			if d.skipped > 0 {
				logging.Warn().Uint64("skipped", d.skipped).Msg("websocket lagged, skipped metrics updates")
			}
			// Metrics go to every client; those that don't care ignore them.
			if err := c.write(newMetricsUpdateMessage(d.update)); err != nil {
				logging.Debug().Err(err).Msg("failed to send metrics update")
				return
			}

		case d := <-deletionsCh:
			if d.skipped > 0 {
				logging.Warn().Uint64("skipped", d.skipped).Msg("websocket lagged, skipped deletion events")
			}
			if err := c.write(newEntityDeletedMessage(d.deleted)); err != nil {
				logging.Debug().Err(err).Msg("failed to send entity deleted")
				return
			}

		case <-pingTicker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pump forwards broadcast deliveries into a channel the select loop can
// read. Backpressure here parks the subscriber cursor; the bounded ring
// then drops oldest values and surfaces the skip count.
func pump[T any, D any](ctx context.Context, sub *broadcast.Subscriber[T], out chan<- D, wrap func(T, uint64) D) {
	for {
		v, skipped, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		select {
		case out <- wrap(v, skipped):
		case <-ctx.Done():
			return
		}
	}
}

// readPump feeds inbound frames; gorilla requires a dedicated reader.
func (c *Connection) readPump(ctx context.Context, inbound chan<- inboundFrame) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		select {
		case inbound <- inboundFrame{messageType: messageType, data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleClientMessage applies subscribe/unsubscribe frames.
func (c *Connection) handleClientMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Debug().Err(err).Msg("invalid websocket client message")
		_ = c.write(newErrorMessage("invalid message format"))
		return
	}

	switch msg.Type {
	case clientTypeSubscribe:
		logging.Info().Str("entity_id", msg.EntityID).Msg("client subscribed to entity")
		c.subscriptions[msg.EntityID] = struct{}{}
	case clientTypeUnsubscribe:
		logging.Info().Str("entity_id", msg.EntityID).Msg("client unsubscribed from entity")
		delete(c.subscriptions, msg.EntityID)
	default:
		_ = c.write(newErrorMessage("unknown message type: " + msg.Type))
	}
}

// shouldForward implements the subscription filter: forward when the
// client has no subscriptions, holds the wildcard, or subscribed to the
// update's entity.
func (c *Connection) shouldForward(entityID string) bool {
	if len(c.subscriptions) == 0 {
		return true
	}
	if _, ok := c.subscriptions["*"]; ok {
		return true
	}
	_, ok := c.subscriptions[entityID]
	return ok
}

func (c *Connection) write(v interface{}) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return err
	}
	metrics.WSMessagesSent.Inc()
	return nil
}
