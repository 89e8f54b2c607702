// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package state

import (
	"context"
	"time"

	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/eventlog"
	"github.com/EckmanTechLLC/flux/internal/logging"
)

// pollWait bounds each consumer fetch so the loop observes context
// cancellation promptly.
const pollWait = 2 * time.Second

// Projector is the single tail consumer of the event log. It resumes
// from the engine's last processed sequence, so a supervisor restart
// re-reads at most the events in flight during the crash — projection
// is idempotent over redelivery.
type Projector struct {
	client *eventlog.Client
	engine *Engine
}

// NewProjector creates the projection service.
func NewProjector(client *eventlog.Client, engine *Engine) *Projector {
	return &Projector{client: client, engine: engine}
}

// Serve implements suture.Service: it creates a consumer positioned
// after the last processed sequence and applies events until the
// context is canceled.
func (p *Projector) Serve(ctx context.Context) error {
	startSeq := p.engine.LastProcessedSequence()

	var resumeFrom uint64
	if startSeq > 0 {
		resumeFrom = startSeq + 1
	}

	consumer, err := p.client.NewConsumerFromSequence(ctx, resumeFrom)
	if err != nil {
		return err
	}

	logging.Info().Uint64("start_sequence", resumeFrom).Msg("projector started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := consumer.Next(pollWait)
		if err != nil {
			if err == eventlog.ErrNoMessage {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		ev, err := event.Unmarshal(msg.Data)
		if err != nil {
			// A malformed log entry cannot be projected; skipping it is
			// the only way to make progress. The sequence still advances.
			logging.Warn().Err(err).Uint64("sequence", msg.Sequence).Msg("skipping undecodable log entry")
			p.engine.SetLastProcessedSequence(msg.Sequence)
			continue
		}

		p.engine.ProcessEvent(ev, msg.Sequence)
	}
}

func (p *Projector) String() string { return "projector" }
