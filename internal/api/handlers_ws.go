// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"github.com/EckmanTechLLC/flux/internal/logging"
	"github.com/EckmanTechLLC/flux/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser dashboard connects cross-origin in dev setups; the
	// token query parameter is the authorization boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket is GET /api/ws. When auth is enabled the ?token query
// parameter must be a valid namespace token; the check runs before the
// upgrade so unauthorized clients get a plain 401.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.opts.AuthEnabled {
		token := r.URL.Query().Get("token")
		if token == "" {
			respondError(w, http.StatusUnauthorized, "token query parameter required")
			return
		}
		if _, ok := s.opts.Registry.LookupByToken(token); !ok {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	go websocket.NewConnection(conn, s.opts.Engine).Run(s.rootCtx)
}
