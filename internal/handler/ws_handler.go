/*
Package handler provides the HTTP handler function for realtime websocket subscriptions.

HandleRealtime rate limits the caller, validates the table and event kind, upgrades the
connection and attaches the subscriber to the hub channel for that table and kind.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"globalchat/internal/backend"
	"globalchat/internal/pkg/auth/jwt"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/limiter"
	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/resp"
	"globalchat/internal/relay"
)

// HandleRealtime creates an HTTP HandlerFunc serving GET /realtime/{table}?event=KIND.
func HandleRealtime(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logx.Ctx(r.Context())

		if !rateLimiter.Allow(r) {
			logger.Warn().Str("ip", limiter.ClientIP(r)).Msg("Realtime connection rejected: Rate limit exceeded.")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		table := chi.URLParam(r, "table")
		if !deps.TableAllowed(table) {
			logger.Info().Str("table", table).Msg("Realtime connection rejected: Table not exposed.")
			resp.RespondError(w, r, errs.NewError(errs.ErrNotFound, "table "+table))
			return
		}

		kind, err := backend.ParseEventKind(r.URL.Query().Get("event"))
		if err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("Realtime connection rejected: Bad event kind.")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var userID string
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			userID = payload.ID
		} else if deps.Config.RelayRequireAuth {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		client := relay.NewClient(conn, userID)

		if err := deps.Hub.Attach(context.WithoutCancel(r.Context()), table, kind, client); err != nil {
			logger.Error().Err(err).Str("table", table).Str("event", string(kind)).Msg("Failed to attach subscriber")
			client.Reject(err)
			return
		}

		logger.Info().
			Str("ref", client.Ref).
			Str("table", table).
			Str("event", string(kind)).
			Str("user_id", userID).
			Msg("Realtime subscriber attached")

		go client.WritePump()

		client.ReadPump()
	}
}
