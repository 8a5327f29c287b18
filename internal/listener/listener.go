// Package listener provides a Postgres LISTEN/NOTIFY consumer that rebuilds a
// game's strength rows as soon as its shifts and plays land. It holds a
// dedicated pgx connection (not from the pool) listening on the
// game_data_loaded channel.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// GameDataEvent is the JSON payload from pg_notify('game_data_loaded', ...).
type GameDataEvent struct {
	GameID    int64 `json:"game_id"`
	Timestamp int64 `json:"ts"`
}

// GameBuilder rebuilds strength rows for one game.
type GameBuilder interface {
	BuildGame(ctx context.Context, gameID int64) strength.BuildResult
}

// Start opens a dedicated connection and listens on the game_data_loaded
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, builder GameBuilder, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, builder, logger)
		if ctx.Err() != nil {
			logger.Info("Game data listener stopped (context cancelled)")
			return
		}

		logger.Error("Game data listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, builder GameBuilder, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+config.GameDataChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", config.GameDataChannel, err)
	}
	logger.Info("Game data listener connected", "channel", config.GameDataChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		event, err := ParseEvent(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse game data event",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Info("Game data event received", "game_id", event.GameID)

		// Process asynchronously to avoid blocking the listener
		go handleGameData(ctx, builder, event, logger)
	}
}

// ParseEvent decodes a notification payload.
func ParseEvent(payload string) (GameDataEvent, error) {
	var event GameDataEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return GameDataEvent{}, err
	}
	if event.GameID <= 0 {
		return GameDataEvent{}, fmt.Errorf("missing game_id")
	}
	return event, nil
}

// handleGameData rebuilds player and team strength rows for the game.
func handleGameData(ctx context.Context, builder GameBuilder, event GameDataEvent, logger *slog.Logger) {
	start := time.Now()
	res := builder.BuildGame(ctx, event.GameID)
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			logger.Warn("Strength rebuild error", "game_id", event.GameID, "error", e)
		}
		return
	}
	logger.Info("Strength rows rebuilt",
		"game_id", event.GameID,
		"duration", time.Since(start).Round(time.Millisecond),
		"summary", res.Summary())
}
