package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inklet-ai/inklet/internal/pipeline"
)

// OutcomeRepository journals delivery outcomes. The pipeline core never
// touches it; the handler layer records each run after the fact.
type OutcomeRepository struct {
	db *DB
}

// NewOutcomeRepository creates a new outcome repository
func NewOutcomeRepository(db *DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// EnsureSchema creates the journal table when it does not exist yet.
func (r *OutcomeRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS delivery_outcomes (
			id              BIGSERIAL PRIMARY KEY,
			request_id      TEXT NOT NULL,
			destination     TEXT NOT NULL,
			delivered       BOOLEAN NOT NULL,
			payload_preview TEXT NOT NULL,
			delivered_at    TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure delivery_outcomes schema: %w", err)
	}
	return nil
}

// RecordOutcome inserts one delivery outcome row.
func (r *OutcomeRepository) RecordOutcome(ctx context.Context, requestID string, outcome pipeline.DeliveryOutcome) error {
	var deliveredAt *time.Time
	if ts, err := time.Parse(time.RFC3339, outcome.Timestamp); err == nil {
		deliveredAt = &ts
	}

	const query = `
		INSERT INTO delivery_outcomes (request_id, destination, delivered, payload_preview, delivered_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		requestID, outcome.Destination, outcome.Delivered, outcome.PayloadPreview, deliveredAt)
	if err != nil {
		return fmt.Errorf("failed to insert delivery outcome: %w", err)
	}

	log.Debug().
		Str("request_id", requestID).
		Bool("delivered", outcome.Delivered).
		Msg("Delivery outcome journaled")
	return nil
}

// Health reports whether the journal database is reachable.
func (r *OutcomeRepository) Health() error {
	return r.db.Health()
}
