package repository

import (
	"context"
	"database/sql"
	"time"
)

// OCPPMessage is one journaled frame.
type OCPPMessage struct {
	StationID   string
	Direction   string
	MessageType string
	MessageID   string
	Payload     []byte
	RecordedAt  time.Time
}

// OCPPLogRepository stores raw OCPP messages.
type OCPPLogRepository struct {
	db *sql.DB
}

// NewOCPPLogRepository ctor.
func NewOCPPLogRepository(db *sql.DB) *OCPPLogRepository {
	return &OCPPLogRepository{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *OCPPLogRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS ocpp_messages (
			id           BIGSERIAL PRIMARY KEY,
			station_id   TEXT        NOT NULL,
			direction    TEXT        NOT NULL,
			message_type TEXT        NOT NULL,
			message_id   TEXT        NOT NULL,
			payload      JSONB       NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Save stores log entry.
func (r *OCPPLogRepository) Save(ctx context.Context, msg OCPPMessage) error {
	const query = `
		INSERT INTO ocpp_messages (station_id, direction, message_type, message_id, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, msg.StationID, msg.Direction, msg.MessageType, msg.MessageID, msg.Payload, msg.RecordedAt)
	return err
}
