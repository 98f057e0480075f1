package repository

import (
	"context"
	"database/sql"
	"fmt"

	"cuida-monitor/internal/models"

	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS safety_events (
	event_id           UUID PRIMARY KEY,
	event_ts           BIGINT NOT NULL,
	kind               TEXT NOT NULL,
	latitude           DOUBLE PRECISION NOT NULL,
	longitude          DOUBLE PRECISION NOT NULL,
	acceleration_label TEXT NOT NULL DEFAULT 'unknown',
	device_id          TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_safety_events_event_ts ON safety_events (event_ts);
`

// EnsureSchema creates the safety_events table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// PostgresEventsRepo stores events in PostgreSQL.
type PostgresEventsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresEventsRepo creates a Postgres-backed repository.
func NewPostgresEventsRepo(db *sql.DB, logger *zap.Logger) *PostgresEventsRepo {
	return &PostgresEventsRepo{
		db:     db,
		logger: logger,
	}
}

// ListAscending loads the full history. Ties on event_ts keep commit order
// so replay reproduces the first-wins choice made at ingestion.
func (r *PostgresEventsRepo) ListAscending(ctx context.Context) ([]models.Event, error) {
	query := `
		SELECT
			event_id,
			event_ts,
			kind,
			latitude,
			longitude,
			acceleration_label,
			device_id,
			created_at
		FROM safety_events
		ORDER BY event_ts ASC, created_at ASC, event_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query events: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		var kind string
		var deviceID sql.NullString
		if err := rows.Scan(
			&event.EventID,
			&event.Timestamp,
			&kind,
			&event.Latitude,
			&event.Longitude,
			&event.AccelerationLabel,
			&deviceID,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Kind = models.Kind(kind)
		if deviceID.Valid {
			event.DeviceID = deviceID.String
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate events: %v", ErrStoreUnavailable, err)
	}

	return events, nil
}

// CreateEvent inserts event inside a transaction, rolling back on failure.
func (r *PostgresEventsRepo) CreateEvent(ctx context.Context, event *models.Event) (err error) {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				r.logger.Error("Failed to roll back event insert",
					zap.String("event_id", event.EventID),
					zap.Error(rbErr),
				)
			}
		}
	}()

	query := `
		INSERT INTO safety_events (
			event_id,
			event_ts,
			kind,
			latitude,
			longitude,
			acceleration_label,
			device_id,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	deviceID := sql.NullString{String: event.DeviceID, Valid: event.DeviceID != ""}
	if _, err = tx.ExecContext(ctx, query,
		event.EventID,
		event.Timestamp,
		string(event.Kind),
		event.Latitude,
		event.Longitude,
		event.AccelerationLabel,
		deviceID,
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("%w: failed to insert event: %v", ErrStoreUnavailable, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit event: %v", ErrStoreUnavailable, err)
	}

	r.logger.Debug("Stored safety event",
		zap.String("event_id", event.EventID),
		zap.Int64("key", event.Timestamp),
		zap.String("kind", string(event.Kind)),
	)
	return nil
}
