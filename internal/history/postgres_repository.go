package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS notification_deliveries (
		id          TEXT PRIMARY KEY,
		trip_id     TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL,
		title       TEXT NOT NULL,
		body        TEXT NOT NULL,
		data        JSONB NOT NULL DEFAULT '{}'::jsonb,
		channel     TEXT NOT NULL,
		recipients  INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS notification_deliveries_trip_created_idx
		ON notification_deliveries (trip_id, created_at DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the deliveries table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating notification_deliveries: %w", err)
	}
	return nil
}

// Record inserts a delivery.
func (r *PostgresRepository) Record(ctx context.Context, d *Delivery) error {
	data, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	query := `
		INSERT INTO notification_deliveries (id, trip_id, kind, title, body, data, channel, recipients, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.TripID,
		d.Kind,
		d.Title,
		d.Body,
		string(data),
		d.Channel,
		d.Recipients,
		d.Failed,
		d.CreatedAt,
	)
	return err
}

// List returns deliveries newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Delivery, error) {
	query := `
		SELECT id, trip_id, kind, title, body, data, channel, recipients, failed, created_at
		FROM notification_deliveries
		WHERE ($1 = '' OR trip_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, opts.TripID, opts.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		var (
			d    Delivery
			data []byte
		)
		err := rows.Scan(
			&d.ID,
			&d.TripID,
			&d.Kind,
			&d.Title,
			&d.Body,
			&data,
			&d.Channel,
			&d.Recipients,
			&d.Failed,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &d.Data); err != nil {
				return nil, fmt.Errorf("decoding data for %s: %w", d.ID, err)
			}
		}
		deliveries = append(deliveries, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return deliveries, nil
}
