package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/safe-zone/internal/db"
	"github.com/sells-group/safe-zone/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var taskColumns = []string{"property_id", "task_id", "position", "text", "completed"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id         TEXT PRIMARY KEY,
	boundary   JSONB NOT NULL,
	center_lat DOUBLE PRECISION NOT NULL,
	center_lon DOUBLE PRECISION NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS property_tasks (
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	task_id     INTEGER NOT NULL,
	position    INTEGER NOT NULL,
	text        TEXT NOT NULL,
	completed   BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (property_id, task_id)
);

CREATE TABLE IF NOT EXISTS toggle_events (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	property_id TEXT NOT NULL,
	task_id     INTEGER NOT NULL,
	completed   BOOLEAN NOT NULL,
	version     BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_toggle_events_property ON toggle_events(property_id, version DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadProperty(ctx context.Context, id string) (*model.Property, error) {
	var p model.Property
	var boundary []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, boundary, center_lat, center_lon, version, updated_at FROM properties WHERE id = $1`,
		id,
	).Scan(&p.ID, &boundary, &p.Center.Latitude, &p.Center.Longitude, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: load property %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load property %s", id)
	}
	if err := json.Unmarshal(boundary, &p.Coordinates); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal boundary")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT task_id, text, completed FROM property_tasks WHERE property_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load tasks for %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Text, &t.Completed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		p.Tasks = append(p.Tasks, t)
	}
	return &p, eris.Wrap(rows.Err(), "postgres: load tasks iterate")
}

// SaveProperty replaces the property row and its task list in one transaction.
// Tasks are bulk-loaded with COPY.
func (s *PostgresStore) SaveProperty(ctx context.Context, p model.Property) error {
	boundary, err := json.Marshal(p.Coordinates)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal boundary")
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	rows := make([][]any, 0, len(p.Tasks))
	for i, t := range p.Tasks {
		rows = append(rows, []any{p.ID, t.ID, i, t.Text, t.Completed})
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO properties (id, boundary, center_lat, center_lon, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				boundary = EXCLUDED.boundary,
				center_lat = EXCLUDED.center_lat,
				center_lon = EXCLUDED.center_lon,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at`,
			p.ID, boundary, p.Center.Latitude, p.Center.Longitude, p.Version, updatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert property %s", p.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM property_tasks WHERE property_id = $1`, p.ID); err != nil {
			return eris.Wrapf(err, "postgres: clear tasks for %s", p.ID)
		}

		_, err = db.CopyFrom(ctx, tx, "property_tasks", taskColumns, rows)
		return err
	})
}

func (s *PostgresStore) RecordToggle(ctx context.Context, ev model.ToggleEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO toggle_events (id, property_id, task_id, completed, version, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.PropertyID, ev.TaskID, ev.Completed, ev.Version, ev.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: record toggle %s", ev.ID)
}

func (s *PostgresStore) ListToggles(ctx context.Context, propertyID string, limit int) ([]model.ToggleEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, property_id, task_id, completed, version, created_at FROM toggle_events
		WHERE property_id = $1 ORDER BY version DESC LIMIT $2`,
		propertyID, toggleLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list toggles")
	}
	defer rows.Close()

	var events []model.ToggleEvent
	for rows.Next() {
		var ev model.ToggleEvent
		if err := rows.Scan(&ev.ID, &ev.PropertyID, &ev.TaskID, &ev.Completed, &ev.Version, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan toggle")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list toggles iterate")
}
