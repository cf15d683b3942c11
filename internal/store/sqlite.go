package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/safe-zone/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id         TEXT PRIMARY KEY,
	boundary   TEXT NOT NULL,
	center_lat REAL NOT NULL,
	center_lon REAL NOT NULL,
	version    INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS property_tasks (
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	task_id     INTEGER NOT NULL,
	position    INTEGER NOT NULL,
	text        TEXT NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (property_id, task_id)
);

CREATE TABLE IF NOT EXISTS toggle_events (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	task_id     INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	version     INTEGER NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_toggle_events_property ON toggle_events(property_id, version);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadProperty(ctx context.Context, id string) (*model.Property, error) {
	var p model.Property
	var boundary string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, boundary, center_lat, center_lon, version, updated_at FROM properties WHERE id = ?`,
		id,
	).Scan(&p.ID, &boundary, &p.Center.Latitude, &p.Center.Longitude, &p.Version, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: load property %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load property %s", id)
	}
	if err := json.Unmarshal([]byte(boundary), &p.Coordinates); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal boundary")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, text, completed FROM property_tasks WHERE property_id = ? ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load tasks for %s", id)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Text, &t.Completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		p.Tasks = append(p.Tasks, t)
	}
	return &p, eris.Wrap(rows.Err(), "sqlite: load tasks iterate")
}

func (s *SQLiteStore) SaveProperty(ctx context.Context, p model.Property) error {
	boundary, err := json.Marshal(p.Coordinates)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal boundary")
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO properties (id, boundary, center_lat, center_lon, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			boundary = excluded.boundary,
			center_lat = excluded.center_lat,
			center_lon = excluded.center_lon,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		p.ID, string(boundary), p.Center.Latitude, p.Center.Longitude, p.Version, updatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert property %s", p.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM property_tasks WHERE property_id = ?`, p.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear tasks for %s", p.ID)
	}
	for i, t := range p.Tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO property_tasks (property_id, task_id, position, text, completed) VALUES (?, ?, ?, ?, ?)`,
			p.ID, t.ID, i, t.Text, t.Completed,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert task %d", t.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit property")
}

func (s *SQLiteStore) RecordToggle(ctx context.Context, ev model.ToggleEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO toggle_events (id, property_id, task_id, completed, version, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.PropertyID, ev.TaskID, ev.Completed, ev.Version, ev.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record toggle %s", ev.ID)
}

func (s *SQLiteStore) ListToggles(ctx context.Context, propertyID string, limit int) ([]model.ToggleEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_id, task_id, completed, version, created_at FROM toggle_events
		WHERE property_id = ? ORDER BY version DESC LIMIT ?`,
		propertyID, toggleLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list toggles")
	}
	defer rows.Close() //nolint:errcheck

	var events []model.ToggleEvent
	for rows.Next() {
		var ev model.ToggleEvent
		if err := rows.Scan(&ev.ID, &ev.PropertyID, &ev.TaskID, &ev.Completed, &ev.Version, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan toggle")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list toggles iterate")
}
