package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/safe-zone/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS properties`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadProperty_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, boundary, center_lat, center_lon, version, updated_at FROM properties WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LoadProperty(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadProperty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM properties WHERE id = \$1`).
		WithArgs("parcel-12345").
		WillReturnRows(pgxmock.NewRows([]string{"id", "boundary", "center_lat", "center_lon", "version", "updated_at"}).
			AddRow("parcel-12345", []byte(`[{"latitude":1,"longitude":2},{"latitude":3,"longitude":4},{"latitude":5,"longitude":6}]`), 37.7879, -122.4314, int64(7), now))
	mock.ExpectQuery(`SELECT task_id, text, completed FROM property_tasks WHERE property_id = \$1 ORDER BY position`).
		WithArgs("parcel-12345").
		WillReturnRows(pgxmock.NewRows([]string{"task_id", "text", "completed"}).
			AddRow(1, "I've cleared my gutters.", true).
			AddRow(2, "I've mowed my dry grass (defensible space).", false))

	p, err := s.LoadProperty(context.Background(), "parcel-12345")
	require.NoError(t, err)
	assert.Len(t, p.Coordinates, 3)
	assert.Equal(t, int64(7), p.Version)
	require.Len(t, p.Tasks, 2)
	assert.True(t, p.Tasks[0].Completed)
	assert.Equal(t, 2, p.Tasks[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProperty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	p := testProperty()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO properties .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(p.ID, pgxmock.AnyArg(), p.Center.Latitude, p.Center.Longitude, p.Version, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM property_tasks WHERE property_id = \$1`).
		WithArgs(p.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCopyFrom(pgx.Identifier{"property_tasks"}, taskColumns).WillReturnResult(3)
	mock.ExpectCommit()

	require.NoError(t, s.SaveProperty(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProperty_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	p := testProperty()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO properties`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveProperty(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert property")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordToggle(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ev := model.ToggleEvent{
		ID: "ev-1", PropertyID: "parcel-12345", TaskID: 2, Completed: true, Version: 1,
		CreatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO toggle_events`).
		WithArgs(ev.ID, ev.PropertyID, ev.TaskID, ev.Completed, ev.Version, ev.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordToggle(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListToggles(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM toggle_events\s+WHERE property_id = \$1 ORDER BY version DESC LIMIT \$2`).
		WithArgs("parcel-12345", defaultToggleLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id", "property_id", "task_id", "completed", "version", "created_at"}).
			AddRow("ev-2", "parcel-12345", 1, false, int64(2), now).
			AddRow("ev-1", "parcel-12345", 1, true, int64(1), now))

	events, err := s.ListToggles(context.Background(), "parcel-12345", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-2", events[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
