package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"roadlog/internal/gps"
)

type Store struct {
	db *sql.DB
}

// StoredFix is a queued position fix awaiting upload. Rows are deleted only
// after the upload is confirmed, or by age-based pruning.
type StoredFix struct {
	ID        int64
	TripID    string
	Fix       gps.Fix
	Battery   *float64
	CreatedAt time.Time
}

type Trip struct {
	ID        string
	RemoteID  string
	CreatedAt time.Time
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS fixes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trip_id TEXT NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	accuracy REAL NOT NULL,
	altitude REAL,
	speed REAL,
	bearing REAL,
	recorded_at INTEGER NOT NULL,
	battery REAL,
	sent INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fixes_unsent ON fixes (sent, id);
CREATE TABLE IF NOT EXISTS trips (
	id TEXT PRIMARY KEY,
	remote_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// InsertFix queues one fix for upload and returns its local id.
func (s *Store) InsertFix(ctx context.Context, tripID string, fix gps.Fix, battery *float64) (int64, error) {
	if tripID == "" {
		return 0, errors.New("trip id required")
	}
	if fix.Time.IsZero() {
		return 0, errors.New("fix timestamp required")
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO fixes (trip_id, lat, lon, accuracy, altitude, speed, bearing, recorded_at, battery, sent, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
`, tripID, fix.Lat, fix.Lon, fix.Accuracy, fix.Altitude, fix.Speed, fix.Bearing,
		fix.Time.Unix(), battery, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UnsentFixes returns every queued fix not yet confirmed uploaded, oldest
// first.
func (s *Store) UnsentFixes(ctx context.Context) ([]StoredFix, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, trip_id, lat, lon, accuracy, altitude, speed, bearing, recorded_at, battery, created_at
FROM fixes
WHERE sent = 0
ORDER BY id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []StoredFix
	for rows.Next() {
		var f StoredFix
		var recordedAt, createdAt int64
		if err := rows.Scan(&f.ID, &f.TripID, &f.Fix.Lat, &f.Fix.Lon, &f.Fix.Accuracy,
			&f.Fix.Altitude, &f.Fix.Speed, &f.Fix.Bearing, &recordedAt, &f.Battery, &createdAt); err != nil {
			return nil, err
		}
		f.Fix.Time = time.Unix(recordedAt, 0).UTC()
		f.CreatedAt = time.Unix(createdAt, 0).UTC()
		fixes = append(fixes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fixes, nil
}

// DeleteFixes removes the given rows. Deleting an id that is already gone is
// a no-op, so concurrent flushes cannot trip over each other.
func (s *Store) DeleteFixes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM fixes WHERE id IN (%s)`, placeholders(len(ids)))
	_, err := s.db.ExecContext(ctx, query, idArgs(ids)...)
	return err
}

// MarkSent flags rows as uploaded without removing them. Used by flows that
// defer deletion until a later retention pass.
func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE fixes SET sent = 1 WHERE id IN (%s)`, placeholders(len(ids)))
	_, err := s.db.ExecContext(ctx, query, idArgs(ids)...)
	return err
}

func (s *Store) CountUnsent(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM fixes
WHERE sent = 0
`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// PruneFixesBefore drops queued rows captured before the cutoff, regardless
// of sent state. Returns the number of rows removed.
func (s *Store) PruneFixesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM fixes
WHERE recorded_at < ?
`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EnsureTrip maps a local trip id to its remote identifier, creating the
// local id when empty. Re-registering an existing trip updates the mapping.
func (s *Store) EnsureTrip(ctx context.Context, tripID, remoteID string) (string, error) {
	if remoteID == "" {
		return "", errors.New("remote trip id required")
	}
	if tripID == "" {
		tripID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trips (id, remote_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET remote_id = excluded.remote_id
`, tripID, remoteID, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return tripID, nil
}

var ErrTripNotFound = errors.New("trip not found")

// TripRemoteID resolves the remote identifier for a local trip.
func (s *Store) TripRemoteID(ctx context.Context, tripID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT remote_id
FROM trips
WHERE id = ?
`, tripID)
	var remoteID string
	if err := row.Scan(&remoteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTripNotFound
		}
		return "", err
	}
	return remoteID, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
