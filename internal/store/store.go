// Package store persists activities, fitted models, user values and the run
// log in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	label           TEXT NOT NULL,
	start_unix_nano INTEGER NOT NULL,
	zone_offset     INTEGER NOT NULL,
	duration        REAL NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS activities_user_start ON activities (user_id, start_unix_nano);

CREATE TABLE IF NOT EXISTS cluster_models (
	user_id    TEXT NOT NULL,
	label      TEXT NOT NULL,
	params     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, label)
);

CREATE TABLE IF NOT EXISTS transition_models (
	user_id    TEXT NOT NULL,
	label      TEXT NOT NULL,
	counts     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, label),
	FOREIGN KEY (user_id, label) REFERENCES cluster_models(user_id, label) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_values (
	user_id TEXT NOT NULL,
	label   TEXT NOT NULL,
	value   REAL NOT NULL,
	PRIMARY KEY (user_id, label)
);

CREATE TABLE IF NOT EXISTS run_log (
	run_id      TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	deadline    TEXT,
	outcome     TEXT NOT NULL,
	reason      TEXT,
	detail_json TEXT,
	created_at  TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages activities and models in SQLite. Decoded cluster models are
// cached; every write through the Store invalidates the affected entries.
type Store struct {
	db     *sql.DB
	models *otter.Cache[modelKey, *cluster.Model]
	logger *zap.Logger

	cacheSize    int
	busyAttempts uint
	busyDelay    time.Duration
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=1000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewStoreWithDB(db, opts...), nil
}

// NewStoreWithDB wraps an already migrated database.
func NewStoreWithDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       zap.NewNop(),
		cacheSize:    1024,
		busyAttempts: 5,
		busyDelay:    50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.models = otter.Must(&otter.Options[modelKey, *cluster.Model]{
		MaximumSize: s.cacheSize,
	})
	return s
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region write-retry
// write runs fn inside a transaction, retrying when SQLite reports the
// database as busy or locked.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return retry.Do(
		func() error {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("%s: begin tx: %w", op, err)
			}
			defer tx.Rollback()
			if err := fn(tx); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("%s: commit: %w", op, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.busyAttempts),
		retry.Delay(s.busyDelay),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying sqlite write",
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
		retry.RetryIf(isBusy),
	)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// #endregion write-retry

// #region activities
// AddActivity stores one occurrence, assigning an id when it has none.
func (s *Store) AddActivity(ctx context.Context, o activity.Occurrence) (activity.Occurrence, error) {
	if err := validOccurrence(o); err != nil {
		return activity.Occurrence{}, err
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	err := s.write(ctx, "add activity", func(tx *sql.Tx) error {
		return insertActivity(ctx, tx, o)
	})
	if err != nil {
		return activity.Occurrence{}, err
	}
	return o, nil
}

// ImportActivities stores all occurrences in one transaction.
func (s *Store) ImportActivities(ctx context.Context, occs []activity.Occurrence) (int, error) {
	prepared := make([]activity.Occurrence, len(occs))
	for i, o := range occs {
		if err := validOccurrence(o); err != nil {
			return 0, fmt.Errorf("activity %d: %w", i, err)
		}
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		prepared[i] = o
	}
	err := s.write(ctx, "import activities", func(tx *sql.Tx) error {
		for _, o := range prepared {
			if err := insertActivity(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(prepared), nil
}

func validOccurrence(o activity.Occurrence) error {
	switch {
	case o.User == "":
		return fmt.Errorf("activity: %w: missing user", apperrors.ErrInvalidInput)
	case o.Label == "":
		return fmt.Errorf("activity: %w: missing label", apperrors.ErrInvalidInput)
	case o.Start.IsZero():
		return fmt.Errorf("activity %q: %w: missing start", o.Label, apperrors.ErrInvalidInput)
	case o.Duration < 0:
		return fmt.Errorf("activity %q: %w: negative duration", o.Label, apperrors.ErrInvalidInput)
	}
	return nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, o activity.Occurrence) error {
	_, offset := o.Start.Zone()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, label, start_unix_nano, zone_offset, duration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.User, o.Label, o.Start.UnixNano(), offset, o.Duration,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// Activities returns a user's occurrences ordered by start time. An empty
// label selects every activity.
func (s *Store) Activities(ctx context.Context, user, label string) ([]activity.Occurrence, error) {
	query := `SELECT id, user_id, label, start_unix_nano, zone_offset, duration
		FROM activities WHERE user_id = ?`
	args := []any{user}
	if label != "" {
		query += ` AND label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY start_unix_nano, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []activity.Occurrence
	for rows.Next() {
		var o activity.Occurrence
		var nanos int64
		var offset int
		if err := rows.Scan(&o.ID, &o.User, &o.Label, &nanos, &offset, &o.Duration); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		o.Start = time.Unix(0, nanos).In(zoneFor(offset))
		out = append(out, o)
	}
	return out, rows.Err()
}

func zoneFor(offset int) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("", offset)
}

// Users lists every user with at least one activity.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT user_id FROM activities ORDER BY user_id`)
}

// Stats counts a user's activities and distinct labels.
func (s *Store) Stats(ctx context.Context, user string) (Stats, error) {
	st := Stats{User: user}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE user_id = ?`, user).Scan(&st.Activities)
	if err != nil {
		return Stats{}, fmt.Errorf("count activities: %w", err)
	}
	st.Labels, err = s.strings(ctx, `SELECT DISTINCT label FROM activities WHERE user_id = ? ORDER BY label`, user)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Clear removes a user's activities, models and values.
func (s *Store) Clear(ctx context.Context, user string) error {
	labels, err := s.strings(ctx, `SELECT label FROM cluster_models WHERE user_id = ?`, user)
	if err != nil {
		return err
	}
	err = s.write(ctx, "clear", func(tx *sql.Tx) error {
		for _, table := range []string{"activities", "transition_models", "cluster_models", "user_values"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, user); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
	s.invalidate(user, labels)
	return err
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion activities
