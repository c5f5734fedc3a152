package logging

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region log-run
// LogRun writes a run entry to the run_log table and returns its run id.
func LogRun(db *sql.DB, entry RunEntry) (string, error) {
	if entry.RunID == "" {
		entry.RunID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO run_log (run_id, user_id, kind, deadline, outcome, reason, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.User,
		entry.Kind,
		nullIfEmpty(entry.Deadline),
		entry.Outcome,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.DetailJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("log run: %w", err)
	}
	return entry.RunID, nil
}

// #endregion log-run

// #region recorder
// Recorder binds LogRun to a database.
type Recorder struct {
	db *sql.DB
}

// NewRecorder returns a Recorder writing to db.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record writes entry and returns its run id.
func (r *Recorder) Record(entry RunEntry) (string, error) {
	return LogRun(r.db, entry)
}

// #endregion recorder

// #region recent-runs
// RecentRuns returns the latest entries for user, newest first.
func RecentRuns(db *sql.DB, user string, limit int) ([]RunEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, user_id, kind, deadline, outcome, reason, detail_json, created_at
		 FROM run_log WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, user, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var deadline, reason, detail sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &e.User, &e.Kind, &deadline, &e.Outcome, &reason, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Deadline = deadline.String
		e.Reason = reason.String
		e.DetailJSON = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion recent-runs

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
