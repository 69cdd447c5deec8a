// Package storage persists alerts, file events and user accounts in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ransomguard/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Schema for the ransomguard store.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    email           TEXT NOT NULL UNIQUE,
    hashed_password TEXT NOT NULL,
    first_name      TEXT,
    last_name       TEXT,
    is_active       INTEGER NOT NULL DEFAULT 1,
    created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    host        TEXT NOT NULL,
    path        TEXT NOT NULL,
    severity    TEXT NOT NULL,
    fme         REAL NOT NULL,
    abt         REAL NOT NULL,
    category    TEXT NOT NULL,
    reasons     TEXT,
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);

CREATE TABLE IF NOT EXISTS file_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT NOT NULL,
    action      TEXT NOT NULL,
    fme         REAL NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_events_created ON file_events(created_at);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateUser inserts a new user account.
func (s *Store) CreateUser(user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(`
		INSERT INTO users (email, hashed_password, first_name, last_name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.Email, user.HashedPassword, user.FirstName, user.LastName, boolToInt(user.IsActive), user.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID, _ = result.LastInsertId()
	return nil
}

// GetUserByEmail looks a user up by email. Returns ErrNotFound when absent.
func (s *Store) GetUserByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`
		SELECT id, email, hashed_password, first_name, last_name, is_active, created_at
		FROM users WHERE email = ?`, email)

	var user model.User
	var isActive int
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &user.FirstName, &user.LastName, &isActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.IsActive = isActive != 0
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

// InsertAlert inserts an alert record and returns its ID.
func (s *Store) InsertAlert(alert *model.Alert) (int64, error) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	reasons, err := json.Marshal(alert.Reasons)
	if err != nil {
		return 0, fmt.Errorf("marshal reasons: %w", err)
	}
	result, err := s.db.Exec(`
		INSERT INTO alerts (host, path, severity, fme, abt, category, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.Host, alert.Path, string(alert.Severity), alert.FME, alert.ABT,
		string(alert.Category), string(reasons), alert.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return result.LastInsertId()
}

// ListAlerts returns alerts newest first, optionally filtered by severity.
func (s *Store) ListAlerts(offset, limit int, severity string) ([]model.Alert, error) {
	query := `
		SELECT id, host, path, severity, fme, abt, category, reasons, created_at
		FROM alerts`
	args := []interface{}{}
	if severity != "" {
		query += ` WHERE severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]model.Alert, 0)
	for rows.Next() {
		var alert model.Alert
		var reasons sql.NullString
		var createdAt int64
		if err := rows.Scan(&alert.ID, &alert.Host, &alert.Path, &alert.Severity,
			&alert.FME, &alert.ABT, &alert.Category, &reasons, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if reasons.Valid && reasons.String != "" {
			if err := json.Unmarshal([]byte(reasons.String), &alert.Reasons); err != nil {
				return nil, fmt.Errorf("unmarshal reasons: %w", err)
			}
		}
		alert.CreatedAt = time.Unix(createdAt, 0)
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// InsertFileEvent inserts a file event record and returns its ID.
func (s *Store) InsertFileEvent(event *model.FileEvent) (int64, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(`
		INSERT INTO file_events (path, action, fme, created_at)
		VALUES (?, ?, ?, ?)`,
		event.Path, string(event.Action), event.FME, event.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert file event: %w", err)
	}
	return result.LastInsertId()
}

// ListFileEvents returns file events newest first.
func (s *Store) ListFileEvents(offset, limit int) ([]model.FileEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, path, action, fme, created_at
		FROM file_events
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query file events: %w", err)
	}
	defer rows.Close()

	events := make([]model.FileEvent, 0)
	for rows.Next() {
		var event model.FileEvent
		var createdAt int64
		if err := rows.Scan(&event.ID, &event.Path, &event.Action, &event.FME, &createdAt); err != nil {
			return nil, fmt.Errorf("scan file event: %w", err)
		}
		event.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetMetrics computes alert counts for the dashboard.
func (s *Store) GetMetrics() (model.Metrics, error) {
	var m model.Metrics
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM alerts`, &m.TotalAlerts},
		{`SELECT COUNT(*) FROM alerts WHERE severity = 'critical'`, &m.CriticalAlerts},
		{`SELECT COUNT(*) FROM alerts WHERE severity = 'high'`, &m.HighAlerts},
		{`SELECT COUNT(*) FROM alerts WHERE category = 'Ransomware'`, &m.RansomwareAlerts},
		{`SELECT COUNT(*) FROM alerts WHERE category = 'RaaS'`, &m.RaaSAlerts},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return model.Metrics{}, fmt.Errorf("count alerts: %w", err)
		}
	}
	return m, nil
}

// DeleteFileEventsBefore removes file events older than cutoff.
func (s *Store) DeleteFileEventsBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM file_events WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete file events: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAlertsBefore removes alerts older than cutoff. When critical is
// true only critical alerts are removed, otherwise only non-critical ones;
// the two kinds have different retention periods.
func (s *Store) DeleteAlertsBefore(cutoff time.Time, critical bool) (int64, error) {
	op := "!="
	if critical {
		op = "="
	}
	result, err := s.db.Exec(
		`DELETE FROM alerts WHERE created_at < ? AND severity `+op+` 'critical'`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete alerts: %w", err)
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
