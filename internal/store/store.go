// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package store is the cloud side's durable SQLite layer: attendance logs,
// device registry, and the activity/subject/schedule tables that feed the
// schedule endpoint.
//
// Attendance rows carry a natural composite key (subject, activity,
// observed-at). Inserts use ON CONFLICT DO NOTHING, so an edge device
// redelivering a batch after a lost acknowledgment inserts zero new rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is the canonical timestamp encoding. All times are stored in
// UTC so the dedup key is byte-identical across redeliveries.
const timeLayout = time.RFC3339Nano

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc.org/sqlite is single-writer; one connection avoids
	// SQLITE_BUSY churn under the ingestion worker pool.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subjects (
			subject_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			contact TEXT,
			biometric_template BLOB,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			activity_id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
			activity_id TEXT NOT NULL REFERENCES activities(activity_id),
			enrolled_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			PRIMARY KEY (subject_id, activity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_id TEXT NOT NULL REFERENCES activities(activity_id),
			room_id TEXT NOT NULL,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			effective_from TEXT,
			effective_to TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_room_weekday ON schedules(room_id, weekday);`,
		`CREATE TABLE IF NOT EXISTS attendance_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			observed_at TEXT NOT NULL,
			confidence REAL NOT NULL,
			device_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'present',
			recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			UNIQUE (subject_id, activity_id, observed_at)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_subject ON attendance_logs(subject_id, observed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_activity ON attendance_logs(activity_id, observed_at);`,
		`CREATE TABLE IF NOT EXISTS edge_devices (
			device_uuid TEXT PRIMARY KEY,
			name TEXT,
			room_id TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			last_heartbeat TEXT,
			health TEXT,
			registered_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// encodeTime converts a timestamp to its canonical stored form.
func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// decodeTime parses a stored timestamp.
func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
