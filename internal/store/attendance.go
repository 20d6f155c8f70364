// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kbhujbal/facetrack/internal/metrics"
	"github.com/kbhujbal/facetrack/internal/models"
)

// AttendanceRow is one stored attendance record.
type AttendanceRow struct {
	SubjectID  string    `json:"subject_id"`
	ActivityID string    `json:"activity_id"`
	ObservedAt time.Time `json:"observed_at"`
	Confidence float64   `json:"confidence"`
	DeviceID   string    `json:"device_id"`
	Status     string    `json:"status"`
}

// InsertAttendance stores a batch of records in one transaction and returns
// how many rows were actually inserted. Records whose natural key
// (subject, activity, observed-at) already exists are skipped silently, so
// redelivered batches are harmless.
func (s *Store) InsertAttendance(ctx context.Context, deviceID string, records []models.AttendanceRecord) (int, error) {
	start := time.Now()
	inserted, err := s.insertAttendance(ctx, deviceID, records)
	metrics.RecordDBQuery("insert", "attendance_logs", time.Since(start), err)
	return inserted, err
}

func (s *Store) insertAttendance(ctx context.Context, deviceID string, records []models.AttendanceRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_logs (subject_id, activity_id, observed_at, confidence, device_id, status)
		VALUES (?, ?, ?, ?, ?, 'present')
		ON CONFLICT (subject_id, activity_id, observed_at) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, rec.SubjectID, rec.ActivityID, encodeTime(rec.Timestamp), rec.Confidence, deviceID)
		if err != nil {
			return 0, fmt.Errorf("insert attendance for %s: %w", rec.SubjectID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// AttendanceForSubject returns a subject's attendance history, newest first.
func (s *Store) AttendanceForSubject(ctx context.Context, subjectID string) ([]AttendanceRow, error) {
	start := time.Now()
	rows, err := s.queryAttendance(ctx, `
		SELECT subject_id, activity_id, observed_at, confidence, device_id, status
		FROM attendance_logs WHERE subject_id = ? ORDER BY observed_at DESC`, subjectID)
	metrics.RecordDBQuery("select", "attendance_logs", time.Since(start), err)
	return rows, err
}

// AttendanceForActivity returns all attendance for an activity, newest first.
func (s *Store) AttendanceForActivity(ctx context.Context, activityID string) ([]AttendanceRow, error) {
	start := time.Now()
	rows, err := s.queryAttendance(ctx, `
		SELECT subject_id, activity_id, observed_at, confidence, device_id, status
		FROM attendance_logs WHERE activity_id = ? ORDER BY observed_at DESC`, activityID)
	metrics.RecordDBQuery("select", "attendance_logs", time.Since(start), err)
	return rows, err
}

func (s *Store) queryAttendance(ctx context.Context, query string, arg string) ([]AttendanceRow, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []AttendanceRow
	for rows.Next() {
		var row AttendanceRow
		var observedAt string
		if err := rows.Scan(&row.SubjectID, &row.ActivityID, &observedAt, &row.Confidence, &row.DeviceID, &row.Status); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		if row.ObservedAt, err = decodeTime(observedAt); err != nil {
			return nil, fmt.Errorf("decode observed_at %q: %w", observedAt, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
