// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kbhujbal/facetrack/internal/metrics"
	"github.com/kbhujbal/facetrack/internal/models"
)

// ScheduleRule is one recurring weekly time slot for an activity in a room.
// Weekday follows time.Weekday (Sunday = 0). Windows are "HH:MM" local
// times, start inclusive, end exclusive. EffectiveFrom/To bound the rule to
// a term ("2026-01-15"); empty means unbounded.
type ScheduleRule struct {
	ActivityID    string
	RoomID        string
	Weekday       time.Weekday
	WindowStart   string
	WindowEnd     string
	EffectiveFrom string
	EffectiveTo   string
}

// CreateSubject registers a subject with an optional biometric template.
func (s *Store) CreateSubject(ctx context.Context, entry models.RosterEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (subject_id, display_name, contact, biometric_template)
		VALUES (?, ?, ?, ?)`,
		entry.SubjectID, entry.DisplayName, entry.Contact, entry.BiometricTemplate)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// CreateActivity registers an activity.
func (s *Store) CreateActivity(ctx context.Context, activityID, code, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (activity_id, code, name) VALUES (?, ?, ?)`,
		activityID, code, name)
	if err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// Enroll adds a subject to an activity's roster.
func (s *Store) Enroll(ctx context.Context, subjectID, activityID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (subject_id, activity_id) VALUES (?, ?)`,
		subjectID, activityID)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

// CreateScheduleRule adds a weekly schedule slot.
func (s *Store) CreateScheduleRule(ctx context.Context, rule ScheduleRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (activity_id, room_id, weekday, window_start, window_end, effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		rule.ActivityID, rule.RoomID, int(rule.Weekday), rule.WindowStart, rule.WindowEnd,
		rule.EffectiveFrom, rule.EffectiveTo)
	if err != nil {
		return fmt.Errorf("create schedule rule: %w", err)
	}
	return nil
}

// RoomExists reports whether any schedule rule references the room. The
// schedule endpoint uses this to distinguish "unknown room" (404) from
// "known room, nothing scheduled now" (204).
func (s *Store) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM schedules WHERE room_id = ?`, roomID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("room lookup: %w", err)
	}
	return n > 0, nil
}

// CurrentSchedule returns the activity scheduled in the room at now, with
// its full roster and biometric templates, or nil when nothing is
// scheduled.
func (s *Store) CurrentSchedule(ctx context.Context, roomID string, now time.Time) (*models.ScheduleSnapshot, error) {
	start := time.Now()
	snapshot, err := s.currentSchedule(ctx, roomID, now)
	metrics.RecordDBQuery("select", "schedules", time.Since(start), err)
	return snapshot, err
}

func (s *Store) currentSchedule(ctx context.Context, roomID string, now time.Time) (*models.ScheduleSnapshot, error) {
	clock := now.Format("15:04")
	date := now.Format("2006-01-02")

	var snapshot models.ScheduleSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT a.activity_id, a.code, a.name, sc.room_id, sc.window_start, sc.window_end
		FROM schedules sc
		JOIN activities a ON a.activity_id = sc.activity_id
		WHERE sc.room_id = ?
		  AND sc.weekday = ?
		  AND sc.window_start <= ?
		  AND ? < sc.window_end
		  AND (sc.effective_from IS NULL OR sc.effective_from <= ?)
		  AND (sc.effective_to IS NULL OR ? <= sc.effective_to)
		ORDER BY sc.window_start
		LIMIT 1`,
		roomID, int(now.Weekday()), clock, clock, date, date,
	).Scan(&snapshot.ActivityID, &snapshot.ActivityCode, &snapshot.ActivityName,
		&snapshot.RoomID, &snapshot.WindowStart, &snapshot.WindowEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current schedule: %w", err)
	}

	roster, err := s.rosterFor(ctx, snapshot.ActivityID)
	if err != nil {
		return nil, err
	}
	snapshot.Roster = roster
	return &snapshot, nil
}

// rosterFor loads the enrolled subjects for an activity in stable order.
func (s *Store) rosterFor(ctx context.Context, activityID string) ([]models.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT su.subject_id, su.display_name, COALESCE(su.contact, ''), su.biometric_template
		FROM enrollments e
		JOIN subjects su ON su.subject_id = e.subject_id
		WHERE e.activity_id = ?
		ORDER BY su.subject_id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("roster query: %w", err)
	}
	defer rows.Close()

	var roster []models.RosterEntry
	for rows.Next() {
		var entry models.RosterEntry
		if err := rows.Scan(&entry.SubjectID, &entry.DisplayName, &entry.Contact, &entry.BiometricTemplate); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		roster = append(roster, entry)
	}
	return roster, rows.Err()
}
