// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package models defines the data types shared between the edge agent and
// the cloud ingestion server.
package models

import (
	"bytes"
	"time"
)

// PresenceEvent is a single recognition sighting owned by the attendance
// queue until the server acknowledges its delivery.
//
// ObservedAt is wall-clock based and not guaranteed monotonic.
type PresenceEvent struct {
	SubjectID  string    `json:"subject_id"`
	ActivityID string    `json:"activity_id"`
	ObservedAt time.Time `json:"observed_at"`
	Confidence float64   `json:"confidence"`
	DeviceID   string    `json:"device_id"`
}

// RosterEntry is one enrolled subject in a schedule snapshot.
type RosterEntry struct {
	SubjectID         string `json:"subject_id"`
	DisplayName       string `json:"display_name"`
	Contact           string `json:"contact,omitempty"`
	BiometricTemplate []byte `json:"biometric_template,omitempty"`
}

// Equal reports value equality including the biometric template bytes.
func (r RosterEntry) Equal(other RosterEntry) bool {
	return r.SubjectID == other.SubjectID &&
		r.DisplayName == other.DisplayName &&
		r.Contact == other.Contact &&
		bytes.Equal(r.BiometricTemplate, other.BiometricTemplate)
}

// ScheduleSnapshot is the "current activity + roster" state for one room.
// Snapshots are immutable; the schedule cache replaces them wholesale.
// A nil snapshot means "no activity scheduled now".
type ScheduleSnapshot struct {
	ActivityID   string        `json:"activity_id"`
	ActivityCode string        `json:"activity_code"`
	ActivityName string        `json:"activity_name"`
	RoomID       string        `json:"room_id"`
	WindowStart  string        `json:"window_start"`
	WindowEnd    string        `json:"window_end"`
	Roster       []RosterEntry `json:"roster"`
}

// Equal reports deep value equality across all fields including the full
// roster (order-sensitive). Either or both snapshots may be nil.
func (s *ScheduleSnapshot) Equal(other *ScheduleSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.ActivityID != other.ActivityID ||
		s.ActivityCode != other.ActivityCode ||
		s.ActivityName != other.ActivityName ||
		s.RoomID != other.RoomID ||
		s.WindowStart != other.WindowStart ||
		s.WindowEnd != other.WindowEnd {
		return false
	}
	if len(s.Roster) != len(other.Roster) {
		return false
	}
	for i := range s.Roster {
		if !s.Roster[i].Equal(other.Roster[i]) {
			return false
		}
	}
	return true
}

// AttendanceRecord is the wire form of a presence event inside an upload
// batch. The device ID travels on the batch envelope, not the record.
type AttendanceRecord struct {
	SubjectID  string    `json:"subject_id" validate:"required"`
	ActivityID string    `json:"activity_id" validate:"required"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
}

// AttendanceBatchRequest is the POST /attendance body.
type AttendanceBatchRequest struct {
	DeviceID string             `json:"device_id" validate:"required"`
	Records  []AttendanceRecord `json:"records" validate:"required,min=1,max=100,dive"`
}

// AttendanceBatchResponse acknowledges a batch hand-off. Acceptance means
// "received", not "stored": persistence happens asynchronously.
type AttendanceBatchResponse struct {
	Status          string `json:"status"`
	RecordsReceived int    `json:"records_received"`
	Message         string `json:"message,omitempty"`
}

// HeartbeatRequest is the POST /heartbeat body. Metrics is a free-form map
// of health keys (cpu_temp, disk_usage, queue_depth, app_version, ...).
type HeartbeatRequest struct {
	DeviceID   string                 `json:"device_id" validate:"required"`
	DeviceName string                 `json:"device_name,omitempty"`
	Timestamp  time.Time              `json:"timestamp" validate:"required"`
	Metrics    map[string]interface{} `json:"metrics,omitempty"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
	Message    string    `json:"message,omitempty"`
}

// APIError carries a machine-readable error code plus a human message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// APIResponse is the envelope for all JSON responses from the cloud API.
type APIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *APIError   `json:"error,omitempty"`
}
