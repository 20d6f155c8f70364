// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package api provides the cloud HTTP surface: schedule lookups, attendance
// ingestion, heartbeats, and attendance read endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/ingest"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/models"
	"github.com/kbhujbal/facetrack/internal/store"
)

// Handler serves the FaceTrack API.
type Handler struct {
	store        *store.Store
	ingest       *ingest.Service
	maxBatchSize int
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.IngestConfig, st *store.Store, ing *ingest.Service) *Handler {
	return &Handler{
		store:        st,
		ingest:       ing,
		maxBatchSize: cfg.MaxBatchSize,
	}
}

// Schedule serves GET /api/v1/schedule?room_id=...
//
// 200 with the snapshot when an activity is in session, 204 when the room
// is known but idle, 404 when the room has no schedule at all.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER", "room_id is required", nil)
		return
	}

	snapshot, err := h.store.CurrentSchedule(r.Context(), roomID, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "SCHEDULE_QUERY_FAILED", "failed to query schedule", err)
		return
	}
	if snapshot != nil {
		respondJSON(w, http.StatusOK, snapshot)
		return
	}

	exists, err := h.store.RoomExists(r.Context(), roomID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "SCHEDULE_QUERY_FAILED", "failed to query schedule", err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room has no schedule", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attendance serves POST /api/v1/attendance.
//
// The batch is acknowledged with 202 before any database work; a bounded
// in-process queue decouples the device from storage latency. 503 tells
// the device to keep the batch and retry later.
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	var req models.AttendanceBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if len(req.Records) > h.maxBatchSize {
		respondError(w, http.StatusBadRequest, "BATCH_TOO_LARGE", "batch exceeds maximum size", nil)
		return
	}

	job := ingest.Job{
		BatchID:    uuid.NewString(),
		DeviceID:   req.DeviceID,
		Records:    req.Records,
		ReceivedAt: time.Now(),
	}
	if err := h.ingest.Submit(job); err != nil {
		if errors.Is(err, ingest.ErrQueueFull) {
			respondError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "ingestion queue full, retry later", nil)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "INGEST_UNAVAILABLE", "ingestion unavailable", err)
		return
	}

	logging.Debug().
		Str("batch_id", job.BatchID).
		Str("device_id", req.DeviceID).
		Int("records", len(req.Records)).
		Msg("Batch accepted")

	respondJSON(w, http.StatusAccepted, models.AttendanceBatchResponse{
		Status:          "accepted",
		RecordsReceived: len(req.Records),
	})
}

// Heartbeat serves POST /api/v1/heartbeat. Unknown devices are registered
// on first contact.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req models.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.store.UpsertHeartbeat(r.Context(), req); err != nil {
		respondError(w, http.StatusInternalServerError, "HEARTBEAT_FAILED", "failed to record heartbeat", err)
		return
	}

	respondJSON(w, http.StatusAccepted, models.HeartbeatResponse{
		Status:     "ok",
		ServerTime: time.Now().UTC(),
	})
}

// AttendanceBySubject serves GET /api/v1/attendance/subjects/{id}.
func (h *Handler) AttendanceBySubject(w http.ResponseWriter, r *http.Request) {
	h.attendanceQuery(w, r, chi.URLParam(r, "id"), h.store.AttendanceForSubject)
}

// AttendanceByActivity serves GET /api/v1/attendance/activities/{id}.
func (h *Handler) AttendanceByActivity(w http.ResponseWriter, r *http.Request) {
	h.attendanceQuery(w, r, chi.URLParam(r, "id"), h.store.AttendanceForActivity)
}

func (h *Handler) attendanceQuery(w http.ResponseWriter, r *http.Request, id string, query func(context.Context, string) ([]store.AttendanceRow, error)) {
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMETER", "id is required", nil)
		return
	}
	rows, err := query(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ATTENDANCE_QUERY_FAILED", "failed to query attendance", err)
		return
	}
	if rows == nil {
		rows = []store.AttendanceRow{}
	}
	respondJSON(w, http.StatusOK, models.APIResponse{Status: "ok", Data: rows})
}

// HealthLive serves GET /api/v1/health/live: process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady serves GET /api/v1/health/ready: dependencies are usable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if !h.ingest.IsRunning() {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "ingestion service not running", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ready",
		"queue_depth": h.ingest.QueueDepth(),
	})
}
