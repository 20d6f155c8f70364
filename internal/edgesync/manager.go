// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package edgesync drives the edge agent's periodic work: schedule
// refreshes, attendance uploads, heartbeats, and debounce sweeps.
//
// One goroutine ticks every second and fires whichever actions are due.
// The actions are independent; a slow upload delays the next tick but
// cannot starve the schedule refresh forever, because due-ness is computed
// from wall-clock timestamps, not tick counts.
package edgesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kbhujbal/facetrack/internal/cloud"
	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/metrics"
	"github.com/kbhujbal/facetrack/internal/models"
	"github.com/kbhujbal/facetrack/internal/queue"
	"github.com/kbhujbal/facetrack/internal/schedule"
)

// ErrNoActiveActivity is returned by MarkPresence when the room has no
// scheduled activity to attribute the sighting to.
var ErrNoActiveActivity = errors.New("no active activity scheduled")

// ErrAlreadyRunning is returned by Start when the manager is running.
var ErrAlreadyRunning = errors.New("sync manager already running")

// tickInterval is the resolution of the action scheduler.
const tickInterval = time.Second

// RosterLoader is notified when the room's schedule changes materially so
// the recognition engine can reload biometric templates. Implemented by
// recognizer.Recognizer.
type RosterLoader interface {
	LoadRoster(roster []models.RosterEntry) error
}

// Manager owns the edge sync loop.
type Manager struct {
	queue  *queue.Queue
	cache  *schedule.Cache
	client cloud.API
	roster RosterLoader // may be nil when no recognizer is attached

	roomID     string
	deviceID   string
	deviceName string
	batchSize  int

	scheduleCheck     time.Duration
	uploadInterval    time.Duration
	heartbeatInterval time.Duration
	sweepInterval     time.Duration

	lastScheduleCheck time.Time
	lastUpload        time.Time
	lastHeartbeat     time.Time
	lastSweep         time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	log zerolog.Logger
}

// New creates a Manager wired to the given collaborators.
func New(cfg *config.Config, deviceID string, q *queue.Queue, cache *schedule.Cache, client cloud.API, roster RosterLoader) *Manager {
	return &Manager{
		queue:             q,
		cache:             cache,
		client:            client,
		roster:            roster,
		roomID:            cfg.Device.RoomID,
		deviceID:          deviceID,
		deviceName:        cfg.Device.Name,
		batchSize:         cfg.Queue.BatchSize,
		scheduleCheck:     cfg.Sync.ScheduleCheck,
		uploadInterval:    cfg.Sync.UploadInterval,
		heartbeatInterval: cfg.Sync.HeartbeatInterval,
		sweepInterval:     cfg.Sync.SweepInterval,
		log:               logging.With().Str("component", "sync_manager").Str("room_id", cfg.Device.RoomID).Logger(),
	}
}

// MarkPresence records a recognition sighting against the currently
// scheduled activity. Sightings with no active activity are dropped: there
// is nothing to attribute them to.
func (m *Manager) MarkPresence(subjectID string, confidence float64) (bool, error) {
	snapshot := m.cache.Current()
	if snapshot == nil {
		m.log.Debug().Str("subject_id", subjectID).Msg("Sighting dropped, no active activity")
		return false, ErrNoActiveActivity
	}
	return m.queue.Add(subjectID, snapshot.ActivityID, confidence, time.Now())
}

// Start launches the sync loop. An immediate schedule refresh runs before
// the first tick so the device does not sit blind for a full check
// interval after boot.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.refreshSchedule(runCtx, time.Now())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx)
	}()

	m.log.Info().Msg("Sync manager started")
	return nil
}

// Stop halts the loop and performs a final best-effort upload of everything
// still pending, so a clean shutdown does not strand marked attendance
// until the next boot.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m.flushAll(flushCtx)

	m.log.Info().Int("pending", m.queue.Size()).Msg("Sync manager stopped")
}

// IsRunning reports whether the loop is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// run is the 1-second scheduler loop.
func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

// tick fires every due action once.
func (m *Manager) tick(ctx context.Context, now time.Time) {
	if now.Sub(m.lastScheduleCheck) >= m.scheduleCheck {
		m.lastScheduleCheck = now
		if m.cache.ShouldRefresh(now) {
			m.refreshSchedule(ctx, now)
		}
	}

	if now.Sub(m.lastUpload) >= m.uploadInterval {
		m.lastUpload = now
		m.uploadPending(ctx)
	}

	if now.Sub(m.lastHeartbeat) >= m.heartbeatInterval {
		m.lastHeartbeat = now
		m.sendHeartbeat(ctx)
	}

	if now.Sub(m.lastSweep) >= m.sweepInterval {
		m.lastSweep = now
		m.queue.SweepDebounce(now)
	}
}

// refreshSchedule fetches the room schedule and applies the result. A
// failed fetch leaves the cached snapshot untouched: a stale roster beats
// an empty one.
func (m *Manager) refreshSchedule(ctx context.Context, now time.Time) {
	snapshot, result := m.client.FetchSchedule(ctx, m.roomID)
	metrics.ScheduleRefreshes.WithLabelValues(result.Outcome.String()).Inc()

	switch result.Outcome {
	case cloud.OutcomeOK, cloud.OutcomeNotScheduled:
		changed := m.cache.Apply(snapshot)
		m.cache.MarkRefreshed(now)
		if changed {
			metrics.ScheduleChanges.Inc()
			m.onScheduleChange(snapshot)
		}
	case cloud.OutcomeNotFound:
		// Unknown room: likely a provisioning problem, keep whatever we had.
		m.log.Error().Str("room_id", m.roomID).Msg("Room unknown to cloud, schedule not updated")
	case cloud.OutcomeRejected:
		m.log.Error().Err(result.Err).Msg("Schedule request rejected")
	case cloud.OutcomeFailed:
		m.log.Warn().Err(result.Err).Int("attempts", result.Attempts).Msg("Schedule refresh failed, keeping cached snapshot")
	}
}

// onScheduleChange pushes the new roster into the recognition engine.
func (m *Manager) onScheduleChange(snapshot *models.ScheduleSnapshot) {
	if snapshot == nil {
		m.log.Info().Msg("Activity ended, clearing roster")
	} else {
		m.log.Info().
			Str("activity_id", snapshot.ActivityID).
			Str("activity_name", snapshot.ActivityName).
			Int("roster_size", len(snapshot.Roster)).
			Msg("Schedule changed")
	}

	if m.roster == nil {
		return
	}
	var entries []models.RosterEntry
	if snapshot != nil {
		entries = snapshot.Roster
	}
	if err := m.roster.LoadRoster(entries); err != nil {
		m.log.Error().Err(err).Msg("Roster reload failed")
	}
}

// uploadPending pushes one batch of pending events. Returns the number of
// events removed from the queue.
func (m *Manager) uploadPending(ctx context.Context) int {
	batch := m.queue.TakeBatch(m.batchSize)
	if batch.Empty() {
		return 0
	}

	records := make([]models.AttendanceRecord, len(batch.Events))
	for i, ev := range batch.Events {
		records[i] = models.AttendanceRecord{
			SubjectID:  ev.SubjectID,
			ActivityID: ev.ActivityID,
			Timestamp:  ev.ObservedAt,
			Confidence: ev.Confidence,
		}
	}

	start := time.Now()
	result := m.client.PushAttendance(ctx, models.AttendanceBatchRequest{
		DeviceID: m.deviceID,
		Records:  records,
	})
	metrics.RecordUpload(result.Outcome.String(), len(records), time.Since(start))

	switch {
	case result.OK():
		m.queue.Confirm(batch)
		m.log.Info().Str("batch_id", batch.ID).Int("records", len(records)).Msg("Batch uploaded")
		return len(records)
	case result.Terminal():
		// The server will never accept this payload. Dropping it loses
		// these sightings but keeps the queue from jamming forever.
		m.queue.Confirm(batch)
		m.log.Error().
			Err(result.Err).
			Str("batch_id", batch.ID).
			Int("records", len(records)).
			Int("status", result.StatusCode).
			Msg("Batch rejected by cloud, dropping records")
		return len(records)
	default:
		m.log.Warn().
			Err(result.Err).
			Str("batch_id", batch.ID).
			Int("pending", m.queue.Size()).
			Msg("Batch upload failed, will retry next cycle")
		return 0
	}
}

// flushAll drains the queue on shutdown, stopping at the first failure.
func (m *Manager) flushAll(ctx context.Context) {
	for m.queue.Size() > 0 {
		if ctx.Err() != nil {
			return
		}
		if m.uploadPending(ctx) == 0 {
			return
		}
	}
}

// sendHeartbeat reports device health. Failures are logged and forgotten.
func (m *Manager) sendHeartbeat(ctx context.Context) {
	hb := models.HeartbeatRequest{
		DeviceID:   m.deviceID,
		DeviceName: m.deviceName,
		Timestamp:  time.Now(),
		Metrics: map[string]interface{}{
			"queue_depth":    m.queue.Size(),
			"schedule_state": m.cache.State(time.Now()).String(),
			"room_id":        m.roomID,
		},
	}

	result := m.client.SendHeartbeat(ctx, hb)
	if result.OK() {
		metrics.HeartbeatsSent.WithLabelValues("ok").Inc()
		return
	}
	metrics.HeartbeatsSent.WithLabelValues("failed").Inc()
	m.log.Warn().Err(result.Err).Msg("Heartbeat failed")
}
