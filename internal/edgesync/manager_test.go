// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package edgesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kbhujbal/facetrack/internal/cloud"
	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/models"
	"github.com/kbhujbal/facetrack/internal/queue"
	"github.com/kbhujbal/facetrack/internal/schedule"
)

// fakeCloud scripts cloud responses for the orchestrator.
type fakeCloud struct {
	mu sync.Mutex

	scheduleSnapshot *models.ScheduleSnapshot
	scheduleResult   cloud.Result

	pushResult  cloud.Result
	pushBatches []models.AttendanceBatchRequest

	heartbeatResult cloud.Result
	heartbeats      int
}

func (f *fakeCloud) FetchSchedule(ctx context.Context, roomID string) (*models.ScheduleSnapshot, cloud.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduleSnapshot, f.scheduleResult
}

func (f *fakeCloud) PushAttendance(ctx context.Context, batch models.AttendanceBatchRequest) cloud.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushBatches = append(f.pushBatches, batch)
	return f.pushResult
}

func (f *fakeCloud) SendHeartbeat(ctx context.Context, hb models.HeartbeatRequest) cloud.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return f.heartbeatResult
}

func (f *fakeCloud) pushed() []models.AttendanceBatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AttendanceBatchRequest(nil), f.pushBatches...)
}

type fakeRoster struct {
	mu    sync.Mutex
	loads [][]models.RosterEntry
}

func (r *fakeRoster) LoadRoster(roster []models.RosterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, roster)
	return nil
}

func (r *fakeRoster) loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

func testConfig() *config.Config {
	return &config.Config{
		Device: config.DeviceConfig{Name: "cam-7", RoomID: "room-7"},
		Queue:  config.QueueConfig{DebounceWindow: 30 * time.Second, BatchSize: 10},
		Sync: config.SyncConfig{
			ScheduleInterval:  10 * time.Minute,
			ScheduleCheck:     time.Minute,
			UploadInterval:    time.Minute,
			HeartbeatInterval: 2 * time.Minute,
			SweepInterval:     5 * time.Minute,
		},
	}
}

func newTestManager(t *testing.T, api cloud.API, roster RosterLoader) (*Manager, *queue.Queue, *schedule.Cache) {
	t.Helper()
	q, err := queue.New(queue.Options{Window: 30 * time.Second, DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}
	cache := schedule.NewCache(10 * time.Minute)
	return New(testConfig(), "device-1", q, cache, api, roster), q, cache
}

func activeSnapshot() *models.ScheduleSnapshot {
	return &models.ScheduleSnapshot{
		ActivityID: "act-1",
		RoomID:     "room-7",
		Roster:     []models.RosterEntry{{SubjectID: "subj-1", DisplayName: "Alice"}},
	}
}

func TestMarkPresenceWithoutActiveSchedule(t *testing.T) {
	m, q, _ := newTestManager(t, &fakeCloud{}, nil)

	added, err := m.MarkPresence("subj-1", 0.9)
	if !errors.Is(err, ErrNoActiveActivity) {
		t.Errorf("err = %v, want ErrNoActiveActivity", err)
	}
	if added {
		t.Error("sighting must not be queued without an activity")
	}
	if q.Size() != 0 {
		t.Errorf("queue size = %d, want 0", q.Size())
	}
}

func TestMarkPresenceUsesActiveActivity(t *testing.T) {
	m, q, cache := newTestManager(t, &fakeCloud{}, nil)
	cache.Apply(activeSnapshot())

	added, err := m.MarkPresence("subj-1", 0.9)
	if err != nil || !added {
		t.Fatalf("MarkPresence = (%v, %v), want accepted", added, err)
	}

	batch := q.TakeBatch(10)
	if batch.Events[0].ActivityID != "act-1" {
		t.Errorf("event activity = %q, want act-1", batch.Events[0].ActivityID)
	}
	if batch.Events[0].DeviceID != "device-1" {
		t.Errorf("event device = %q, want device-1", batch.Events[0].DeviceID)
	}
}

func TestRefreshScheduleAppliesAndLoadsRoster(t *testing.T) {
	api := &fakeCloud{
		scheduleSnapshot: activeSnapshot(),
		scheduleResult:   cloud.Result{Outcome: cloud.OutcomeOK},
	}
	roster := &fakeRoster{}
	m, _, cache := newTestManager(t, api, roster)

	m.refreshSchedule(context.Background(), time.Now())

	if !cache.Active() {
		t.Fatal("cache should hold the fetched snapshot")
	}
	if roster.loaded() != 1 {
		t.Errorf("roster loads = %d, want 1", roster.loaded())
	}

	// Unchanged refresh must not reload the roster.
	m.refreshSchedule(context.Background(), time.Now())
	if roster.loaded() != 1 {
		t.Errorf("roster loads after unchanged refresh = %d, want 1", roster.loaded())
	}
}

func TestRefreshScheduleFailureKeepsSnapshot(t *testing.T) {
	api := &fakeCloud{
		scheduleSnapshot: activeSnapshot(),
		scheduleResult:   cloud.Result{Outcome: cloud.OutcomeOK},
	}
	m, _, cache := newTestManager(t, api, nil)

	now := time.Now()
	m.refreshSchedule(context.Background(), now)
	if !cache.Active() {
		t.Fatal("precondition: snapshot applied")
	}

	api.mu.Lock()
	api.scheduleSnapshot = nil
	api.scheduleResult = cloud.Result{Outcome: cloud.OutcomeFailed, Err: errors.New("network down")}
	api.mu.Unlock()

	m.refreshSchedule(context.Background(), now.Add(time.Minute))

	if !cache.Active() {
		t.Error("failed refresh must keep the stale snapshot")
	}
	// TTL must not be stamped by a failed refresh.
	if !cache.ShouldRefresh(now.Add(11 * time.Minute)) {
		t.Error("cache should still want a refresh after TTL")
	}
}

func TestRefreshScheduleNotScheduledClearsSnapshot(t *testing.T) {
	api := &fakeCloud{
		scheduleSnapshot: activeSnapshot(),
		scheduleResult:   cloud.Result{Outcome: cloud.OutcomeOK},
	}
	roster := &fakeRoster{}
	m, _, cache := newTestManager(t, api, roster)
	m.refreshSchedule(context.Background(), time.Now())

	api.mu.Lock()
	api.scheduleSnapshot = nil
	api.scheduleResult = cloud.Result{Outcome: cloud.OutcomeNotScheduled, StatusCode: 204}
	api.mu.Unlock()

	m.refreshSchedule(context.Background(), time.Now())

	if cache.Active() {
		t.Error("204 should clear the active snapshot")
	}
	if roster.loaded() != 2 {
		t.Errorf("roster loads = %d, want 2 (clear counts as a change)", roster.loaded())
	}
}

func TestUploadPendingConfirmsOnSuccess(t *testing.T) {
	api := &fakeCloud{pushResult: cloud.Result{Outcome: cloud.OutcomeOK, StatusCode: 202}}
	m, q, cache := newTestManager(t, api, nil)
	cache.Apply(activeSnapshot())

	m.MarkPresence("subj-1", 0.9)
	m.MarkPresence("subj-2", 0.8)

	uploaded := m.uploadPending(context.Background())
	if uploaded != 2 {
		t.Errorf("uploadPending = %d, want 2", uploaded)
	}
	if q.Size() != 0 {
		t.Errorf("queue size = %d after confirmed upload, want 0", q.Size())
	}

	batches := api.pushed()
	if len(batches) != 1 || batches[0].DeviceID != "device-1" || len(batches[0].Records) != 2 {
		t.Errorf("unexpected pushed batches: %+v", batches)
	}
}

func TestUploadPendingRetainsBatchOnFailure(t *testing.T) {
	api := &fakeCloud{pushResult: cloud.Result{Outcome: cloud.OutcomeFailed, Err: errors.New("timeout")}}
	m, q, cache := newTestManager(t, api, nil)
	cache.Apply(activeSnapshot())
	m.MarkPresence("subj-1", 0.9)

	if got := m.uploadPending(context.Background()); got != 0 {
		t.Errorf("uploadPending = %d, want 0", got)
	}
	if q.Size() != 1 {
		t.Errorf("queue size = %d, want 1 (failed upload keeps events)", q.Size())
	}
}

func TestUploadPendingDropsRejectedBatch(t *testing.T) {
	api := &fakeCloud{pushResult: cloud.Result{Outcome: cloud.OutcomeRejected, StatusCode: 400, Err: errors.New("bad payload")}}
	m, q, cache := newTestManager(t, api, nil)
	cache.Apply(activeSnapshot())
	m.MarkPresence("subj-1", 0.9)

	m.uploadPending(context.Background())
	if q.Size() != 0 {
		t.Errorf("queue size = %d, want 0 (rejected batch is dropped)", q.Size())
	}
}

func TestUploadPendingEmptyQueueNoCall(t *testing.T) {
	api := &fakeCloud{}
	m, _, _ := newTestManager(t, api, nil)

	m.uploadPending(context.Background())
	if len(api.pushed()) != 0 {
		t.Error("no upload should happen with an empty queue")
	}
}

func TestStopFlushesPending(t *testing.T) {
	api := &fakeCloud{
		scheduleSnapshot: activeSnapshot(),
		scheduleResult:   cloud.Result{Outcome: cloud.OutcomeOK},
		pushResult:       cloud.Result{Outcome: cloud.OutcomeOK, StatusCode: 202},
		heartbeatResult:  cloud.Result{Outcome: cloud.OutcomeOK},
	}
	m, q, _ := newTestManager(t, api, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	// Start performs the initial refresh synchronously.
	for i := 0; i < 25; i++ {
		m.MarkPresence("subj-"+string(rune('a'+i)), 0.9)
	}
	pending := q.Size()
	if pending == 0 {
		t.Fatal("precondition: events queued")
	}

	m.Stop()

	if q.Size() != 0 {
		t.Errorf("queue size = %d after Stop, want 0 (final flush)", q.Size())
	}
	if m.IsRunning() {
		t.Error("manager should not be running after Stop")
	}
}

func TestStopStopsFlushingOnFailure(t *testing.T) {
	api := &fakeCloud{
		scheduleSnapshot: activeSnapshot(),
		scheduleResult:   cloud.Result{Outcome: cloud.OutcomeOK},
		pushResult:       cloud.Result{Outcome: cloud.OutcomeFailed, Err: errors.New("offline")},
	}
	m, q, _ := newTestManager(t, api, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	m.MarkPresence("subj-1", 0.9)
	m.Stop()

	if q.Size() != 1 {
		t.Errorf("queue size = %d, want 1 (flush stops at first failure)", q.Size())
	}
	if n := len(api.pushed()); n != 1 {
		t.Errorf("push attempts during flush = %d, want 1", n)
	}
}

func TestStartTwiceFails(t *testing.T) {
	api := &fakeCloud{scheduleResult: cloud.Result{Outcome: cloud.OutcomeNotScheduled}}
	m, _, _ := newTestManager(t, api, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer m.Stop()

	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
}
