// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/ingest"
	"github.com/kbhujbal/facetrack/internal/models"
	"github.com/kbhujbal/facetrack/internal/store"
)

const testToken = "test-token"

type testAPI struct {
	store   *store.Store
	ingest  *ingest.Service
	handler http.Handler
}

func newTestAPI(t *testing.T, ingestCfg *config.IngestConfig) *testAPI {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	if ingestCfg == nil {
		ingestCfg = &config.IngestConfig{QueueCapacity: 16, Workers: 2, MaxBatchSize: 100}
	}
	svc := ingest.NewService(ingestCfg, st)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("ingest Start failed: %v", err)
	}

	security := &config.SecurityConfig{
		APIToken:        testToken,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	}
	return &testAPI{
		store:   st,
		ingest:  svc,
		handler: NewRouter(security, NewHandler(ingestCfg, st, svc)),
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func batchRequest(deviceID string, n int, base time.Time) models.AttendanceBatchRequest {
	records := make([]models.AttendanceRecord, n)
	for i := range records {
		records[i] = models.AttendanceRecord{
			SubjectID:  "subj-1",
			ActivityID: "act-1",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Confidence: 0.9,
		}
	}
	return models.AttendanceBatchRequest{DeviceID: deviceID, Records: records}
}

func countRows(t *testing.T, st *store.Store, subjectID string) int {
	t.Helper()
	rows, err := st.AttendanceForSubject(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("AttendanceForSubject failed: %v", err)
	}
	return len(rows)
}

func TestAttendanceAccepted(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/attendance", batchRequest("device-1", 5, time.Now().UTC()))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp models.AttendanceBatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "accepted" || resp.RecordsReceived != 5 {
		t.Errorf("response = %+v", resp)
	}

	// The ack precedes persistence; drain the queue before checking rows.
	api.ingest.Stop()
	if got := countRows(t, api.store, "subj-1"); got != 5 {
		t.Errorf("persisted rows = %d, want 5", got)
	}
}

func TestAttendanceRedeliveryDeduplicated(t *testing.T) {
	api := newTestAPI(t, nil)
	batch := batchRequest("device-1", 5, time.Now().UTC())

	for i := 0; i < 2; i++ {
		if rec := api.do(t, http.MethodPost, "/api/v1/attendance", batch); rec.Code != http.StatusAccepted {
			t.Fatalf("delivery %d: status = %d", i, rec.Code)
		}
	}

	api.ingest.Stop()
	if got := countRows(t, api.store, "subj-1"); got != 5 {
		t.Errorf("persisted rows = %d, want 5 after redelivery", got)
	}
}

func TestAttendanceBatchTooLarge(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/attendance", batchRequest("device-1", 101, time.Now().UTC()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	api.ingest.Stop()
	if got := countRows(t, api.store, "subj-1"); got != 0 {
		t.Errorf("persisted rows = %d, want 0 for rejected batch", got)
	}
}

func TestAttendanceInvalidBody(t *testing.T) {
	api := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want 400", rec.Code)
	}

	// Missing device_id fails validation.
	rec = api.do(t, http.MethodPost, "/api/v1/attendance", batchRequest("", 3, time.Now()))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing device_id: status = %d, want 400", rec.Code)
	}

	// An empty batch has nothing to ingest.
	rec = api.do(t, http.MethodPost, "/api/v1/attendance", models.AttendanceBatchRequest{DeviceID: "device-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d, want 400", rec.Code)
	}
}

func TestAttendanceQueueFull(t *testing.T) {
	// Single worker blocked on a slow store, capacity 1: the first batch
	// occupies the worker, the second fills the queue, the third must be
	// turned away with 503.
	gate := make(chan struct{})
	slow := &slowInserter{gate: gate}
	cfg := &config.IngestConfig{QueueCapacity: 1, Workers: 1, MaxBatchSize: 100}
	svc := ingest.NewService(cfg, slow)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("ingest Start failed: %v", err)
	}

	api := newTestAPI(t, nil)
	security := &config.SecurityConfig{
		APIToken:        testToken,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}
	handler := NewRouter(security, NewHandler(cfg, api.store, svc))

	post := func() int {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(batchRequest("device-1", 2, time.Now())); err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", &buf)
		req.Header.Set("Authorization", "Bearer "+testToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post(); code != http.StatusAccepted {
		t.Fatalf("first batch: status = %d, want 202", code)
	}
	// Give the worker a moment to take the first job off the channel.
	waitFor(t, func() bool { return svc.QueueDepth() == 0 })
	if code := post(); code != http.StatusAccepted {
		t.Fatalf("second batch: status = %d, want 202", code)
	}
	if code := post(); code != http.StatusServiceUnavailable {
		t.Errorf("third batch: status = %d, want 503", code)
	}

	close(gate)
	svc.Stop()
}

type slowInserter struct {
	gate chan struct{}
}

func (s *slowInserter) InsertAttendance(ctx context.Context, deviceID string, records []models.AttendanceRecord) (int, error) {
	<-s.gate
	return len(records), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?room_id=room-7", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/schedule?room_id=room-7", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	// Health endpoints stay open.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health without token: status = %d, want 200", rec.Code)
	}
}

func seedRoom(t *testing.T, st *store.Store, roomID, windowStart, windowEnd string) {
	t.Helper()
	ctx := context.Background()

	if err := st.CreateActivity(ctx, "act-"+roomID, "CS101", "Intro to Computing"); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateSubject(ctx, models.RosterEntry{SubjectID: "subj-1", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Enroll(ctx, "subj-1", "act-"+roomID); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateScheduleRule(ctx, store.ScheduleRule{
		ActivityID:  "act-" + roomID,
		RoomID:      roomID,
		Weekday:     time.Now().Weekday(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestScheduleEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	// room-busy is always in session today, room-idle never is. "24:00"
	// sorts after any HH:MM clock value.
	seedRoom(t, api.store, "room-busy", "00:00", "24:00")
	seedRoom(t, api.store, "room-idle", "00:00", "00:00")

	rec := api.do(t, http.MethodGet, "/api/v1/schedule?room_id=room-busy", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active room: status = %d: %s", rec.Code, rec.Body.String())
	}
	var snapshot models.ScheduleSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.ActivityID != "act-room-busy" || snapshot.RoomID != "room-busy" {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if len(snapshot.Roster) != 1 {
		t.Errorf("roster size = %d, want 1", len(snapshot.Roster))
	}

	if rec := api.do(t, http.MethodGet, "/api/v1/schedule?room_id=room-idle", nil); rec.Code != http.StatusNoContent {
		t.Errorf("idle room: status = %d, want 204", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/v1/schedule?room_id=room-unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown room: status = %d, want 404", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/v1/schedule", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing room_id: status = %d, want 400", rec.Code)
	}
}

func TestHeartbeatRegistersDevice(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/heartbeat", models.HeartbeatRequest{
		DeviceID:   "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		DeviceName: "cam-entrance",
		Timestamp:  time.Now().UTC(),
		Metrics:    map[string]interface{}{"queue_depth": 3},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	dev, err := api.store.GetDevice(context.Background(), "f47ac10b-58cc-4372-a567-0e02b2c3d479")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if dev == nil {
		t.Fatal("device not auto-registered")
	}
	if dev.Name != "cam-entrance" {
		t.Errorf("device name = %q", dev.Name)
	}
}

func TestAttendanceReadEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	base := time.Now().UTC()

	records := []models.AttendanceRecord{
		{SubjectID: "subj-1", ActivityID: "act-1", Timestamp: base, Confidence: 0.9},
		{SubjectID: "subj-1", ActivityID: "act-2", Timestamp: base.Add(time.Minute), Confidence: 0.8},
		{SubjectID: "subj-2", ActivityID: "act-1", Timestamp: base, Confidence: 0.7},
	}
	if _, err := api.store.InsertAttendance(context.Background(), "device-1", records); err != nil {
		t.Fatalf("InsertAttendance failed: %v", err)
	}

	rec := api.do(t, http.MethodGet, "/api/v1/attendance/subjects/subj-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status string                `json:"status"`
		Data   []store.AttendanceRow `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("subject rows = %d, want 2", len(resp.Data))
	}

	rec = api.do(t, http.MethodGet, "/api/v1/attendance/activities/act-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("activity rows = %d, want 2", len(resp.Data))
	}

	// Unknown IDs return an empty list, not an error.
	rec = api.do(t, http.MethodGet, "/api/v1/attendance/subjects/subj-none", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 0 {
		t.Errorf("unknown subject rows = %d, want 0", len(resp.Data))
	}
}

func TestHealthReady(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("running service: status = %d, want 200", rec.Code)
	}

	api.ingest.Stop()
	rec = api.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stopped service: status = %d, want 503", rec.Code)
	}
}
