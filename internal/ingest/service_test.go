// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package ingest

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/models"
)

// blockingStore counts inserts and can be paused to fill the queue.
type blockingStore struct {
	mu       sync.Mutex
	inserted int
	batches  int
	err      error
	gate     chan struct{} // when non-nil, insert blocks until closed
}

func (b *blockingStore) InsertAttendance(ctx context.Context, deviceID string, records []models.AttendanceRecord) (int, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.batches++
	b.inserted += len(records)
	return len(records), nil
}

func (b *blockingStore) totals() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches, b.inserted
}

func testJob(id string, n int) Job {
	records := make([]models.AttendanceRecord, n)
	for i := range records {
		records[i] = models.AttendanceRecord{
			SubjectID:  "subj-1",
			ActivityID: "act-1",
			Timestamp:  time.Now().Add(time.Duration(i) * time.Second),
			Confidence: 0.9,
		}
	}
	return Job{BatchID: id, DeviceID: "device-1", Records: records, ReceivedAt: time.Now()}
}

func TestSubmitAndPersist(t *testing.T) {
	st := &blockingStore{}
	svc := NewService(&config.IngestConfig{QueueCapacity: 8, Workers: 2}, st)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := svc.Submit(testJob("batch", 5)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	svc.Stop()

	batches, inserted := st.totals()
	if batches != 4 || inserted != 20 {
		t.Errorf("persisted %d batches / %d records, want 4 / 20", batches, inserted)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	gate := make(chan struct{})
	st := &blockingStore{gate: gate}
	svc := NewService(&config.IngestConfig{QueueCapacity: 2, Workers: 1}, st)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The single worker blocks on the gate; fill the channel behind it.
	// Up to one job may be pulled off the channel before blocking, so
	// submit until the queue reports full.
	var rejected bool
	for i := 0; i < 5; i++ {
		if err := svc.Submit(testJob("batch", 1)); err != nil {
			if !errors.Is(err, ErrQueueFull) {
				t.Fatalf("Submit error = %v, want ErrQueueFull", err)
			}
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("expected ErrQueueFull once capacity was exceeded")
	}

	close(gate)
	svc.Stop()
}

func TestSubmitAfterStop(t *testing.T) {
	st := &blockingStore{}
	svc := NewService(&config.IngestConfig{QueueCapacity: 2, Workers: 1}, st)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	svc.Stop()

	if err := svc.Submit(testJob("late", 1)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Submit after Stop = %v, want ErrNotRunning", err)
	}
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	gate := make(chan struct{})
	st := &blockingStore{gate: gate}
	svc := NewService(&config.IngestConfig{QueueCapacity: 16, Workers: 1}, st)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 6; i++ {
		if err := svc.Submit(testJob("batch", 2)); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	close(gate)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not drain the queue")
	}

	batches, _ := st.totals()
	if batches != 6 {
		t.Errorf("drained %d batches, want 6 (acknowledged jobs must not be lost)", batches)
	}
}

func TestFailedPersistGoesToDeadLetter(t *testing.T) {
	dlPath := filepath.Join(t.TempDir(), "dead_letter.jsonl")
	st := &blockingStore{err: errors.New("disk full")}
	svc := NewService(&config.IngestConfig{QueueCapacity: 4, Workers: 1, DeadLetterPath: dlPath}, st)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := testJob("doomed", 3)
	if err := svc.Submit(job); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	svc.Stop()

	f, err := os.Open(dlPath)
	if err != nil {
		t.Fatalf("dead-letter file not written: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("dead-letter file is empty")
	}
	var entry struct {
		Error string `json:"error"`
		Job   Job    `json:"job"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("dead-letter line is not valid JSON: %v", err)
	}
	if entry.Error != "disk full" {
		t.Errorf("entry.Error = %q", entry.Error)
	}
	if entry.Job.BatchID != "doomed" || len(entry.Job.Records) != 3 {
		t.Errorf("entry.Job = %+v", entry.Job)
	}
}
