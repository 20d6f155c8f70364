// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package ingest implements the store-and-forward path between the HTTP
// handlers and the durable store.
//
// Handlers acknowledge batches immediately (202) and hand them to a bounded
// in-process queue; a fixed worker pool performs the durable writes. When
// the queue is full, Submit fails and the handler replies 503: bounded
// memory and honest backpressure beat silent unbounded buffering.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/metrics"
	"github.com/kbhujbal/facetrack/internal/models"
)

// ErrQueueFull is returned by Submit when the job queue is at capacity.
var ErrQueueFull = errors.New("ingestion queue full")

// ErrNotRunning is returned by Submit before Start or after Stop.
var ErrNotRunning = errors.New("ingestion service not running")

// Job is one acknowledged batch awaiting persistence.
type Job struct {
	BatchID    string                    `json:"batch_id"`
	DeviceID   string                    `json:"device_id"`
	Records    []models.AttendanceRecord `json:"records"`
	ReceivedAt time.Time                 `json:"received_at"`
}

// Inserter is the store dependency. Implemented by *store.Store.
type Inserter interface {
	InsertAttendance(ctx context.Context, deviceID string, records []models.AttendanceRecord) (int, error)
}

// Service drains acknowledged batches into the store.
type Service struct {
	store          Inserter
	jobs           chan Job
	workers        int
	deadLetterPath string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dlMu    sync.Mutex

	log zerolog.Logger
}

// NewService creates an ingestion service over the given store.
func NewService(cfg *config.IngestConfig, store Inserter) *Service {
	return &Service{
		store:          store,
		jobs:           make(chan Job, cfg.QueueCapacity),
		workers:        cfg.Workers,
		deadLetterPath: cfg.DeadLetterPath,
		log:            logging.With().Str("component", "ingest").Logger(),
	}
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("ingestion service already running")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(runCtx)
		}()
	}

	s.log.Info().Int("workers", s.workers).Int("capacity", cap(s.jobs)).Msg("Ingestion service started")
	return nil
}

// Stop drains the queue and waits for the workers to finish. Acknowledged
// batches are persisted before exit; only a hard kill loses them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.jobs)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
	s.log.Info().Msg("Ingestion service stopped")
}

// IsRunning reports whether the worker pool is accepting jobs.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Submit queues a batch for background persistence. Returns ErrQueueFull
// when the bounded queue is at capacity.
func (s *Service) Submit(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	select {
	case s.jobs <- job:
		metrics.IngestQueueDepth.Set(float64(len(s.jobs)))
		return nil
	default:
		metrics.IngestJobsTotal.WithLabelValues("rejected_full").Inc()
		return ErrQueueFull
	}
}

// QueueDepth returns the number of queued jobs.
func (s *Service) QueueDepth() int {
	return len(s.jobs)
}

// worker persists jobs until the channel closes. A closed channel (Stop)
// still drains fully; context cancellation only aborts the in-flight
// database call.
func (s *Service) worker(ctx context.Context) {
	for job := range s.jobs {
		metrics.IngestQueueDepth.Set(float64(len(s.jobs)))
		s.persist(ctx, job)
	}
}

// persist writes one batch, routing failures to the dead-letter log. The
// batch was already acknowledged to the device, so there is no one left to
// return an error to.
func (s *Service) persist(ctx context.Context, job Job) {
	start := time.Now()
	inserted, err := s.store.InsertAttendance(ctx, job.DeviceID, job.Records)
	metrics.IngestPersistDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.IngestJobsTotal.WithLabelValues("failed").Inc()
		s.log.Error().Err(err).
			Str("batch_id", job.BatchID).
			Str("device_id", job.DeviceID).
			Int("records", len(job.Records)).
			Msg("Persisting acknowledged batch failed")
		s.deadLetter(job, err)
		return
	}

	duplicates := len(job.Records) - inserted
	metrics.IngestJobsTotal.WithLabelValues("persisted").Inc()
	metrics.IngestRecordsInserted.Add(float64(inserted))
	metrics.IngestRecordsDeduplicated.Add(float64(duplicates))

	s.log.Debug().
		Str("batch_id", job.BatchID).
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Msg("Batch persisted")
}

// deadLetterEntry is one JSONL line in the dead-letter file.
type deadLetterEntry struct {
	FailedAt time.Time `json:"failed_at"`
	Error    string    `json:"error"`
	Job      Job       `json:"job"`
}

// deadLetter appends the failed batch to the dead-letter file so an
// operator can replay it. Disabled when no path is configured.
func (s *Service) deadLetter(job Job, cause error) {
	if s.deadLetterPath == "" {
		return
	}

	line, err := json.Marshal(deadLetterEntry{
		FailedAt: time.Now().UTC(),
		Error:    cause.Error(),
		Job:      job,
	})
	if err != nil {
		s.log.Error().Err(err).Str("batch_id", job.BatchID).Msg("Dead-letter marshal failed")
		return
	}

	s.dlMu.Lock()
	defer s.dlMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.deadLetterPath), 0o755); err != nil {
		s.log.Error().Err(err).Msg("Dead-letter directory create failed")
		return
	}
	f, err := os.OpenFile(s.deadLetterPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		s.log.Error().Err(err).Msg("Dead-letter open failed")
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", line); err != nil {
		s.log.Error().Err(err).Msg("Dead-letter write failed")
		return
	}
	metrics.IngestDeadLetters.Inc()
}
