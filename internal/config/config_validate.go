// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common configuration errors.
var (
	ErrMissingBaseURL = errors.New("cloud.base_url is required")
	ErrMissingRoomID  = errors.New("device.room_id is required")
	ErrMissingDBPath  = errors.New("database.path is required")
)

// ValidateEdge checks the sections the edge agent depends on.
func (c *Config) ValidateEdge() error {
	if c.Cloud.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if !strings.HasPrefix(c.Cloud.BaseURL, "http://") && !strings.HasPrefix(c.Cloud.BaseURL, "https://") {
		return fmt.Errorf("cloud.base_url must start with http:// or https://, got %q", c.Cloud.BaseURL)
	}
	if c.Device.RoomID == "" {
		return ErrMissingRoomID
	}
	if c.Cloud.RetryAttempts < 1 || c.Cloud.RetryAttempts > 10 {
		return fmt.Errorf("cloud.retry_attempts must be in [1,10], got %d", c.Cloud.RetryAttempts)
	}
	if c.Cloud.Timeout < time.Second {
		return fmt.Errorf("cloud.timeout must be at least 1s, got %s", c.Cloud.Timeout)
	}
	if c.Queue.DebounceWindow <= 0 {
		return fmt.Errorf("queue.debounce_window must be positive, got %s", c.Queue.DebounceWindow)
	}
	if c.Queue.BatchSize < 1 || c.Queue.BatchSize > 100 {
		return fmt.Errorf("queue.batch_size must be in [1,100], got %d", c.Queue.BatchSize)
	}
	if c.Capture.FPS < 1 {
		return fmt.Errorf("capture.fps must be at least 1, got %d", c.Capture.FPS)
	}
	if c.Capture.FrameSkip < 1 {
		return fmt.Errorf("capture.frame_skip must be at least 1, got %d", c.Capture.FrameSkip)
	}
	return nil
}

// ValidateServer checks the sections the ingestion server depends on.
func (c *Config) ValidateServer() error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.QueueCapacity < 1 {
		return fmt.Errorf("ingest.queue_capacity must be at least 1, got %d", c.Ingest.QueueCapacity)
	}
	if c.Ingest.MaxBatchSize < 1 {
		return fmt.Errorf("ingest.max_batch_size must be at least 1, got %d", c.Ingest.MaxBatchSize)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
