// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package config provides layered configuration for both FaceTrack binaries.
//
// Configuration is loaded once at process start and passed by reference into
// each component's constructor; no component performs ambient config lookups.
package config

import "time"

// Config is the root configuration shared by the edge agent and the cloud
// ingestion server. Each binary validates only the sections it uses.
type Config struct {
	Device   DeviceConfig   `koanf:"device"`
	Cloud    CloudConfig    `koanf:"cloud"`
	Queue    QueueConfig    `koanf:"queue"`
	Sync     SyncConfig     `koanf:"sync"`
	Capture  CaptureConfig  `koanf:"capture"`
	Server   ServerConfig   `koanf:"server"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DeviceConfig identifies the edge device and the room it watches.
type DeviceConfig struct {
	// Name is a human-readable device label reported in heartbeats.
	Name string `koanf:"name"`

	// RoomID is the classroom this device is installed in.
	RoomID string `koanf:"room_id"`

	// IdentityPath is where the generated device UUID is persisted so the
	// identity survives restarts.
	IdentityPath string `koanf:"identity_path"`
}

// CloudConfig configures the edge agent's client for the cloud API.
type CloudConfig struct {
	// BaseURL is the cloud API root, e.g. https://api.attendance.example.com.
	BaseURL string `koanf:"base_url"`

	// APIVersion selects the API path prefix (/api/<version>).
	APIVersion string `koanf:"api_version"`

	// Token is the bearer token sent in the Authorization header.
	Token string `koanf:"token"`

	// Timeout bounds a single request attempt.
	Timeout time.Duration `koanf:"timeout"`

	// RetryAttempts is the total number of attempts for retriable calls.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBaseDelay is the base for exponential backoff between attempts
	// (delay = base * 2^attempt).
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// HeartbeatTimeout bounds the single best-effort heartbeat attempt.
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout"`
}

// QueueConfig configures the local attendance queue.
type QueueConfig struct {
	// DebounceWindow is the minimum time between two accepted events for
	// the same (subject, activity) key.
	DebounceWindow time.Duration `koanf:"debounce_window"`

	// BatchSize caps how many pending events are taken per upload cycle.
	BatchSize int `koanf:"batch_size"`

	// HighWater is the pending-count threshold above which a backlog
	// warning is logged each upload cycle.
	HighWater int `koanf:"high_water"`

	// JournalPath enables the durable BadgerDB journal when non-empty.
	// Accepted events are persisted there until delivery is confirmed, so
	// a crash does not lose marked attendance.
	JournalPath string `koanf:"journal_path"`
}

// SyncConfig configures the periodic actions of the sync orchestrator.
type SyncConfig struct {
	// ScheduleInterval is the schedule cache TTL (how often a refresh is due).
	ScheduleInterval time.Duration `koanf:"schedule_interval"`

	// ScheduleCheck is how often the orchestrator re-evaluates cache staleness.
	ScheduleCheck time.Duration `koanf:"schedule_check"`

	// UploadInterval is how often pending attendance batches are uploaded.
	UploadInterval time.Duration `koanf:"upload_interval"`

	// HeartbeatInterval is how often a device heartbeat is sent.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// SweepInterval is how often expired debounce entries are swept.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// CaptureConfig paces the camera capture loop.
type CaptureConfig struct {
	// FPS is the maximum frame rate read from the camera.
	FPS int `koanf:"fps"`

	// FrameSkip processes only every Nth frame (recognition is expensive).
	FrameSkip int `koanf:"frame_skip"`
}

// ServerConfig configures the cloud HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// IngestConfig configures the store-and-forward ingestion path.
type IngestConfig struct {
	// QueueCapacity bounds the in-process job queue. When the queue is
	// full, new attendance submissions are rejected with 503.
	QueueCapacity int `koanf:"queue_capacity"`

	// Workers is the number of persistence workers draining the queue.
	Workers int `koanf:"workers"`

	// MaxBatchSize is the largest record batch accepted per request.
	MaxBatchSize int `koanf:"max_batch_size"`

	// DeadLetterPath is a JSONL file receiving batches whose background
	// persistence failed after acknowledgment. Empty disables the log.
	DeadLetterPath string `koanf:"dead_letter_path"`
}

// DatabaseConfig configures the durable SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" is valid for tests.
	Path string `koanf:"path"`
}

// SecurityConfig configures API authentication and rate limiting.
type SecurityConfig struct {
	// APIToken is the bearer token devices must present. Empty disables
	// authentication (development only).
	APIToken string `koanf:"api_token"`

	// RateLimitReqs / RateLimitWindow bound requests per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all sensible default values. Defaults
// are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:         "edge-unknown",
			RoomID:       "",
			IdentityPath: "/data/facetrack/device_id",
		},
		Cloud: CloudConfig{
			BaseURL:          "",
			APIVersion:       "v1",
			Token:            "",
			Timeout:          30 * time.Second,
			RetryAttempts:    3,
			RetryBaseDelay:   1 * time.Second,
			HeartbeatTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			DebounceWindow: 30 * time.Second,
			BatchSize:      10,
			HighWater:      500,
			JournalPath:    "",
		},
		Sync: SyncConfig{
			ScheduleInterval:  10 * time.Minute,
			ScheduleCheck:     time.Minute,
			UploadInterval:    time.Minute,
			HeartbeatInterval: 2 * time.Minute,
			SweepInterval:     5 * time.Minute,
		},
		Capture: CaptureConfig{
			FPS:       30,
			FrameSkip: 3,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8420,
			Timeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			QueueCapacity:  256,
			Workers:        4,
			MaxBatchSize:   100,
			DeadLetterPath: "",
		},
		Database: DatabaseConfig{
			Path: "/data/facetrack/attendance.db",
		},
		Security: SecurityConfig{
			APIToken:        "",
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
