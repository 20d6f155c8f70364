// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/facetrack/config.yaml",
	"/etc/facetrack/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if found)
//  3. Environment variables: override any setting (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables
	// FACETRACK_API_TOKEN -> security.api_token, CLOUD_BASE_URL -> cloud.base_url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Slice fields arrive from env as comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, preventing random environment
// variables from polluting the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Device mappings
		"device_name":          "device.name",
		"room_id":              "device.room_id",
		"device_identity_path": "device.identity_path",

		// Cloud API mappings
		"cloud_base_url":          "cloud.base_url",
		"cloud_api_version":       "cloud.api_version",
		"cloud_token":             "cloud.token",
		"cloud_timeout":           "cloud.timeout",
		"cloud_retry_attempts":    "cloud.retry_attempts",
		"cloud_retry_base_delay":  "cloud.retry_base_delay",
		"cloud_heartbeat_timeout": "cloud.heartbeat_timeout",

		// Queue mappings
		"queue_debounce_window": "queue.debounce_window",
		"queue_batch_size":      "queue.batch_size",
		"queue_high_water":      "queue.high_water",
		"queue_journal_path":    "queue.journal_path",

		// Sync mappings
		"sync_schedule_interval":  "sync.schedule_interval",
		"sync_schedule_check":     "sync.schedule_check",
		"sync_upload_interval":    "sync.upload_interval",
		"sync_heartbeat_interval": "sync.heartbeat_interval",
		"sync_sweep_interval":     "sync.sweep_interval",

		// Capture mappings
		"capture_fps":        "capture.fps",
		"capture_frame_skip": "capture.frame_skip",

		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Ingestion mappings
		"ingest_queue_capacity":   "ingest.queue_capacity",
		"ingest_workers":          "ingest.workers",
		"ingest_max_batch_size":   "ingest.max_batch_size",
		"ingest_dead_letter_path": "ingest.dead_letter_path",

		// Database mappings
		"sqlite_path": "database.path",

		// Security mappings
		"api_token":           "security.api_token",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
