// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package main is the entry point for the FaceTrack edge agent.
//
// The agent runs on a classroom device. It keeps a debounced local queue of
// recognition sightings, a TTL-cached schedule for its room, and a sync
// loop that uploads attendance batches, refreshes the schedule, and sends
// heartbeats to the cloud API. The agent is built to survive network
// outages: events queue locally (optionally journaled to disk) and upload
// when connectivity returns.
//
// Initialization order:
//
//  1. Configuration: layered load via koanf (defaults, config file, env)
//  2. Device identity: UUID persisted across restarts
//  3. Attendance queue: optional BadgerDB journal replayed on boot
//  4. Cloud client: retrying HTTP client behind a circuit breaker
//  5. Sync manager: supervised, with a final queue flush on shutdown
//
// The capture loop (camera frames in, recognition sightings out) attaches
// here once a FrameSource and Recognizer implementation are wired in; the
// recognition engine itself ships separately from this binary.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kbhujbal/facetrack/internal/cloud"
	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/device"
	"github.com/kbhujbal/facetrack/internal/edgesync"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/queue"
	"github.com/kbhujbal/facetrack/internal/schedule"
	"github.com/kbhujbal/facetrack/internal/supervisor"
	"github.com/kbhujbal/facetrack/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.ValidateEdge(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid edge configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	deviceID, err := device.LoadOrCreateID(cfg.Device.IdentityPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load device identity")
	}

	logging.Info().
		Str("device_id", deviceID).
		Str("device_name", cfg.Device.Name).
		Str("room_id", cfg.Device.RoomID).
		Str("cloud_url", cfg.Cloud.BaseURL).
		Msg("Starting FaceTrack edge agent")

	var journal *queue.Journal
	if cfg.Queue.JournalPath != "" {
		journal, err = queue.OpenJournal(cfg.Queue.JournalPath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open attendance journal")
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing attendance journal")
			}
		}()
	} else {
		logging.Warn().Msg("Attendance journal disabled, queued events will not survive a crash")
	}

	q, err := queue.New(queue.Options{
		Window:    cfg.Queue.DebounceWindow,
		DeviceID:  deviceID,
		HighWater: cfg.Queue.HighWater,
		Journal:   journal,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create attendance queue")
	}

	cache := schedule.NewCache(cfg.Sync.ScheduleInterval)
	client := cloud.NewBreakerClient(cloud.NewClient(&cfg.Cloud, cfg.Device.Name))

	// No recognizer is attached in this binary, so schedule changes have no
	// roster consumer yet. The sync manager tolerates a nil loader.
	manager := edgesync.New(cfg, deviceID, q, cache, client, nil)

	tree := supervisor.NewTree("facetrack-edge", supervisor.DefaultTreeConfig())
	tree.AddPipelineService(services.NewLifecycleService("sync-manager", manager))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Edge agent stopped gracefully")
}
