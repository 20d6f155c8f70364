// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package main is the entry point for the FaceTrack ingestion server.
//
// The server accepts attendance batches from classroom edge devices,
// acknowledges them fast (202), and persists them asynchronously through a
// bounded worker pool into SQLite. It also serves schedule lookups, device
// heartbeats, and attendance read queries.
//
// Initialization order:
//
//  1. Configuration: layered load via koanf (defaults, config file, env)
//  2. Database: SQLite with WAL journaling, schema creation
//  3. Ingestion service: bounded queue + persistence workers
//  4. HTTP server: chi-routed REST API
//  5. Supervisor tree: ingest in the pipeline layer, HTTP in the api layer
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the HTTP
// server stops accepting connections, then the ingestion queue drains
// fully before the process exits, so every acknowledged batch reaches the
// database or the dead-letter log.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbhujbal/facetrack/internal/api"
	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/ingest"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/store"
	"github.com/kbhujbal/facetrack/internal/supervisor"
	"github.com/kbhujbal/facetrack/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.ValidateServer(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid server configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("db_path", cfg.Database.Path).
		Int("ingest_workers", cfg.Ingest.Workers).
		Msg("Starting FaceTrack server")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	if err := st.InitSchema(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	ingestSvc := ingest.NewService(&cfg.Ingest, st)
	handler := api.NewHandler(&cfg.Ingest, st, ingestSvc)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(&cfg.Security, handler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree("facetrack-server", supervisor.DefaultTreeConfig())
	tree.AddPipelineService(services.NewLifecycleService("ingest", ingestSvc))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

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

	logging.Info().Msg("Server stopped gracefully")
}
