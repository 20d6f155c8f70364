// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the Start/Stop lifecycle shared by the sync manager
// and the ingestion service. Start spawns internal goroutines and returns;
// Stop blocks until they drain.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// LifecycleService adapts a Start/Stop component to suture's Serve pattern:
// start, block on the context, stop.
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewLifecycleService creates the wrapper. The name identifies the service
// in supervisor logs ("sync-manager", "ingest").
func NewLifecycleService(name string, component StartStopper) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// Serve implements suture.Service. A Start failure is returned immediately
// so suture applies its restart backoff.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}
	<-ctx.Done()
	s.component.Stop()
	return ctx.Err()
}

func (s *LifecycleService) String() string {
	return s.name
}
