// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package capture runs the camera read loop: paced frame reads, frame
// skipping, recognition, and hand-off of sightings to the sync layer.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/recognizer"
)

// ErrSourceClosed is returned by FrameSource.Read when the camera stream
// ends normally.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource yields camera frames. Implementations wrap whatever capture
// stack the device runs (V4L2, GStreamer, test fixtures).
type FrameSource interface {
	Read(ctx context.Context) (recognizer.Frame, error)
	Close() error
}

// PresenceMarker receives recognized sightings. Implemented by the sync
// orchestrator.
type PresenceMarker interface {
	MarkPresence(subjectID string, confidence float64) (bool, error)
}

// Loop reads frames at a bounded rate, runs recognition on every Nth frame,
// and forwards sightings.
type Loop struct {
	source    FrameSource
	rec       recognizer.Recognizer
	marker    PresenceMarker
	limiter   *rate.Limiter
	frameSkip int
	log       zerolog.Logger
}

// NewLoop builds a capture loop. FPS bounds how fast frames are pulled from
// the source; frameSkip runs recognition on every Nth frame only, since
// recognition dominates CPU cost on edge hardware.
func NewLoop(cfg *config.CaptureConfig, source FrameSource, rec recognizer.Recognizer, marker PresenceMarker) *Loop {
	return &Loop{
		source:    source,
		rec:       rec,
		marker:    marker,
		limiter:   rate.NewLimiter(rate.Limit(cfg.FPS), 1),
		frameSkip: cfg.FrameSkip,
		log:       logging.With().Str("component", "capture_loop").Logger(),
	}
}

// Run reads frames until the context is cancelled or the source closes.
// Recognition or marking errors are logged and do not stop the loop; a
// transient camera glitch must not take attendance down.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Closing frame source failed")
		}
	}()

	frameIndex := 0
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		frame, err := l.source.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("frame read: %w", err)
		}

		frameIndex++
		if frameIndex%l.frameSkip != 0 {
			continue
		}

		for _, sighting := range l.rec.Recognize(frame) {
			added, err := l.marker.MarkPresence(sighting.SubjectID, sighting.Confidence)
			if err != nil {
				l.log.Error().Err(err).
					Str("subject_id", sighting.SubjectID).
					Float64("confidence", sighting.Confidence).
					Msg("Marking presence failed")
				continue
			}
			if added {
				l.log.Debug().
					Str("subject_id", sighting.SubjectID).
					Float64("confidence", sighting.Confidence).
					Msg("Presence marked")
			}
		}
	}
}
