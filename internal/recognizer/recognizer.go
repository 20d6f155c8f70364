// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package recognizer defines the boundary between FaceTrack and the face
// recognition engine. The engine itself (model loading, embedding matching)
// lives outside this module; FaceTrack only feeds it rosters and consumes
// its sightings.
package recognizer

import "github.com/kbhujbal/facetrack/internal/models"

// Frame is one captured camera frame, opaque to FaceTrack.
type Frame []byte

// Sighting is one recognized subject in a frame.
type Sighting struct {
	SubjectID  string
	Confidence float64
}

// Recognizer matches frames against the currently loaded roster.
//
// LoadRoster replaces the active template set wholesale; it is called
// whenever the room's schedule changes materially. Recognize may be called
// concurrently with LoadRoster and must be internally synchronized.
type Recognizer interface {
	LoadRoster(roster []models.RosterEntry) error
	Recognize(frame Frame) []Sighting
}
