// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package cloud

import "fmt"

// Outcome classifies the final result of a cloud API call. Every call ends
// in exactly one outcome; callers switch on it rather than inspecting raw
// status codes.
type Outcome int

const (
	// OutcomeOK means the call succeeded (2xx).
	OutcomeOK Outcome = iota

	// OutcomeNotScheduled means the room has no activity right now (204).
	OutcomeNotScheduled

	// OutcomeNotFound means the room or resource is unknown (404).
	OutcomeNotFound

	// OutcomeRejected means the server refused the request as malformed or
	// unauthorized (other 4xx). Terminal: retrying the same payload cannot
	// succeed.
	OutcomeRejected

	// OutcomeFailed means transport errors, timeouts, or 5xx exhausted all
	// attempts. The payload may be retried later.
	OutcomeFailed
)

// String returns the outcome name for logs and metrics labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotScheduled:
		return "not_scheduled"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the classified outcome of one logical API call, including all
// retry attempts.
type Result struct {
	Outcome    Outcome
	StatusCode int // last HTTP status, 0 when no response was received
	Attempts   int
	Err        error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Terminal reports whether retrying the same payload is pointless.
func (r Result) Terminal() bool {
	return r.Outcome == OutcomeRejected || r.Outcome == OutcomeNotFound
}
