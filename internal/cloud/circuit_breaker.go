// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/metrics"
	"github.com/kbhujbal/facetrack/internal/models"
)

// breakerFailure marks a Result as a breaker failure without losing the
// classified outcome.
type breakerFailure struct {
	result Result
}

func (e *breakerFailure) Error() string {
	return fmt.Sprintf("cloud call failed: %v", e.result.Err)
}

// BreakerClient wraps Client with a circuit breaker so a prolonged cloud
// outage stops burning retry time on every cycle. Rejected and not-found
// responses count as successes for the breaker: the cloud answered, the
// payload was the problem.
//
// The breaker uses real time for its interval and timeout. Tests exercise
// the wrapped Client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[Result]
	name   string
}

// NewBreakerClient wraps client with a circuit breaker. The circuit opens
// at a 60% failure rate over at least 10 requests, waits one minute before
// probing half-open, and allows 3 half-open probes.
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "cloud-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// execute runs a cloud call through the breaker. OutcomeFailed results are
// surfaced to the breaker as failures; everything else counts as success.
func (bc *BreakerClient) execute(fn func() Result) Result {
	result, err := bc.cb.Execute(func() (Result, error) {
		r := fn()
		if r.Outcome == OutcomeFailed {
			return r, &breakerFailure{result: r}
		}
		return r, nil
	})

	if err != nil {
		var bf *breakerFailure
		if errors.As(err, &bf) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
			return bf.result
		}
		// Circuit open or half-open saturated: the call never happened.
		metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
		logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result
}

// FetchSchedule retrieves the room schedule with circuit breaker protection.
func (bc *BreakerClient) FetchSchedule(ctx context.Context, roomID string) (*models.ScheduleSnapshot, Result) {
	var snapshot *models.ScheduleSnapshot
	result := bc.execute(func() Result {
		var r Result
		snapshot, r = bc.client.FetchSchedule(ctx, roomID)
		return r
	})
	if !result.OK() {
		return nil, result
	}
	return snapshot, result
}

// PushAttendance uploads a batch with circuit breaker protection.
func (bc *BreakerClient) PushAttendance(ctx context.Context, batch models.AttendanceBatchRequest) Result {
	return bc.execute(func() Result {
		return bc.client.PushAttendance(ctx, batch)
	})
}

// SendHeartbeat sends a heartbeat with circuit breaker protection.
func (bc *BreakerClient) SendHeartbeat(ctx context.Context, hb models.HeartbeatRequest) Result {
	return bc.execute(func() Result {
		return bc.client.SendHeartbeat(ctx, hb)
	})
}

// stateToFloat converts circuit breaker state to a numeric metric value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to a log label.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
