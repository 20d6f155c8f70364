// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package cloud implements the edge agent's client for the cloud API.
//
// All calls classify their final state into a Result: success, not
// scheduled, not found, rejected (terminal 4xx), or failed (transport/5xx
// after retries). Transient failures are retried with exponential backoff;
// client errors are never retried.
package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/models"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// API is the cloud surface the sync orchestrator depends on. Implemented by
// Client and BreakerClient.
type API interface {
	FetchSchedule(ctx context.Context, roomID string) (*models.ScheduleSnapshot, Result)
	PushAttendance(ctx context.Context, batch models.AttendanceBatchRequest) Result
	SendHeartbeat(ctx context.Context, hb models.HeartbeatRequest) Result
}

// Client talks to the cloud attendance API with bearer authentication and
// bounded retries. Safe for concurrent use.
type Client struct {
	baseURL          string
	apiVersion       string
	token            string
	userAgent        string
	client           *http.Client
	maxAttempts      int
	retryBaseDelay   time.Duration
	heartbeatTimeout time.Duration
	log              zerolog.Logger
}

// NewClient creates a Client from the cloud section of the configuration.
// deviceName is embedded in the User-Agent so server logs can attribute
// traffic to a classroom device.
func NewClient(cfg *config.CloudConfig, deviceName string) *Client {
	return &Client{
		baseURL:          cfg.BaseURL,
		apiVersion:       cfg.APIVersion,
		token:            cfg.Token,
		userAgent:        "facetrack-edge/" + deviceName,
		client:           &http.Client{Timeout: cfg.Timeout},
		maxAttempts:      cfg.RetryAttempts,
		retryBaseDelay:   cfg.RetryBaseDelay,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		log:              logging.With().Str("component", "cloud_client").Logger(),
	}
}

// endpoint builds the full URL for an API path.
func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/api/%s%s", c.baseURL, c.apiVersion, path)
}

// newRequest builds an authenticated request. body may be nil.
func (c *Client) newRequest(ctx context.Context, method, reqURL string, body []byte) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doWithRetry performs a request with up to maxAttempts attempts. Transport
// errors and 5xx responses are retried with exponential backoff
// (base, 2x base, 4x base, ...); any other status ends the loop and the
// response is returned for classification. The backoff wait is cancellable.
func (c *Client) doWithRetry(ctx context.Context, method, reqURL string, body []byte) (*http.Response, int, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			}
		}

		req, err := c.newRequest(ctx, method, reqURL, body)
		if err != nil {
			return nil, attempt + 1, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Int("attempt", attempt+1).Str("url", reqURL).Msg("Request attempt failed")
			continue
		}

		if resp.StatusCode >= 500 {
			errBody := readBodyForError(resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error HTTP %d: %s", resp.StatusCode, errBody)
			c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("Server error, will retry")
			continue
		}

		return resp, attempt + 1, nil
	}

	return nil, c.maxAttempts, fmt.Errorf("all %d attempts failed: %w", c.maxAttempts, lastErr)
}

// FetchSchedule retrieves the room's current schedule snapshot.
//
// Outcomes: OK with a snapshot (200), NotScheduled with nil (204), NotFound
// with nil (404), Rejected for other 4xx, Failed after exhausted retries.
func (c *Client) FetchSchedule(ctx context.Context, roomID string) (*models.ScheduleSnapshot, Result) {
	reqURL := c.endpoint("/schedule") + "?" + url.Values{"room_id": {roomID}}.Encode()

	resp, attempts, err := c.doWithRetry(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, Result{Outcome: OutcomeFailed, Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var snapshot models.ScheduleSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return nil, Result{
				Outcome:    OutcomeFailed,
				StatusCode: resp.StatusCode,
				Attempts:   attempts,
				Err:        fmt.Errorf("decode schedule: %w", err),
			}
		}
		return &snapshot, Result{Outcome: OutcomeOK, StatusCode: resp.StatusCode, Attempts: attempts}
	case resp.StatusCode == http.StatusNoContent:
		return nil, Result{Outcome: OutcomeNotScheduled, StatusCode: resp.StatusCode, Attempts: attempts}
	case resp.StatusCode == http.StatusNotFound:
		return nil, Result{Outcome: OutcomeNotFound, StatusCode: resp.StatusCode, Attempts: attempts}
	default:
		return nil, c.rejected(resp, attempts)
	}
}

// PushAttendance uploads a batch of attendance records. The server
// acknowledges receipt with 202; durable storage happens asynchronously on
// its side.
func (c *Client) PushAttendance(ctx context.Context, batch models.AttendanceBatchRequest) Result {
	body, err := json.Marshal(batch)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Err: fmt.Errorf("marshal batch: %w", err)}
	}

	resp, attempts, err := c.doWithRetry(ctx, http.MethodPost, c.endpoint("/attendance"), body)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Outcome: OutcomeOK, StatusCode: resp.StatusCode, Attempts: attempts}
	}
	if resp.StatusCode == http.StatusNotFound {
		return Result{Outcome: OutcomeNotFound, StatusCode: resp.StatusCode, Attempts: attempts}
	}
	return c.rejected(resp, attempts)
}

// SendHeartbeat reports device health. Heartbeats are best-effort: a single
// attempt under a short timeout, never retried. A missed heartbeat costs
// nothing but a gap in the device dashboard.
func (c *Client) SendHeartbeat(ctx context.Context, hb models.HeartbeatRequest) Result {
	body, err := json.Marshal(hb)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Err: fmt.Errorf("marshal heartbeat: %w", err)}
	}

	hbCtx, cancel := context.WithTimeout(ctx, c.heartbeatTimeout)
	defer cancel()

	req, err := c.newRequest(hbCtx, http.MethodPost, c.endpoint("/heartbeat"), body)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Attempts: 1, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Outcome: OutcomeOK, StatusCode: resp.StatusCode, Attempts: 1}
	}
	if resp.StatusCode >= 500 {
		return Result{
			Outcome:    OutcomeFailed,
			StatusCode: resp.StatusCode,
			Attempts:   1,
			Err:        fmt.Errorf("heartbeat HTTP %d", resp.StatusCode),
		}
	}
	return c.rejected(resp, 1)
}

// rejected classifies a terminal 4xx response, capturing a bounded slice of
// the body for diagnostics.
func (c *Client) rejected(resp *http.Response, attempts int) Result {
	errBody := readBodyForError(resp.Body)
	return Result{
		Outcome:    OutcomeRejected,
		StatusCode: resp.StatusCode,
		Attempts:   attempts,
		Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, errBody),
	}
}

// readBodyForError reads at most maxErrorBodySize bytes of a response body
// for error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}
