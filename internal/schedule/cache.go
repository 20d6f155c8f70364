// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package schedule caches the room's current activity and roster between
// cloud refreshes.
//
// The cache tolerates cloud outages: a fetch failure leaves the last known
// snapshot in place, and staleness is only a signal that a refresh is due,
// never a reason to drop data.
package schedule

import (
	"sync"
	"time"

	"github.com/kbhujbal/facetrack/internal/models"
)

// State describes the cache lifecycle.
type State int

const (
	// StateEmpty means no refresh has ever succeeded.
	StateEmpty State = iota
	// StateFresh means the snapshot is within its TTL.
	StateFresh
	// StateStale means the TTL elapsed without a successful refresh.
	StateStale
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Cache holds the current schedule snapshot for one room. Safe for
// concurrent use.
type Cache struct {
	mu       sync.RWMutex
	current  *models.ScheduleSnapshot
	interval time.Duration

	refreshed bool
	nextDue   time.Time
}

// NewCache creates a cache that considers itself due for refresh every
// interval.
func NewCache(interval time.Duration) *Cache {
	return &Cache{interval: interval}
}

// ShouldRefresh reports whether a refresh is due: always true before the
// first successful refresh, then true once now reaches nextDue.
func (c *Cache) ShouldRefresh(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.refreshed || !now.Before(c.nextDue)
}

// MarkRefreshed records a successful fetch at now and schedules the next
// refresh, whether or not the fetch changed anything.
func (c *Cache) MarkRefreshed(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed = true
	c.nextDue = now.Add(c.interval)
}

// Apply replaces the cached snapshot when the fetched one differs
// materially. A nil snapshot is legal and means "no activity scheduled
// now". Returns whether the cache content changed.
//
// Apply must only be called with the result of a successful fetch; a failed
// fetch keeps the previous snapshot untouched.
func (c *Cache) Apply(snapshot *models.ScheduleSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Equal(snapshot) {
		return false
	}
	c.current = snapshot
	return true
}

// Current returns the cached snapshot, or nil when none is active.
// The snapshot is immutable; callers must not modify it.
func (c *Cache) Current() *models.ScheduleSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Active reports whether an activity is scheduled right now.
func (c *Cache) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil
}

// State returns the cache lifecycle state at now.
func (c *Cache) State(now time.Time) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case !c.refreshed:
		return StateEmpty
	case now.Before(c.nextDue):
		return StateFresh
	default:
		return StateStale
	}
}
