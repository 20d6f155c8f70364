// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

// Package queue implements the edge attendance queue: a debounced,
// crash-tolerant buffer of presence events awaiting upload.
//
// Events stay on the queue until the cloud acknowledges the batch that
// carries them. TakeBatch peeks without removing; Confirm removes. A failed
// upload therefore never loses events.
package queue

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/metrics"
	"github.com/kbhujbal/facetrack/internal/models"
)

// ErrConfidenceRange is returned when a recognition confidence is outside
// [0, 1]. The event is not enqueued.
var ErrConfidenceRange = errors.New("confidence must be in [0, 1]")

// dedupeKey identifies a (subject, activity) pair in the debounce table.
type dedupeKey struct {
	subjectID  string
	activityID string
}

// queueEntry is one pending event plus its journal sequence number.
type queueEntry struct {
	event models.PresenceEvent
	seq   uint64
}

// Batch is an immutable view of up to max pending events, peeked off the
// queue front. The element handles let Confirm remove exactly these events
// in O(len) regardless of queue depth.
type Batch struct {
	ID     string
	Events []models.PresenceEvent

	elems []*list.Element
	seqs  []uint64
}

// Empty reports whether the batch carries no events.
func (b Batch) Empty() bool { return len(b.Events) == 0 }

// Options configures a Queue.
type Options struct {
	// Window is the debounce window: a second sighting of the same
	// (subject, activity) within the window is suppressed.
	Window time.Duration

	// DeviceID is stamped on every accepted event.
	DeviceID string

	// HighWater triggers a backlog warning when the pending count exceeds
	// it. Zero disables the warning.
	HighWater int

	// Journal, when non-nil, persists accepted events until confirmed so a
	// crash does not lose marked attendance.
	Journal *Journal
}

// Queue is the in-memory attendance queue. Safe for concurrent use by the
// recognition loop (writer) and the sync orchestrator (reader/confirmer).
type Queue struct {
	mu       sync.Mutex
	pending  *list.List // of queueEntry
	lastSeen map[dedupeKey]time.Time
	seq      uint64

	window    time.Duration
	deviceID  string
	highWater int
	journal   *Journal
	log       zerolog.Logger
}

// New creates a Queue. When a journal is configured, unconfirmed events from
// a previous run are replayed back onto the queue in their original order.
func New(opts Options) (*Queue, error) {
	q := &Queue{
		pending:   list.New(),
		lastSeen:  make(map[dedupeKey]time.Time),
		window:    opts.Window,
		deviceID:  opts.DeviceID,
		highWater: opts.HighWater,
		journal:   opts.Journal,
		log:       logging.With().Str("component", "attendance_queue").Logger(),
	}

	if q.journal != nil {
		if err := q.reload(); err != nil {
			return nil, err
		}
	}

	metrics.QueueDepth.Set(float64(q.pending.Len()))
	return q, nil
}

// reload replays journaled events from a previous run. The debounce table is
// rebuilt from the replayed observation times so a restart does not re-emit
// a subject who was just marked.
func (q *Queue) reload() error {
	count := 0
	err := q.journal.Replay(func(seq uint64, ev models.PresenceEvent) error {
		q.pending.PushBack(queueEntry{event: ev, seq: seq})
		key := dedupeKey{subjectID: ev.SubjectID, activityID: ev.ActivityID}
		if ev.ObservedAt.After(q.lastSeen[key]) {
			q.lastSeen[key] = ev.ObservedAt
		}
		if seq > q.seq {
			q.seq = seq
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if count > 0 {
		q.log.Info().Int("events", count).Msg("Recovered unconfirmed events from journal")
	}
	return nil
}

// Add offers a sighting to the queue. It returns (true, nil) when the event
// was enqueued, (false, nil) when suppressed by the debounce window, and
// (false, ErrConfidenceRange) when confidence is out of range.
//
// Two sightings are distinct only when at least the full window has elapsed:
// an interval strictly less than the window is suppressed, exactly the
// window is accepted.
func (q *Queue) Add(subjectID, activityID string, confidence float64, now time.Time) (bool, error) {
	if confidence < 0 || confidence > 1 {
		return false, ErrConfidenceRange
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := dedupeKey{subjectID: subjectID, activityID: activityID}
	if last, ok := q.lastSeen[key]; ok && now.Sub(last) < q.window {
		metrics.QueueEventsDebounced.Inc()
		return false, nil
	}

	event := models.PresenceEvent{
		SubjectID:  subjectID,
		ActivityID: activityID,
		ObservedAt: now,
		Confidence: confidence,
		DeviceID:   q.deviceID,
	}

	q.seq++
	if q.journal != nil {
		if err := q.journal.Append(q.seq, event); err != nil {
			// Keep the event in memory; losing durability beats losing
			// the sighting outright.
			q.log.Error().Err(err).Msg("Journal append failed, event held in memory only")
		}
	}

	q.pending.PushBack(queueEntry{event: event, seq: q.seq})
	q.lastSeen[key] = now

	depth := q.pending.Len()
	metrics.QueueDepth.Set(float64(depth))
	metrics.QueueEventsAccepted.Inc()
	if q.highWater > 0 && depth > q.highWater {
		q.log.Warn().
			Int("depth", depth).
			Int("high_water", q.highWater).
			Msg("Attendance backlog above high-water mark")
	}
	return true, nil
}

// TakeBatch peeks up to max of the oldest pending events without removing
// them. Two consecutive calls with no intervening Confirm return identical
// content. An empty queue yields an empty batch.
func (q *Queue) TakeBatch(max int) Batch {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || q.pending.Len() == 0 {
		return Batch{}
	}

	n := q.pending.Len()
	if n > max {
		n = max
	}

	batch := Batch{
		ID:     uuid.NewString(),
		Events: make([]models.PresenceEvent, 0, n),
		elems:  make([]*list.Element, 0, n),
		seqs:   make([]uint64, 0, n),
	}
	for e := q.pending.Front(); e != nil && len(batch.Events) < n; e = e.Next() {
		entry := e.Value.(queueEntry)
		batch.Events = append(batch.Events, entry.event)
		batch.elems = append(batch.elems, e)
		batch.seqs = append(batch.seqs, entry.seq)
	}
	return batch
}

// Confirm removes a delivered batch from the queue and its journal.
// Confirming the same batch twice is a no-op: list.Remove ignores elements
// already detached from this list.
func (q *Queue) Confirm(batch Batch) {
	if batch.Empty() {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range batch.elems {
		q.pending.Remove(e)
	}
	if q.journal != nil {
		if err := q.journal.Remove(batch.seqs); err != nil {
			q.log.Error().Err(err).Str("batch_id", batch.ID).Msg("Journal cleanup failed")
		}
	}
	metrics.QueueDepth.Set(float64(q.pending.Len()))
}

// SweepDebounce drops debounce entries older than twice the window. Entries
// that old can no longer influence an Add decision, so removing them only
// bounds the table's size.
func (q *Queue) SweepDebounce(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := 2 * q.window
	removed := 0
	for key, last := range q.lastSeen {
		if now.Sub(last) > cutoff {
			delete(q.lastSeen, key)
			removed++
		}
	}
	if removed > 0 {
		metrics.QueueDebounceEntriesSwept.Add(float64(removed))
		q.log.Debug().Int("removed", removed).Msg("Swept expired debounce entries")
	}
	return removed
}

// Size returns the number of pending events.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// DebounceEntries returns the number of live debounce-table entries.
func (q *Queue) DebounceEntries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lastSeen)
}
