// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package schedule

import (
	"testing"
	"time"

	"github.com/kbhujbal/facetrack/internal/models"
)

const testInterval = 10 * time.Minute

func snapshot(activityID string, roster ...models.RosterEntry) *models.ScheduleSnapshot {
	return &models.ScheduleSnapshot{
		ActivityID:   activityID,
		ActivityCode: "CS101",
		ActivityName: "Intro to Computing",
		RoomID:       "room-7",
		WindowStart:  "09:00",
		WindowEnd:    "10:00",
		Roster:       roster,
	}
}

func TestShouldRefreshWhenEmpty(t *testing.T) {
	c := NewCache(testInterval)
	if !c.ShouldRefresh(time.Now()) {
		t.Error("empty cache must always want a refresh")
	}
	if c.State(time.Now()) != StateEmpty {
		t.Errorf("State() = %v, want empty", c.State(time.Now()))
	}
}

func TestShouldRefreshAfterTTL(t *testing.T) {
	c := NewCache(testInterval)
	now := time.Now()
	c.MarkRefreshed(now)

	if c.ShouldRefresh(now.Add(testInterval - time.Second)) {
		t.Error("cache within TTL should not want a refresh")
	}
	if !c.ShouldRefresh(now.Add(testInterval)) {
		t.Error("cache at TTL boundary should want a refresh")
	}
	if got := c.State(now.Add(time.Second)); got != StateFresh {
		t.Errorf("State() = %v, want fresh", got)
	}
	if got := c.State(now.Add(testInterval + time.Second)); got != StateStale {
		t.Errorf("State() = %v, want stale", got)
	}
}

func TestMarkRefreshedWithoutChangeResetsTTL(t *testing.T) {
	c := NewCache(testInterval)
	now := time.Now()

	c.Apply(snapshot("act-1"))
	c.MarkRefreshed(now)

	// Second refresh returns identical content; TTL still advances.
	later := now.Add(testInterval)
	if changed := c.Apply(snapshot("act-1")); changed {
		t.Error("identical snapshot should not report a change")
	}
	c.MarkRefreshed(later)

	if c.ShouldRefresh(later.Add(time.Minute)) {
		t.Error("TTL should have been reset by the unchanged refresh")
	}
}

func TestApplyDetectsMaterialChange(t *testing.T) {
	c := NewCache(testInterval)

	if !c.Apply(snapshot("act-1")) {
		t.Error("first snapshot should be a change")
	}
	if c.Apply(snapshot("act-1")) {
		t.Error("identical snapshot should not be a change")
	}
	if !c.Apply(snapshot("act-2")) {
		t.Error("different activity should be a change")
	}
}

func TestApplyRosterChanges(t *testing.T) {
	c := NewCache(testInterval)
	alice := models.RosterEntry{SubjectID: "s-1", DisplayName: "Alice", BiometricTemplate: []byte{1, 2}}
	bob := models.RosterEntry{SubjectID: "s-2", DisplayName: "Bob"}

	c.Apply(snapshot("act-1", alice, bob))

	if c.Apply(snapshot("act-1", alice, bob)) {
		t.Error("same roster should not be a change")
	}
	if !c.Apply(snapshot("act-1", alice)) {
		t.Error("dropped roster entry should be a change")
	}

	// Template bytes participate in comparison.
	aliceNewTemplate := alice
	aliceNewTemplate.BiometricTemplate = []byte{9, 9}
	if !c.Apply(snapshot("act-1", aliceNewTemplate)) {
		t.Error("re-enrolled biometric template should be a change")
	}
}

func TestApplyNilMeansNoActivity(t *testing.T) {
	c := NewCache(testInterval)

	if c.Apply(nil) {
		t.Error("nil onto empty cache is not a change")
	}
	if c.Active() {
		t.Error("cache should be inactive")
	}

	c.Apply(snapshot("act-1"))
	if !c.Active() {
		t.Fatal("cache should be active after snapshot")
	}

	if !c.Apply(nil) {
		t.Error("activity ending should be a change")
	}
	if c.Active() || c.Current() != nil {
		t.Error("cache should be inactive after activity ends")
	}
}
