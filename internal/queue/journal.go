// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package queue

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/kbhujbal/facetrack/internal/models"
)

// eventKeyPrefix namespaces journal entries inside the BadgerDB keyspace.
const eventKeyPrefix = "event:"

// Journal persists accepted presence events in BadgerDB until their batch
// is confirmed. Keys embed a big-endian sequence number so iteration yields
// events in acceptance order.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens (or creates) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// NewJournal wraps an already-open BadgerDB handle. Used by tests that share
// an in-memory instance.
func NewJournal(db *badger.DB) *Journal {
	return &Journal{db: db}
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventKeyPrefix)+8)
	copy(key, eventKeyPrefix)
	binary.BigEndian.PutUint64(key[len(eventKeyPrefix):], seq)
	return key
}

// Append durably records one accepted event under its sequence number.
func (j *Journal) Append(seq uint64, ev models.PresenceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(seq), data)
	})
}

// Remove deletes the journal entries for a confirmed batch.
func (j *Journal) Remove(seqs []uint64) error {
	return j.db.Update(func(txn *badger.Txn) error {
		for _, seq := range seqs {
			if err := txn.Delete(eventKey(seq)); err != nil {
				return fmt.Errorf("delete seq %d: %w", seq, err)
			}
		}
		return nil
	})
}

// Replay iterates all unconfirmed events in sequence order.
func (j *Journal) Replay(fn func(seq uint64, ev models.PresenceEvent) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			seq := binary.BigEndian.Uint64(item.Key()[len(eventKeyPrefix):])

			var ev models.PresenceEvent
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				return fmt.Errorf("decode seq %d: %w", seq, err)
			}
			if err := fn(seq, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
