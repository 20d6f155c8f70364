// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/kbhujbal/facetrack/internal/models"
)

// Device is one registered edge device.
type Device struct {
	DeviceUUID    string     `json:"device_uuid"`
	Name          string     `json:"name"`
	RoomID        string     `json:"room_id,omitempty"`
	Status        string     `json:"status"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// UpsertHeartbeat records a device heartbeat. Unknown devices are
// auto-registered on first contact; classrooms get devices installed before
// anyone fills in an inventory table.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb models.HeartbeatRequest) error {
	health, err := json.Marshal(hb.Metrics)
	if err != nil {
		return fmt.Errorf("marshal health metrics: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE edge_devices
		SET last_heartbeat = ?, health = ?, status = 'active',
		    name = COALESCE(NULLIF(?, ''), name)
		WHERE device_uuid = ?`,
		encodeTime(hb.Timestamp), string(health), hb.DeviceName, hb.DeviceID)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edge_devices (device_uuid, name, status, last_heartbeat, health)
		VALUES (?, ?, 'active', ?, ?)`,
		hb.DeviceID, hb.DeviceName, encodeTime(hb.Timestamp), string(health))
	if err != nil {
		return fmt.Errorf("auto-register device: %w", err)
	}
	return nil
}

// GetDevice returns a registered device, or nil when unknown.
func (s *Store) GetDevice(ctx context.Context, deviceUUID string) (*Device, error) {
	var d Device
	var name, roomID, lastHeartbeat sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT device_uuid, name, room_id, status, last_heartbeat
		FROM edge_devices WHERE device_uuid = ?`, deviceUUID,
	).Scan(&d.DeviceUUID, &name, &roomID, &d.Status, &lastHeartbeat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	d.Name = name.String
	d.RoomID = roomID.String
	if lastHeartbeat.Valid {
		t, err := decodeTime(lastHeartbeat.String)
		if err != nil {
			return nil, fmt.Errorf("decode last_heartbeat: %w", err)
		}
		d.LastHeartbeat = &t
	}
	return &d, nil
}
