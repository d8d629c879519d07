package model

import "time"

// Reading is a single normalized sensor sample retrieved from the gateway API.
// Readings are immutable once retrieved; they are never mutated locally.
type Reading struct {
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReadingSnapshot is a reading persisted by the background poller so recent
// data survives gateway outages.
type ReadingSnapshot struct {
	ID         int64     `gorm:"autoIncrement;primaryKey"`
	DeviceID   string    `gorm:"size:64;not null;uniqueIndex:idx_snapshot_key"`
	SensorType string    `gorm:"size:64;not null;uniqueIndex:idx_snapshot_key"`
	Value      float64   `gorm:"not null"`
	Unit       string    `gorm:"size:16"`
	Timestamp  time.Time `gorm:"not null;index;uniqueIndex:idx_snapshot_key"`
	CreatedAt  time.Time `gorm:"not null"`
}

// Reading converts a persisted snapshot back into the wire-level form.
func (s ReadingSnapshot) Reading() Reading {
	return Reading{
		DeviceID:   s.DeviceID,
		SensorType: s.SensorType,
		Value:      s.Value,
		Unit:       s.Unit,
		Timestamp:  s.Timestamp,
	}
}
