package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sensorchat-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	SaveReadings(ctx context.Context, readings []model.Reading) (int, error)
	RecentReadings(ctx context.Context, q SnapshotQuery) ([]model.Reading, error)
	LastSeen(ctx context.Context) (map[string]time.Time, error)
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)

	UpsertDevices(ctx context.Context, devices []model.Device) error

	TrackUsage(ctx context.Context, llmModel, day string, tokens int) (model.UsageCounter, error)
	UsageForDay(ctx context.Context, day string) ([]model.UsageCounter, error)

	SaveConversation(ctx context.Context, conv *model.Conversation) error
	RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error)

	DB() *gorm.DB
}

// SnapshotQuery selects persisted reading snapshots.
type SnapshotQuery struct {
	DeviceID   string
	SensorType string
	Since      time.Time
	Limit      int
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// SaveReadings persists readings as snapshots, skipping duplicates of the
// (device, sensor, timestamp) key. Returns the number of rows offered.
func (s *gormStore) SaveReadings(ctx context.Context, readings []model.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	snapshots := make([]model.ReadingSnapshot, 0, len(readings))
	for _, r := range readings {
		snapshots = append(snapshots, model.ReadingSnapshot{
			DeviceID:   r.DeviceID,
			SensorType: r.SensorType,
			Value:      r.Value,
			Unit:       r.Unit,
			Timestamp:  r.Timestamp,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "sensor_type"}, {Name: "timestamp"}},
		DoNothing: true,
	}).Create(&snapshots).Error
	if err != nil {
		return 0, fmt.Errorf("failed to save reading snapshots: %w", err)
	}
	return len(snapshots), nil
}

// RecentReadings returns persisted snapshots newest-first.
func (s *gormStore) RecentReadings(ctx context.Context, q SnapshotQuery) ([]model.Reading, error) {
	tx := s.db.WithContext(ctx).Model(&model.ReadingSnapshot{}).Order("timestamp DESC")
	if q.DeviceID != "" {
		tx = tx.Where("device_id = ?", q.DeviceID)
	}
	if q.SensorType != "" {
		tx = tx.Where("sensor_type = ?", q.SensorType)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Since)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var snapshots []model.ReadingSnapshot
	if err := tx.Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to query reading snapshots: %w", err)
	}

	readings := make([]model.Reading, len(snapshots))
	for i, snap := range snapshots {
		readings[i] = snap.Reading()
	}
	return readings, nil
}

// LastSeen returns the newest snapshot timestamp per device.
func (s *gormStore) LastSeen(ctx context.Context) (map[string]time.Time, error) {
	type row struct {
		DeviceID string
		Latest   time.Time
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.ReadingSnapshot{}).
		Select("device_id as device_id, MAX(timestamp) as latest").
		Group("device_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate last-seen times: %w", err)
	}

	seen := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		seen[r.DeviceID] = r.Latest
	}
	return seen, nil
}

// PruneSnapshots deletes snapshots older than the cutoff.
func (s *gormStore) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&model.ReadingSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertDevices ensures an alert_devices row exists for every listed device.
func (s *gormStore) UpsertDevices(ctx context.Context, devices []model.Device) error {
	if len(devices) == 0 {
		return nil
	}
	rows := make([]model.AlertDevice, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, model.AlertDevice{DeviceID: d.DeviceID})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert alert devices: %w", err)
	}
	return nil
}

// TrackUsage increments the day's counters for a model and returns the
// updated row. The increment runs in a transaction so concurrent chat
// requests don't lose counts.
func (s *gormStore) TrackUsage(ctx context.Context, llmModel, day string, tokens int) (model.UsageCounter, error) {
	var counter model.UsageCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter = model.UsageCounter{Model: llmModel, Day: day}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model"}, {Name: "day"}},
			DoNothing: true,
		}).Create(&counter).Error; err != nil {
			return err
		}

		res := tx.Model(&model.UsageCounter{}).
			Where("model = ? AND day = ?", llmModel, day).
			Updates(map[string]any{
				"requests": gorm.Expr("requests + ?", 1),
				"tokens":   gorm.Expr("tokens + ?", tokens),
			})
		if res.Error != nil {
			return res.Error
		}

		return tx.Where("model = ? AND day = ?", llmModel, day).First(&counter).Error
	})
	if err != nil {
		return model.UsageCounter{}, fmt.Errorf("failed to track usage for %s: %w", llmModel, err)
	}
	return counter, nil
}

// UsageForDay returns all counters recorded for a day.
func (s *gormStore) UsageForDay(ctx context.Context, day string) ([]model.UsageCounter, error) {
	var counters []model.UsageCounter
	if err := s.db.WithContext(ctx).Where("day = ?", day).Find(&counters).Error; err != nil {
		return nil, fmt.Errorf("failed to query usage counters: %w", err)
	}
	return counters, nil
}

// SaveConversation appends one chat exchange to the history.
func (s *gormStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// RecentConversations returns chat history newest-first.
func (s *gormStore) RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	var convs []model.Conversation
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return convs, nil
}
