package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sensorchat-backend/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.AlertDevice{},
		&model.PushSubscription{},
		&model.ReadingSnapshot{},
		&model.UsageCounter{},
		&model.Conversation{},
	))
	return NewGormStore(db)
}

func TestSaveReadings_DeduplicatesSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

	readings := []model.Reading{
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 23.4, Unit: "C", Timestamp: ts},
		{DeviceID: "esp32_wifi_001", SensorType: "ldr", Value: 450, Timestamp: ts},
	}

	_, err := s.SaveReadings(ctx, readings)
	require.NoError(t, err)

	// Re-saving the same batch must not duplicate rows.
	_, err = s.SaveReadings(ctx, readings)
	require.NoError(t, err)

	got, err := s.RecentReadings(ctx, SnapshotQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRecentReadings_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

	_, err := s.SaveReadings(ctx, []model.Reading{
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 20, Timestamp: base},
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 21, Timestamp: base.Add(time.Minute)},
		{DeviceID: "esp32_wifi_001", SensorType: "ldr", Value: 450, Timestamp: base},
		{DeviceID: "arduino_eth_001", SensorType: "t1", Value: 22, Timestamp: base},
	})
	require.NoError(t, err)

	got, err := s.RecentReadings(ctx, SnapshotQuery{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 21.0, got[0].Value, "results are newest-first")

	got, err = s.RecentReadings(ctx, SnapshotQuery{Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.RecentReadings(ctx, SnapshotQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLastSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

	_, err := s.SaveReadings(ctx, []model.Reading{
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 20, Timestamp: base},
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 21, Timestamp: base.Add(time.Hour)},
		{DeviceID: "arduino_eth_001", SensorType: "t1", Value: 22, Timestamp: base},
	})
	require.NoError(t, err)

	seen, err := s.LastSeen(ctx)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.True(t, seen["esp32_wifi_001"].Equal(base.Add(time.Hour)))
	assert.True(t, seen["arduino_eth_001"].Equal(base))
}

func TestPruneSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

	_, err := s.SaveReadings(ctx, []model.Reading{
		{DeviceID: "d", SensorType: "s", Value: 1, Timestamp: base.Add(-48 * time.Hour)},
		{DeviceID: "d", SensorType: "s", Value: 2, Timestamp: base},
	})
	require.NoError(t, err)

	pruned, err := s.PruneSnapshots(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	remaining, err := s.RecentReadings(ctx, SnapshotQuery{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestUpsertDevices_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	devices := []model.Device{{DeviceID: "esp32_wifi_001"}, {DeviceID: "arduino_eth_001"}}
	require.NoError(t, s.UpsertDevices(ctx, devices))
	require.NoError(t, s.UpsertDevices(ctx, devices))

	var count int64
	require.NoError(t, s.DB().Model(&model.AlertDevice{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestTrackUsage_Accumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.TrackUsage(ctx, "llama-3.1-8b-instant", "2025-10-20", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Requests)
	assert.Equal(t, 100, c.Tokens)

	c, err = s.TrackUsage(ctx, "llama-3.1-8b-instant", "2025-10-20", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Requests)
	assert.Equal(t, 150, c.Tokens)

	// A different day gets its own counter.
	c, err = s.TrackUsage(ctx, "llama-3.1-8b-instant", "2025-10-21", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Requests)

	counters, err := s.UsageForDay(ctx, "2025-10-20")
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 2, counters[0].Requests)
}

func TestConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := model.Conversation{Question: "q1", Answer: "a1", Model: "m"}
	require.NoError(t, s.SaveConversation(ctx, &first))
	second := model.Conversation{Question: "q2", Answer: "a2", Model: "m", Degraded: true}
	require.NoError(t, s.SaveConversation(ctx, &second))

	convs, err := s.RecentConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
}

// newMockDB builds a store over sqlmock for error-path tests.
func newMockDB(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	return NewGormStore(gormDB), mock
}

func TestRecentReadings_QueryError(t *testing.T) {
	s, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "reading_snapshots"`)).
		WillReturnError(errors.New("connection reset"))

	_, err := s.RecentReadings(context.Background(), SnapshotQuery{DeviceID: "esp32_wifi_001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query reading snapshots")
}

func TestTrackUsage_RollsBackOnError(t *testing.T) {
	s, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "usage_counters"`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.TrackUsage(context.Background(), "llama-3.1-8b-instant", "2025-10-20", 10)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
