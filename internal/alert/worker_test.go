package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sensorchat-backend/internal/model"
)

// fakeSender captures sent notifications instead of hitting a push service.
type fakeSender struct {
	mu       sync.Mutex
	payloads []string
	targets  []string
	status   int
}

func (f *fakeSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, string(payload))
	f.targets = append(f.targets, sub.Endpoint)
	status := f.status
	if status == 0 {
		status = http.StatusCreated
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newAlertTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.AlertDevice{}, &model.PushSubscription{}))
	return db
}

func subscribe(t *testing.T, db *gorm.DB, endpoint, deviceID string) {
	t.Helper()
	device := model.AlertDevice{DeviceID: deviceID}
	require.NoError(t, db.FirstOrCreate(&device, model.AlertDevice{DeviceID: deviceID}).Error)

	sub := model.PushSubscription{Endpoint: endpoint, P256DH: "p", Auth: "a"}
	require.NoError(t, db.Create(&sub).Error)
	require.NoError(t, db.Model(&sub).Association("Devices").Append(&device))
}

func TestNotifySubscribers(t *testing.T) {
	db := newAlertTestDB(t)
	subscribe(t, db, "https://push.example/one", "esp32_wifi_001")
	subscribe(t, db, "https://push.example/two", "arduino_eth_001")

	sender := &fakeSender{}
	pool := NewWorkerPool(1, db, &webpush.Options{})
	pool.sender = sender

	event := Event{
		DeviceID:   "esp32_wifi_001",
		SensorType: "ntc_entrada",
		Value:      45.2,
		Rule:       "threshold_high",
		Message:    "ntc_entrada on esp32_wifi_001 is 45.20, above the 40.00 limit",
	}
	pool.notifySubscribers(context.Background(), event)

	require.Len(t, sender.payloads, 1, "only the subscriber of the alerting device is notified")
	assert.Equal(t, "https://push.example/one", sender.targets[0])

	var sent Event
	require.NoError(t, json.Unmarshal([]byte(sender.payloads[0]), &sent))
	assert.Equal(t, "threshold_high", sent.Rule)
	assert.Equal(t, 45.2, sent.Value)
}

func TestNotifySubscribers_DeadSubscriptionRemoved(t *testing.T) {
	db := newAlertTestDB(t)
	subscribe(t, db, "https://push.example/dead", "esp32_wifi_001")

	sender := &fakeSender{status: http.StatusGone}
	pool := NewWorkerPool(1, db, &webpush.Options{})
	pool.sender = sender

	pool.notifySubscribers(context.Background(), Event{DeviceID: "esp32_wifi_001", Rule: "device_stale"})

	var count int64
	require.NoError(t, db.Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Zero(t, count, "a Gone response must drop the subscription")
}

func TestWorkerPool_DispatchDelivers(t *testing.T) {
	db := newAlertTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(1, db, &webpush.Options{})
	pool.sender = &fakeSender{}
	pool.Start(ctx)

	// No subscriber exists; the job must still be drained without panic.
	pool.Dispatch(Event{DeviceID: "esp32_wifi_001", Rule: "device_stale"})
	pool.Dispatch(Event{DeviceID: "esp32_wifi_001", Rule: "device_stale"})
}
