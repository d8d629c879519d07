package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/model"
)

func testEvaluator() *Evaluator {
	return NewEvaluator(&config.AlertsConfig{
		Thresholds: []config.ThresholdRule{
			{SensorType: "ntc_entrada", High: 40, Low: 0},
		},
		StaleAfter: 15 * time.Minute,
	})
}

func TestEvaluate_ThresholdHigh(t *testing.T) {
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 45.2, Timestamp: now},
	}

	events := testEvaluator().Evaluate(readings, nil, now)
	require.Len(t, events, 1)
	assert.Equal(t, "threshold_high", events[0].Rule)
	assert.Equal(t, "esp32_wifi_001", events[0].DeviceID)
	assert.Equal(t, 45.2, events[0].Value)
	assert.Contains(t, events[0].Message, "above")
}

func TestEvaluate_ThresholdLow(t *testing.T) {
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: -3, Timestamp: now},
	}

	events := testEvaluator().Evaluate(readings, nil, now)
	require.Len(t, events, 1)
	assert.Equal(t, "threshold_low", events[0].Rule)
}

func TestEvaluate_OnlyNewestReadingJudged(t *testing.T) {
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		// Older out-of-band value already superseded by a normal one.
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 50, Timestamp: now.Add(-time.Hour)},
		{DeviceID: "esp32_wifi_001", SensorType: "ntc_entrada", Value: 25, Timestamp: now},
	}

	events := testEvaluator().Evaluate(readings, nil, now)
	assert.Empty(t, events)
}

func TestEvaluate_UnconfiguredSensorIgnored(t *testing.T) {
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		{DeviceID: "esp32_wifi_001", SensorType: "ldr", Value: 99999, Timestamp: now},
	}

	events := testEvaluator().Evaluate(readings, nil, now)
	assert.Empty(t, events)
}

func TestEvaluate_StaleDevice(t *testing.T) {
	now := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	lastSeen := map[string]time.Time{
		"arduino_eth_001": now.Add(-time.Hour),
		"esp32_wifi_001":  now.Add(-time.Minute),
	}

	events := testEvaluator().Evaluate(nil, lastSeen, now)
	require.Len(t, events, 1)
	assert.Equal(t, "device_stale", events[0].Rule)
	assert.Equal(t, "arduino_eth_001", events[0].DeviceID)
}
