// Package normalize absorbs the gateway API's historically-observed response
// shapes into one canonical record sequence. The upstream evolved without a
// versioned contract: the same logical query has been seen answering with a
// bare JSON array, a {"data": [...]} envelope, and entity-keyed wrappers
// ({"devices": [...]}, {"sensors": [...]}, {"records": [...]}).
package normalize

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"sensorchat-backend/internal/model"
)

// wrapper keys tried in priority order after the generic "data" envelope.
var entityKeys = []string{"devices", "sensors", "records"}

// extractArray pulls the record array out of whatever envelope the gateway
// used. A body with no recognizable array is treated as "server returned
// nothing usable", not as an error: the HTTP call itself succeeded.
func extractArray(raw []byte) []json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		log.Printf("normalize: unparseable response body (%d bytes), treating as empty", len(raw))
		return nil
	}

	if data, ok := obj["data"]; ok {
		if err := json.Unmarshal(data, &arr); err == nil {
			return arr
		}
	}
	for _, key := range entityKeys {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &arr); err == nil {
				return arr
			}
		}
	}

	log.Printf("normalize: no usable array in response object, treating as empty")
	return nil
}

// rawReading mirrors one wire-level sensor record before validation. Value is
// kept raw because the gateway has emitted both JSON numbers and numeric
// strings for the same field.
type rawReading struct {
	DeviceID   string          `json:"device_id"`
	SensorType string          `json:"sensor_type"`
	Value      json.RawMessage `json:"value"`
	Unit       string          `json:"unit"`
	Timestamp  string          `json:"timestamp"`
}

// Readings normalizes a 2xx response body into validated sensor readings.
// Records missing device_id, sensor_type, or a numeric value are discarded
// individually; one malformed sample must never poison the whole batch. The
// second return value counts the discarded records so callers can surface a
// partial-data notice.
func Readings(raw []byte) ([]model.Reading, int) {
	arr := extractArray(raw)
	readings := make([]model.Reading, 0, len(arr))
	dropped := 0

	for _, item := range arr {
		var r rawReading
		if err := json.Unmarshal(item, &r); err != nil {
			dropped++
			continue
		}
		value, ok := parseValue(r.Value)
		if !ok || r.DeviceID == "" || r.SensorType == "" {
			dropped++
			continue
		}
		readings = append(readings, model.Reading{
			DeviceID:   r.DeviceID,
			SensorType: r.SensorType,
			Value:      value,
			Unit:       r.Unit,
			Timestamp:  parseTimestamp(r.Timestamp),
		})
	}

	if dropped > 0 {
		log.Printf("normalize: dropped %d malformed reading(s), kept %d", dropped, len(readings))
	}
	return readings, dropped
}

// Devices normalizes a 2xx response body into device descriptors. Only
// device_id is required; status and last_seen are best-effort.
func Devices(raw []byte) []model.Device {
	arr := extractArray(raw)
	devices := make([]model.Device, 0, len(arr))

	for _, item := range arr {
		var d struct {
			DeviceID string `json:"device_id"`
			Status   string `json:"status"`
			LastSeen string `json:"last_seen"`
		}
		if err := json.Unmarshal(item, &d); err != nil || d.DeviceID == "" {
			continue
		}
		dev := model.Device{DeviceID: d.DeviceID, Status: d.Status}
		if ts := parseTimestamp(d.LastSeen); !ts.IsZero() {
			t := ts
			dev.LastSeen = &t
		}
		devices = append(devices, dev)
	}
	return devices
}

// Device normalizes a single-device response body. The gateway has answered
// with a bare object, a {"data": {...}} envelope, and a one-element array.
// The second return value is false when no usable device was found.
func Device(raw []byte) (model.Device, bool) {
	if devices := Devices(raw); len(devices) > 0 {
		return devices[0], true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.Device{}, false
	}
	if data, ok := obj["data"]; ok {
		if d, ok := decodeDevice(data); ok {
			return d, true
		}
	}
	return decodeDevice(raw)
}

func decodeDevice(raw []byte) (model.Device, bool) {
	var d struct {
		DeviceID string `json:"device_id"`
		Status   string `json:"status"`
		LastSeen string `json:"last_seen"`
	}
	if err := json.Unmarshal(raw, &d); err != nil || d.DeviceID == "" {
		return model.Device{}, false
	}
	dev := model.Device{DeviceID: d.DeviceID, Status: d.Status}
	if ts := parseTimestamp(d.LastSeen); !ts.IsZero() {
		t := ts
		dev.LastSeen = &t
	}
	return dev, true
}

// parseValue accepts a JSON number or a numeric string ("23.4" -> 23.4).
func parseValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// timestampLayouts covers the formats the gateway has emitted so far.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
