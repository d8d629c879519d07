package model

import "time"

// Device describes a physical device known to the gateway API.
type Device struct {
	DeviceID string     `json:"device_id"`
	Status   string     `json:"status,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// FallbackDevices is the hardcoded device list used only when the remote
// device listing fails entirely. It mirrors the two boards physically wired
// to the gateway and must never be treated as confirmed-live data.
func FallbackDevices() []Device {
	return []Device{
		{DeviceID: "esp32_wifi_001", Status: "unknown"},
		{DeviceID: "arduino_eth_001", Status: "unknown"},
	}
}
