// Package alert evaluates sensor readings against configured rules and
// pushes web notifications to subscribers.
package alert

import (
	"fmt"
	"time"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/model"
)

// Event is one fired alert, ready for notification dispatch.
type Event struct {
	DeviceID   string  `json:"device_id"`
	SensorType string  `json:"sensor_type,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Rule       string  `json:"rule"`
	Message    string  `json:"message"`
}

// Evaluator applies threshold and staleness rules.
type Evaluator struct {
	thresholds map[string]config.ThresholdRule
	staleAfter time.Duration
}

// NewEvaluator builds an evaluator from the alert configuration.
func NewEvaluator(cfg *config.AlertsConfig) *Evaluator {
	thresholds := make(map[string]config.ThresholdRule, len(cfg.Thresholds))
	for _, t := range cfg.Thresholds {
		thresholds[t.SensorType] = t
	}
	return &Evaluator{thresholds: thresholds, staleAfter: cfg.StaleAfter}
}

// Evaluate fires threshold events for out-of-band values and staleness
// events for devices silent longer than the configured window. Only the
// newest reading per device/sensor is judged, so one poll cycle produces at
// most one threshold event per series.
func (e *Evaluator) Evaluate(readings []model.Reading, lastSeen map[string]time.Time, now time.Time) []Event {
	type key struct{ device, sensor string }
	latest := make(map[key]model.Reading)
	for _, r := range readings {
		k := key{r.DeviceID, r.SensorType}
		if cur, ok := latest[k]; !ok || r.Timestamp.After(cur.Timestamp) {
			latest[k] = r
		}
	}

	var events []Event
	for k, r := range latest {
		rule, ok := e.thresholds[k.sensor]
		if !ok {
			continue
		}
		switch {
		case r.Value > rule.High:
			events = append(events, Event{
				DeviceID:   k.device,
				SensorType: k.sensor,
				Value:      r.Value,
				Rule:       "threshold_high",
				Message: fmt.Sprintf("%s on %s is %.2f, above the %.2f limit",
					k.sensor, k.device, r.Value, rule.High),
			})
		case r.Value < rule.Low:
			events = append(events, Event{
				DeviceID:   k.device,
				SensorType: k.sensor,
				Value:      r.Value,
				Rule:       "threshold_low",
				Message: fmt.Sprintf("%s on %s is %.2f, below the %.2f limit",
					k.sensor, k.device, r.Value, rule.Low),
			})
		}
	}

	for device, seen := range lastSeen {
		if now.Sub(seen) > e.staleAfter {
			events = append(events, Event{
				DeviceID: device,
				Rule:     "device_stale",
				Message: fmt.Sprintf("%s has sent no data since %s",
					device, seen.Format(time.RFC3339)),
			})
		}
	}

	return events
}
