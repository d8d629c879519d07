// Package report builds the per-device statistical summaries behind the
// dashboard's report tab.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sensorchat-backend/internal/model"
)

// SensorStats aggregates one device/sensor series.
type SensorStats struct {
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Unit       string    `json:"unit,omitempty"`
	Count      int       `json:"count"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Mean       float64   `json:"mean"`
	Latest     float64   `json:"latest"`
	LatestAt   time.Time `json:"latest_at"`
}

// Summary is the full report over one batch of readings.
type Summary struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Readings    int           `json:"readings"`
	Devices     int           `json:"devices"`
	Sensors     []SensorStats `json:"sensors"`
}

// Build aggregates readings into a summary. Output order is deterministic:
// by device ID, then sensor type.
func Build(readings []model.Reading) Summary {
	type key struct{ device, sensor string }
	groups := make(map[key][]model.Reading)
	devices := make(map[string]struct{})

	for _, r := range readings {
		groups[key{r.DeviceID, r.SensorType}] = append(groups[key{r.DeviceID, r.SensorType}], r)
		devices[r.DeviceID] = struct{}{}
	}

	stats := make([]SensorStats, 0, len(groups))
	for k, rows := range groups {
		s := SensorStats{
			DeviceID:   k.device,
			SensorType: k.sensor,
			Count:      len(rows),
			Min:        rows[0].Value,
			Max:        rows[0].Value,
		}
		var sum float64
		for _, r := range rows {
			sum += r.Value
			if r.Value < s.Min {
				s.Min = r.Value
			}
			if r.Value > s.Max {
				s.Max = r.Value
			}
			if r.Timestamp.After(s.LatestAt) {
				s.LatestAt = r.Timestamp
				s.Latest = r.Value
				s.Unit = r.Unit
			}
		}
		s.Mean = sum / float64(len(rows))
		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].DeviceID != stats[j].DeviceID {
			return stats[i].DeviceID < stats[j].DeviceID
		}
		return stats[i].SensorType < stats[j].SensorType
	})

	return Summary{
		GeneratedAt: time.Now().UTC(),
		Readings:    len(readings),
		Devices:     len(devices),
		Sensors:     stats,
	}
}

// Markdown renders the summary for the dashboard's report view.
func (s Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sensor Report\n\nGenerated %s, %d readings across %d device(s)\n\n",
		s.GeneratedAt.Format(time.RFC3339), s.Readings, s.Devices)

	if len(s.Sensors) == 0 {
		b.WriteString("No data available for the requested window.\n")
		return b.String()
	}

	b.WriteString("| Device | Sensor | Count | Min | Max | Mean | Latest |\n")
	b.WriteString("|--------|--------|-------|-----|-----|------|--------|\n")
	for _, st := range s.Sensors {
		fmt.Fprintf(&b, "| %s | %s | %d | %.2f | %.2f | %.2f | %.2f%s |\n",
			st.DeviceID, st.SensorType, st.Count, st.Min, st.Max, st.Mean,
			st.Latest, unitSuffix(st.Unit))
	}
	return b.String()
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
