package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sensorchat-backend/internal/model"
)

// maxPromptReadings caps how much raw data goes into a prompt so a large
// query window doesn't blow past the model's context or the token budget.
const maxPromptReadings = 60

// BuildPrompt embeds a compact data summary and the user's question.
func BuildPrompt(question string, readings []model.Reading) string {
	var b strings.Builder
	b.WriteString("Sensor data retrieved for this question:\n\n")
	b.WriteString(FormatReadings(readings))
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer in the language of the question.")
	return b.String()
}

// FormatReadings renders readings grouped by device then sensor type,
// newest first within each group.
func FormatReadings(readings []model.Reading) string {
	if len(readings) == 0 {
		return "(no sensor data available for this query)\n"
	}

	if len(readings) > maxPromptReadings {
		readings = readings[:maxPromptReadings]
	}

	byDevice := make(map[string][]model.Reading)
	for _, r := range readings {
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}

	devices := make([]string, 0, len(byDevice))
	for d := range byDevice {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	var b strings.Builder
	for _, device := range devices {
		fmt.Fprintf(&b, "Device %s:\n", device)
		rows := byDevice[device]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Timestamp.After(rows[j].Timestamp)
		})
		for _, r := range rows {
			fmt.Fprintf(&b, "  - %s = %.2f%s at %s\n",
				r.SensorType, r.Value, unitSuffix(r.Unit), r.Timestamp.Format(time.RFC3339))
		}
	}
	return b.String()
}

// FallbackAnswer is the degraded templated answer used when the LLM is
// unavailable: latest value per device/sensor, no interpretation.
func FallbackAnswer(question string, readings []model.Reading) string {
	if len(readings) == 0 {
		return "The language model is currently unavailable and no sensor data " +
			"was retrieved for this question. Please try again later."
	}

	type key struct{ device, sensor string }
	latest := make(map[key]model.Reading)
	for _, r := range readings {
		k := key{r.DeviceID, r.SensorType}
		if cur, ok := latest[k]; !ok || r.Timestamp.After(cur.Timestamp) {
			latest[k] = r
		}
	}

	keys := make([]key, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].device != keys[j].device {
			return keys[i].device < keys[j].device
		}
		return keys[i].sensor < keys[j].sensor
	})

	var b strings.Builder
	b.WriteString("The language model is currently unavailable. Latest readings:\n")
	for _, k := range keys {
		r := latest[k]
		fmt.Fprintf(&b, "- %s / %s: %.2f%s (%s)\n",
			k.device, k.sensor, r.Value, unitSuffix(r.Unit), r.Timestamp.Format(time.RFC3339))
	}
	return b.String()
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
