package qualitycontrol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

// telemetryPayload accepts both the camelCase field names and the snake_case
// names older firmware publishes. Numbers are read as floats and truncated
// for the integer metrics.
type telemetryPayload struct {
	Timestamp json.RawMessage `json:"timestamp"`

	TempC           *float64 `json:"tempC"`
	AmbientHumidity *float64 `json:"ambientHumidity"`
	SoilHumidity    *float64 `json:"soilHumidity"`
	LightLux        *float64 `json:"lightLux"`

	LegacyTempC    *float64 `json:"temp_c"`
	LegacyHumidity *float64 `json:"humidity_p"`
	LegacySoil     *float64 `json:"soil_humidity"`
	LegacyLight    *float64 `json:"light_lux"`
}

// DecodeReading parses a telemetry payload into an unchecked reading
func DecodeReading(raw []byte, receivedAt time.Time) (*mqtmodels.Reading, error) {
	var p telemetryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}

	ts, err := parseTimestamp(p.Timestamp, receivedAt)
	if err != nil {
		return nil, err
	}

	return &mqtmodels.Reading{
		Timestamp:       ts,
		TempC:           firstFloat(p.TempC, p.LegacyTempC),
		AmbientHumidity: truncInt(firstFloat(p.AmbientHumidity, p.LegacyHumidity)),
		SoilHumidity:    truncInt(firstFloat(p.SoilHumidity, p.LegacySoil)),
		LightLux:        truncInt(firstFloat(p.LightLux, p.LegacyLight)),
		ReceivedAt:      receivedAt,
	}, nil
}

// parseTimestamp accepts an RFC3339 string or epoch seconds/milliseconds.
// A missing or null timestamp falls back to the receive time.
func parseTimestamp(raw json.RawMessage, fallback time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		return ts.UTC(), nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
	}
	// anything past 1e12 cannot be seconds (year 33658)
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func truncInt(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(math.Trunc(*v))
	return &n
}
