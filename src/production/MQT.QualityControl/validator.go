// Package qualitycontrol rejects physically impossible or discontinuous readings
// before they reach the advisor.
package qualitycontrol

import (
	"context"
	"errors"
	"math"
	"time"

	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
)

// Physical limits every sensor must respect
const (
	MinHumidity = 0
	MaxHumidity = 100
	MinTempC    = -20.0
	MaxTempC    = 60.0
	MinLightLux = 0
)

// Rate-of-change rule on soil humidity
const (
	MaxSoilHumidityDelta = 15
	RateWindow           = 10 * time.Minute
)

type Validator struct {
	readings interfaces.ReadingRepository
	logger   *logger.Logger
}

func NewValidator(readings interfaces.ReadingRepository, log *logger.Logger) *Validator {
	return &Validator{readings: readings, logger: log.WithComponent("qc")}
}

// Check decodes payload and returns the reading stamped with its QC status.
// It never returns nil.
func (v *Validator) Check(ctx context.Context, payload []byte, device *mqtmodels.PlantDevice, receivedAt time.Time) *mqtmodels.Reading {
	reading, err := DecodeReading(payload, receivedAt)
	if err != nil {
		v.logger.Logger.Error().Err(err).Str("plant_id", device.PlantID).Msg("QC: payload could not be decoded")
		return &mqtmodels.Reading{
			PlantID:    device.PlantID,
			OwnerID:    device.OwnerID,
			Timestamp:  receivedAt,
			ReceivedAt: receivedAt,
			QcStatus:   mqtmodels.QcError,
		}
	}
	reading.PlantID = device.PlantID
	reading.OwnerID = device.OwnerID

	if !WithinPhysicalLimits(reading) {
		reading.QcStatus = mqtmodels.QcOutOfRange
		v.logger.Logger.Warn().
			Str("plant_id", device.PlantID).
			Interface("temp_c", reading.TempC).
			Interface("ambient_humidity", reading.AmbientHumidity).
			Interface("soil_humidity", reading.SoilHumidity).
			Interface("light_lux", reading.LightLux).
			Msg("QC: reading outside physical limits")
		return reading
	}

	previous, err := v.readings.LatestValid(ctx, device.PlantID)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		previous = nil
	case err != nil:
		v.logger.Logger.Error().Err(err).Str("plant_id", device.PlantID).Msg("QC: previous reading lookup failed")
		reading.QcStatus = mqtmodels.QcError
		return reading
	}

	if !WithinRate(reading, previous) {
		reading.QcStatus = mqtmodels.QcRateError
		v.logger.Logger.Warn().
			Str("plant_id", device.PlantID).
			Int("soil_humidity", *reading.SoilHumidity).
			Int("previous_soil_humidity", *previous.SoilHumidity).
			Msg("QC: soil humidity jumped too fast")
		return reading
	}

	reading.QcStatus = mqtmodels.QcValid
	return reading
}

// WithinPhysicalLimits requires every metric to be present and plausible
func WithinPhysicalLimits(r *mqtmodels.Reading) bool {
	if r.AmbientHumidity == nil || *r.AmbientHumidity < MinHumidity || *r.AmbientHumidity > MaxHumidity {
		return false
	}
	if r.SoilHumidity == nil || *r.SoilHumidity < MinHumidity || *r.SoilHumidity > MaxHumidity {
		return false
	}
	if r.TempC == nil || *r.TempC < MinTempC || *r.TempC > MaxTempC {
		return false
	}
	if r.LightLux == nil || *r.LightLux < MinLightLux {
		return false
	}
	return true
}

// WithinRate compares soil humidity against the last valid reading. A missing
// or stale reference always passes. Staleness uses the exact gap, so 10m30s
// is already past RateWindow.
func WithinRate(current, previous *mqtmodels.Reading) bool {
	if previous == nil || previous.SoilHumidity == nil || current.SoilHumidity == nil {
		return true
	}
	if current.Timestamp.Sub(previous.Timestamp) > RateWindow {
		return true
	}
	delta := math.Abs(float64(*current.SoilHumidity - *previous.SoilHumidity))
	return delta <= MaxSoilHumidityDelta
}
