package provisioning

import (
	"fmt"

	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

// ThresholdsFromDefaults returns a fully populated set with fresh pointers
func ThresholdsFromDefaults(d config.ThresholdDefaults) mqtmodels.Thresholds {
	return mqtmodels.Thresholds{
		MinAmbientHumidity: intPtr(d.MinAmbientHumidity),
		MaxAmbientHumidity: intPtr(d.MaxAmbientHumidity),
		MinSoilHumidity:    intPtr(d.MinSoilHumidity),
		MaxSoilHumidity:    intPtr(d.MaxSoilHumidity),
		MinTempC:           floatPtr(d.MinTempC),
		MaxTempC:           floatPtr(d.MaxTempC),
		MinLightLux:        intPtr(d.MinLightLux),
		MaxLightLux:        intPtr(d.MaxLightLux),
	}
}

// MergeThresholds overlays the non-nil fields of update onto current
func MergeThresholds(current, update mqtmodels.Thresholds) mqtmodels.Thresholds {
	out := current
	if update.MinAmbientHumidity != nil {
		out.MinAmbientHumidity = intPtr(*update.MinAmbientHumidity)
	}
	if update.MaxAmbientHumidity != nil {
		out.MaxAmbientHumidity = intPtr(*update.MaxAmbientHumidity)
	}
	if update.MinSoilHumidity != nil {
		out.MinSoilHumidity = intPtr(*update.MinSoilHumidity)
	}
	if update.MaxSoilHumidity != nil {
		out.MaxSoilHumidity = intPtr(*update.MaxSoilHumidity)
	}
	if update.MinTempC != nil {
		out.MinTempC = floatPtr(*update.MinTempC)
	}
	if update.MaxTempC != nil {
		out.MaxTempC = floatPtr(*update.MaxTempC)
	}
	if update.MinLightLux != nil {
		out.MinLightLux = intPtr(*update.MinLightLux)
	}
	if update.MaxLightLux != nil {
		out.MaxLightLux = intPtr(*update.MaxLightLux)
	}
	return out
}

// ValidateThresholds rejects pairs where min exceeds max
func ValidateThresholds(t mqtmodels.Thresholds) error {
	if t.MinAmbientHumidity != nil && t.MaxAmbientHumidity != nil && *t.MinAmbientHumidity > *t.MaxAmbientHumidity {
		return fmt.Errorf("%w: ambient humidity min > max", ErrInvalidThresholds)
	}
	if t.MinSoilHumidity != nil && t.MaxSoilHumidity != nil && *t.MinSoilHumidity > *t.MaxSoilHumidity {
		return fmt.Errorf("%w: soil humidity min > max", ErrInvalidThresholds)
	}
	if t.MinTempC != nil && t.MaxTempC != nil && *t.MinTempC > *t.MaxTempC {
		return fmt.Errorf("%w: temperature min > max", ErrInvalidThresholds)
	}
	if t.MinLightLux != nil && t.MaxLightLux != nil && *t.MinLightLux > *t.MaxLightLux {
		return fmt.Errorf("%w: light min > max", ErrInvalidThresholds)
	}
	return nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
