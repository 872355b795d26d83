// Package advisor grades validated readings against the device thresholds
// and notifies the owner when something needs attention.
package advisor

import (
	"context"

	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

// Notifier delivers a notification to every live session of a user
type Notifier interface {
	SendToUser(ctx context.Context, userID string, msg mqtmodels.NotificationMessage) error
}

type Evaluator struct {
	rules    []Rule
	notifier Notifier
	logger   *logger.Logger
}

func NewEvaluator(notifier Notifier, log *logger.Logger) *Evaluator {
	return &Evaluator{rules: Rules(), notifier: notifier, logger: log.WithComponent("advisor")}
}

// Evaluate sets the advisory result on a VALID reading and returns it.
// Incomplete thresholds grade the reading INFO without evaluating any rule.
func (e *Evaluator) Evaluate(ctx context.Context, reading *mqtmodels.Reading, device *mqtmodels.PlantDevice) *mqtmodels.Reading {
	if !device.Thresholds.Complete() {
		e.logger.Logger.Error().Str("plant_id", device.PlantID).Msg("Advisor: thresholds incomplete, grading INFO")
		reading.AdvisorResult = mqtmodels.AdvisorInfo
		return reading
	}
	if reading.TempC == nil || reading.AmbientHumidity == nil || reading.SoilHumidity == nil || reading.LightLux == nil {
		e.logger.Logger.Error().Str("plant_id", device.PlantID).Msg("Advisor: reading is missing metrics, grading INFO")
		reading.AdvisorResult = mqtmodels.AdvisorInfo
		return reading
	}

	for _, rule := range e.rules {
		if !rule.Matches(reading, device.Thresholds) {
			continue
		}
		reading.AdvisorResult = rule.Result
		e.logger.Logger.Warn().
			Str("plant_id", reading.PlantID).
			Str("rule", rule.Name).
			Str("advisor_result", string(rule.Result)).
			Msg("Advisor rule matched")
		e.notify(ctx, reading, device, rule)
		return reading
	}

	reading.AdvisorResult = mqtmodels.AdvisorInfo
	return reading
}

// notify never fails the pipeline, delivery problems are only logged
func (e *Evaluator) notify(ctx context.Context, reading *mqtmodels.Reading, device *mqtmodels.PlantDevice, rule Rule) {
	if e.notifier == nil {
		return
	}
	if device.OwnerID == "" {
		e.logger.Logger.Warn().Str("plant_id", device.PlantID).Msg("Advisor: device has no owner to notify")
		return
	}

	msg := mqtmodels.NotificationMessage{
		Type:      rule.Result,
		PlantID:   reading.PlantID,
		Timestamp: reading.Timestamp,
		Title:     rule.Title(reading),
		Action:    rule.Action(reading),
	}
	if err := e.notifier.SendToUser(ctx, device.OwnerID, msg); err != nil {
		e.logger.Logger.Error().Err(err).Str("plant_id", device.PlantID).Str("user_id", device.OwnerID).Msg("Advisor: notification failed")
	}
}
