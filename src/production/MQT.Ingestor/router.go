// Package mqtingestor routes every inbound broker message to provisioning or
// to the telemetry pipeline.
package mqtingestor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	advisor "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Advisor"
	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	qualitycontrol "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.QualityControl"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	topics "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Topics"
)

var (
	errUnknownDevice  = errors.New("unknown device")
	errInactiveDevice = errors.New("device is not active")
)

// DiscoveryProcessor handles hardware announcements
type DiscoveryProcessor interface {
	ProcessDiscovery(ctx context.Context, mac, brokerURL string) error
}

type Router struct {
	discovery DiscoveryProcessor
	validator *qualitycontrol.Validator
	advisor   *advisor.Evaluator
	devices   interfaces.DeviceRepository
	readings  interfaces.ReadingRepository
	logger    *logger.Logger
	now       func() time.Time
}

func NewRouter(discovery DiscoveryProcessor, validator *qualitycontrol.Validator, evaluator *advisor.Evaluator,
	devices interfaces.DeviceRepository, readings interfaces.ReadingRepository, log *logger.Logger) *Router {
	return &Router{
		discovery: discovery,
		validator: validator,
		advisor:   evaluator,
		devices:   devices,
		readings:  readings,
		logger:    log.WithComponent("router"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle is the broker.Handler for every connection. It never panics and never
// returns an error, failures are logged and the message dropped.
func (r *Router) Handle(ctx context.Context, msg broker.Message) {
	log := r.logger.WithBroker(msg.BrokerURL).WithField("topic", msg.Topic)

	defer func() {
		if rec := recover(); rec != nil {
			log.Logger.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Router: recovered from panic while handling message")
		}
	}()

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = r.now()
	}

	switch {
	case topics.IsDiscovery(msg.Topic):
		mac := strings.TrimSpace(string(msg.Payload))
		if err := r.discovery.ProcessDiscovery(ctx, mac, msg.BrokerURL); err != nil {
			log.ErrorWithError(err, "Router: discovery announcement dropped")
		}

	case topics.IsTelemetry(msg.Topic):
		plantID, channel, err := topics.SplitTelemetry(msg.Topic)
		if err != nil {
			log.Logger.Warn().Err(err).Msg("Router: malformed telemetry topic dropped")
			return
		}
		// command echoes and anything else under planta/<id>/ that is not data
		if channel != topics.DataChannel {
			return
		}
		if err := r.processReading(ctx, plantID, msg); err != nil {
			log.Logger.Warn().Err(err).Str("plant_id", plantID).Msg("Router: telemetry dropped")
		}
	}
}

// processReading runs QC, the advisor when QC passes, and persists the outcome
func (r *Router) processReading(ctx context.Context, plantID string, msg broker.Message) error {
	device, err := r.devices.FindByPlantID(ctx, plantID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("%w: %s", errUnknownDevice, plantID)
	}
	if err != nil {
		return fmt.Errorf("lookup device: %w", err)
	}
	if !device.Active {
		return fmt.Errorf("%w: %s", errInactiveDevice, plantID)
	}

	reading := r.validator.Check(ctx, msg.Payload, device, msg.ReceivedAt)

	if reading.QcStatus != mqtmodels.QcValid {
		if err := r.readings.Insert(ctx, reading); err != nil {
			return fmt.Errorf("persist rejected reading: %w", err)
		}
		r.logger.Logger.Info().
			Str("plant_id", plantID).
			Str("qc_status", string(reading.QcStatus)).
			Msg("Reading rejected by QC, stored for audit")
		return nil
	}

	reading = r.advisor.Evaluate(ctx, reading, device)

	if err := r.readings.Insert(ctx, reading); err != nil {
		return fmt.Errorf("persist reading: %w", err)
	}
	// only the heartbeat field, the device may have changed since the lookup
	if err := r.devices.TouchHeartbeat(ctx, plantID, r.now()); err != nil {
		return fmt.Errorf("persist heartbeat: %w", err)
	}

	r.logger.Logger.Debug().
		Str("plant_id", plantID).
		Str("advisor_result", string(reading.AdvisorResult)).
		Msg("Reading stored")
	return nil
}
