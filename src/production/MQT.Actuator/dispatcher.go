// Package actuator publishes user commands to a device through the broker
// the device is attached to.
package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	topics "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Topics"
)

var (
	ErrUnknownCommand     = errors.New("unknown command")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrNoBrokerAssociated = errors.New("no broker associated with device")
	ErrBrokerInactive     = errors.New("broker inactive")
	ErrCommandEncoding    = errors.New("command encoding failed")
)

const commandQoS byte = 1

type Dispatcher struct {
	devices interfaces.DeviceRepository
	brokers interfaces.BrokerRepository
	conns   broker.Provider
	logger  *logger.Logger
}

func NewDispatcher(devices interfaces.DeviceRepository, brokers interfaces.BrokerRepository, conns broker.Provider, log *logger.Logger) *Dispatcher {
	return &Dispatcher{devices: devices, brokers: brokers, conns: conns, logger: log.WithComponent("actuator")}
}

// Send publishes cmd at QoS 1 on the device's command topic. Every resolution
// failure is returned as a distinct sentinel.
func (d *Dispatcher) Send(ctx context.Context, plantID string, cmd mqtmodels.CommandPayload) error {
	if !cmd.Command.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}

	device, err := d.devices.FindByPlantID(ctx, plantID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, plantID)
	}
	if err != nil {
		return fmt.Errorf("lookup device: %w", err)
	}

	if device.BrokerID == "" {
		return fmt.Errorf("%w: %s", ErrNoBrokerAssociated, plantID)
	}
	b, err := d.brokers.FindByID(ctx, device.BrokerID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("%w: %s references missing broker %s", ErrNoBrokerAssociated, plantID, device.BrokerID)
	}
	if err != nil {
		return fmt.Errorf("lookup broker: %w", err)
	}

	conn, ok := d.conns.Get(b.URL())
	if !ok {
		return fmt.Errorf("%w: %s", ErrBrokerInactive, b.URL())
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommandEncoding, err)
	}

	topic := topics.DeviceCommand(device.PlantID)
	if err := conn.Publish(ctx, topic, commandQoS, false, body); err != nil {
		if errors.Is(err, broker.ErrNotConnected) {
			return fmt.Errorf("%w: %s", ErrBrokerInactive, b.URL())
		}
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	d.logger.Logger.Info().
		Str("plant_id", device.PlantID).
		Str("broker_url", b.URL()).
		Str("command", string(cmd.Command)).
		Msg("Command sent")
	return nil
}
