package rbac

import (
	"context"
	"strings"

	topics "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Topics"
)

// Access is the mosquitto-go-auth acc code
type Access int

const (
	AccessRead      Access = 1
	AccessWrite     Access = 2
	AccessSubscribe Access = 4
)

func (a Access) subscribes() bool { return a == AccessRead || a == AccessSubscribe }
func (a Access) publishes() bool  { return a == AccessWrite }

// Authorize checks one topic operation for username
func (s *Service) Authorize(ctx context.Context, username, topic string, acc Access) (bool, error) {
	role, err := s.RoleOf(ctx, username)
	if err != nil {
		return false, err
	}

	ok := allowed(role, username, topic, acc)

	event := s.logger.Logger.Debug()
	if !ok {
		event = s.logger.Logger.Warn()
	}
	event.
		Str("username", username).
		Str("role", string(role)).
		Str("topic", topic).
		Int("acc", int(acc)).
		Bool("allowed", ok).
		Msg("MQTT ACL check")
	return ok, nil
}

func allowed(role Role, username, topic string, acc Access) bool {
	switch role {
	case RoleBackend:
		return strings.HasPrefix(topic, topics.TelemetryPrefix()) || strings.HasPrefix(topic, "control/")

	case RoleProvisioning:
		if acc.publishes() {
			return topic == topics.Discovery()
		}
		// one MAC per subscription, a wildcard would expose every device's credentials
		if acc.subscribes() {
			_, ok := topics.ProvisioningConfigMAC(topic)
			return ok
		}
		return false

	case RoleDevice:
		if acc.publishes() {
			return topic == topics.DeviceData(username)
		}
		if acc.subscribes() {
			return topic == topics.DeviceCommand(username)
		}
		return false
	}
	return false
}
