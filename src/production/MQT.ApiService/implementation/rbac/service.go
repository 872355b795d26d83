// Package rbac answers the broker's auth plugin: who may connect, and which
// topics each kind of client may publish or subscribe to.
package rbac

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	"golang.org/x/crypto/bcrypt"
)

// Role is the kind of broker client behind a username
type Role string

const (
	RoleBackend      Role = "backend"
	RoleProvisioning Role = "provisioning"
	RoleDevice       Role = "device"
	RoleUnknown      Role = ""
)

// Service resolves broker usernames to roles
type Service struct {
	backend      config.MQTTConfig
	provisioning config.ProvisioningConfig
	devices      interfaces.DeviceRepository
	logger       *logger.Logger
}

func NewService(backend config.MQTTConfig, provisioning config.ProvisioningConfig, devices interfaces.DeviceRepository, log *logger.Logger) *Service {
	return &Service{
		backend:      backend,
		provisioning: provisioning,
		devices:      devices,
		logger:       log.WithComponent("mqtt-auth"),
	}
}

// RoleOf classifies username. Device usernames are claimed plant ids.
func (s *Service) RoleOf(ctx context.Context, username string) (Role, error) {
	switch {
	case username == "":
		return RoleUnknown, nil
	case username == s.backend.Username:
		return RoleBackend, nil
	case username == s.provisioning.Username:
		return RoleProvisioning, nil
	}

	device, err := s.devices.FindByPlantID(ctx, username)
	if errors.Is(err, interfaces.ErrNotFound) {
		return RoleUnknown, nil
	}
	if err != nil {
		return RoleUnknown, err
	}
	if !device.Claimed() {
		return RoleUnknown, nil
	}
	return RoleDevice, nil
}

// Authenticate checks a CONNECT from the broker plugin. Passwords are never logged.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	role, err := s.RoleOf(ctx, username)
	if err != nil {
		return false, err
	}

	var ok bool
	switch role {
	case RoleBackend:
		ok = matchSecret(password, s.backend.Password)
	case RoleProvisioning:
		ok = matchSecret(password, s.provisioning.Password)
	case RoleDevice:
		device, err := s.devices.FindByPlantID(ctx, username)
		if err != nil {
			return false, err
		}
		ok = device.Password != "" && equal(password, device.Password)
	}

	event := s.logger.Logger.Info()
	if !ok {
		event = s.logger.Logger.Warn()
	}
	event.Str("username", username).Str("role", string(role)).Bool("allowed", ok).Msg("MQTT authentication")
	return ok, nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// matchSecret compares against a configured shared password, which may be
// given as a bcrypt hash so the plaintext stays out of the environment
func matchSecret(given, configured string) bool {
	if configured == "" {
		return false
	}
	if isBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return equal(given, configured)
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
