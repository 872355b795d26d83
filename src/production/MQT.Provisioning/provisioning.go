// Package provisioning registers announced hardware and hands out broker
// credentials when a user claims a device.
package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	topics "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Topics"
)

var (
	ErrInvalidMAC          = errors.New("invalid MAC address")
	ErrBrokerUnresolved    = errors.New("announcing broker is not registered")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrAlreadyClaimed      = errors.New("device already claimed")
	ErrNoActiveConnection  = errors.New("no active broker connection")
	ErrPlantIDExhausted    = errors.New("could not generate a unique plant id")
	ErrInvalidThresholds   = errors.New("invalid thresholds")
	ErrInvalidClaimRequest = errors.New("invalid claim request")
)

const (
	MinMACLength       = 12
	TempPlantIDPrefix  = "TEMP-"
	PlantIDPrefix      = "PNT-"
	plantIDAttempts    = 10
	passwordBytes      = 12
	unknownDeviceName  = "Unknown device"
	defaultDescription = "New plant"
)

// ClaimRequest binds a discovered device to a user
type ClaimRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	MacAddress  string `json:"mac_address" binding:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Service struct {
	devices  interfaces.DeviceRepository
	brokers  interfaces.BrokerRepository
	conns    broker.Provider
	defaults config.ThresholdDefaults
	logger   *logger.Logger

	newPlantID  func() string
	newPassword func() (string, error)
}

func NewService(devices interfaces.DeviceRepository, brokers interfaces.BrokerRepository, conns broker.Provider,
	defaults config.ThresholdDefaults, log *logger.Logger) *Service {
	return &Service{
		devices:     devices,
		brokers:     brokers,
		conns:       conns,
		defaults:    defaults,
		logger:      log.WithComponent("provisioning"),
		newPlantID:  NewPlantID,
		newPassword: NewPassword,
	}
}

// ProcessDiscovery registers a MAC announced on brokerURL. A MAC already in the
// store is left untouched.
func (s *Service) ProcessDiscovery(ctx context.Context, mac, brokerURL string) error {
	mac = strings.TrimSpace(mac)
	log := s.logger.WithBroker(brokerURL).WithField("mac", mac)

	if len(mac) < MinMACLength {
		log.Warn("Discovery: MAC address too short, dropping announcement")
		return fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	// the MAC becomes a topic level of the credential topic
	if !topics.IsLiteralSegment(mac) {
		log.Warn("Discovery: MAC address contains topic separators or wildcards, dropping announcement")
		return fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}

	_, err := s.devices.FindByMAC(ctx, mac)
	switch {
	case err == nil:
		log.Info("Discovery: MAC already registered, ignoring announcement")
		return nil
	case !errors.Is(err, interfaces.ErrNotFound):
		return fmt.Errorf("lookup device by MAC: %w", err)
	}

	host := topics.BrokerHost(brokerURL)
	b, err := s.brokers.FindByHost(ctx, host)
	if errors.Is(err, interfaces.ErrNotFound) {
		log.Logger.Error().Str("host", host).Msg("Discovery: no broker registered for announcing host")
		return fmt.Errorf("%w: %s", ErrBrokerUnresolved, host)
	}
	if err != nil {
		return fmt.Errorf("lookup broker by host: %w", err)
	}

	device := &mqtmodels.PlantDevice{
		PlantID:    TempPlantID(mac),
		Name:       unknownDeviceName,
		MacAddress: mac,
		BrokerID:   b.ID,
		Active:     false,
	}
	if err := s.devices.Save(ctx, device); err != nil {
		// a concurrent announcement through another broker won the insert
		if errors.Is(err, interfaces.ErrDuplicate) {
			log.Info("Discovery: MAC registered concurrently, ignoring announcement")
			return nil
		}
		return fmt.Errorf("save discovered device: %w", err)
	}

	log.Logger.Info().Str("broker_id", b.ID).Str("plant_id", device.PlantID).Msg("Discovery: new device registered")
	return nil
}

// Claim issues credentials for a discovered device, activates it and sends the
// credentials to the hardware. When delivery fails the claim is still
// persisted and the device is returned alongside the delivery error.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*mqtmodels.PlantDevice, error) {
	req.MacAddress = strings.TrimSpace(req.MacAddress)
	if req.UserID == "" || req.MacAddress == "" {
		return nil, fmt.Errorf("%w: user_id and mac_address are required", ErrInvalidClaimRequest)
	}

	device, err := s.devices.FindByMAC(ctx, req.MacAddress)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, req.MacAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup device by MAC: %w", err)
	}
	if device.Claimed() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, req.MacAddress)
	}

	password, err := s.newPassword()
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}

	description := req.Description
	if description == "" {
		description = defaultDescription
	}
	device.OwnerID = req.UserID
	device.Password = password
	device.Active = true
	device.Thresholds = ThresholdsFromDefaults(s.defaults)
	if req.Name != "" {
		device.Name = req.Name
	}
	device.Description = description

	if err := s.assignPlantIDAndSave(ctx, device); err != nil {
		return nil, err
	}

	s.logger.Logger.Info().
		Str("mac", device.MacAddress).
		Str("plant_id", device.PlantID).
		Str("user_id", device.OwnerID).
		Msg("Device claimed")

	if err := s.SendConfiguration(ctx, device); err != nil {
		return device, err
	}
	return device, nil
}

// assignPlantIDAndSave retries when an id is already taken, either in the
// store before saving or by a concurrent claim at save time
func (s *Service) assignPlantIDAndSave(ctx context.Context, device *mqtmodels.PlantDevice) error {
	for attempt := 0; attempt < plantIDAttempts; attempt++ {
		candidate := s.newPlantID()
		taken, err := s.devices.ExistsByPlantID(ctx, candidate)
		if err != nil {
			return fmt.Errorf("check plant id: %w", err)
		}
		if taken {
			continue
		}

		device.PlantID = candidate
		device.Topic = topics.DeviceData(candidate)
		err = s.devices.Save(ctx, device)
		if err == nil {
			return nil
		}
		if !errors.Is(err, interfaces.ErrDuplicate) {
			return fmt.Errorf("save claimed device: %w", err)
		}
	}
	return ErrPlantIDExhausted
}

// SendConfiguration publishes the device credentials, retained, on the
// MAC-scoped provisioning topic through any live broker connection
func (s *Service) SendConfiguration(ctx context.Context, device *mqtmodels.PlantDevice) error {
	conn, ok := s.conns.GetAny()
	if !ok {
		s.logger.Logger.Error().Str("mac", device.MacAddress).Msg("Provisioning: no connected broker to deliver credentials")
		return ErrNoActiveConnection
	}

	payload := mqtmodels.CommandPayload{
		Command: mqtmodels.CommandConfigSet,
		Parameters: map[string]interface{}{
			mqtmodels.ParamNewUser:  device.PlantID,
			mqtmodels.ParamNewPass:  device.Password,
			mqtmodels.ParamNewTopic: device.Topic,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode CONFIG_SET: %w", err)
	}

	topic := topics.ProvisioningConfig(device.MacAddress)
	if err := conn.Publish(ctx, topic, 1, true, body); err != nil {
		return fmt.Errorf("publish CONFIG_SET to %s: %w", topic, err)
	}

	s.logger.Logger.Info().
		Str("broker_url", conn.URL()).
		Str("topic", topic).
		Str("plant_id", device.PlantID).
		Msg("Credentials published retained, waiting for device to reconnect")
	return nil
}

// ResendConfiguration republishes the credentials of an already claimed device
func (s *Service) ResendConfiguration(ctx context.Context, plantID string) error {
	device, err := s.Device(ctx, plantID)
	if err != nil {
		return err
	}
	if !device.Claimed() || device.MacAddress == "" {
		return fmt.Errorf("%w: %s has no pending credentials", ErrDeviceNotFound, plantID)
	}
	return s.SendConfiguration(ctx, device)
}

func (s *Service) Device(ctx context.Context, plantID string) (*mqtmodels.PlantDevice, error) {
	device, err := s.devices.FindByPlantID(ctx, plantID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, plantID)
	}
	return device, err
}

// AvailableDevices lists discovered devices nobody has claimed yet
func (s *Service) AvailableDevices(ctx context.Context) ([]mqtmodels.PlantDevice, error) {
	return s.devices.FindAvailable(ctx)
}

func (s *Service) DevicesByOwner(ctx context.Context, userID string) ([]mqtmodels.PlantDevice, error) {
	return s.devices.FindByOwner(ctx, userID)
}

func (s *Service) IsOwner(ctx context.Context, userID, plantID string) (bool, error) {
	device, err := s.Device(ctx, plantID)
	if errors.Is(err, ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return device.OwnerID != "" && device.OwnerID == userID, nil
}

// UpdateThresholds applies only the fields set in update
func (s *Service) UpdateThresholds(ctx context.Context, plantID string, update mqtmodels.Thresholds) (*mqtmodels.PlantDevice, error) {
	device, err := s.Device(ctx, plantID)
	if err != nil {
		return nil, err
	}

	merged := MergeThresholds(device.Thresholds, update)
	if err := ValidateThresholds(merged); err != nil {
		return nil, err
	}
	device.Thresholds = merged

	if err := s.devices.Save(ctx, device); err != nil {
		return nil, fmt.Errorf("save thresholds: %w", err)
	}
	s.logger.Logger.Info().Str("plant_id", plantID).Msg("Thresholds updated")
	return device, nil
}

// NewPlantID returns PNT- followed by six upper-case hex characters
func NewPlantID() string {
	return PlantIDPrefix + strings.ToUpper(uuid.NewString()[:6])
}

// NewPassword returns 12 random bytes as unpadded URL-safe base64
func NewPassword() (string, error) {
	buf := make([]byte, passwordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TempPlantID identifies an unclaimed device by the tail of its MAC
func TempPlantID(mac string) string {
	return TempPlantIDPrefix + mac[len(mac)-4:]
}
