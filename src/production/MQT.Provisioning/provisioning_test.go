package provisioning

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker/brokertest"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Memory"
)

const (
	brokerURL = "tcp://broker-a.local:1883"
	testMAC   = "AA:BB:CC:DD:EE:FF"
)

type ProvisioningSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	conn    *brokertest.Connection
	service *Service
}

func TestProvisioningSuite(t *testing.T) {
	suite.Run(t, new(ProvisioningSuite))
}

func (s *ProvisioningSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.Require().NoError(s.store.Brokers().Save(s.ctx, &mqtmodels.Broker{Name: "a", Host: "broker-a.local", Port: 1883, Active: true}))

	s.conn = brokertest.NewConnection(brokerURL)
	s.service = NewService(s.store.Devices(), s.store.Brokers(), brokertest.NewProvider(s.conn),
		config.DefaultThresholds(), logger.NewNop())
}

func (s *ProvisioningSuite) discover() *mqtmodels.PlantDevice {
	s.Require().NoError(s.service.ProcessDiscovery(s.ctx, testMAC, brokerURL))
	device, err := s.store.Devices().FindByMAC(s.ctx, testMAC)
	s.Require().NoError(err)
	return device
}

func (s *ProvisioningSuite) TestDiscoveryRegistersUnclaimedDevice() {
	device := s.discover()
	broker, err := s.store.Brokers().FindByHost(s.ctx, "broker-a.local")
	s.Require().NoError(err)

	s.Equal("TEMP-E:FF", device.PlantID)
	s.Equal(broker.ID, device.BrokerID)
	s.False(device.Active)
	s.False(device.Claimed())
	s.Empty(device.Password)
}

func (s *ProvisioningSuite) TestDiscoveryOfKnownMACIsNoop() {
	first := s.discover()
	s.Require().NoError(s.service.ProcessDiscovery(s.ctx, testMAC, "tcp://broker-b.local:1883"))

	available, err := s.service.AvailableDevices(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(available, 1)
	s.Equal(first.ID, available[0].ID)
	s.Equal(first.BrokerID, available[0].BrokerID)
}

func (s *ProvisioningSuite) TestDiscoveryFromUnknownBrokerIsDropped() {
	err := s.service.ProcessDiscovery(s.ctx, testMAC, "tcp://stranger.local:1883")
	s.ErrorIs(err, ErrBrokerUnresolved)

	_, err = s.store.Devices().FindByMAC(s.ctx, testMAC)
	s.ErrorIs(err, interfaces.ErrNotFound)
}

func (s *ProvisioningSuite) TestDiscoveryRejectsShortMAC() {
	err := s.service.ProcessDiscovery(s.ctx, "AA:BB", brokerURL)
	s.ErrorIs(err, ErrInvalidMAC)
}

func (s *ProvisioningSuite) TestDiscoveryRejectsMACWithTopicCharacters() {
	for _, mac := range []string{"AA:BB:CC/DD:EE", "AA:BB:CC:DD:EE:+", "AA:BB:CC:DD:EE:#"} {
		err := s.service.ProcessDiscovery(s.ctx, mac, brokerURL)
		s.ErrorIs(err, ErrInvalidMAC, mac)

		_, err = s.store.Devices().FindByMAC(s.ctx, mac)
		s.ErrorIs(err, interfaces.ErrNotFound, mac)
	}
}

func (s *ProvisioningSuite) TestClaimIssuesCredentialsAndPublishesRetained() {
	s.discover()

	device, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC, Name: "Ficus"})
	s.Require().NoError(err)

	s.Regexp(regexp.MustCompile(`^PNT-[0-9A-F]{6}$`), device.PlantID)
	s.Equal("planta/"+device.PlantID+"/lecturas", device.Topic)
	s.Equal("user-1", device.OwnerID)
	s.Equal("Ficus", device.Name)
	s.True(device.Active)
	s.Len(device.Password, 16)
	s.True(device.Thresholds.Complete())

	published := s.conn.Published()
	s.Require().Len(published, 1)
	s.Equal("control/provisioning/device/"+testMAC, published[0].Topic)
	s.Equal(byte(1), published[0].QoS)
	s.True(published[0].Retained)

	var payload mqtmodels.CommandPayload
	s.Require().NoError(json.Unmarshal(published[0].Payload, &payload))
	s.Equal(mqtmodels.CommandConfigSet, payload.Command)
	s.Equal(device.PlantID, payload.Parameters[mqtmodels.ParamNewUser])
	s.Equal(device.Password, payload.Parameters[mqtmodels.ParamNewPass])
	s.Equal(device.Topic, payload.Parameters[mqtmodels.ParamNewTopic])

	stored, err := s.store.Devices().FindByPlantID(s.ctx, device.PlantID)
	s.Require().NoError(err)
	s.Equal(device.Password, stored.Password)
}

func (s *ProvisioningSuite) TestClaimTwiceFails() {
	s.discover()
	_, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.Require().NoError(err)

	_, err = s.service.Claim(s.ctx, ClaimRequest{UserID: "user-2", MacAddress: testMAC})
	s.ErrorIs(err, ErrAlreadyClaimed)
}

func (s *ProvisioningSuite) TestClaimUnknownMAC() {
	_, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.ErrorIs(err, ErrDeviceNotFound)
}

func (s *ProvisioningSuite) TestClaimSkipsTakenPlantIDs() {
	s.Require().NoError(s.store.Devices().Save(s.ctx, &mqtmodels.PlantDevice{PlantID: "PNT-000001", Active: true}))
	s.discover()

	ids := []string{"PNT-000001", "PNT-000001", "PNT-000002"}
	s.service.newPlantID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	device, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.Require().NoError(err)
	s.Equal("PNT-000002", device.PlantID)
}

func (s *ProvisioningSuite) TestClaimGivesUpWhenIDsExhausted() {
	s.Require().NoError(s.store.Devices().Save(s.ctx, &mqtmodels.PlantDevice{PlantID: "PNT-000001", Active: true}))
	s.discover()
	s.service.newPlantID = func() string { return "PNT-000001" }

	_, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.ErrorIs(err, ErrPlantIDExhausted)
}

func (s *ProvisioningSuite) TestClaimWithoutConnectionKeepsClaim() {
	s.discover()
	s.conn.Drop()

	device, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.ErrorIs(err, ErrNoActiveConnection)
	s.Require().NotNil(device)

	owned, err := s.service.DevicesByOwner(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Len(owned, 1)
}

func (s *ProvisioningSuite) TestIsOwner() {
	s.discover()
	device, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.Require().NoError(err)

	ok, err := s.service.IsOwner(s.ctx, "user-1", device.PlantID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.IsOwner(s.ctx, "user-2", device.PlantID)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.service.IsOwner(s.ctx, "user-1", "PNT-NOPE00")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ProvisioningSuite) TestUpdateThresholdsIsPartial() {
	s.discover()
	device, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.Require().NoError(err)
	before := device.Thresholds

	maxTemp := 28.5
	updated, err := s.service.UpdateThresholds(s.ctx, device.PlantID, mqtmodels.Thresholds{MaxTempC: &maxTemp})
	s.Require().NoError(err)

	s.Equal(28.5, *updated.MaxTempC)
	s.Equal(*before.MinTempC, *updated.MinTempC)
	s.Equal(*before.MinSoilHumidity, *updated.MinSoilHumidity)
}

func (s *ProvisioningSuite) TestUpdateThresholdsRejectsInvertedRange() {
	s.discover()
	device, err := s.service.Claim(s.ctx, ClaimRequest{UserID: "user-1", MacAddress: testMAC})
	s.Require().NoError(err)

	maxSoil := 20
	_, err = s.service.UpdateThresholds(s.ctx, device.PlantID, mqtmodels.Thresholds{MaxSoilHumidity: &maxSoil})
	s.ErrorIs(err, ErrInvalidThresholds)
}

func TestNewPassword(t *testing.T) {
	a, err := NewPassword()
	require.NoError(t, err)
	b, err := NewPassword()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, a)
}

func TestNewPlantIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.Regexp(t, `^PNT-[0-9A-F]{6}$`, NewPlantID())
	}
}

func TestMergeThresholdsDoesNotAlias(t *testing.T) {
	current := ThresholdsFromDefaults(config.DefaultThresholds())
	v := 10
	update := mqtmodels.Thresholds{MinLightLux: &v}

	merged := MergeThresholds(current, update)
	v = 99

	assert.Equal(t, 10, *merged.MinLightLux)
}
