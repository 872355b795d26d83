package mqtingestor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	advisor "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Advisor"
	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker/brokertest"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
	qualitycontrol "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.QualityControl"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Memory"
)

const brokerURL = "tcp://broker-a.local:1883"

type notifications struct {
	mu   sync.Mutex
	msgs []mqtmodels.NotificationMessage
}

func (n *notifications) SendToUser(ctx context.Context, userID string, msg mqtmodels.NotificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

type panickingDiscovery struct{}

func (panickingDiscovery) ProcessDiscovery(ctx context.Context, mac, brokerURL string) error {
	panic("boom")
}

// racingDevices runs afterLookup once, right after the first FindByPlantID,
// to model an API write landing while a reading is being processed
type racingDevices struct {
	interfaces.DeviceRepository
	afterLookup func()
}

func (r *racingDevices) FindByPlantID(ctx context.Context, plantID string) (*mqtmodels.PlantDevice, error) {
	device, err := r.DeviceRepository.FindByPlantID(ctx, plantID)
	if r.afterLookup != nil {
		hook := r.afterLookup
		r.afterLookup = nil
		hook()
	}
	return device, err
}

type RouterSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	notifier *notifications
	prov     *provisioning.Service
	router   *Router
	now      time.Time
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.notifier = &notifications{}
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Brokers().Save(s.ctx, &mqtmodels.Broker{Name: "a", Host: "broker-a.local", Port: 1883, Active: true}))

	log := logger.NewNop()
	s.prov = provisioning.NewService(s.store.Devices(), s.store.Brokers(),
		brokertest.NewProvider(brokertest.NewConnection(brokerURL)), config.DefaultThresholds(), log)

	s.router = NewRouter(s.prov,
		qualitycontrol.NewValidator(s.store.Readings(), log),
		advisor.NewEvaluator(s.notifier, log),
		s.store.Devices(), s.store.Readings(), log)
	s.router.now = func() time.Time { return s.now }

	s.Require().NoError(s.store.Devices().Save(s.ctx, &mqtmodels.PlantDevice{
		PlantID:    "PNT-ABC123",
		OwnerID:    "user-1",
		Active:     true,
		Thresholds: provisioning.ThresholdsFromDefaults(config.DefaultThresholds()),
	}))
	s.Require().NoError(s.store.Devices().Save(s.ctx, &mqtmodels.PlantDevice{PlantID: "PNT-OFF000", OwnerID: "user-1"}))
}

func (s *RouterSuite) deliver(topic, payload string) {
	s.router.Handle(s.ctx, broker.Message{BrokerURL: brokerURL, Topic: topic, Payload: []byte(payload), ReceivedAt: s.now})
}

func (s *RouterSuite) TestValidReadingStoredWithHeartbeat() {
	s.deliver("planta/PNT-ABC123/lecturas",
		`{"timestamp":"2025-06-01T11:59:00Z","tempC":22.5,"ambientHumidity":50,"soilHumidity":45,"lightLux":800}`)

	readings := s.store.Readings().All()
	s.Require().Len(readings, 1)
	s.Equal(mqtmodels.QcValid, readings[0].QcStatus)
	s.Equal(mqtmodels.AdvisorInfo, readings[0].AdvisorResult)
	s.Equal("user-1", readings[0].OwnerID)

	device, err := s.store.Devices().FindByPlantID(s.ctx, "PNT-ABC123")
	s.Require().NoError(err)
	s.Require().NotNil(device.LastDataReceived)
	s.Equal(s.now, *device.LastDataReceived)
}

func (s *RouterSuite) TestHeartbeatKeepsConcurrentThresholdUpdate() {
	minSoil := 55
	devices := &racingDevices{DeviceRepository: s.store.Devices()}
	devices.afterLookup = func() {
		_, err := s.prov.UpdateThresholds(s.ctx, "PNT-ABC123", mqtmodels.Thresholds{MinSoilHumidity: &minSoil})
		s.Require().NoError(err)
	}

	log := logger.NewNop()
	router := NewRouter(s.prov,
		qualitycontrol.NewValidator(s.store.Readings(), log),
		advisor.NewEvaluator(s.notifier, log),
		devices, s.store.Readings(), log)
	router.now = func() time.Time { return s.now }

	router.Handle(s.ctx, broker.Message{
		BrokerURL:  brokerURL,
		Topic:      "planta/PNT-ABC123/lecturas",
		Payload:    []byte(`{"timestamp":"2025-06-01T11:59:00Z","tempC":22.5,"ambientHumidity":50,"soilHumidity":45,"lightLux":800}`),
		ReceivedAt: s.now,
	})

	device, err := s.store.Devices().FindByPlantID(s.ctx, "PNT-ABC123")
	s.Require().NoError(err)
	s.Require().NotNil(device.MinSoilHumidity)
	s.Equal(55, *device.MinSoilHumidity)
	s.Require().NotNil(device.LastDataReceived)
	s.Equal(s.now, *device.LastDataReceived)
	s.Len(s.store.Readings().All(), 1)
}

func (s *RouterSuite) TestCriticalReadingNotifiesOwner() {
	s.deliver("planta/PNT-ABC123/lecturas", `{"tempC":22.5,"ambientHumidity":50,"soilHumidity":10,"lightLux":800}`)

	readings := s.store.Readings().All()
	s.Require().Len(readings, 1)
	s.Equal(mqtmodels.AdvisorCritical, readings[0].AdvisorResult)
	s.Require().Len(s.notifier.msgs, 1)
	s.Equal("PNT-ABC123", s.notifier.msgs[0].PlantID)
}

func (s *RouterSuite) TestRejectedReadingStoredWithoutAdvisor() {
	s.deliver("planta/PNT-ABC123/lecturas", `{"tempC":99,"ambientHumidity":50,"soilHumidity":10,"lightLux":800}`)

	readings := s.store.Readings().All()
	s.Require().Len(readings, 1)
	s.Equal(mqtmodels.QcOutOfRange, readings[0].QcStatus)
	s.Empty(readings[0].AdvisorResult)
	s.Empty(s.notifier.msgs)

	device, err := s.store.Devices().FindByPlantID(s.ctx, "PNT-ABC123")
	s.Require().NoError(err)
	s.Nil(device.LastDataReceived)
}

func (s *RouterSuite) TestUndecodablePayloadStoredAsQcError() {
	s.deliver("planta/PNT-ABC123/lecturas", `not json`)

	readings := s.store.Readings().All()
	s.Require().Len(readings, 1)
	s.Equal(mqtmodels.QcError, readings[0].QcStatus)
}

func (s *RouterSuite) TestRateErrorAfterJump() {
	s.deliver("planta/PNT-ABC123/lecturas",
		`{"timestamp":"2025-06-01T11:50:00Z","tempC":20,"ambientHumidity":50,"soilHumidity":40,"lightLux":800}`)
	s.deliver("planta/PNT-ABC123/lecturas",
		`{"timestamp":"2025-06-01T11:55:00Z","tempC":20,"ambientHumidity":50,"soilHumidity":20,"lightLux":800}`)

	readings := s.store.Readings().All()
	s.Require().Len(readings, 2)
	s.Equal(mqtmodels.QcValid, readings[0].QcStatus)
	s.Equal(mqtmodels.QcRateError, readings[1].QcStatus)
}

func (s *RouterSuite) TestUnknownAndInactiveDevicesDropped() {
	s.deliver("planta/PNT-NOPE00/lecturas", `{"tempC":20,"ambientHumidity":50,"soilHumidity":40,"lightLux":800}`)
	s.deliver("planta/PNT-OFF000/lecturas", `{"tempC":20,"ambientHumidity":50,"soilHumidity":40,"lightLux":800}`)

	s.Empty(s.store.Readings().All())
}

func (s *RouterSuite) TestIgnoredTopics() {
	s.deliver("planta/PNT-ABC123/command/", `{"command":"RIEGO"}`)
	s.deliver("planta/PNT-ABC123", `{"tempC":20}`)
	s.deliver("weather/today", `sunny`)
	s.deliver("control/provisioning/device/AA:BB:CC:DD:EE:FF", `{"command":"CONFIG_SET"}`)

	s.Empty(s.store.Readings().All())
	available, err := s.store.Devices().FindAvailable(s.ctx)
	s.Require().NoError(err)
	s.Empty(available)
}

func (s *RouterSuite) TestDiscoveryRegistersDevice() {
	s.deliver("control/provisioning/discovery", " AA:BB:CC:DD:EE:FF\n")

	device, err := s.store.Devices().FindByMAC(s.ctx, "AA:BB:CC:DD:EE:FF")
	s.Require().NoError(err)
	s.False(device.Active)
}

func (s *RouterSuite) TestPanicIsContained() {
	s.router.discovery = panickingDiscovery{}

	s.NotPanics(func() {
		s.deliver("control/provisioning/discovery", "AA:BB:CC:DD:EE:FF")
	})

	s.deliver("planta/PNT-ABC123/lecturas", `{"tempC":20,"ambientHumidity":50,"soilHumidity":40,"lightLux":800}`)
	s.Len(s.store.Readings().All(), 1)
}
