package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	actuator "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Actuator"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker/brokertest"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
)

const seededURL = "tcp://broker-a.local:1883"

func memoryConfig() *config.GatewayConfig {
	return &config.GatewayConfig{
		Store:     config.StoreConfig{Driver: config.StoreMemory},
		Scheduler: config.SchedulerConfig{ReconcileInterval: time.Hour, MaxParallelDialing: 2},
		MQTT:      config.MQTTConfig{Username: "backend", Password: "backend-pass", ConnectTimeout: time.Second},
		Provisioning: config.ProvisioningConfig{
			Username: "provision_user",
			Password: "provision_pass",
		},
		Thresholds: config.DefaultThresholds(),
		Seed:       config.SeedBrokerConfig{Enabled: true, Name: "local", Host: "broker-a.local", Port: 1883},
	}
}

func TestContainerEndToEnd(t *testing.T) {
	ctx := context.Background()
	dialer := brokertest.NewDialer()

	c, err := NewContainerWith(ctx, memoryConfig(), logger.NewNop(), dialer)
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	require.NoError(t, c.Manager().Reconcile(ctx))
	conn := dialer.Conn(seededURL)
	require.NotNil(t, conn)
	assert.ElementsMatch(t, []string{"planta/#", "control/provisioning/#"}, conn.Subscriptions())

	// first contact
	conn.Deliver("control/provisioning/discovery", []byte("AA:BB:CC:DD:EE:FF"))
	available, err := c.Provisioning().AvailableDevices(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)

	// claim hands the credentials out retained
	device, err := c.Provisioning().Claim(ctx, provisioning.ClaimRequest{UserID: "user-1", MacAddress: "AA:BB:CC:DD:EE:FF"})
	require.NoError(t, err)
	published := conn.Published()
	require.Len(t, published, 1)
	assert.True(t, published[0].Retained)

	// the device reconnects with its new identity
	ok, err := c.Auth().Authenticate(ctx, device.PlantID, device.Password)
	require.NoError(t, err)
	assert.True(t, ok)

	conn.Deliver(device.Topic, []byte(`{"tempC":21.5,"ambientHumidity":55,"soilHumidity":48,"lightLux":900}`))
	page, err := c.Readings().ListByPlant(ctx, device.PlantID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	require.NoError(t, c.Dispatcher().Send(ctx, device.PlantID, mqtmodels.CommandPayload{Command: mqtmodels.CommandForceRead}))
	published = conn.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "planta/"+device.PlantID+"/command/", published[1].Topic)

	health := c.HealthCheck(ctx)
	assert.Equal(t, "ok", health["status"])
}

func TestContainerSeedsOnlyEmptyStore(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainerWith(ctx, memoryConfig(), logger.NewNop(), brokertest.NewDialer())
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	require.NoError(t, c.seedBroker(ctx))
	n, err := c.Brokers().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestContainerWithoutBrokerConnection(t *testing.T) {
	ctx := context.Background()
	dialer := brokertest.NewDialer()
	dialer.Fail(seededURL, brokertest.ErrRefused)

	c, err := NewContainerWith(ctx, memoryConfig(), logger.NewNop(), dialer)
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	require.NoError(t, c.Manager().Reconcile(ctx))
	assert.Equal(t, "degraded", c.HealthCheck(ctx)["status"])

	require.NoError(t, c.Devices().Save(ctx, &mqtmodels.PlantDevice{PlantID: "PNT-ABC123", OwnerID: "user-1", Active: true}))
	brokers, err := c.Brokers().FindActive(ctx)
	require.NoError(t, err)
	device, err := c.Devices().FindByPlantID(ctx, "PNT-ABC123")
	require.NoError(t, err)
	device.BrokerID = brokers[0].ID
	require.NoError(t, c.Devices().Save(ctx, device))

	err = c.Dispatcher().Send(ctx, "PNT-ABC123", mqtmodels.CommandPayload{Command: mqtmodels.CommandReboot})
	assert.ErrorIs(t, err, actuator.ErrBrokerInactive)
}

func TestContainerRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = "cassandra"

	_, err := NewContainerWith(context.Background(), cfg, logger.NewNop(), brokertest.NewDialer())
	assert.Error(t, err)
}
