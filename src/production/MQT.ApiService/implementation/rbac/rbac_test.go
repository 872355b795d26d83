package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Memory"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Devices().Save(ctx, &mqtmodels.PlantDevice{
		PlantID: "PNT-ABC123", OwnerID: "user-1", Password: "s3cret", MacAddress: "AA:BB:CC:DD:EE:01", Active: true,
	}))
	require.NoError(t, store.Devices().Save(ctx, &mqtmodels.PlantDevice{
		PlantID: "TEMP-E:02", MacAddress: "AA:BB:CC:DD:EE:02",
	}))

	return NewService(
		config.MQTTConfig{Username: "backend", Password: "backend-pass"},
		config.ProvisioningConfig{Username: "provision_user", Password: "provision_pass"},
		store.Devices(), logger.NewNop())
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"backend", "backend", "backend-pass", true},
		{"backend wrong password", "backend", "nope", false},
		{"provisioning", "provision_user", "provision_pass", true},
		{"provisioning wrong password", "provision_user", "backend-pass", false},
		{"claimed device", "PNT-ABC123", "s3cret", true},
		{"claimed device wrong password", "PNT-ABC123", "guess", false},
		{"unclaimed device has no credentials", "TEMP-E:02", "", false},
		{"unknown user", "mallory", "s3cret", false},
		{"empty username", "", "s3cret", false},
	}

	s := newService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Authenticate(context.Background(), tt.username, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		username string
		topic    string
		acc      Access
		want     bool
	}{
		{"backend reads telemetry", "backend", "planta/#", AccessSubscribe, true},
		{"backend publishes commands", "backend", "planta/PNT-ABC123/command/", AccessWrite, true},
		{"backend publishes provisioning", "backend", "control/provisioning/device/AA", AccessWrite, true},
		{"backend outside its tree", "backend", "$SYS/broker/uptime", AccessRead, false},

		{"provisioning announces", "provision_user", "control/provisioning/discovery", AccessWrite, true},
		{"provisioning waits for config", "provision_user", "control/provisioning/device/AA:BB", AccessSubscribe, true},
		{"provisioning waits for config via read", "provision_user", "control/provisioning/device/AA:BB", AccessRead, true},
		{"provisioning cannot publish config", "provision_user", "control/provisioning/device/AA:BB", AccessWrite, false},
		{"provisioning cannot read telemetry", "provision_user", "planta/#", AccessSubscribe, false},
		{"provisioning cannot wildcard all configs", "provision_user", "control/provisioning/device/#", AccessSubscribe, false},
		{"provisioning cannot single-level wildcard configs", "provision_user", "control/provisioning/device/+", AccessSubscribe, false},
		{"provisioning cannot read nested config levels", "provision_user", "control/provisioning/device/AA:BB/#", AccessRead, false},
		{"provisioning cannot subscribe the bare prefix", "provision_user", "control/provisioning/device/", AccessSubscribe, false},
		{"provisioning cannot publish beyond discovery", "provision_user", "control/provisioning/discovery/extra", AccessWrite, false},

		{"device publishes own data", "PNT-ABC123", "planta/PNT-ABC123/lecturas", AccessWrite, true},
		{"device subscribes own commands", "PNT-ABC123", "planta/PNT-ABC123/command/", AccessRead, true},
		{"device cannot publish elsewhere", "PNT-ABC123", "planta/PNT-OTHER0/lecturas", AccessWrite, false},
		{"device cannot read others", "PNT-ABC123", "planta/PNT-OTHER0/command/", AccessSubscribe, false},
		{"device cannot publish commands", "PNT-ABC123", "planta/PNT-ABC123/command/", AccessWrite, false},

		{"unclaimed device has no ACL", "TEMP-E:02", "planta/TEMP-E:02/lecturas", AccessWrite, false},
		{"unknown user", "mallory", "planta/#", AccessRead, false},
	}

	s := newService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Authorize(context.Background(), tt.username, tt.topic, tt.acc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticateWithHashedSharedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("provision_pass"), bcrypt.MinCost)
	require.NoError(t, err)

	s := NewService(
		config.MQTTConfig{Username: "backend", Password: "backend-pass"},
		config.ProvisioningConfig{Username: "provision_user", Password: string(hash)},
		memory.NewStore().Devices(), logger.NewNop())

	ok, err := s.Authenticate(context.Background(), "provision_user", "provision_pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Authenticate(context.Background(), "provision_user", string(hash))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchSecretRejectsEmptyConfiguredPassword(t *testing.T) {
	assert.False(t, matchSecret("", ""))
	assert.False(t, matchSecret("anything", ""))
}
