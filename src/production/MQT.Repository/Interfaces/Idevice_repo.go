package interfaces

import (
	"context"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

type DeviceRepository interface {
	// Read devices
	FindByID(ctx context.Context, id string) (*mqtmodels.PlantDevice, error)
	FindByPlantID(ctx context.Context, plantID string) (*mqtmodels.PlantDevice, error)
	FindByMAC(ctx context.Context, mac string) (*mqtmodels.PlantDevice, error)
	ExistsByPlantID(ctx context.Context, plantID string) (bool, error)

	// Unclaimed devices that announced a MAC
	FindAvailable(ctx context.Context) ([]mqtmodels.PlantDevice, error)
	FindByOwner(ctx context.Context, ownerID string) ([]mqtmodels.PlantDevice, error)

	// Save inserts when ID is empty and replaces otherwise.
	// Returns ErrDuplicate on a MAC or active plant id collision.
	Save(ctx context.Context, device *mqtmodels.PlantDevice) error

	// TouchHeartbeat sets only the last-data timestamp of the active device,
	// leaving every other field as stored. Returns ErrNotFound when no active
	// device has plantID.
	TouchHeartbeat(ctx context.Context, plantID string, at time.Time) error
}
