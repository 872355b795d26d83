package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

// ReadingRepository is append-only, readings are never updated
type ReadingRepository interface {
	Insert(ctx context.Context, reading *mqtmodels.Reading) error

	// LatestValid returns the newest VALID reading of a plant, or ErrNotFound
	LatestValid(ctx context.Context, plantID string) (*mqtmodels.Reading, error)

	// ListByPlant pages readings newest first
	ListByPlant(ctx context.Context, plantID string, page, pageSize int) (*PaginationResult, error)
}
