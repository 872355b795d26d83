package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

type BrokerRepository interface {
	FindActive(ctx context.Context) ([]mqtmodels.Broker, error)
	FindByID(ctx context.Context, id string) (*mqtmodels.Broker, error)
	FindByHost(ctx context.Context, host string) (*mqtmodels.Broker, error)
	Count(ctx context.Context) (int64, error)

	// Save inserts when ID is empty and replaces otherwise
	Save(ctx context.Context, broker *mqtmodels.Broker) error
}
