// Command startup prepares the configured store before the gateway first
// runs: it creates the Postgres schema or the MongoDB indexes and exits.
package main

import (
	"context"
	"time"

	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Startup/health"
)

func main() {
	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		logger.NewLogger(&config.LoggingConfig{Level: "info", Format: "text"}).FatalWithError(err, "Failed to load configuration")
	}
	log := logger.NewLogger(&cfg.Logging).WithComponent("startup")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := health.ConnectPostgres(ctx, cfg)
		if err != nil {
			log.FatalWithError(err, "Error connecting to database")
		}
		defer db.Close()

		if err := health.CreateTables(ctx, db); err != nil {
			log.FatalWithError(err, "Error creating tables")
		}
		log.Logger.Info().Str("database", cfg.Store.Postgres.DBName).Msg("PostgreSQL schema ready")

	case config.StoreMongo:
		client, err := health.ConnectMongo(ctx, cfg)
		if err != nil {
			log.FatalWithError(err, "Error connecting to MongoDB")
		}
		defer client.Disconnect(context.Background())

		if err := health.EnsureMongoIndexes(ctx, client.Database(cfg.Store.Database)); err != nil {
			log.FatalWithError(err, "Error creating indexes")
		}
		log.Logger.Info().Str("database", cfg.Store.Database).Msg("MongoDB indexes ready")

	default:
		log.Logger.Info().Str("driver", cfg.Store.Driver).Msg("Nothing to prepare for this store driver")
	}
}
