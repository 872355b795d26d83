package health

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	implementation "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Implementation"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens a client for cfg.Store.MongoURI and pings the primary
func ConnectMongo(ctx context.Context, cfg *config.GatewayConfig) (*mongo.Client, error) {
	uri := cfg.Store.MongoURI
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI environment variable not set")
	}

	clientOptions := options.Client().ApplyURI(uri)

	// Atlas requires TLS; local URIs opt in through the URI itself
	if strings.HasPrefix(uri, "mongodb+srv://") {
		clientOptions.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	clientOptions.SetServerSelectionTimeout(30 * time.Second)
	clientOptions.SetConnectTimeout(30 * time.Second)
	clientOptions.SetSocketTimeout(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %v", err)
	}

	return client, nil
}

// EnsureMongoIndexes creates the indexes the repositories rely on for
// uniqueness and for the latest-valid-reading lookup
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	devices := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "macAddress", Value: 1}},
			Options: options.Index().SetName("uniq_mac").SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "plantId", Value: 1}},
			Options: options.Index().SetName("uniq_active_plant").SetUnique(true).
				SetPartialFilterExpression(bson.M{"isActive": true}),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}},
			Options: options.Index().SetName("owner"),
		},
	}
	if _, err := db.Collection(implementation.DevicesCollection).Indexes().CreateMany(ctx, devices); err != nil {
		return fmt.Errorf("create device indexes: %w", err)
	}

	readings := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "plantId", Value: 1}, {Key: "qcStatus", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("plant_qc_ts"),
		},
		{
			Keys:    bson.D{{Key: "plantId", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("plant_ts"),
		},
	}
	if _, err := db.Collection(implementation.ReadingsCollection).Indexes().CreateMany(ctx, readings); err != nil {
		return fmt.Errorf("create reading indexes: %w", err)
	}

	brokers := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "host", Value: 1}},
			Options: options.Index().SetName("host"),
		},
	}
	if _, err := db.Collection(implementation.BrokersCollection).Indexes().CreateMany(ctx, brokers); err != nil {
		return fmt.Errorf("create broker indexes: %w", err)
	}
	return nil
}

// PingMongo checks if the MongoDB connection is healthy
func PingMongo(ctx context.Context, client *mongo.Client) error {
	if client == nil {
		return fmt.Errorf("mongo client is nil")
	}
	return client.Ping(ctx, readpref.Primary())
}
