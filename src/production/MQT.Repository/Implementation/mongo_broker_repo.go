package implementation

import (
	"context"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoBrokerRepository struct {
	coll *mongo.Collection
}

func NewMongoBrokerRepository(coll *mongo.Collection) *MongoBrokerRepository {
	return &MongoBrokerRepository{coll: coll}
}

func (r *MongoBrokerRepository) FindActive(ctx context.Context) ([]mqtmodels.Broker, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "host", Value: 1}, {Key: "port", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"isActive": true}, opts)
	if err != nil {
		return nil, err
	}
	brokers := make([]mqtmodels.Broker, 0)
	if err := cur.All(ctx, &brokers); err != nil {
		return nil, err
	}
	return brokers, nil
}

func (r *MongoBrokerRepository) FindByID(ctx context.Context, id string) (*mqtmodels.Broker, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoBrokerRepository) FindByHost(ctx context.Context, host string) (*mqtmodels.Broker, error) {
	return r.findOne(ctx, bson.M{"host": host})
}

func (r *MongoBrokerRepository) findOne(ctx context.Context, filter bson.M) (*mqtmodels.Broker, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var broker mqtmodels.Broker
	if err := r.coll.FindOne(ctx, filter).Decode(&broker); err != nil {
		return nil, mapMongoError(err)
	}
	return &broker, nil
}

func (r *MongoBrokerRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *MongoBrokerRepository) Save(ctx context.Context, broker *mqtmodels.Broker) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if broker.ID == "" {
		broker.ID = primitive.NewObjectID().Hex()
		if broker.CreatedAt.IsZero() {
			broker.CreatedAt = time.Now().UTC()
		}
		_, err := r.coll.InsertOne(ctx, broker)
		return mapMongoError(err)
	}

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": broker.ID}, broker, options.Replace().SetUpsert(true))
	return mapMongoError(err)
}
