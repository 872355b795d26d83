package implementation

import (
	"context"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDeviceRepository struct {
	coll *mongo.Collection
}

func NewMongoDeviceRepository(coll *mongo.Collection) *MongoDeviceRepository {
	return &MongoDeviceRepository{coll: coll}
}

func (r *MongoDeviceRepository) FindByID(ctx context.Context, id string) (*mqtmodels.PlantDevice, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

// FindByPlantID prefers the active device, temporary ids of unclaimed devices may repeat
func (r *MongoDeviceRepository) FindByPlantID(ctx context.Context, plantID string) (*mqtmodels.PlantDevice, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "isActive", Value: -1}})
	return r.findOne(ctx, bson.M{"plantId": plantID}, opts)
}

func (r *MongoDeviceRepository) FindByMAC(ctx context.Context, mac string) (*mqtmodels.PlantDevice, error) {
	return r.findOne(ctx, bson.M{"macAddress": mac}, nil)
}

func (r *MongoDeviceRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*mqtmodels.PlantDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	if opts == nil {
		opts = options.FindOne()
	}
	var device mqtmodels.PlantDevice
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&device); err != nil {
		return nil, mapMongoError(err)
	}
	return &device, nil
}

func (r *MongoDeviceRepository) ExistsByPlantID(ctx context.Context, plantID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"plantId": plantID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MongoDeviceRepository) FindAvailable(ctx context.Context) ([]mqtmodels.PlantDevice, error) {
	return r.find(ctx, bson.M{
		"ownerId":    bson.M{"$exists": false},
		"macAddress": bson.M{"$exists": true, "$ne": ""},
	})
}

func (r *MongoDeviceRepository) FindByOwner(ctx context.Context, ownerID string) ([]mqtmodels.PlantDevice, error) {
	return r.find(ctx, bson.M{"ownerId": ownerID})
}

func (r *MongoDeviceRepository) find(ctx context.Context, filter bson.M) ([]mqtmodels.PlantDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	devices := make([]mqtmodels.PlantDevice, 0)
	if err := cur.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *MongoDeviceRepository) Save(ctx context.Context, device *mqtmodels.PlantDevice) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if device.ID == "" {
		device.ID = primitive.NewObjectID().Hex()
		if device.CreatedAt.IsZero() {
			device.CreatedAt = time.Now().UTC()
		}
		_, err := r.coll.InsertOne(ctx, device)
		if err != nil {
			device.ID = ""
		}
		return mapMongoError(err)
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": device.ID}, device)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *MongoDeviceRepository) TouchHeartbeat(ctx context.Context, plantID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	filter := bson.M{"plantId": plantID, "isActive": true}
	update := bson.M{"$set": bson.M{"lastDataReceived": at.UTC()}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
