package implementation

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoReadingRepository struct {
	coll *mongo.Collection
}

func NewMongoReadingRepository(coll *mongo.Collection) *MongoReadingRepository {
	return &MongoReadingRepository{coll: coll}
}

func (r *MongoReadingRepository) Insert(ctx context.Context, rd *mqtmodels.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	if rd.ID == "" {
		rd.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.coll.InsertOne(ctx, rd)
	return mapMongoError(err)
}

func (r *MongoReadingRepository) LatestValid(ctx context.Context, plantID string) (*mqtmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	filter := bson.M{"plantId": plantID, "qcStatus": mqtmodels.QcValid}
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var rd mqtmodels.Reading
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&rd); err != nil {
		return nil, mapMongoError(err)
	}
	return &rd, nil
}

func (r *MongoReadingRepository) ListByPlant(ctx context.Context, plantID string, page, pageSize int) (*interfaces.PaginationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	page, pageSize = normalizePage(page, pageSize)
	filter := bson.M{"plantId": plantID}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	readings := make([]mqtmodels.Reading, 0)
	if err := cur.All(ctx, &readings); err != nil {
		return nil, err
	}

	result := &interfaces.PaginationResult{Items: readings, Total: int(total)}
	if int64(page*pageSize) < total {
		next := page + 1
		result.NextPage = &next
	}
	return result, nil
}
