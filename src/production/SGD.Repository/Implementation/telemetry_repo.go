package implementation

import (
	"context"
	"fmt"
	"time"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoTelemetryRepository struct {
	coll *mongo.Collection
}

func NewMongoTelemetryRepository(coll *mongo.Collection) *MongoTelemetryRepository {
	return &MongoTelemetryRepository{coll: coll}
}

// EnsureIndexes creates the (device_uid, log_time) index used by history queries
func (r *MongoTelemetryRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "device_uid", Value: 1}, {Key: "log_time", Value: 1}},
		Options: options.Index().SetName("device_uid_log_time"),
	})
	return err
}

func (r *MongoTelemetryRepository) InsertMany(ctx context.Context, logs []sgdmodels.TelemetryLog) error {
	if len(logs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	docs := make([]interface{}, 0, len(logs))
	for i := range logs {
		docs = append(docs, logs[i])
	}
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func (r *MongoTelemetryRepository) FindRange(ctx context.Context, deviceUID string, from, to time.Time) ([]sgdmodels.TelemetryLog, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, historyFilter(deviceUID, from, to), historyOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer cursor.Close(ctx)

	logs := make([]sgdmodels.TelemetryLog, 0)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode telemetry: %w", err)
	}
	return logs, nil
}

func (r *MongoTelemetryRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// historyFilter matches from <= log_time <= to for one device
func historyFilter(deviceUID string, from, to time.Time) bson.M {
	return bson.M{
		"device_uid": deviceUID,
		"log_time": bson.M{
			"$gte": from.UTC(),
			"$lte": to.UTC(),
		},
	}
}

func historyOptions() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "log_time", Value: 1}})
}
