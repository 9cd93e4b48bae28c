package estuary

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/anonwell/maskpipe/pkg/config"
	"github.com/anonwell/maskpipe/pkg/events"
)

// MongoEndpoint writes pending updates to the target collection as one
// bulk upsert per batch.
type MongoEndpoint struct {
	db             string
	collectionName string
	client         *mongo.Client
	collection     *mongo.Collection
}

// NewMongoEndpoint connects to the target store and verifies the
// connection with a ping.
func NewMongoEndpoint(cfg *config.Config) (*MongoEndpoint, error) {
	clientOpts := options.Client().ApplyURI(cfg.Mongo.URI).SetRetryWrites(true)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connection failure: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("connection ping failure: %w", err)
	}

	collection := client.Database(cfg.Mongo.TargetDatabase).Collection(cfg.Mongo.TargetCollection)
	logger.Info().
		Str("database", cfg.Mongo.TargetDatabase).
		Str("collection", cfg.Mongo.TargetCollection).
		Msg("Connected to target MongoDB")

	return &MongoEndpoint{
		db:             cfg.Mongo.TargetDatabase,
		collectionName: cfg.Mongo.TargetCollection,
		client:         client,
		collection:     collection,
	}, nil
}

// WriteBatch issues one bulk write containing an upsert per update. The
// write is unordered: updates in a batch target distinct records by the
// time they are flushed, so order between them does not matter.
func (me *MongoEndpoint) WriteBatch(ctx context.Context, updates []events.PendingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	result, err := me.collection.BulkWrite(ctx, writeModels(updates), options.BulkWrite().SetOrdered(false))
	if err != nil {
		batchesFailed.Inc()
		return fmt.Errorf("bulk write failed: %w", err)
	}

	recordsSent.Add(float64(len(updates)))
	batchesFlushed.Inc()
	logger.Debug().
		Str("collection", me.collectionName).
		Int("batch_size", len(updates)).
		Int64("upserted", result.UpsertedCount).
		Int64("modified", result.ModifiedCount).
		Msg("Bulk write completed")
	return nil
}

// Close disconnects from the target store.
func (me *MongoEndpoint) Close(ctx context.Context) error {
	if me.client == nil {
		return nil
	}
	if err := me.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from target MongoDB: %w", err)
	}
	return nil
}

// writeModels maps pending updates to driver write models: a full-document
// replace upsert for ReplaceDocument, a $set upsert for SetFields.
func writeModels(updates []events.PendingUpdate) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(updates))
	for _, update := range updates {
		filter := bson.M{"_id": update.ID}
		switch update.Kind {
		case events.ReplaceDocument:
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(filter).
				SetReplacement(update.Document).
				SetUpsert(true))
		case events.SetFields:
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(filter).
				SetUpdate(bson.M{"$set": update.Fields}).
				SetUpsert(true))
		}
	}
	return models
}
