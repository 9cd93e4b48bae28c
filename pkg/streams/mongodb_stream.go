package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/anonwell/maskpipe/pkg/config"
	"github.com/anonwell/maskpipe/pkg/events"
)

const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// MongoDBStream subscribes to the source collection's change stream and
// delivers normalized change events on its output channel.
type MongoDBStream struct {
	cfg    *config.Config
	client *mongo.Client
	out    chan<- events.ChangeEvent

	// resume is the token of the last event delivered in-process; the
	// subscription reopens from it after a feed-level error. It starts as
	// the persisted checkpoint, if any.
	resume  bson.Raw
	backoff *backoff
}

// NewMongoDBStream connects to the source store. resumeAfter may be nil, in
// which case the subscription starts from the current position.
func NewMongoDBStream(cfg *config.Config, resumeAfter bson.Raw, out chan<- events.ChangeEvent) (*MongoDBStream, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping source MongoDB: %w", err)
	}

	log.Info().
		Str("database", cfg.Mongo.Database).
		Str("collection", cfg.Mongo.SourceCollection).
		Bool("resuming", resumeAfter != nil).
		Msg("Connected to source MongoDB")

	return &MongoDBStream{
		cfg:     cfg,
		client:  client,
		out:     out,
		resume:  resumeAfter,
		backoff: newBackoff(reconnectInitialDelay, reconnectMaxDelay),
	}, nil
}

// Run watches the change stream until the context is cancelled, closing the
// output channel on exit. Subscription-level errors do not terminate the
// stream: the subscription is reopened from the last seen token after an
// exponential backoff.
func (s *MongoDBStream) Run(ctx context.Context) {
	defer close(s.out)
	collection := s.client.Database(s.cfg.Mongo.Database).Collection(s.cfg.Mongo.SourceCollection)

	for {
		cs, err := s.watch(ctx, collection)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Failed to open change stream")
			if !s.wait(ctx) {
				return
			}
			continue
		}
		s.backoff.Reset()

		err = s.consume(ctx, cs)
		cs.Close(context.Background())
		if ctx.Err() != nil {
			log.Info().Msg("Change stream closed")
			return
		}
		log.Error().Err(err).Msg("Change stream error, resubscribing")
		if !s.wait(ctx) {
			return
		}
	}
}

// Close disconnects from the source store.
func (s *MongoDBStream) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from source MongoDB: %w", err)
	}
	return nil
}

func (s *MongoDBStream) watch(ctx context.Context, collection *mongo.Collection) (*mongo.ChangeStream, error) {
	opts := options.ChangeStream()
	if s.resume != nil {
		opts = opts.SetResumeAfter(s.resume)
	}
	return collection.Watch(ctx, mongo.Pipeline{}, opts)
}

// consume iterates the change stream, delivering each decodable event.
func (s *MongoDBStream) consume(ctx context.Context, cs *mongo.ChangeStream) error {
	for cs.Next(ctx) {
		var changeEvent bson.M
		if err := cs.Decode(&changeEvent); err != nil {
			log.Error().Err(err).Msg("Failed to decode change event")
			continue
		}

		event := normalizeEvent(changeEvent, cs.ResumeToken())
		s.resume = event.ResumeToken

		select {
		case s.out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return cs.Err()
}

// normalizeEvent maps a raw change stream document to a ChangeEvent.
func normalizeEvent(changeEvent bson.M, token bson.Raw) events.ChangeEvent {
	operationType, _ := changeEvent["operationType"].(string)
	event := events.ChangeEvent{
		Action:      operationType,
		ResumeToken: token,
	}

	if key, ok := asDocument(changeEvent["documentKey"]); ok {
		event.ID = key["_id"]
	}
	if doc, ok := asDocument(changeEvent["fullDocument"]); ok {
		event.FullDocument = doc
	}
	if desc, ok := asDocument(changeEvent["updateDescription"]); ok {
		if updated, ok := asDocument(desc["updatedFields"]); ok {
			event.UpdatedFields = updated
		}
		event.RemovedFields = stringSlice(desc["removedFields"])
		// truncatedArrays is ignored: the schema has no arrays.
	}
	return event
}

// asDocument handles the different document types the driver might return:
// bson.M directly, plain maps, and ordered bson.D documents.
func asDocument(value interface{}) (bson.M, bool) {
	switch doc := value.(type) {
	case bson.M:
		return doc, true
	case map[string]interface{}:
		result := make(bson.M, len(doc))
		for k, v := range doc {
			result[k] = v
		}
		return result, true
	case bson.D:
		result := make(bson.M, len(doc))
		for _, elem := range doc {
			result[elem.Key] = elem.Value
		}
		return result, true
	default:
		return nil, false
	}
}

func stringSlice(value interface{}) []string {
	switch items := value.(type) {
	case []string:
		return items
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case bson.A:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// wait sleeps for the current backoff delay, returning false when the
// context is cancelled first.
func (s *MongoDBStream) wait(ctx context.Context) bool {
	delay := s.backoff.Next()
	log.Info().Dur("delay", delay).Msg("Waiting before resubscribing")
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
