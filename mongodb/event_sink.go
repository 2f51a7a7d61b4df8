package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/veloursalon/websec/domain"
)

// eventRetention is how long forwarded events stay queryable before the
// TTL index reaps them.
const eventRetention = 90 * 24 * time.Hour

// EventSink implements seclog.Sink on a MongoDB collection.
type EventSink struct {
	collection *mongo.Collection
}

// NewEventSink creates the sink and ensures its indexes.
func NewEventSink(ctx context.Context, db *mongo.Database) (*EventSink, error) {
	sink := &EventSink{collection: db.Collection(EventsCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(eventRetention / time.Second)),
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "source_ip", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "severity", Value: 1}},
		},
	}

	if _, err := sink.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		// Indexes may already exist with different options; forwarding
		// still works without them.
		log.Warn().Err(err).Msg("Issue creating indexes for security_events collection")
	}

	return sink, nil
}

// Store implements seclog.Sink. The caller already treats errors as
// best-effort diagnostics.
func (s *EventSink) Store(ctx context.Context, event domain.SecurityEvent) error {
	_, err := s.collection.InsertOne(ctx, event)
	return err
}
