package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusmarket/internal/infra/outbox"
)

// OutboxStore persists domain events until the worker publishes them.
// Claim is a FindOneAndUpdate, so concurrent workers never double-claim.
type OutboxStore struct {
	col *mongo.Collection
}

func NewOutboxStore(db *mongo.Database) *OutboxStore {
	return &OutboxStore{col: db.Collection("outbox_events")}
}

func (s *OutboxStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "next_attempt_at", Value: 1},
		},
	})
	return err
}

func (s *OutboxStore) Append(ctx context.Context, doc *outbox.EventDocument) error {
	if doc == nil || doc.Name == "" {
		return outbox.ErrNameRequired
	}
	_, err := s.col.InsertOne(ctx, newEventDocument(doc))
	return err
}

func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*outbox.EventDocument, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"status":          string(outbox.StatusPending),
		"claimed_by":      "",
		"next_attempt_at": bson.M{"$lte": now.UnixMilli()},
	}
	update := bson.M{"$set": bson.M{"claimed_by": workerID}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc eventDocument
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toEvent(), nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     string(outbox.StatusSent),
		"claimed_by": "",
	}})
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":          string(outbox.StatusPending),
			"claimed_by":      "",
			"next_attempt_at": nextAttempt.UTC().UnixMilli(),
			"last_error":      reason,
		},
		"$inc": bson.M{"attempts": 1},
	})
	return err
}

type eventDocument struct {
	ID            string            `bson:"_id"`
	Name          string            `bson:"name"`
	Aggregate     string            `bson:"aggregate"`
	Payload       []byte            `bson:"payload"`
	Headers       map[string]string `bson:"headers,omitempty"`
	OccurredAt    int64             `bson:"occurred_at"`
	Status        string            `bson:"status"`
	Attempts      int               `bson:"attempts"`
	NextAttemptAt int64             `bson:"next_attempt_at"`
	LastError     string            `bson:"last_error,omitempty"`
	ClaimedBy     string            `bson:"claimed_by"`
}

func newEventDocument(e *outbox.EventDocument) eventDocument {
	status := e.Status
	if status == "" {
		status = outbox.StatusPending
	}
	return eventDocument{
		ID:            e.ID,
		Name:          e.Name,
		Aggregate:     e.Aggregate,
		Payload:       e.Payload,
		Headers:       e.Headers,
		OccurredAt:    e.OccurredAt.UnixMilli(),
		Status:        string(status),
		Attempts:      e.Attempts,
		NextAttemptAt: e.NextAttemptAt.UnixMilli(),
		LastError:     e.LastError,
		ClaimedBy:     e.ClaimedBy,
	}
}

func (d eventDocument) toEvent() *outbox.EventDocument {
	return &outbox.EventDocument{
		ID:            d.ID,
		Name:          d.Name,
		Aggregate:     d.Aggregate,
		Payload:       d.Payload,
		Headers:       d.Headers,
		OccurredAt:    timestampToTime(d.OccurredAt),
		Status:        outbox.Status(d.Status),
		Attempts:      d.Attempts,
		NextAttemptAt: timestampToTime(d.NextAttemptAt),
		LastError:     d.LastError,
		ClaimedBy:     d.ClaimedBy,
	}
}

var _ outbox.Store = (*OutboxStore)(nil)
