package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

var ErrNameRequired = errors.New("outbox: event name is required")

// EventDocument is one stored domain event awaiting publication.
type EventDocument struct {
	ID            string
	Name          string
	Aggregate     string
	Payload       []byte
	Headers       map[string]string
	OccurredAt    time.Time
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	ClaimedBy     string
}

// Store persists outbox events. Claim hands out at most one due pending
// event per call and is safe for concurrent workers.
type Store interface {
	Append(ctx context.Context, doc *EventDocument) error
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error
}

// Recorder adapts a Store to the services' event-recording port.
type Recorder struct {
	Store Store
}

func (r Recorder) Record(ctx context.Context, name, aggregateID string, payload any) error {
	if r.Store == nil {
		return errors.New("outbox: recorder store not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return r.Store.Append(ctx, &EventDocument{
		ID:            uuid.NewString(),
		Name:          name,
		Aggregate:     aggregateID,
		Payload:       data,
		OccurredAt:    now,
		Status:        StatusPending,
		NextAttemptAt: now,
	})
}
