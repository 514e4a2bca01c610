package memory

import (
	"context"
	"sync"
	"time"

	"campusmarket/internal/infra/outbox"
)

// OutboxStore keeps pending events in memory. Events claimed by a worker
// are invisible to other claimers until marked failed.
type OutboxStore struct {
	mu   sync.Mutex
	docs map[string]*outbox.EventDocument
	// order preserves append order for fair draining.
	order []string
}

func NewOutboxStore() *OutboxStore {
	return &OutboxStore{docs: make(map[string]*outbox.EventDocument)}
}

func (s *OutboxStore) Append(ctx context.Context, doc *outbox.EventDocument) error {
	if doc == nil || doc.Name == "" {
		return outbox.ErrNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	if copied.Status == "" {
		copied.Status = outbox.StatusPending
	}
	s.docs[copied.ID] = &copied
	s.order = append(s.order, copied.ID)
	return nil
}

func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*outbox.EventDocument, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		doc, ok := s.docs[id]
		if !ok || doc.Status != outbox.StatusPending || doc.ClaimedBy != "" {
			continue
		}
		if doc.NextAttemptAt.After(now) {
			continue
		}
		doc.ClaimedBy = workerID
		copied := *doc
		return &copied, nil
	}
	return nil, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Status = outbox.StatusSent
		doc.ClaimedBy = ""
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Status = outbox.StatusPending
		doc.ClaimedBy = ""
		doc.Attempts++
		doc.NextAttemptAt = nextAttempt
		doc.LastError = reason
	}
	return nil
}

// Pending reports how many events still await publication; tests use it.
func (s *OutboxStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, doc := range s.docs {
		if doc.Status == outbox.StatusPending {
			count++
		}
	}
	return count
}

var _ outbox.Store = (*OutboxStore)(nil)
