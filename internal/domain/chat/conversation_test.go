package chat

import (
	"errors"
	"testing"
	"time"

	"campusmarket/internal/domain/user"
)

func TestNewParticipantPairCanonicalOrder(t *testing.T) {
	t.Parallel()

	ab, err := NewParticipantPair("alice", "bob")
	if err != nil {
		t.Fatalf("pair(alice, bob): %v", err)
	}
	ba, err := NewParticipantPair("bob", "alice")
	if err != nil {
		t.Fatalf("pair(bob, alice): %v", err)
	}

	// Both argument orders map to the same canonical pair.
	if ab != ba {
		t.Errorf("expected identical pairs, got %+v and %+v", ab, ba)
	}
	if ab.Lo != "alice" || ab.Hi != "bob" {
		t.Errorf("expected lexicographic order (alice, bob), got (%s, %s)", ab.Lo, ab.Hi)
	}
}

func TestNewParticipantPairRejectsDegeneratePairs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b string
	}{
		{"same user", "alice", "alice"},
		{"empty first", "", "bob"},
		{"empty second", "alice", ""},
		{"whitespace only", "  ", "bob"},
	}
	for _, tc := range cases {
		if _, err := NewParticipantPair(user.ID(tc.a), user.ID(tc.b)); !errors.Is(err, ErrInvalidParticipants) {
			t.Errorf("%s: expected ErrInvalidParticipants, got %v", tc.name, err)
		}
	}
}

func TestParticipantPairOther(t *testing.T) {
	t.Parallel()

	pair, err := NewParticipantPair("buyer", "seller")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if other := pair.Other("buyer"); other != "seller" {
		t.Errorf("expected seller, got %q", other)
	}
	if other := pair.Other("seller"); other != "buyer" {
		t.Errorf("expected buyer, got %q", other)
	}
	if other := pair.Other("stranger"); other != "" {
		t.Errorf("expected empty peer for non-participant, got %q", other)
	}
}

func TestNewConversationValidation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conversation, err := NewConversation(CreateParams{
		ID:           "conv-1",
		ListingID:    "listing-1",
		Initiator:    "buyer",
		Counterparty: "seller",
		Now:          now,
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if !conversation.HasParticipant("buyer") || !conversation.HasParticipant("seller") {
		t.Error("expected both parties to be participants")
	}
	if conversation.HasParticipant("stranger") {
		t.Error("stranger must not be a participant")
	}
	if !conversation.CreatedAt.Equal(now) {
		t.Errorf("expected CreatedAt %v, got %v", now, conversation.CreatedAt)
	}

	if _, err := NewConversation(CreateParams{ID: "conv-2", ListingID: "listing-1", Initiator: "solo", Counterparty: "solo"}); !errors.Is(err, ErrInvalidParticipants) {
		t.Errorf("expected ErrInvalidParticipants for self-conversation, got %v", err)
	}
	if _, err := NewConversation(CreateParams{ID: "conv-3", Initiator: "a", Counterparty: "b"}); !errors.Is(err, ErrListingRequired) {
		t.Errorf("expected ErrListingRequired, got %v", err)
	}
}

func TestNewMessageValidation(t *testing.T) {
	t.Parallel()

	message, err := NewMessage(MessageParams{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "buyer",
		Body:           "  is this still available?  ",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if message.Body != "is this still available?" {
		t.Errorf("expected trimmed body, got %q", message.Body)
	}
	if message.Read {
		t.Error("new message must start unread")
	}

	if _, err := NewMessage(MessageParams{ID: "msg-2", ConversationID: "conv-1", SenderID: "buyer", Body: "   "}); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
	if _, err := NewMessage(MessageParams{ID: "msg-3", ConversationID: "conv-1", Body: "hi"}); !errors.Is(err, ErrSenderRequired) {
		t.Errorf("expected ErrSenderRequired, got %v", err)
	}
}
