package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "campusmarket/internal/domain/chat"
	domainuser "campusmarket/internal/domain/user"
)

func TestCreateConversationUniquenessGuard(t *testing.T) {
	t.Parallel()
	store := NewChatStore()
	ctx := context.Background()

	first, err := domainchat.NewConversation(domainchat.CreateParams{
		ID:           "conv-1",
		ListingID:    "bike",
		Initiator:    "buyer",
		Counterparty: "seller",
	})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if err := store.CreateConversation(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Same listing and pair, reversed participant order, different id.
	duplicate, err := domainchat.NewConversation(domainchat.CreateParams{
		ID:           "conv-2",
		ListingID:    "bike",
		Initiator:    "seller",
		Counterparty: "buyer",
	})
	if err != nil {
		t.Fatalf("new duplicate: %v", err)
	}
	if err := store.CreateConversation(ctx, duplicate); !errors.Is(err, domainchat.ErrConversationExists) {
		t.Errorf("expected ErrConversationExists, got %v", err)
	}

	// The same pair on a different listing is a distinct thread.
	other, err := domainchat.NewConversation(domainchat.CreateParams{
		ID:           "conv-3",
		ListingID:    "lamp",
		Initiator:    "buyer",
		Counterparty: "seller",
	})
	if err != nil {
		t.Fatalf("new other: %v", err)
	}
	if err := store.CreateConversation(ctx, other); err != nil {
		t.Errorf("different listing should not collide: %v", err)
	}

	pair, _ := domainchat.NewParticipantPair("seller", "buyer")
	found, err := store.FindByListingPair(ctx, "bike", pair)
	if err != nil {
		t.Fatalf("FindByListingPair: %v", err)
	}
	if found.ID != "conv-1" {
		t.Errorf("expected conv-1, got %s", found.ID)
	}
}

func TestAppendMessageAssignsSequence(t *testing.T) {
	t.Parallel()
	store := NewChatStore()
	ctx := context.Background()

	conversation, err := domainchat.NewConversation(domainchat.CreateParams{
		ID:           "conv-1",
		ListingID:    "bike",
		Initiator:    "buyer",
		Counterparty: "seller",
	})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if err := store.CreateConversation(ctx, conversation); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Equal timestamps force the tie onto the sequence number.
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, body := range []string{"one", "two", "three"} {
		message, err := domainchat.NewMessage(domainchat.MessageParams{
			ID:             domainchat.MessageID("msg-" + body),
			ConversationID: conversation.ID,
			SenderID:       "buyer",
			Body:           body,
			Now:            at,
		})
		if err != nil {
			t.Fatalf("new message %q: %v", body, err)
		}
		stored, err := store.AppendMessage(ctx, message)
		if err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
		if stored.Seq != int64(i+1) {
			t.Errorf("message %q: expected seq %d, got %d", body, i+1, stored.Seq)
		}
	}

	messages, err := store.Messages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	want := []string{"one", "two", "three"}
	for i, body := range want {
		if messages[i].Body != body {
			t.Errorf("position %d: expected %q, got %q", i, body, messages[i].Body)
		}
	}

	if _, err := store.AppendMessage(ctx, &domainchat.Message{ID: "orphan", ConversationID: "missing", SenderID: "buyer", Body: "x"}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound for orphan append, got %v", err)
	}
}

func TestMarkSeenOnlyFlipsCounterpartMessages(t *testing.T) {
	t.Parallel()
	store := NewChatStore()
	ctx := context.Background()

	conversation, err := domainchat.NewConversation(domainchat.CreateParams{
		ID:           "conv-1",
		ListingID:    "bike",
		Initiator:    "buyer",
		Counterparty: "seller",
	})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if err := store.CreateConversation(ctx, conversation); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, m := range []struct {
		id     string
		sender string
	}{
		{"m1", "buyer"},
		{"m2", "seller"},
		{"m3", "buyer"},
	} {
		message, err := domainchat.NewMessage(domainchat.MessageParams{
			ID:             domainchat.MessageID(m.id),
			ConversationID: conversation.ID,
			SenderID:       domainuser.ID(m.sender),
			Body:           "hi",
		})
		if err != nil {
			t.Fatalf("new message: %v", err)
		}
		if _, err := store.AppendMessage(ctx, message); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	flipped, err := store.MarkSeen(ctx, conversation.ID, "seller")
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if flipped != 2 {
		t.Errorf("expected 2 flipped, got %d", flipped)
	}
	// The seller's own message is still unread from the buyer's side.
	unread, err := store.UnreadCount(ctx, conversation.ID, "buyer")
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if unread != 1 {
		t.Errorf("expected 1 unread for buyer, got %d", unread)
	}
}
