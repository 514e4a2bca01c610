package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"campusmarket/internal/domain/listing"
	"campusmarket/internal/domain/user"
)

var (
	ErrIDRequired           = errors.New("chat: conversation id is required")
	ErrListingRequired      = errors.New("chat: listing id is required")
	ErrInvalidParticipants  = errors.New("chat: conversation requires two distinct participants")
	ErrNotAParticipant      = errors.New("chat: not a conversation participant")
	ErrConversationNotFound = errors.New("chat: conversation not found")
	// ErrConversationExists signals that a concurrent creator won the
	// uniqueness guard; callers re-read the winning row instead of
	// surfacing it.
	ErrConversationExists = errors.New("chat: conversation already exists")
)

type ConversationID string

// ParticipantPair is the canonical, order-independent identity of the two
// parties of a conversation. Lo and Hi are the participant ids sorted
// lexicographically, so {A,B} and {B,A} map to the same pair.
type ParticipantPair struct {
	Lo user.ID
	Hi user.ID
}

func NewParticipantPair(a, b user.ID) (ParticipantPair, error) {
	first := user.ID(strings.TrimSpace(string(a)))
	second := user.ID(strings.TrimSpace(string(b)))
	if first == "" || second == "" || first == second {
		return ParticipantPair{}, ErrInvalidParticipants
	}
	if second < first {
		first, second = second, first
	}
	return ParticipantPair{Lo: first, Hi: second}, nil
}

func (p ParticipantPair) Contains(id user.ID) bool {
	return id != "" && (p.Lo == id || p.Hi == id)
}

// Other returns the participant that is not id.
func (p ParticipantPair) Other(id user.ID) user.ID {
	switch id {
	case p.Lo:
		return p.Hi
	case p.Hi:
		return p.Lo
	default:
		return ""
	}
}

// Conversation is the unique thread between two users about one listing.
// Initiator and Counterparty record who reached out first and who was the
// seller at creation time; that split is display-only, identity is the
// canonical pair.
type Conversation struct {
	ID           ConversationID
	ListingID    listing.ID
	Initiator    user.ID
	Counterparty user.ID
	CreatedAt    time.Time
}

type CreateParams struct {
	ID           ConversationID
	ListingID    listing.ID
	Initiator    user.ID
	Counterparty user.ID
	Now          time.Time
}

func NewConversation(params CreateParams) (*Conversation, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	listingID := strings.TrimSpace(string(params.ListingID))
	if listingID == "" {
		return nil, ErrListingRequired
	}
	if _, err := NewParticipantPair(params.Initiator, params.Counterparty); err != nil {
		return nil, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Conversation{
		ID:           ConversationID(id),
		ListingID:    listing.ID(listingID),
		Initiator:    params.Initiator,
		Counterparty: params.Counterparty,
		CreatedAt:    now.UTC(),
	}, nil
}

func (c *Conversation) Pair() ParticipantPair {
	pair, _ := NewParticipantPair(c.Initiator, c.Counterparty)
	return pair
}

func (c *Conversation) HasParticipant(id user.ID) bool {
	return c.Pair().Contains(id)
}

// OtherParticipant returns the peer of viewer, or empty when viewer is not
// part of the conversation.
func (c *Conversation) OtherParticipant(viewer user.ID) user.ID {
	return c.Pair().Other(viewer)
}

// InboxEntry is one row of the inbox projection: a conversation, its most
// recent message and the viewer's unread count.
type InboxEntry struct {
	Conversation Conversation
	LastMessage  Message
	Unread       int64
}

// Store persists conversations and their messages. Implementations must
// make CreateConversation atomic under the (listing, canonical pair)
// uniqueness guard and evaluate MarkSeen's filter at execution time.
type Store interface {
	Conversation(ctx context.Context, id ConversationID) (*Conversation, error)
	FindByListingPair(ctx context.Context, listingID listing.ID, pair ParticipantPair) (*Conversation, error)
	// CreateConversation inserts the conversation, returning
	// ErrConversationExists when another creation for the same listing and
	// pair already committed.
	CreateConversation(ctx context.Context, conversation *Conversation) error
	AppendMessage(ctx context.Context, message *Message) (*Message, error)
	// Messages returns the full history in canonical ascending order:
	// created_at, ties broken by insertion sequence.
	Messages(ctx context.Context, id ConversationID) ([]Message, error)
	// MarkSeen flips read on every message of the conversation that was
	// sent by someone other than viewer and is still unread. Returns the
	// number of messages transitioned.
	MarkSeen(ctx context.Context, id ConversationID, viewer user.ID) (int64, error)
	UnreadCount(ctx context.Context, id ConversationID, viewer user.ID) (int64, error)
	TotalUnread(ctx context.Context, viewer user.ID) (int64, error)
	// InboxEntries returns one entry per conversation viewer participates
	// in, most recent activity first. Conversations without messages are
	// omitted.
	InboxEntries(ctx context.Context, viewer user.ID) ([]InboxEntry, error)
	// DeleteByListing removes every conversation for the listing together
	// with its messages (messages first).
	DeleteByListing(ctx context.Context, listingID listing.ID) error
}
