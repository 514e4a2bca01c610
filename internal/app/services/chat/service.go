package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "campusmarket/internal/domain/chat"
	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

// EventRecorder appends a domain event to the outbox. Implementations must
// not block the request path on broker availability.
type EventRecorder interface {
	Record(ctx context.Context, name, aggregateID string, payload any) error
}

// Service implements the conversation core: resolving the unique thread
// for a (listing, pair) identity, appending ordered messages, tracking
// read state and projecting inbox rows.
type Service struct {
	Store    domainchat.Store
	Listings domainlisting.Repository
	Users    domainuser.Repository
	Events   EventRecorder
	Logger   *slog.Logger
}

// createAttempts bounds the lookup/insert loop; the second pass only runs
// after losing the uniqueness race, when the winner is already readable.
const createAttempts = 3

// Summary is one inbox row.
type Summary struct {
	ConversationID    domainchat.ConversationID
	ListingID         domainlisting.ID
	ListingName       string
	ListingPriceCents int64
	OtherID           domainuser.ID
	OtherName         string
	LastMessageBody   string
	LastMessageSender domainuser.ID
	LastMessageAt     time.Time
	Unread            int64
}

// FindOrCreate resolves the conversation between viewer and the listing's
// current seller, creating it at most once. Concurrent callers for the
// same pair converge on a single conversation: the loser of the insert
// race re-reads the winning row.
func (s *Service) FindOrCreate(ctx context.Context, listingID domainlisting.ID, viewerID domainuser.ID) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	item, err := s.Listings.ByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if item.SellerID == viewerID {
		return nil, domainchat.ErrInvalidParticipants
	}
	pair, err := domainchat.NewParticipantPair(viewerID, item.SellerID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		existing, err := s.Store.FindByListingPair(ctx, item.ID, pair)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil, err
		}

		conversation, err := domainchat.NewConversation(domainchat.CreateParams{
			ID:           domainchat.ConversationID(uuid.NewString()),
			ListingID:    item.ID,
			Initiator:    viewerID,
			Counterparty: item.SellerID,
			Now:          time.Now(),
		})
		if err != nil {
			return nil, err
		}
		err = s.Store.CreateConversation(ctx, conversation)
		if err == nil {
			s.record(ctx, "chat.conversation.created", string(conversation.ID), map[string]any{
				"conversation_id": conversation.ID,
				"listing_id":      conversation.ListingID,
				"initiator_id":    conversation.Initiator,
				"counterparty_id": conversation.Counterparty,
			})
			if s.Logger != nil {
				s.Logger.Info("conversation created",
					"conversation_id", conversation.ID,
					"listing_id", conversation.ListingID)
			}
			return conversation, nil
		}
		if !errors.Is(err, domainchat.ErrConversationExists) {
			return nil, err
		}
		// Lost the race; loop back and read the winner.
	}
	return nil, domainchat.ErrConversationExists
}

// Contact resolves (or creates) the conversation for the listing and
// appends the opening message in one call.
func (s *Service) Contact(ctx context.Context, listingID domainlisting.ID, viewerID domainuser.ID, body string) (*domainchat.Conversation, *domainchat.Message, error) {
	conversation, err := s.FindOrCreate(ctx, listingID, viewerID)
	if err != nil {
		return nil, nil, err
	}
	message, err := s.Append(ctx, conversation.ID, viewerID, body)
	if err != nil {
		return nil, nil, err
	}
	return conversation, message, nil
}

// Append persists a new message with read flag false.
func (s *Service) Append(ctx context.Context, conversationID domainchat.ConversationID, senderID domainuser.ID, body string) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversation, err := s.Store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, domainchat.ErrNotAParticipant
	}
	message, err := domainchat.NewMessage(domainchat.MessageParams{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Body:           body,
		Now:            time.Now(),
	})
	if err != nil {
		return nil, err
	}
	stored, err := s.Store.AppendMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "chat.message.appended", string(conversation.ID), map[string]any{
		"message_id":      stored.ID,
		"conversation_id": stored.ConversationID,
		"sender_id":       stored.SenderID,
		"created_at":      stored.CreatedAt,
	})
	return stored, nil
}

// View returns the full ordered history and marks everything the viewer
// had not seen as read. The mark applies to messages matching the filter
// at its own execution time, so a concurrent append stays unread.
func (s *Service) View(ctx context.Context, conversationID domainchat.ConversationID, viewerID domainuser.ID) ([]domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversation, err := s.Store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(viewerID) {
		return nil, domainchat.ErrNotAParticipant
	}
	messages, err := s.Store.Messages(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.MarkSeen(ctx, conversation.ID, viewerID); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSeen is the standalone read-state transition for polling callers.
// Idempotent: re-marking an already read conversation is a no-op.
func (s *Service) MarkSeen(ctx context.Context, conversationID domainchat.ConversationID, viewerID domainuser.ID) (int64, error) {
	if err := s.ensureDependencies(); err != nil {
		return 0, err
	}
	conversation, err := s.Store.Conversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.HasParticipant(viewerID) {
		return 0, domainchat.ErrNotAParticipant
	}
	return s.Store.MarkSeen(ctx, conversation.ID, viewerID)
}

// UnreadCount counts unread messages addressed to viewer in one
// conversation.
func (s *Service) UnreadCount(ctx context.Context, conversationID domainchat.ConversationID, viewerID domainuser.ID) (int64, error) {
	if err := s.ensureDependencies(); err != nil {
		return 0, err
	}
	conversation, err := s.Store.Conversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.HasParticipant(viewerID) {
		return 0, domainchat.ErrNotAParticipant
	}
	return s.Store.UnreadCount(ctx, conversation.ID, viewerID)
}

// TotalUnread sums unread counts over every conversation the viewer
// participates in; the badge endpoint polls this.
func (s *Service) TotalUnread(ctx context.Context, viewerID domainuser.ID) (int64, error) {
	if err := s.ensureDependencies(); err != nil {
		return 0, err
	}
	return s.Store.TotalUnread(ctx, viewerID)
}

// Inbox projects one summary row per conversation the viewer participates
// in, most recently active first.
func (s *Service) Inbox(ctx context.Context, viewerID domainuser.ID) ([]Summary, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	entries, err := s.Store.InboxEntries(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		other := entry.Conversation.OtherParticipant(viewerID)
		summary := Summary{
			ConversationID:    entry.Conversation.ID,
			ListingID:         entry.Conversation.ListingID,
			OtherID:           other,
			LastMessageBody:   entry.LastMessage.Body,
			LastMessageSender: entry.LastMessage.SenderID,
			LastMessageAt:     entry.LastMessage.CreatedAt,
			Unread:            entry.Unread,
		}
		if item, err := s.Listings.ByID(ctx, entry.Conversation.ListingID); err == nil {
			summary.ListingName = item.Name
			summary.ListingPriceCents = item.PriceCents
		} else if s.Logger != nil {
			s.Logger.Warn("inbox listing lookup failed",
				"listing_id", entry.Conversation.ListingID, "error", err)
		}
		if peer, err := s.Users.ByID(ctx, other); err == nil {
			summary.OtherName = peer.Name
		} else if s.Logger != nil {
			s.Logger.Warn("inbox user lookup failed", "user_id", other, "error", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RemoveListingThreads deletes every conversation for a listing, messages
// first. Invoked as part of permanent listing removal.
func (s *Service) RemoveListingThreads(ctx context.Context, listingID domainlisting.ID) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	return s.Store.DeleteByListing(ctx, listingID)
}

func (s *Service) record(ctx context.Context, name, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Record(ctx, name, aggregateID, payload); err != nil && s.Logger != nil {
		s.Logger.Warn("event record failed", "event", name, "aggregate_id", aggregateID, "error", err)
	}
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Store == nil:
		return errors.New("chat: store required")
	case s.Listings == nil:
		return errors.New("chat: listing repository required")
	case s.Users == nil:
		return errors.New("chat: user repository required")
	default:
		return nil
	}
}
