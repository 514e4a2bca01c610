package chat

import (
	"errors"
	"strings"
	"time"

	"campusmarket/internal/domain/user"
)

var (
	ErrEmptyBody       = errors.New("chat: message body is empty")
	ErrSenderRequired  = errors.New("chat: sender is required")
	ErrMessageNotFound = errors.New("chat: message not found")
)

type MessageID string

// Message belongs to exactly one conversation. Read transitions only
// false -> true, and only through Store.MarkSeen by the non-sending
// participant. Seq is assigned by the store on append and breaks ordering
// ties between equal timestamps.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	Body           string
	CreatedAt      time.Time
	Read           bool
	Seq            int64
}

type MessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	Body           string
	Now            time.Time
}

func NewMessage(params MessageParams) (*Message, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.ConversationID)) == "" {
		return nil, ErrConversationNotFound
	}
	if strings.TrimSpace(string(params.SenderID)) == "" {
		return nil, ErrSenderRequired
	}
	body := strings.TrimSpace(params.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             MessageID(id),
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Body:           body,
		CreatedAt:      now.UTC(),
		Read:           false,
	}, nil
}
