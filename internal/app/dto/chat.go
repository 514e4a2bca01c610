package dto

import (
	"time"

	"campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
)

// Conversation describes chat metadata.
type Conversation struct {
	ID           string    `json:"id"`
	ListingID    string    `json:"listing_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationHistory is the full ordered transcript of one thread.
type ConversationHistory struct {
	Conversation Conversation  `json:"conversation"`
	Messages     []ChatMessage `json:"messages"`
}

// InboxRow summarizes one conversation for the inbox screen.
type InboxRow struct {
	ConversationID    string    `json:"conversation_id"`
	ListingID         string    `json:"listing_id"`
	ListingName       string    `json:"listing_name,omitempty"`
	ListingPriceCents int64     `json:"listing_price_cents,omitempty"`
	OtherID           string    `json:"other_id"`
	OtherName         string    `json:"other_name,omitempty"`
	LastMessageBody   string    `json:"last_message_body"`
	LastMessageSender string    `json:"last_message_sender_id"`
	LastMessageAt     time.Time `json:"last_message_at"`
	Unread            int64     `json:"unread"`
}

// Inbox is the collection response for the inbox screen.
type Inbox struct {
	Items []InboxRow `json:"items"`
}

// UnreadBadge carries the total unread count for the nav badge.
type UnreadBadge struct {
	Unread int64 `json:"unread"`
}

// ReadReceipt reports how many messages a mark-read call flipped.
type ReadReceipt struct {
	ConversationID string `json:"conversation_id"`
	Marked         int64  `json:"marked"`
}

func MapConversation(conversation *domainchat.Conversation) Conversation {
	if conversation == nil {
		return Conversation{}
	}
	pair := conversation.Pair()
	return Conversation{
		ID:           string(conversation.ID),
		ListingID:    string(conversation.ListingID),
		Participants: []string{string(pair.Lo), string(pair.Hi)},
		CreatedAt:    conversation.CreatedAt,
	}
}

func MapChatMessage(message *domainchat.Message) ChatMessage {
	if message == nil {
		return ChatMessage{}
	}
	return ChatMessage{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.SenderID),
		Body:           message.Body,
		Read:           message.Read,
		CreatedAt:      message.CreatedAt,
	}
}

func MapChatMessages(messages []domainchat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for i := range messages {
		out = append(out, MapChatMessage(&messages[i]))
	}
	return out
}

func MapInbox(summaries []chat.Summary) Inbox {
	items := make([]InboxRow, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, InboxRow{
			ConversationID:    string(summary.ConversationID),
			ListingID:         string(summary.ListingID),
			ListingName:       summary.ListingName,
			ListingPriceCents: summary.ListingPriceCents,
			OtherID:           string(summary.OtherID),
			OtherName:         summary.OtherName,
			LastMessageBody:   summary.LastMessageBody,
			LastMessageSender: string(summary.LastMessageSender),
			LastMessageAt:     summary.LastMessageAt,
			Unread:            summary.Unread,
		})
	}
	return Inbox{Items: items}
}
