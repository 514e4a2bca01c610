package memory

import (
	"context"
	"sort"
	"sync"

	domainchat "campusmarket/internal/domain/chat"
	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

type pairKey struct {
	listingID domainlisting.ID
	lo        domainuser.ID
	hi        domainuser.ID
}

// ChatStore keeps conversations and messages in memory. The single mutex
// gives the same atomicity the Mongo store gets from its unique index and
// filtered updates. Not suitable for production.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[domainchat.ConversationID]*domainchat.Conversation
	byPair        map[pairKey]domainchat.ConversationID
	messages      map[domainchat.ConversationID][]*domainchat.Message
	seq           map[domainchat.ConversationID]int64
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[domainchat.ConversationID]*domainchat.Conversation),
		byPair:        make(map[pairKey]domainchat.ConversationID),
		messages:      make(map[domainchat.ConversationID][]*domainchat.Message),
		seq:           make(map[domainchat.ConversationID]int64),
	}
}

func (s *ChatStore) Conversation(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conversation, ok := s.conversations[id]; ok {
		return cloneConversation(conversation), nil
	}
	return nil, domainchat.ErrConversationNotFound
}

func (s *ChatStore) FindByListingPair(ctx context.Context, listingID domainlisting.ID, pair domainchat.ParticipantPair) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{listingID: listingID, lo: pair.Lo, hi: pair.Hi}]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

func (s *ChatStore) CreateConversation(ctx context.Context, conversation *domainchat.Conversation) error {
	if conversation == nil {
		return domainchat.ErrIDRequired
	}
	pair := conversation.Pair()
	key := pairKey{listingID: conversation.ListingID, lo: pair.Lo, hi: pair.Hi}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPair[key]; ok {
		return domainchat.ErrConversationExists
	}
	if _, ok := s.conversations[conversation.ID]; ok {
		return domainchat.ErrConversationExists
	}
	s.byPair[key] = conversation.ID
	s.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, message *domainchat.Message) (*domainchat.Message, error) {
	if message == nil {
		return nil, domainchat.ErrMessageNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[message.ConversationID]; !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	s.seq[message.ConversationID]++
	stored := cloneMessage(message)
	stored.Seq = s.seq[message.ConversationID]
	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], stored)
	return cloneMessage(stored), nil
}

func (s *ChatStore) Messages(ctx context.Context, id domainchat.ConversationID) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[id]; !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	stored := s.messages[id]
	out := make([]domainchat.Message, 0, len(stored))
	for _, message := range stored {
		out = append(out, *cloneMessage(message))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ChatStore) MarkSeen(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return 0, domainchat.ErrConversationNotFound
	}
	var flipped int64
	for _, message := range s.messages[id] {
		if !message.Read && message.SenderID != viewer {
			message.Read = true
			flipped++
		}
	}
	return flipped, nil
}

func (s *ChatStore) UnreadCount(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[id]; !ok {
		return 0, domainchat.ErrConversationNotFound
	}
	return s.unreadLocked(id, viewer), nil
}

func (s *ChatStore) TotalUnread(ctx context.Context, viewer domainuser.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for id, conversation := range s.conversations {
		if conversation.HasParticipant(viewer) {
			total += s.unreadLocked(id, viewer)
		}
	}
	return total, nil
}

func (s *ChatStore) InboxEntries(ctx context.Context, viewer domainuser.ID) ([]domainchat.InboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domainchat.InboxEntry, 0)
	for id, conversation := range s.conversations {
		if !conversation.HasParticipant(viewer) {
			continue
		}
		latest := s.latestLocked(id)
		if latest == nil {
			continue
		}
		entries = append(entries, domainchat.InboxEntry{
			Conversation: *cloneConversation(conversation),
			LastMessage:  *cloneMessage(latest),
			Unread:       s.unreadLocked(id, viewer),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastMessage, entries[j].LastMessage
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.Seq > b.Seq
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return entries, nil
}

func (s *ChatStore) DeleteByListing(ctx context.Context, listingID domainlisting.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conversation := range s.conversations {
		if conversation.ListingID != listingID {
			continue
		}
		delete(s.messages, id)
		delete(s.seq, id)
		pair := conversation.Pair()
		delete(s.byPair, pairKey{listingID: listingID, lo: pair.Lo, hi: pair.Hi})
		delete(s.conversations, id)
	}
	return nil
}

func (s *ChatStore) unreadLocked(id domainchat.ConversationID, viewer domainuser.ID) int64 {
	var count int64
	for _, message := range s.messages[id] {
		if !message.Read && message.SenderID != viewer {
			count++
		}
	}
	return count
}

// latestLocked picks the single most recent message, so the projection
// yields exactly one row per conversation.
func (s *ChatStore) latestLocked(id domainchat.ConversationID) *domainchat.Message {
	var latest *domainchat.Message
	for _, message := range s.messages[id] {
		if latest == nil {
			latest = message
			continue
		}
		if message.CreatedAt.After(latest.CreatedAt) ||
			(message.CreatedAt.Equal(latest.CreatedAt) && message.Seq > latest.Seq) {
			latest = message
		}
	}
	return latest
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}

func cloneMessage(m *domainchat.Message) *domainchat.Message {
	if m == nil {
		return nil
	}
	copied := *m
	return &copied
}

var _ domainchat.Store = (*ChatStore)(nil)
