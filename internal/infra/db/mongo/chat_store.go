package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "campusmarket/internal/domain/chat"
	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

// ChatStore persists conversations and messages. Conversation identity is
// guarded by a unique index over (listing_id, participant_lo,
// participant_hi); a lost insert race surfaces as
// chat.ErrConversationExists and the caller re-reads the winner.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewChatStore(db *mongo.Database) *ChatStore {
	return &ChatStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// EnsureIndexes creates the uniqueness guard and the retrieval indexes.
func (s *ChatStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "listing_id", Value: 1},
				{Key: "participant_lo", Value: 1},
				{Key: "participant_hi", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "participant_lo", Value: 1}}},
		{Keys: bson.D{{Key: "participant_hi", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "conversation_id", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "seq", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "conversation_id", Value: 1},
			{Key: "sender_id", Value: 1},
			{Key: "read", Value: 1},
		}},
	})
	return err
}

func (s *ChatStore) Conversation(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (s *ChatStore) FindByListingPair(ctx context.Context, listingID domainlisting.ID, pair domainchat.ParticipantPair) (*domainchat.Conversation, error) {
	filter := bson.M{
		"listing_id":     string(listingID),
		"participant_lo": string(pair.Lo),
		"participant_hi": string(pair.Hi),
	}
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (s *ChatStore) CreateConversation(ctx context.Context, conversation *domainchat.Conversation) error {
	if conversation == nil {
		return domainchat.ErrIDRequired
	}
	doc := newConversationDocument(conversation)
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return err
	}
	return nil
}

// AppendMessage allocates the next per-conversation sequence number with a
// single atomic $inc and inserts the message. The $inc also proves the
// conversation exists.
func (s *ChatStore) AppendMessage(ctx context.Context, message *domainchat.Message) (*domainchat.Message, error) {
	if message == nil {
		return nil, domainchat.ErrMessageNotFound
	}
	var conv conversationDocument
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": string(message.ConversationID)},
		bson.M{"$inc": bson.M{"message_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	stored := *message
	stored.Seq = conv.MessageSeq
	if _, err := s.messages.InsertOne(ctx, newMessageDocument(&stored)); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *ChatStore) Messages(ctx context.Context, id domainchat.ConversationID) ([]domainchat.Message, error) {
	if err := s.ensureConversation(ctx, id); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "seq", Value: 1},
	})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]domainchat.Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toAggregate())
	}
	return out, cursor.Err()
}

// MarkSeen is one filtered UpdateMany; the filter is evaluated at
// execution time, so a concurrently appended message stays unread.
func (s *ChatStore) MarkSeen(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) (int64, error) {
	if err := s.ensureConversation(ctx, id); err != nil {
		return 0, err
	}
	res, err := s.messages.UpdateMany(ctx,
		unreadFilter(id, viewer),
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *ChatStore) UnreadCount(ctx context.Context, id domainchat.ConversationID, viewer domainuser.ID) (int64, error) {
	if err := s.ensureConversation(ctx, id); err != nil {
		return 0, err
	}
	return s.messages.CountDocuments(ctx, unreadFilter(id, viewer))
}

func (s *ChatStore) TotalUnread(ctx context.Context, viewer domainuser.ID) (int64, error) {
	ids, err := s.conversationIDs(ctx, participantFilter(viewer))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.messages.CountDocuments(ctx, bson.M{
		"conversation_id": bson.M{"$in": ids},
		"sender_id":       bson.M{"$ne": string(viewer)},
		"read":            false,
	})
}

// InboxEntries groups the single latest message per conversation in the
// pipeline, so the projection yields exactly one row per conversation.
func (s *ChatStore) InboxEntries(ctx context.Context, viewer domainuser.ID) ([]domainchat.InboxEntry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: participantFilter(viewer)}},
		{{Key: "$lookup", Value: bson.M{
			"from": "messages",
			"let":  bson.M{"cid": "$_id"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{"$conversation_id", "$$cid"}}}},
				bson.M{"$sort": bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}},
				bson.M{"$limit": 1},
			},
			"as": "latest",
		}}},
		{{Key: "$unwind", Value: "$latest"}},
		{{Key: "$lookup", Value: bson.M{
			"from": "messages",
			"let":  bson.M{"cid": "$_id"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$conversation_id", "$$cid"}},
					bson.M{"$ne": bson.A{"$sender_id", string(viewer)}},
					bson.M{"$eq": bson.A{"$read", false}},
				}}}},
				bson.M{"$count": "n"},
			},
			"as": "unread",
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "latest.created_at", Value: -1},
			{Key: "latest.seq", Value: -1},
		}}},
	}
	cursor, err := s.conversations.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	type inboxRow struct {
		conversationDocument `bson:",inline"`
		Latest               messageDocument `bson:"latest"`
		Unread               []struct {
			N int64 `bson:"n"`
		} `bson:"unread"`
	}
	entries := make([]domainchat.InboxEntry, 0)
	for cursor.Next(ctx) {
		var row inboxRow
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		entry := domainchat.InboxEntry{
			Conversation: *row.conversationDocument.toAggregate(),
			LastMessage:  *row.Latest.toAggregate(),
		}
		if len(row.Unread) > 0 {
			entry.Unread = row.Unread[0].N
		}
		entries = append(entries, entry)
	}
	return entries, cursor.Err()
}

// DeleteByListing removes messages before their conversations so no
// orphaned message can survive a partial failure.
func (s *ChatStore) DeleteByListing(ctx context.Context, listingID domainlisting.ID) error {
	ids, err := s.conversationIDs(ctx, bson.M{"listing_id": string(listingID)})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": bson.M{"$in": ids}}); err != nil {
		return err
	}
	_, err = s.conversations.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (s *ChatStore) ensureConversation(ctx context.Context, id domainchat.ConversationID) error {
	err := s.conversations.FindOne(ctx, bson.M{"_id": string(id)},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domainchat.ErrConversationNotFound
	}
	return err
}

func (s *ChatStore) conversationIDs(ctx context.Context, filter bson.M) ([]string, error) {
	cursor, err := s.conversations.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	ids := make([]string, 0)
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

func unreadFilter(id domainchat.ConversationID, viewer domainuser.ID) bson.M {
	return bson.M{
		"conversation_id": string(id),
		"sender_id":       bson.M{"$ne": string(viewer)},
		"read":            false,
	}
}

func participantFilter(viewer domainuser.ID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"participant_lo": string(viewer)},
		bson.M{"participant_hi": string(viewer)},
	}}
}

type conversationDocument struct {
	ID             string `bson:"_id"`
	ListingID      string `bson:"listing_id"`
	ParticipantLo  string `bson:"participant_lo"`
	ParticipantHi  string `bson:"participant_hi"`
	InitiatorID    string `bson:"initiator_id"`
	CounterpartyID string `bson:"counterparty_id"`
	CreatedAt      int64  `bson:"created_at"`
	MessageSeq     int64  `bson:"message_seq"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	pair := c.Pair()
	return conversationDocument{
		ID:             string(c.ID),
		ListingID:      string(c.ListingID),
		ParticipantLo:  string(pair.Lo),
		ParticipantHi:  string(pair.Hi),
		InitiatorID:    string(c.Initiator),
		CounterpartyID: string(c.Counterparty),
		CreatedAt:      c.CreatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:           domainchat.ConversationID(d.ID),
		ListingID:    domainlisting.ID(d.ListingID),
		Initiator:    domainuser.ID(d.InitiatorID),
		Counterparty: domainuser.ID(d.CounterpartyID),
		CreatedAt:    timestampToTime(d.CreatedAt),
	}
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Body           string `bson:"body"`
	CreatedAt      int64  `bson:"created_at"`
	Read           bool   `bson:"read"`
	Seq            int64  `bson:"seq"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Body:           m.Body,
		CreatedAt:      m.CreatedAt.UnixMilli(),
		Read:           m.Read,
		Seq:            m.Seq,
	}
}

func (d messageDocument) toAggregate() *domainchat.Message {
	return &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       domainuser.ID(d.SenderID),
		Body:           d.Body,
		CreatedAt:      timestampToTime(d.CreatedAt),
		Read:           d.Read,
		Seq:            d.Seq,
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainchat.Store = (*ChatStore)(nil)
