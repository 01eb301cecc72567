// ABOUTME: MongoDB implementation of the Store interface using the official mongo-driver
// ABOUTME: Keeps conversations, messages and users in separate collections with per-conversation sequences

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements the Store interface on MongoDB.
//
// AppendMessage claims the sequence number, timestamp, summary and unread
// increment in a single atomic conversation update, then inserts the message
// document. Multi-document transactions need a replica set, so a failed insert
// after a successful claim leaves a summary pointing at a missing message
// until the next send or delete repairs it.
type MongoStore struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
	logger        *slog.Logger
}

type userDoc struct {
	ID          string    `bson:"_id"`
	Username    string    `bson:"username"`
	DisplayName string    `bson:"display_name"`
	AvatarURL   string    `bson:"avatar_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

type lastMessageDoc struct {
	MessageID string `bson:"message_id"`
	SenderID  string `bson:"sender_id"`
	Content   string `bson:"content"`
	CreatedAt int64  `bson:"created_at"`
}

type conversationDoc struct {
	ID           string          `bson:"_id"`
	ParticipantA string          `bson:"participant_a"`
	ParticipantB string          `bson:"participant_b"`
	Seq          int64           `bson:"seq"`
	LastTS       int64           `bson:"last_ts"`
	LastMessage  *lastMessageDoc `bson:"last_message,omitempty"`
	UnreadA      int             `bson:"unread_a"`
	UnreadB      int             `bson:"unread_b"`
	CreatedAt    int64           `bson:"created_at"`
}

type messageDoc struct {
	ID             string `bson:"_id"`
	Seq            int64  `bson:"seq"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Content        string `bson:"content"`
	CreatedAt      int64  `bson:"created_at"`
	DeletedAt      *int64 `bson:"deleted_at,omitempty"`
}

// NewMongoStore connects to MongoDB, verifies the connection and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	logger := slog.Default().With("component", "store")

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		users:         db.Collection("users"),
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		logger:        logger,
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("MongoDB store initialized", "database", database)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	if _, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participant_a", Value: 1}}},
		{Keys: bson.D{{Key: "participant_b", Value: 1}}},
	}); err != nil {
		return err
	}

	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	s.logger.Info("closing MongoDB store")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// UpsertUser inserts or replaces a user reference.
func (s *MongoStore) UpsertUser(ctx context.Context, user *User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{
			"$set": bson.M{
				"username":     user.Username,
				"display_name": user.DisplayName,
				"avatar_url":   user.AvatarURL,
			},
			"$setOnInsert": bson.M{"created_at": createdAt.UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *MongoStore) GetUser(ctx context.Context, id string) (*User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return &User{
		ID:          doc.ID,
		Username:    doc.Username,
		DisplayName: doc.DisplayName,
		AvatarURL:   doc.AvatarURL,
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}

// CreateConversation inserts a conversation document.
func (s *MongoStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	doc := conversationDoc{
		ID:           conv.ID,
		ParticipantA: conv.ParticipantA,
		ParticipantB: conv.ParticipantB,
		CreatedAt:    micros(conv.CreatedAt),
	}

	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

func (d *conversationDoc) toConversation() *Conversation {
	conv := &Conversation{
		ID:           d.ID,
		ParticipantA: d.ParticipantA,
		ParticipantB: d.ParticipantB,
		CreatedAt:    fromMicros(d.CreatedAt),
		UnreadCount: map[string]int{
			d.ParticipantA: d.UnreadA,
			d.ParticipantB: d.UnreadB,
		},
	}
	if d.LastMessage != nil {
		at := fromMicros(d.LastMessage.CreatedAt)
		conv.LastMessageAt = &at
		conv.LastMessage = &LastMessage{
			MessageID: d.LastMessage.MessageID,
			SenderID:  d.LastMessage.SenderID,
			Content:   d.LastMessage.Content,
			CreatedAt: at,
		}
	}
	return conv
}

// GetConversation retrieves a conversation by ID.
func (s *MongoStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var doc conversationDoc
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return doc.toConversation(), nil
}

// ListConversations returns the user's conversations ordered by activity.
func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "participant_a", Value: userID}},
			bson.D{{Key: "participant_b", Value: userID}},
		}}}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "activity", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$last_message.created_at", "$created_at"}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "activity", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := s.conversations.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var convs []*Conversation
	for cursor.Next(ctx) {
		var doc conversationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding conversation: %w", err)
		}
		convs = append(convs, doc.toConversation())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// incrementFor returns a pipeline expression adding one to field when
// participantField equals userID.
func incrementFor(field, participantField, userID string) bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$" + participantField, bson.D{{Key: "$literal", Value: userID}}}}},
		bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, 0}}}, 1}}},
		"$" + field,
	}}}
}

// zeroFor returns a pipeline expression zeroing field when participantField equals userID.
func zeroFor(field, participantField, userID string) bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$" + participantField, bson.D{{Key: "$literal", Value: userID}}}}},
		0,
		"$" + field,
	}}}
}

// AppendMessage claims a sequence number and timestamp on the conversation,
// refreshes its summary and unread counter, then inserts the message.
func (s *MongoStore) AppendMessage(ctx context.Context, msg *Message, recipientID string) error {
	now := micros(msg.CreatedAt)

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "seq", Value: bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$seq", 0}}}, 1}}}},
			{Key: "last_ts", Value: bson.D{{Key: "$max", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$last_ts", 0}}}, 1}}},
				now,
			}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "last_message", Value: bson.D{
				{Key: "message_id", Value: msg.ID},
				{Key: "sender_id", Value: msg.SenderID},
				{Key: "content", Value: bson.D{{Key: "$literal", Value: msg.Content}}},
				{Key: "created_at", Value: "$last_ts"},
			}},
			{Key: "unread_a", Value: incrementFor("unread_a", "participant_a", recipientID)},
			{Key: "unread_b", Value: incrementFor("unread_b", "participant_b", recipientID)},
		}}},
	}

	var conv conversationDoc
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": msg.ConversationID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("claiming message sequence: %w", err)
	}

	msg.Seq = conv.Seq
	msg.CreatedAt = fromMicros(conv.LastTS)

	doc := messageDoc{
		ID:             msg.ID,
		Seq:            msg.Seq,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      conv.LastTS,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"seq", msg.Seq)
	return nil
}

func (d *messageDoc) toMessage() *Message {
	msg := &Message{
		ID:             d.ID,
		Seq:            d.Seq,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		CreatedAt:      fromMicros(d.CreatedAt),
	}
	if d.DeletedAt != nil {
		at := fromMicros(*d.DeletedAt)
		msg.DeletedAt = &at
	}
	return msg
}

// GetMessage retrieves a message by ID, including soft-deleted ones.
func (s *MongoStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return doc.toMessage(), nil
}

// ListMessages returns a page of visible messages in ascending order.
func (s *MongoStore) ListMessages(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	if p.ConversationID == "" {
		return nil, errors.New("conversation_id required")
	}
	limit := normalizeLimit(p.Limit)

	filter := bson.M{
		"conversation_id": p.ConversationID,
		"deleted_at":      bson.M{"$exists": false},
	}
	if p.BeforeSeq > 0 {
		filter["seq"] = bson.M{"$lt": p.BeforeSeq}
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(limit + 1))

	cursor, err := s.messages.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	messages := make([]*Message, len(docs))
	for i := range docs {
		messages[len(docs)-1-i] = docs[i].toMessage()
	}
	return &HistoryResult{Messages: messages, HasMore: hasMore}, nil
}

// DeleteMessage soft-deletes a message and repairs the conversation summary.
func (s *MongoStore) DeleteMessage(ctx context.Context, id string, at time.Time) (bool, error) {
	var doc messageDoc
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "deleted_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"deleted_at": micros(at)}},
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetMessage(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting message: %w", err)
	}

	if err := s.recomputeSummary(ctx, doc.ConversationID, id); err != nil {
		return false, err
	}

	s.logger.Debug("deleted message", "id", id, "conversation_id", doc.ConversationID)
	return true, nil
}

// recomputeSummary replaces the summary only if it still points at deletedID.
func (s *MongoStore) recomputeSummary(ctx context.Context, conversationID, deletedID string) error {
	filter := bson.M{"_id": conversationID, "last_message.message_id": deletedID}

	var newest messageDoc
	err := s.messages.FindOne(ctx,
		bson.M{"conversation_id": conversationID, "deleted_at": bson.M{"$exists": false}},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&newest)

	var update bson.M
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		update = bson.M{"$unset": bson.M{"last_message": ""}}
	case err != nil:
		return fmt.Errorf("querying newest message: %w", err)
	default:
		update = bson.M{"$set": bson.M{"last_message": lastMessageDoc{
			MessageID: newest.ID,
			SenderID:  newest.SenderID,
			Content:   newest.Content,
			CreatedAt: newest.CreatedAt,
		}}}
	}

	if _, err := s.conversations.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("updating conversation summary: %w", err)
	}
	return nil
}

// ResetUnread zeroes a participant's unread counter and returns the previous value.
func (s *MongoStore) ResetUnread(ctx context.Context, conversationID, userID string) (int, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "unread_a", Value: zeroFor("unread_a", "participant_a", userID)},
			{Key: "unread_b", Value: zeroFor("unread_b", "participant_b", userID)},
		}}},
	}

	var before conversationDoc
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resetting unread counter: %w", err)
	}

	switch userID {
	case before.ParticipantA:
		return before.UnreadA, nil
	case before.ParticipantB:
		return before.UnreadB, nil
	default:
		return 0, nil
	}
}

// UnreadCounts returns the non-zero unread counters for a user.
func (s *MongoStore) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"participant_a": userID, "unread_a": bson.M{"$gt": 0}},
		bson.M{"participant_b": userID, "unread_b": bson.M{"$gt": 0}},
	}}

	cursor, err := s.conversations.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying unread counters: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int)
	for cursor.Next(ctx) {
		var doc conversationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding conversation: %w", err)
		}
		if doc.ParticipantA == userID {
			counts[doc.ID] = doc.UnreadA
		} else {
			counts[doc.ID] = doc.UnreadB
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating unread counters: %w", err)
	}
	return counts, nil
}

var _ Store = (*MongoStore)(nil)
