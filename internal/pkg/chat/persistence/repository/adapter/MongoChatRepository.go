package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names shared with the index migration in infrastructure/database.
const (
	MongoConversations = "conversations"
	MongoMessages      = "messages"
)

// maxMutateAttempts bounds the optimistic retry loop in MutateConversation.
const maxMutateAttempts = 8

type conversationDoc struct {
	ID            string     `bson:"_id"`
	Kind          string     `bson:"type"`
	Name          string     `bson:"name,omitempty"`
	Members       []string   `bson:"members"`
	Admins        []string   `bson:"admins"`
	PairKey       string     `bson:"pairKey,omitempty"`
	LastMessageAt *time.Time `bson:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt"`
	Version       int64      `bson:"version"`
	// MessageSeq is the last sequence number handed to a message.
	MessageSeq int64 `bson:"messageSeq"`
}

type messageDoc struct {
	ID             string            `bson:"_id"`
	ConversationID string            `bson:"conversationId"`
	SenderID       string            `bson:"senderId"`
	Content        string            `bson:"content"`
	Attachments    []chat.Attachment `bson:"attachments"`
	SeenBy         []string          `bson:"seenBy"`
	CreatedAt      time.Time         `bson:"createdAt"`
	// Seq orders messages sharing a createdAt millisecond.
	Seq int64 `bson:"seq"`
}

// MongoChatRepository stores conversations with embedded member arrays, the
// same document shape the chat clients were built against.
type MongoChatRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewMongoChatRepository(db *mongo.Database) *MongoChatRepository {
	return &MongoChatRepository{
		conversations: db.Collection(MongoConversations),
		messages:      db.Collection(MongoMessages),
	}
}

var _ repository.ChatRepository = (*MongoChatRepository)(nil)

func (r *MongoChatRepository) InsertConversation(ctx context.Context, c *chat.Conversation) error {
	_, err := r.conversations.InsertOne(ctx, toConversationDoc(c))
	if mongo.IsDuplicateKeyError(err) {
		return chat.ErrConflict
	}
	return err
}

func (r *MongoChatRepository) FindSingle(ctx context.Context, userID string, otherUserID string) (*chat.Conversation, error) {
	return r.findOne(ctx, bson.D{
		{Key: "type", Value: string(chat.KindSingle)},
		{Key: "pairKey", Value: chat.PairKey(userID, otherUserID)},
	})
}

func (r *MongoChatRepository) GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: conversationID}})
}

func (r *MongoChatRepository) ListConversationIDsByMember(ctx context.Context, userID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.conversations.Find(ctx, bson.D{{Key: "members", Value: userID}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *MongoChatRepository) ListConversationsByMember(ctx context.Context, userID string) ([]chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "updatedAt", Value: -1}})
	cur, err := r.conversations.Find(ctx, bson.D{{Key: "members", Value: userID}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]chat.Conversation, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toDomain())
	}
	return out, nil
}

// MutateConversation is an optimistic read-modify-write: the write only lands
// if the version read is still current, otherwise fn runs again on fresh state.
func (r *MongoChatRepository) MutateConversation(ctx context.Context, conversationID string, fn repository.MutateFunc) (*chat.Conversation, chat.MutationOp, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		var doc conversationDoc
		err := r.conversations.FindOne(ctx, bson.D{{Key: "_id", Value: conversationID}}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.OpNone, chat.ErrNotFound
		}
		if err != nil {
			return nil, chat.OpNone, err
		}

		c := doc.toDomain()
		op, err := fn(c)
		if err != nil {
			return nil, chat.OpNone, err
		}
		guard := bson.D{{Key: "_id", Value: doc.ID}, {Key: "version", Value: doc.Version}}

		switch op {
		case chat.OpNone:
			return c, op, nil
		case chat.OpUpdate:
			res, err := r.conversations.UpdateOne(ctx, guard, bson.D{
				{Key: "$set", Value: bson.D{
					{Key: "name", Value: c.Name},
					{Key: "members", Value: c.Members.Slice()},
					{Key: "admins", Value: c.Admins.Slice()},
					{Key: "updatedAt", Value: c.UpdatedAt},
				}},
				{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
			})
			if err != nil {
				return nil, chat.OpNone, err
			}
			if res.MatchedCount == 0 {
				continue
			}
			return c, op, nil
		case chat.OpDelete:
			res, err := r.conversations.DeleteOne(ctx, guard)
			if err != nil {
				return nil, chat.OpNone, err
			}
			if res.DeletedCount == 0 {
				continue
			}
			// The conversation is already gone, so a failure here leaves
			// unreachable messages behind rather than a readable conversation.
			if _, err := r.messages.DeleteMany(ctx, bson.D{{Key: "conversationId", Value: doc.ID}}); err != nil {
				return nil, chat.OpNone, fmt.Errorf("mongo: purge messages of %s: %w", doc.ID, err)
			}
			return c, op, nil
		}
	}
	return nil, chat.OpNone, fmt.Errorf("mongo: conversation %s changed concurrently too many times", conversationID)
}

// SaveMessage reserves the next per-conversation sequence number (guarded by
// sender membership), inserts the message and only then advances the
// conversation's activity, so a failed insert leaves activity untouched.
func (r *MongoChatRepository) SaveMessage(ctx context.Context, m *chat.Message) error {
	var reserved struct {
		MessageSeq int64 `bson:"messageSeq"`
	}
	err := r.conversations.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: m.ConversationID}, {Key: "members", Value: m.SenderID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "messageSeq", Value: 1}}}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.D{{Key: "messageSeq", Value: 1}}),
	).Decode(&reserved)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, err := r.conversations.CountDocuments(ctx, bson.D{{Key: "_id", Value: m.ConversationID}})
		if err != nil {
			return err
		}
		if n == 0 {
			return chat.ErrNotFound
		}
		return chat.ErrForbidden
	}
	if err != nil {
		return err
	}

	if _, err := r.messages.InsertOne(ctx, messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Attachments:    copyAttachments(m.Attachments),
		SeenBy:         m.SeenBy.Slice(),
		CreatedAt:      m.CreatedAt,
		Seq:            reserved.MessageSeq,
	}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.ErrConflict
		}
		return err
	}

	_, err = r.conversations.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: m.ConversationID}},
		bson.D{{Key: "$max", Value: bson.D{
			{Key: "lastMessageAt", Value: m.CreatedAt},
			{Key: "updatedAt", Value: m.CreatedAt},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongo: advance activity of %s: %w", m.ConversationID, err)
	}
	return nil
}

func (r *MongoChatRepository) MarkSeen(ctx context.Context, conversationID string, userID string) (int64, error) {
	res, err := r.messages.UpdateMany(ctx,
		bson.D{
			{Key: "conversationId", Value: conversationID},
			{Key: "senderId", Value: bson.D{{Key: "$ne", Value: userID}}},
			{Key: "seenBy", Value: bson.D{{Key: "$ne", Value: userID}}},
		},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "seenBy", Value: userID}}}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoChatRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 30
	}
	if offset < 0 {
		offset = 0
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.messages.Find(ctx, bson.D{{Key: "conversationId", Value: conversationID}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, chat.Message{
			ID:             d.ID,
			ConversationID: d.ConversationID,
			SenderID:       d.SenderID,
			Content:        d.Content,
			Attachments:    copyAttachments(d.Attachments),
			SeenBy:         chat.NewIDSet(d.SeenBy...),
			CreatedAt:      d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *MongoChatRepository) findOne(ctx context.Context, filter bson.D) (*chat.Conversation, error) {
	var doc conversationDoc
	err := r.conversations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func toConversationDoc(c *chat.Conversation) conversationDoc {
	return conversationDoc{
		ID:            c.ID,
		Kind:          string(c.Kind),
		Name:          c.Name,
		Members:       c.Members.Slice(),
		Admins:        c.Admins.Slice(),
		PairKey:       c.PairKey(),
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (d *conversationDoc) toDomain() *chat.Conversation {
	c := &chat.Conversation{
		ID:        d.ID,
		Kind:      chat.Kind(d.Kind),
		Name:      d.Name,
		Members:   chat.NewIDSet(d.Members...),
		Admins:    chat.NewIDSet(d.Admins...),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.LastMessageAt != nil {
		ts := d.LastMessageAt.UTC()
		c.LastMessageAt = &ts
	}
	return c
}
