package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConnectMongo opens a client and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo: empty URI")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes creates the indexes the chat store relies on. The
// partial unique index on pairKey is what keeps one single conversation per
// pair.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database, conversations string, messages string) error {
	collections := map[string][]mongo.IndexModel{
		conversations: {
			{
				Keys: bson.D{{Key: "pairKey", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("unique_single_pair").
					SetPartialFilterExpression(bson.D{{Key: "type", Value: "single"}}),
			},
			{
				Keys:    bson.D{{Key: "members", Value: 1}, {Key: "lastMessageAt", Value: -1}},
				Options: options.Index().SetName("members_activity"),
			},
		},
		messages: {
			{
				Keys:    bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}},
				Options: options.Index().SetName("conversation_history"),
			},
		},
	}
	for name, indexes := range collections {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo: create indexes on %s: %w", name, err)
		}
	}
	return nil
}
