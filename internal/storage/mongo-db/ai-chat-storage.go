package mongo_db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "chat_contexts"
	connectTimeout = 10 * time.Second
)

type chatDocument struct {
	ChatID    string    `bson:"chat_id"`
	Context   string    `bson:"context"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type AIChatStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewAIChatStorage(ctx context.Context, uri, database string, log *slog.Logger) (*AIChatStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)
	_, err = collection.Indexes().CreateOne(
		ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "chat_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	)
	if err != nil {
		log.Warn("creating chat_id index", sl.Err(err))
	}

	return &AIChatStorage{
		client:     client,
		collection: collection,
		log:        log.With(sl.Module("mongo-storage")),
	}, nil
}

func (a *AIChatStorage) GetConversation(ctx context.Context, chatKey string) (model.Conversation, error) {
	var doc chatDocument
	err := a.collection.FindOne(ctx, bson.M{"chat_id": chatKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Conversation{}, nil
		}
		return nil, fmt.Errorf("failed to find chat %s: %w", chatKey, err)
	}
	conversation, err := model.DecodeConversation([]byte(doc.Context))
	if err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", chatKey, err)
	}
	return conversation, nil
}

func (a *AIChatStorage) SetConversation(ctx context.Context, chatKey string, conversation model.Conversation) error {
	data, err := model.EncodeConversation(conversation)
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chatKey, err)
	}
	_, err = a.collection.UpdateOne(
		ctx,
		bson.M{"chat_id": chatKey},
		bson.M{"$set": bson.M{"context": string(data), "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat %s: %w", chatKey, err)
	}
	return nil
}

func (a *AIChatStorage) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
