package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-analyzer/internal/pkg/common"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoCollection = "recipe_chats"

// mongoChat recipe_chats 文件格式
type mongoChat struct {
	ID          string          `bson:"_id"`
	SessionID   string          `bson:"session_id"`
	Title       string          `bson:"title"`
	Ingredients string          `bson:"ingredients"`
	Recipes     []common.Recipe `bson:"recipes"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

func (d mongoChat) toRecord() ChatRecord {
	return ChatRecord{
		ID:          d.ID,
		SessionID:   d.SessionID,
		Title:       d.Title,
		Ingredients: d.Ingredients,
		Recipes:     d.Recipes,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// MongoStore 以 MongoDB 實作的文件儲存
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       storeOptions
}

// ConnectMongo 連線並確認可用
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoStore 建立儲存並確保索引存在
func NewMongoStore(ctx context.Context, client *mongo.Client, database string, opts ...Option) (*MongoStore, error) {
	collection := client.Database(database).Collection(mongoCollection)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create mongo indexes: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: collection,
		opts:       buildOptions(opts),
	}, nil
}

// Name 後端名稱
func (s *MongoStore) Name() string {
	return "mongo"
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// Save 建立新紀錄
func (s *MongoStore) Save(ctx context.Context, sessionID, ingredients string, recipes []common.Recipe, title string) (string, error) {
	now := s.opts.timestamp()
	doc := mongoChat{
		ID:          s.opts.newID(),
		SessionID:   sessionID,
		Title:       titleOrDefault(title),
		Ingredients: ingredients,
		Recipes:     recipes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}
	return doc.ID, nil
}

// GetSessionChats 取得 session 內所有紀錄
func (s *MongoStore) GetSessionChats(ctx context.Context, sessionID string) ([]ChatRecord, error) {
	return s.find(ctx, bson.M{"session_id": sessionID}, options.Find().SetSort(newestFirst))
}

// GetAllSessions 彙整所有 session
func (s *MongoStore) GetAllSessions(ctx context.Context) ([]SessionSummary, error) {
	projection := bson.M{"_id": 1, "session_id": 1, "title": 1, "created_at": 1}
	records, err := s.find(ctx, bson.M{}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, err
	}
	return groupSessions(records), nil
}

// GetRecentChats 取得最新的紀錄
func (s *MongoStore) GetRecentChats(ctx context.Context, limit int) ([]ChatRecord, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(int64(normalizeLimit(limit)))
	return s.find(ctx, bson.M{}, opts)
}

// GetChatByID 以 id 查詢
func (s *MongoStore) GetChatByID(ctx context.Context, id string) (*ChatRecord, error) {
	var doc mongoChat
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query chat: %w", err)
	}
	record := doc.toRecord()
	return &record, nil
}

// DeleteChat 刪除單筆紀錄
func (s *MongoStore) DeleteChat(ctx context.Context, id string) (bool, error) {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// DeleteSessionChats 刪除 session 內所有紀錄
func (s *MongoStore) DeleteSessionChats(ctx context.Context, sessionID string) (bool, error) {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return false, fmt.Errorf("delete session chats: %w", err)
	}
	return true, nil
}

// UpdateChat 部分更新紀錄內容
func (s *MongoStore) UpdateChat(ctx context.Context, id string, update ChatUpdate) (bool, error) {
	if update.Empty() {
		return false, nil
	}

	set := bson.M{"updated_at": s.opts.timestamp()}
	if update.Ingredients != nil {
		set["ingredients"] = *update.Ingredients
	}
	if update.Recipes != nil {
		set["recipes"] = *update.Recipes
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("update chat: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// UpdateSessionTitle 更新 session 內所有紀錄的標題
func (s *MongoStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) (bool, error) {
	result, err := s.collection.UpdateMany(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"title": title, "updated_at": s.opts.timestamp()}},
	)
	if err != nil {
		return false, fmt.Errorf("update session title: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// HealthCheck 檢查 MongoDB 連線
func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 中斷連線
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]ChatRecord, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoChat
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}

	records := make([]ChatRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.toRecord())
	}
	return records, nil
}
