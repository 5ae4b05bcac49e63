package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultMongoURI — адрес MongoDB по умолчанию.
	DefaultMongoURI = "mongodb://localhost:27017"

	// DefaultTimeout — таймаут одной операции по умолчанию.
	DefaultTimeout = 10 * time.Second
)

// MongoConfig — конфигурация MongoStore.
type MongoConfig struct {
	// URI — строка подключения (по умолчанию DefaultMongoURI).
	URI string

	// Timeout — таймаут одной операции (по умолчанию DefaultTimeout).
	Timeout time.Duration

	Logger *slog.Logger
}

// MongoStore — DocumentStore поверх MongoDB.
type MongoStore struct {
	client  *mongo.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Connect подключается к MongoDB и проверяет соединение.
func Connect(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = DefaultMongoURI
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return NewMongoStore(client, cfg.Timeout, cfg.Logger), nil
}

// NewMongoStore создаёт MongoStore поверх готового клиента.
func NewMongoStore(client *mongo.Client, timeout time.Duration, logger *slog.Logger) *MongoStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoStore{client: client, timeout: timeout, logger: logger}
}

// Ping проверяет доступность MongoDB.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

// Close отключается от MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// InsertOne реализует DocumentStore.
func (s *MongoStore) InsertOne(ctx context.Context, database, collection string, document map[string]any) (InsertResult, error) {
	if err := checkNames("insertOne", database, collection); err != nil {
		return InsertResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.client.Database(database).Collection(collection).InsertOne(ctx, bson.M(document))
	if err != nil {
		return InsertResult{}, s.wrap("insertOne", database, collection, err)
	}

	id := formatID(res.InsertedID)
	s.logger.Debug("document inserted",
		slog.String("database", database),
		slog.String("collection", collection),
		slog.String("id", id),
	)
	return InsertResult{InsertedID: id}, nil
}

// Find реализует DocumentStore.
func (s *MongoStore) Find(ctx context.Context, database, collection string, filter map[string]any, limit int64) ([]map[string]any, error) {
	if err := checkNames("find", database, collection); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.client.Database(database).Collection(collection).Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, s.wrap("find", database, collection, err)
	}
	defer cur.Close(ctx)

	results := make([]map[string]any, 0)
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, s.wrap("find", database, collection, err)
		}
		results = append(results, normalizeValue(doc).(map[string]any))
	}
	if err := cur.Err(); err != nil {
		return nil, s.wrap("find", database, collection, err)
	}

	return results, nil
}

func (s *MongoStore) wrap(op, database, collection string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &StoreError{Op: op, Database: database, Collection: collection, Err: err}
}

// formatID приводит идентификатор документа к строке.
func formatID(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// normalizeValue приводит значения BSON к JSON-модели.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeValue(val)
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return x.String()
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return v
	}
}
