package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/testutil"
)

func newMongoStore(t *testing.T) *MongoStore {
	t.Helper()

	uri := testutil.MongoURI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Connect(ctx, MongoConfig{URI: uri, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestMongoStore_InsertAndFind(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()
	db := "graphflow_test_" + uuid.NewString()[:8]

	res, err := s.InsertOne(ctx, db, "users", map[string]any{
		"name": "alice",
		"tags": []any{"a", "b"},
		"addr": map[string]any{"city": "Oslo"},
	})
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	// ObjectID приводится к hex-строке
	if len(res.InsertedID) != 24 {
		t.Errorf("InsertedID = %q, want 24-char hex", res.InsertedID)
	}

	docs, err := s.Find(ctx, db, "users", map[string]any{"name": "alice"}, 10)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len = %d, want 1", len(docs))
	}
	if docs[0]["_id"] != res.InsertedID {
		t.Errorf("_id = %v, want %s", docs[0]["_id"], res.InsertedID)
	}
	if _, ok := docs[0]["addr"].(map[string]any); !ok {
		t.Errorf("nested doc type = %T", docs[0]["addr"])
	}
	if _, ok := docs[0]["tags"].([]any); !ok {
		t.Errorf("array type = %T", docs[0]["tags"])
	}
}

func TestMongoStore_FindLimitAndEmpty(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()
	db := "graphflow_test_" + uuid.NewString()[:8]

	for i := 0; i < 4; i++ {
		if _, err := s.InsertOne(ctx, db, "items", map[string]any{"i": i}); err != nil {
			t.Fatalf("InsertOne() error = %v", err)
		}
	}

	docs, err := s.Find(ctx, db, "items", map[string]any{}, 2)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("limit 2: len = %d", len(docs))
	}

	docs, err = s.Find(ctx, db, "items", map[string]any{}, 0)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 4 {
		t.Errorf("no limit: len = %d", len(docs))
	}

	docs, err = s.Find(ctx, db, "empty", map[string]any{}, 10)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("empty collection: %#v", docs)
	}
}
