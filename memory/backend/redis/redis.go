// Package redis adapts a Redis server to the backend.Relational capability
// interface for durable deployments. Documents are stored as JSON strings
// with a per-namespace ID set for listing.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnemoslabs/mnemo-go/memory/backend"
)

// Options configures the Redis connection.
type Options struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis logical database.
	DB int

	// DialTimeout bounds connection establishment. Defaults to 5s.
	DialTimeout time.Duration
}

// Store implements backend.Relational on go-redis/v9.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Store{client: client}, nil
}

func docKey(namespace, id string) string {
	return fmt.Sprintf("mem:%s:doc:%s", namespace, id)
}

func idsKey(namespace string) string {
	return fmt.Sprintf("mem:%s:ids", namespace)
}

func (s *Store) Init(ctx context.Context, namespace string) error {
	// Redis needs no schema; the ID set is created lazily on first write.
	return nil
}

func (s *Store) Put(ctx context.Context, namespace string, doc backend.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, docKey(namespace, doc.ID), data, 0)
	pipe.SAdd(ctx, idsKey(namespace), doc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, namespace, id string) (backend.Document, error) {
	data, err := s.client.Get(ctx, docKey(namespace, id)).Bytes()
	if err == redis.Nil {
		return backend.Document{}, backend.ErrNotFound
	}
	if err != nil {
		return backend.Document{}, fmt.Errorf("read document: %w", err)
	}
	var doc backend.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return backend.Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, namespace, id string) (bool, error) {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, docKey(namespace, id))
	pipe.SRem(ctx, idsKey(namespace), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return del.Val() > 0, nil
}

func (s *Store) List(ctx context.Context, namespace string) ([]backend.Document, error) {
	ids, err := s.client.SMembers(ctx, idsKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(namespace, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}

	docs := make([]backend.Document, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// ID set member without a document key; skip the stale entry.
			continue
		}
		var doc backend.Document
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	ids, err := s.client.SMembers(ctx, idsKey(namespace)).Result()
	if err != nil {
		return fmt.Errorf("list ids: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, docKey(namespace, id))
	}
	keys = append(keys, idsKey(namespace))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
