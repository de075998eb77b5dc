package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key prefix shared by every tradeflow key in Redis.
const DefaultPrefix = "tradeflow:"

// farFuture is the index score for documents without expiration (2100-01-01).
const farFuture = 4102444800

// Store implements ports.Store using Redis.
// Each document is a JSON string key; a sorted set indexes ids by expiry for List.
type Store[T any] struct {
	client    *backend.Client
	prefix    string
	namespace string
	ttl       time.Duration
}

// Option configures a Store.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets the expiration for stored documents.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// NewClient builds a go-redis client for the given address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewStore creates a Store keeping documents of one kind under prefix+namespace+":".
func NewStore[T any](client *backend.Client, namespace string, opts ...Option) *Store[T] {
	o := options{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		client:    client,
		prefix:    o.prefix,
		namespace: namespace,
		ttl:       o.ttl,
	}
}

func (s *Store[T]) key(id string) string {
	return s.prefix + s.namespace + ":" + id
}

func (s *Store[T]) indexKey() string {
	return s.prefix + s.namespace + ":index"
}

// Save persists the document to Redis.
func (s *Store[T]) Save(ctx context.Context, id string, doc *T) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", domain.ErrValidation)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the document from Redis.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var doc T
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete removes the document and its index entry.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns the ids of live documents, pruning expired index entries first.
func (s *Store[T]) List(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired documents: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}
