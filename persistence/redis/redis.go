// Package redis implements history.Persistence on top of Redis, grounded
// on the teacher's registry.resultStreamManager
// (registry/result_stream.go): an Options struct wrapping a *redis.Client
// plus a configurable TTL, JSON-encoded payloads, and key-scoped
// operations rather than a connection-per-call style.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goadesign/agentic-core/agentic/core"
)

// DefaultTTL is applied to a session's stored history when Options.TTL is
// zero. Zero TTL on the Redis key itself means no automatic expiry.
const DefaultTTL = 24 * time.Hour

// Options configures the Store.
type Options struct {
	Client    *redis.Client
	KeyPrefix string
	TTL       time.Duration
}

// Store implements history.Persistence on top of a Redis client.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New constructs a Store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis: client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "agentic:history:"
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: opts.Client, prefix: prefix, ttl: ttl}, nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// SaveMessages implements history.Persistence, overwriting the full
// message slice for sessionID and refreshing its TTL.
func (s *Store) SaveMessages(ctx context.Context, sessionID string, messages []core.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("redis: encode history for %q: %w", sessionID, err)
	}
	if err := s.rdb.Set(ctx, s.key(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save history for %q: %w", sessionID, err)
	}
	return nil
}

// LoadMessages implements history.Persistence. A missing key is not an
// error: it means the session has never been persisted.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	payload, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load history for %q: %w", sessionID, err)
	}
	var messages []core.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, fmt.Errorf("redis: decode history for %q: %w", sessionID, err)
	}
	return messages, nil
}
