package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

const defaultRedisKey = "kit:preferences"

// RedisSource reads the preference document stored as JSON under one key.
type RedisSource struct {
	client *backend.Client
	key    string
}

// RedisOption configures a RedisSource.
type RedisOption func(*RedisSource)

// WithKey sets the key holding the preference document.
func WithKey(key string) RedisOption {
	return func(s *RedisSource) {
		if key != "" {
			s.key = key
		}
	}
}

// NewRedisSource connects to a Redis server.
func NewRedisSource(address, password string, db int, opts ...RedisOption) *RedisSource {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisSourceFromClient(client, opts...)
}

// NewRedisSourceFromClient wraps an existing client.
func NewRedisSourceFromClient(client *backend.Client, opts ...RedisOption) *RedisSource {
	s := &RedisSource{client: client, key: defaultRedisKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the key holding the preference document.
func (s *RedisSource) Key() string {
	return s.key
}

// Load fetches and decodes the preference document. A missing key yields
// Empty preferences.
func (s *RedisSource) Load(ctx context.Context) (Preferences, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return Empty(), nil
		}
		return Preferences{}, fmt.Errorf("prefs: redis get %s: %w", s.key, err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return Preferences{}, fmt.Errorf("prefs: parse redis value %s: %w", s.key, err)
	}
	return Decode(doc)
}

// Save stores p as the preference document. Operators seed preferences with
// it; tools only ever Load.
func (s *RedisSource) Save(ctx context.Context, p Preferences) error {
	data, err := json.Marshal(normalize(p))
	if err != nil {
		return fmt.Errorf("prefs: encode preferences: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("prefs: redis set %s: %w", s.key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

var _ Writer = (*RedisSource)(nil)
