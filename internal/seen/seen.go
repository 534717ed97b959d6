// Package seen tracks which keys a daemon has already acted on, so that
// repeated polling notifies about each item once.
package seen

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Set records keys. Add reports whether the key was new.
type Set interface {
	Add(ctx context.Context, key string) (bool, error)
}

// MemorySet is a process-local Set. Its contents are lost on restart.
type MemorySet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemorySet creates an empty MemorySet
func NewMemorySet() *MemorySet {
	return &MemorySet{keys: make(map[string]struct{})}
}

// Add records key
func (s *MemorySet) Add(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

// Len returns the number of keys
func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// RedisSet keeps keys in a Redis set so they survive daemon restarts
type RedisSet struct {
	client *redis.Client
	name   string
}

// NewRedisSet creates a Set backed by the Redis set called name
func NewRedisSet(client *redis.Client, name string) *RedisSet {
	return &RedisSet{client: client, name: name}
}

// Add records key with SADD
func (s *RedisSet) Add(ctx context.Context, key string) (bool, error) {
	n, err := s.client.SAdd(ctx, s.name, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add %q to %s: %w", key, s.name, err)
	}
	return n == 1, nil
}

var (
	_ Set = (*MemorySet)(nil)
	_ Set = (*RedisSet)(nil)
)
