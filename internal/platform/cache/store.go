package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store はキー付きTTLキャッシュの最小契約。
// 一覧系GETレスポンスの保存にだけ使う（Loan Engine側の読み取りは通さない）。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// ===== in-memory backend =====

type memEntry struct {
	val       []byte
	expiresAt time.Time
}

type MemoryStore struct {
	mu           sync.RWMutex
	entries      map[string]memEntry
	cleanupEvery time.Duration
}

type MemoryOption func(*MemoryStore)

func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[string]memEntry),
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(ent.expiresAt) {
		return nil, false, nil
	}
	return ent.val, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	s.mu.Lock()
	s.entries[key] = memEntry{val: cp, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) cleanup() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ent := range s.entries {
		if now.After(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor は期限切れエントリを定期削除するgoroutineを起動する。
// contextのキャンセルで停止。
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.cleanup()
			}
		}
	}()
}

// ===== redis backend =====

type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "libro:cache"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, s.key(key), val, ttl).Err()
}
