package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MessageSet remembers which messages already entered the pipeline.
// Reserve is an atomic check-then-insert: exactly one caller per key gets
// true until the key is forgotten.
type MessageSet interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Commit(ctx context.Context, key string) error
	Forget(ctx context.Context, key string) error
}

type entryState int

const (
	statePending entryState = iota + 1
	stateCommitted
)

type entry struct {
	state     entryState
	expiresAt time.Time
}

// MemorySet is a process-local MessageSet. A zero TTL keeps entries for the
// life of the process. Expired entries are swept from Reserve at most once
// per TTL period.
type MemorySet struct {
	mu        sync.Mutex
	entries   map[string]entry
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

func NewMemorySet(ttl time.Duration) *MemorySet {
	return &MemorySet{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemorySet) Reserve(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.ttl > 0 && !now.Before(m.nextSweep) {
		m.sweep(now)
		m.nextSweep = now.Add(m.ttl)
	}
	if e, ok := m.entries[key]; ok && !m.expired(e, now) {
		return false, nil
	}
	m.entries[key] = entry{state: statePending, expiresAt: m.deadline(now)}
	return true, nil
}

func (m *MemorySet) Commit(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{state: stateCommitted, expiresAt: m.deadline(m.now())}
	return nil
}

func (m *MemorySet) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len counts live entries, pending included.
func (m *MemorySet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.entries)
}

func (m *MemorySet) sweep(now time.Time) {
	for key, e := range m.entries {
		if m.expired(e, now) {
			delete(m.entries, key)
		}
	}
}

func (m *MemorySet) deadline(now time.Time) time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(m.ttl)
}

func (m *MemorySet) expired(e entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

const (
	dedupKeyPrefix = "walletpass:dedup:"
	pendingMarker  = "pending"
	doneMarker     = "done"
)

// RedisSet shares the message set across instances with SET NX.
type RedisSet struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSet(client *redis.Client, ttl time.Duration) *RedisSet {
	return &RedisSet{client: client, ttl: ttl}
}

func (r *RedisSet) Reserve(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, dedupKeyPrefix+key, pendingMarker, r.ttl).Result()
}

func (r *RedisSet) Commit(ctx context.Context, key string) error {
	return r.client.Set(ctx, dedupKeyPrefix+key, doneMarker, r.ttl).Err()
}

func (r *RedisSet) Forget(ctx context.Context, key string) error {
	return r.client.Del(ctx, dedupKeyPrefix+key).Err()
}
