// Package dedup guarda as chaves de eventos já aplicados.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Set devolve true na primeira vez que vê uma chave
type Set interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// Memory é um conjunto limitado: ao passar de cap, esquece as chaves mais antigas
type Memory struct {
	mu    sync.Mutex
	cap   int
	order []string
	next  int
	set   map[string]struct{}
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &Memory{cap: capacity, order: make([]string, 0, capacity), set: make(map[string]struct{}, capacity)}
}

func (m *Memory) FirstSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.set[key]; ok {
		return false, nil
	}
	if len(m.order) < m.cap {
		m.order = append(m.order, key)
	} else {
		delete(m.set, m.order[m.next])
		m.order[m.next] = key
		m.next = (m.next + 1) % m.cap
	}
	m.set[key] = struct{}{}
	return true, nil
}

type setnx interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis compartilha o conjunto entre réplicas do reconciliador
type Redis struct {
	r      setnx
	ttl    time.Duration
	prefix string
}

func NewRedis(r setnx, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "reconciler:seen:"
	}
	return &Redis{r: r, ttl: ttl, prefix: prefix}
}

func (d *Redis) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.r.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}
