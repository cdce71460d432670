package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapKV imita SETNX/GET do Redis em memória
type mapKV struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMapKV() *mapKV { return &mapKV{data: map[string]string{}, ttls: map[string]time.Duration{}} }

func (m *mapKV) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := m.data[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = exp
	cmd.SetVal(true)
	return cmd
}

func (m *mapKV) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	v, ok := m.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func TestPutIfAbsentKeepsFirstSecret(t *testing.T) {
	ctx := context.Background()
	kv := newMapKV()
	s := NewRedisStore(kv, time.Hour)

	first, err := s.PutIfAbsent(ctx, 1, Record{Secret: "aa", Deadline: 100})
	require.NoError(t, err)
	assert.Equal(t, "aa", first.Secret)
	assert.Equal(t, time.Hour, kv.ttls["beacon:round:1:100"])

	again, err := s.PutIfAbsent(ctx, 1, Record{Secret: "bb", Deadline: 100})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	got, err := s.Get(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = s.Get(ctx, 2, 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSameRoundWithNewDeadlineGetsOwnSecret(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(newMapKV(), time.Hour)

	old, err := s.PutIfAbsent(ctx, 1, Record{Secret: "aa", Deadline: 100})
	require.NoError(t, err)
	fresh, err := s.PutIfAbsent(ctx, 1, Record{Secret: "bb", Deadline: 900})
	require.NoError(t, err)

	assert.Equal(t, "aa", old.Secret)
	assert.Equal(t, "bb", fresh.Secret)
	assert.Equal(t, int64(900), fresh.Deadline)

	_, err = s.Get(ctx, 1, 500)
	assert.ErrorIs(t, err, ErrNotFound)
}
