package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-session-engine/internal/randomness-beacon/store"
	"github.com/radieske/race-session-engine/pkg/contracts/beacon"
)

type roundKey struct {
	id       uint64
	deadline int64
}

type memStore struct {
	mu   sync.Mutex
	recs map[roundKey]store.Record
}

func newMemStore() *memStore { return &memStore{recs: map[roundKey]store.Record{}} }

func (m *memStore) PutIfAbsent(_ context.Context, id uint64, rec store.Record) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := roundKey{id, rec.Deadline}
	if old, ok := m.recs[k]; ok {
		return old, nil
	}
	m.recs[k] = rec
	return rec, nil
}

func (m *memStore) Get(_ context.Context, id uint64, deadline int64) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[roundKey{id, deadline}]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

// idOnlyStore ignora o prazo na chave, como um store antigo faria
type idOnlyStore struct {
	recs map[uint64]store.Record
}

func (m *idOnlyStore) PutIfAbsent(_ context.Context, id uint64, rec store.Record) (store.Record, error) {
	if old, ok := m.recs[id]; ok {
		return old, nil
	}
	m.recs[id] = rec
	return rec, nil
}

func (m *idOnlyStore) Get(_ context.Context, id uint64, _ int64) (store.Record, error) {
	rec, ok := m.recs[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func newService(t *testing.T) (*Service, *quartz.Mock) {
	mClock := quartz.NewMock(t)
	s := New(newMemStore(), mClock, nil)
	s.Rand = bytes.NewReader(bytes.Repeat([]byte{7}, 1024))
	return s, mClock
}

func TestCommitRevealCycle(t *testing.T) {
	ctx := context.Background()
	s, mClock := newService(t)
	dl := mClock.Now().Add(300 * time.Second).Truncate(time.Second)

	c, err := s.Commit(ctx, 1, dl)
	require.NoError(t, err)
	assert.Len(t, c.Commitment, 64)
	assert.True(t, c.Deadline.Equal(dl))

	again, err := s.Commit(ctx, 1, dl)
	require.NoError(t, err)
	assert.Equal(t, c.Commitment, again.Commitment, "re-commit never changes the secret")

	_, err = s.Reveal(ctx, 1, dl)
	require.ErrorIs(t, err, ErrTooEarly)

	mClock.Advance(dl.Sub(mClock.Now())).MustWait(ctx)
	r, err := s.Reveal(ctx, 1, dl)
	require.NoError(t, err)
	seed, err := beacon.Verify(r, c.Commitment)
	require.NoError(t, err)
	assert.Equal(t, r.Seed, seed)

	_, err = s.Reveal(ctx, 2, dl)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// o motor reinicia e volta a abrir o round 1 com outro prazo: o segredo do
// round 1 anterior já pode ser revelado e não pode ser reaproveitado
func TestRoundIDReusedAfterRestartGetsFreshSecret(t *testing.T) {
	ctx := context.Background()
	s, mClock := newService(t)
	oldDL := mClock.Now().Add(time.Minute).Truncate(time.Second)

	old, err := s.Commit(ctx, 1, oldDL)
	require.NoError(t, err)
	mClock.Advance(time.Hour).MustWait(ctx)
	leaked, err := s.Reveal(ctx, 1, oldDL)
	require.NoError(t, err)

	s.Rand = bytes.NewReader(bytes.Repeat([]byte{9}, 1024))
	newDL := mClock.Now().Add(time.Minute).Truncate(time.Second)
	fresh, err := s.Commit(ctx, 1, newDL)
	require.NoError(t, err)
	assert.NotEqual(t, old.Commitment, fresh.Commitment)
	assert.True(t, fresh.Deadline.Equal(newDL))

	_, err = s.Reveal(ctx, 1, newDL)
	require.ErrorIs(t, err, ErrTooEarly)
	_, err = beacon.Verify(leaked, fresh.Commitment)
	assert.ErrorIs(t, err, beacon.ErrCommitmentMismatch)
}

func TestCommitRejectsStoredRecordWithOtherDeadline(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	s := New(&idOnlyStore{recs: map[uint64]store.Record{}}, mClock, nil)
	dl := mClock.Now().Add(time.Minute).Truncate(time.Second)

	_, err := s.Commit(ctx, 1, dl)
	require.NoError(t, err)
	_, err = s.Commit(ctx, 1, dl.Add(time.Hour))
	assert.ErrorIs(t, err, ErrDeadlineMismatch)
}

func TestCommitRejectsPastDeadline(t *testing.T) {
	s, mClock := newService(t)
	_, err := s.Commit(context.Background(), 1, mClock.Now().Add(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidDeadline)
}
