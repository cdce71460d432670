package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

type fakeRedis struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestBroadcastPublishesEnvelope(t *testing.T) {
	f := &fakeRedis{}
	b := NewRedisBroadcaster(f, "")

	ev := events.NewRoundClosed(events.RoundClosed{RoundID: 3, Seed: 99}, time.Now())
	require.NoError(t, b.Publish(context.Background(), ev))
	assert.Equal(t, DefaultChannel, f.channel)

	got, err := events.Decode(f.payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), got.RoundClosed.Seed)
}

func TestBroadcastError(t *testing.T) {
	b := NewRedisBroadcaster(&fakeRedis{err: errors.New("READONLY")}, "custom")
	err := b.Publish(context.Background(), events.NewRoundOpened(events.RoundOpened{RoundID: 1}, time.Now()))
	assert.Error(t, err)
}
