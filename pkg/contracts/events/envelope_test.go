package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIgnoresEnvelopeID(t *testing.T) {
	now := time.Now()
	a := NewBetPlaced(BetPlaced{RoundID: 3, Participant: "alice", Contestant: 1, Amount: decimal.RequireFromString("0.5")}, now)
	b := NewBetPlaced(BetPlaced{RoundID: 3, Participant: "alice", Contestant: 1, Amount: decimal.RequireFromString("0.50")}, now.Add(time.Second))

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "bet_placed:3:alice:0.5", a.Key())
	assert.Equal(t, a.Key(), b.Key())

	c := NewRewardCredited(RewardCredited{RoundID: 3, Participant: "alice", Amount: decimal.RequireFromString("0.5")}, now)
	assert.NotEqual(t, a.Key(), c.Key())

	assert.Equal(t, "round_closed:3::", NewRoundClosed(RoundClosed{RoundID: 3, Seed: 1}, now).Key())
	assert.Equal(t, "3", a.PartitionKey())
}

func TestDecode(t *testing.T) {
	ev := NewRoundSettled(RoundSettled{RoundID: 8, Winner: 2, FinalPot: decimal.NewFromInt(4)}, time.Now())
	b, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, ev.Key(), got.Key())
	assert.Equal(t, 2, got.RoundSettled.Winner)

	for name, raw := range map[string]string{
		"not json":        `{`,
		"unknown kind":    `{"kind":"round_paused","round_id":1}`,
		"missing payload": `{"kind":"round_opened","round_id":1}`,
		"zero round":      `{"kind":"round_closed","round_id":0,"round_closed":{"seed":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}
