package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLCGSequence(t *testing.T) {
	g := newLCG(0)
	// (0*9301+49297)%233280 = 49297
	assert.Equal(t, float64(49297)/233280, g.next())
	// (49297*9301+49297)%233280
	want := (uint64(49297)*9301 + 49297) % 233280
	assert.Equal(t, float64(want)/233280, g.next())

	// seeds congruentes geram a mesma sequência
	a, b := newLCG(7), newLCG(7+233280)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.next(), b.next())
	}
}

func TestSimulateIsDeterministic(t *testing.T) {
	p := DefaultParams()
	seed := FallbackSeed(1, time.Unix(1_700_000_300, 0))

	first, err := Simulate(seed, p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Simulate(seed, p)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	other, err := Simulate(seed+1, p)
	require.NoError(t, err)
	assert.NotEqual(t, first.Frames, other.Frames)
}

func TestSimulateShape(t *testing.T) {
	p := DefaultParams()
	for seed := uint64(0); seed < 500; seed += 37 {
		res, err := Simulate(seed, p)
		require.NoError(t, err)
		require.Len(t, res.Frames, 200)
		assert.Equal(t, res.Frames[len(res.Frames)-1], res.Final)

		maxRate := 0.0
		for _, r := range res.Rates {
			assert.GreaterOrEqual(t, r, p.MinRate)
			assert.Less(t, r, p.MinRate+p.RateSpan+1e-9)
			if r > maxRate {
				maxRate = r
			}
		}
		assert.GreaterOrEqual(t, maxRate, p.WinnerFloor, "fastest contestant is lifted to the floor")

		for _, f := range res.Frames {
			for _, pos := range f {
				assert.GreaterOrEqual(t, pos, 0.0)
				assert.LessOrEqual(t, pos, p.TrackLength)
			}
		}

		assert.GreaterOrEqual(t, res.Winner, 0)
		assert.Less(t, res.Winner, Contestants)
		for i, pos := range res.Final {
			assert.LessOrEqual(t, pos, res.Final[res.Winner])
			if pos == res.Final[res.Winner] {
				assert.GreaterOrEqual(t, i, res.Winner, "ties go to the lowest index")
			}
		}
	}
}

func TestLeaderBreaksTiesByIndex(t *testing.T) {
	assert.Equal(t, 1, leader([Contestants]float64{10, 100, 100, 50}))
	assert.Equal(t, 0, leader([Contestants]float64{100, 100, 100, 100}))
	assert.Equal(t, 3, leader([Contestants]float64{1, 2, 3, 4}))
}

func TestSimulateRejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.Step = 0
	_, err := Simulate(1, p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = DefaultParams()
	p.TrackLength = -1
	_, err = Simulate(1, p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFramesRoundsUp(t *testing.T) {
	p := DefaultParams()
	p.Duration = 1050 * time.Millisecond
	assert.Equal(t, 11, p.Frames())

	res, err := Simulate(3, p)
	require.NoError(t, err)
	require.Len(t, res.Frames, 11)
}

func TestFallbackSeed(t *testing.T) {
	dl := time.Unix(1_700_000_000, 0)
	assert.Equal(t, uint64(2*1000+1_700_000_000), FallbackSeed(2, dl))

	src := DeadlineSource{Deadline: func(id uint64) (time.Time, bool) {
		return dl, id == 2
	}}
	seed, err := src.Draw(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, FallbackSeed(2, dl), seed)

	_, err = src.Draw(context.Background(), 3)
	assert.ErrorIs(t, err, ErrUnknownRound)
}
