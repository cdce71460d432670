package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/race-session-engine/internal/race-engine/deadline"
	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
	"github.com/radieske/race-session-engine/internal/race-engine/settlement"
	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recorder struct {
	mu  sync.Mutex
	evs []events.Envelope
}

func (r *recorder) Emit(_ context.Context, evs ...events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, evs...)
}

func (r *recorder) find(kind events.Kind) []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Envelope
	for _, e := range r.evs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// flakySource falha nas primeiras n chamadas
type flakySource struct {
	mu    sync.Mutex
	fails int
	seed  uint64
}

func (f *flakySource) Draw(context.Context, uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return 0, errors.New("beacon timeout")
	}
	return f.seed, nil
}

type harness struct {
	clock   *quartz.Mock
	ledger  *ledger.Ledger
	session *Session
	rec     *recorder
}

func newHarness(t *testing.T, autoContinue bool, opts ...Option) harness {
	t.Helper()
	mClock := quartz.NewMock(t)
	auth := deadline.New(mClock)
	rec := &recorder{}
	l := ledger.New(ledger.Config{
		BettingWindow: 300 * time.Second,
		MinBet:        dec("0.00001"),
	}, auth, nil, ledger.WithEmitter(rec))
	eng := settlement.New(settlement.Config{AutoContinue: autoContinue}, l, rec, auth, nil)
	opts = append([]Option{WithEmitter(rec)}, opts...)
	s := New(Config{
		AutoContinue:       autoContinue,
		Params:             simulator.DefaultParams(),
		SettlePollInterval: time.Second,
	}, l, eng, auth, opts...)
	return harness{clock: mClock, ledger: l, session: s, rec: rec}
}

func (h harness) expire(t *testing.T) {
	t.Helper()
	r := h.ledger.CurrentRound()
	h.clock.Advance(r.Deadline.Sub(h.clock.Now())).MustWait(context.Background())
}

func (h harness) bet(t *testing.T, who string, contestant int, amount string) {
	t.Helper()
	_, err := h.session.Deposit(who, dec("1"))
	require.NoError(t, err)
	_, err = h.session.PlaceBet(context.Background(), who, contestant, dec(amount))
	require.NoError(t, err)
}

func TestCloseAndSettleUsesSimulatedWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	_, err := h.session.OpenRound(ctx)
	require.NoError(t, err)
	for i, who := range []string{"alice", "bob", "carol", "dave"} {
		h.bet(t, who, i, "0.0001")
	}

	_, err = h.session.CloseAndSettle(ctx)
	require.ErrorIs(t, err, ledger.ErrDeadlineNotReached)

	dl := h.ledger.CurrentRound().Deadline
	h.expire(t)
	res, err := h.session.CloseAndSettle(ctx)
	require.NoError(t, err)

	seed := simulator.FallbackSeed(1, dl)
	race, err := simulator.Simulate(seed, simulator.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, race.Winner, res.Entry.Winner)
	assert.Equal(t, seed, res.Entry.Seed)

	closed := h.rec.find(events.KindRoundClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, seed, closed[0].RoundClosed.Seed)

	winners := []string{"alice", "bob", "carol", "dave"}
	assert.True(t, res.Payouts[winners[race.Winner]].Equal(dec("0.0004")))

	info := h.session.CurrentRound()
	assert.Equal(t, uint64(2), info.RoundID)
	assert.Equal(t, ledger.Open, info.Phase)
	assert.True(t, info.Pot.IsZero())
	assert.Equal(t, 300*time.Second, info.Remaining.Round(time.Second))

	replay, err := h.session.Replay(1)
	require.NoError(t, err)
	assert.Equal(t, race, replay)

	_, err = h.session.Replay(9)
	assert.ErrorIs(t, err, simulator.ErrUnknownRound)
	assert.Equal(t, ledger.KindNotFound, Classify(err))

	_, err = h.session.CloseAndSettle(ctx)
	assert.ErrorIs(t, err, ledger.ErrDeadlineNotReached, "round 2 is fresh")
}

func TestRandomnessOutageThenForceSettle(t *testing.T) {
	ctx := context.Background()
	src := &flakySource{fails: 10}
	h := newHarness(t, false, WithSource(src))

	_, err := h.session.OpenRound(ctx)
	require.NoError(t, err)
	h.bet(t, "alice", 1, "0.0002")
	h.expire(t)

	_, err = h.session.CloseAndSettle(ctx)
	require.ErrorIs(t, err, ErrRandomnessUnavailable)
	assert.Equal(t, ledger.KindUnavailable, Classify(err))
	assert.Equal(t, ledger.Closed, h.ledger.CurrentRound().Phase)
	id, pending := h.session.Pending()
	assert.True(t, pending)
	assert.Equal(t, uint64(1), id)
	assert.Empty(t, h.rec.find(events.KindRoundClosed))

	_, err = h.session.ForceSettle(ctx, 7)
	require.ErrorIs(t, err, settlement.ErrInvalidWinner)
	assert.Equal(t, ledger.KindValidation, Classify(err))

	res, err := h.session.ForceSettle(ctx, 1)
	require.NoError(t, err)
	assert.True(t, res.Entry.Forced)
	assert.True(t, h.session.Balance("alice").Equal(dec("1")))
	_, pending = h.session.Pending()
	assert.False(t, pending)

	info := h.session.CurrentRound()
	assert.Equal(t, ledger.Idle, info.Phase)
	assert.Equal(t, uint64(2), info.RoundID, "idle reports the next round id")
	assert.True(t, info.Deadline.IsZero())

	_, err = h.session.Replay(1)
	assert.ErrorIs(t, err, ErrNoReplay)

	settled := h.rec.find(events.KindRoundSettled)
	require.Len(t, settled, 1)
	assert.True(t, settled[0].RoundSettled.Forced)
}

func TestRandomnessRecovers(t *testing.T) {
	ctx := context.Background()
	src := &flakySource{fails: 1, seed: 12345}
	h := newHarness(t, true, WithSource(src))

	_, err := h.session.OpenRound(ctx)
	require.NoError(t, err)
	h.expire(t)

	_, err = h.session.CloseAndSettle(ctx)
	require.ErrorIs(t, err, ErrRandomnessUnavailable)

	res, err := h.session.CloseAndSettle(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), res.Entry.Seed)
	assert.Equal(t, 0, res.Entry.TotalBets)
	assert.Equal(t, uint64(2), h.session.CurrentRound().RoundID)
}

func TestConcurrentSettleTriggers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.session.OpenRound(ctx)
	require.NoError(t, err)
	h.bet(t, "alice", 0, "0.0001")
	h.expire(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 6; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = h.session.CloseAndSettle(ctx)
			} else {
				_, err = h.session.ForceSettle(ctx, 2)
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			// os perdedores veem o round 2 ainda aberto
			assert.Equal(t, ledger.KindPhase, Classify(err))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Len(t, h.session.History(), 1)
	require.NoError(t, h.ledger.Verify())
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	require.NoError(t, h.session.Tick(ctx))
	assert.Equal(t, ledger.Open, h.session.CurrentRound().Phase, "idle + auto-continue opens a round")

	require.NoError(t, h.session.Tick(ctx))
	assert.Equal(t, uint64(1), h.session.CurrentRound().RoundID, "nothing to do before the deadline")

	h.bet(t, "alice", 0, "0.0001")
	h.expire(t)
	require.NoError(t, h.session.Tick(ctx))
	assert.Len(t, h.session.History(), 1)
	assert.Equal(t, uint64(2), h.session.CurrentRound().RoundID)
	assert.Equal(t, 1, len(h.session.Leaderboard(10)))
	assert.Equal(t, uint64(1), h.session.PlayerStats("alice").RoundsPlayed)
}

func TestTickWithoutAutoContinue(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.session.Tick(context.Background()))
	assert.Equal(t, ledger.Idle, h.session.CurrentRound().Phase)
}

func TestHooksAndHealth(t *testing.T) {
	ctx := context.Background()
	var bets []string
	var pots []float64
	h := newHarness(t, true, WithHooks(Hooks{
		OnBet: func(kind string) { bets = append(bets, kind) },
		OnPot: func(p float64) { pots = append(pots, p) },
	}))
	require.NoError(t, h.session.Healthy(ctx))

	_, err := h.session.OpenRound(ctx)
	require.NoError(t, err)
	h.bet(t, "alice", 0, "0.0001")
	_, err = h.session.PlaceBet(ctx, "alice", 0, dec("0.0001"))
	require.ErrorIs(t, err, ledger.ErrDuplicateBet)

	assert.Equal(t, []string{"accepted", "validation"}, bets)
	assert.Equal(t, []float64{0, 0.0001}, pots)
}

func TestFanout(t *testing.T) {
	var okCount int
	var failed []string
	good := publisherFunc(func(context.Context, events.Envelope) error { okCount++; return nil })
	bad := publisherFunc(func(ctx context.Context, _ events.Envelope) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return errors.New("broker down")
	})
	f := &Fanout{
		Targets: map[string]Publisher{"kafka": good, "redis": bad},
		OnError: func(target string) { failed = append(failed, target) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Emit(ctx,
		events.NewRoundOpened(events.RoundOpened{RoundID: 1}, time.Now()),
		events.NewRoundClosed(events.RoundClosed{RoundID: 1, Seed: 9}, time.Now()),
	)
	assert.Equal(t, 2, okCount, "cancelled caller context still publishes")
	assert.Equal(t, []string{"redis", "redis"}, failed)
}

type publisherFunc func(ctx context.Context, ev events.Envelope) error

func (f publisherFunc) Publish(ctx context.Context, ev events.Envelope) error { return f(ctx, ev) }
