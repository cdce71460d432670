package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/deadline"
	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// PayoutPrecision: 18 casas, a menor unidade da moeda (wei)
const PayoutPrecision = 18

var (
	ErrInvalidWinner  = errors.New("invalid winner")
	ErrAlreadySettled = errors.New("round already settled")
)

// Ledger é o que a liquidação precisa do ledger
type Ledger interface {
	ApplyPayouts(roundID uint64, payouts map[string]decimal.Decimal, retained decimal.Decimal) (bool, error)
	Advance(ctx context.Context, autoContinue bool) (ledger.Round, error)
}

type HistoryEntry struct {
	RoundID   uint64          `json:"round_id"`
	Winner    int             `json:"winner"`
	FinalPot  decimal.Decimal `json:"final_pot"`
	TotalBets int             `json:"total_bets"`
	SettledAt time.Time       `json:"settled_at"`
	Forced    bool            `json:"forced"`
	Seed      uint64          `json:"seed,omitempty"`
}

type PlayerStats struct {
	RoundsPlayed uint64          `json:"rounds_played"`
	RoundsWon    uint64          `json:"rounds_won"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalWon     decimal.Decimal `json:"total_won"`
}

type Standing struct {
	Participant string `json:"participant"`
	PlayerStats
}

type Options struct {
	// Forced marca a liquidação de emergência (vencedor escolhido pelo operador)
	Forced bool
	Seed   uint64
}

type Result struct {
	Entry    HistoryEntry               `json:"entry"`
	Payouts  map[string]decimal.Decimal `json:"payouts"`
	Retained decimal.Decimal            `json:"retained"`
	Next     ledger.Round               `json:"next"`
}

type Config struct {
	AutoContinue bool
}

// Engine distribui o pot de um round fechado e guarda histórico e estatísticas.
// A conclusão é no máximo uma vez por round: o mutex serializa gatilhos
// concorrentes e o histórico indexado por round id barra repetições.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	ledger Ledger
	emit   ledger.Emitter
	clock  *deadline.Authority
	log    *zap.Logger

	history []HistoryEntry
	byRound map[uint64]int
	stats   map[string]*PlayerStats
}

func New(cfg Config, l Ledger, emit ledger.Emitter, clock *deadline.Authority, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if emit == nil {
		emit = ledger.EmitterFunc(func(context.Context, ...events.Envelope) {})
	}
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		emit:    emit,
		clock:   clock,
		log:     log,
		byRound: map[uint64]int{},
		stats:   map[string]*PlayerStats{},
	}
}

// Payouts calcula o prêmio de cada aposta vencedora:
// amount * pot / totalNoVencedor, truncado em PayoutPrecision casas.
// retained é o que não foi distribuído (poeira do truncamento, ou o pot
// inteiro quando ninguém apostou no vencedor).
func Payouts(r ledger.Round, winner int) (map[string]decimal.Decimal, decimal.Decimal) {
	payouts := map[string]decimal.Decimal{}
	backing := r.ByContestant[winner]
	if !backing.IsPositive() {
		return payouts, r.Pot
	}

	paid := decimal.Zero
	for _, b := range r.BetsSorted() {
		if b.Contestant != winner {
			continue
		}
		q, _ := b.Amount.Mul(r.Pot).QuoRem(backing, PayoutPrecision)
		if q.IsPositive() {
			payouts[b.Participant] = q
			paid = paid.Add(q)
		}
	}
	return payouts, r.Pot.Sub(paid)
}

// Settle liquida o round fechado com o vencedor dado.
// Seguro para re-execução depois de falha parcial: o ledger ignora
// créditos já aplicados e o histórico só recebe uma entrada por round.
func (e *Engine) Settle(ctx context.Context, r ledger.Round, winner int, opts Options) (Result, error) {
	if winner < 0 || winner >= ledger.Contestants {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidWinner, winner)
	}
	if r.Phase != ledger.Closed {
		return Result{}, fmt.Errorf("%w: round %d is %s", ledger.ErrRoundNotClosed, r.ID, r.Phase)
	}

	e.mu.Lock()
	if _, done := e.byRound[r.ID]; done {
		e.mu.Unlock()
		return Result{}, fmt.Errorf("%w: round %d", ErrAlreadySettled, r.ID)
	}

	payouts, retained := Payouts(r, winner)
	applied, err := e.ledger.ApplyPayouts(r.ID, payouts, retained)
	if err != nil {
		e.mu.Unlock()
		return Result{}, fmt.Errorf("apply payouts round %d: %w", r.ID, err)
	}
	if !applied {
		e.log.Warn("payouts already applied, completing settlement", zap.Uint64("round_id", r.ID))
	}

	entry := HistoryEntry{
		RoundID:   r.ID,
		Winner:    winner,
		FinalPot:  r.Pot,
		TotalBets: r.TotalBets(),
		SettledAt: e.clock.Now(),
		Forced:    opts.Forced,
		Seed:      opts.Seed,
	}
	e.byRound[r.ID] = len(e.history)
	e.history = append(e.history, entry)
	for p, b := range r.Bets {
		st := e.statsLocked(p)
		st.RoundsPlayed++
		st.TotalWagered = st.TotalWagered.Add(b.Amount)
		if b.Contestant == winner {
			st.RoundsWon++
			st.TotalWon = st.TotalWon.Add(payouts[p])
		}
	}
	e.mu.Unlock()

	e.log.Info("round settled",
		zap.Uint64("round_id", r.ID),
		zap.Int("winner", winner),
		zap.String("pot", r.Pot.String()),
		zap.String("retained", retained.String()),
		zap.Int("winners_paid", len(payouts)),
		zap.Bool("forced", opts.Forced),
	)

	evs := []events.Envelope{events.NewRoundSettled(events.RoundSettled{
		RoundID:   r.ID,
		Winner:    winner,
		FinalPot:  r.Pot,
		TotalBets: entry.TotalBets,
		SettledAt: entry.SettledAt,
		Forced:    opts.Forced,
	}, entry.SettledAt)}
	for _, p := range sortedKeys(payouts) {
		evs = append(evs, events.NewRewardCredited(events.RewardCredited{
			Participant: p,
			RoundID:     r.ID,
			Amount:      payouts[p],
		}, entry.SettledAt))
	}
	e.emit.Emit(ctx, evs...)

	res := Result{Entry: entry, Payouts: payouts, Retained: retained}
	next, err := e.ledger.Advance(ctx, e.cfg.AutoContinue)
	res.Next = next
	if err != nil {
		// o round já está liquidado; quem chamou decide se reabre depois
		return res, fmt.Errorf("advance after round %d: %w", r.ID, err)
	}
	return res, nil
}

func (e *Engine) statsLocked(p string) *PlayerStats {
	st, ok := e.stats[p]
	if !ok {
		st = &PlayerStats{}
		e.stats[p] = st
	}
	return st
}

// History devolve o histórico em ordem de liquidação
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) Entry(roundID uint64) (HistoryEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.byRound[roundID]
	if !ok {
		return HistoryEntry{}, false
	}
	return e.history[i], true
}

// PlayerStats de participante desconhecido é tudo zero
func (e *Engine) PlayerStats(participant string) PlayerStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.stats[participant]; ok {
		return *st
	}
	return PlayerStats{}
}

// Leaderboard ordena por total ganho, depois rounds ganhos, depois nome
func (e *Engine) Leaderboard(limit int) []Standing {
	e.mu.Lock()
	out := make([]Standing, 0, len(e.stats))
	for p, st := range e.stats {
		out = append(out, Standing{Participant: p, PlayerStats: *st})
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.TotalWon.Cmp(b.TotalWon); c != 0 {
			return c > 0
		}
		if a.RoundsWon != b.RoundsWon {
			return a.RoundsWon > b.RoundsWon
		}
		return a.Participant < b.Participant
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
