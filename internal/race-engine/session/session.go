package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/deadline"
	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
	"github.com/radieske/race-session-engine/internal/race-engine/settlement"
	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

var (
	ErrRandomnessUnavailable = errors.New("randomness source unavailable")
	ErrNoReplay              = errors.New("round was force-settled, no race to replay")
)

type Config struct {
	AutoContinue       bool
	Params             simulator.Params
	SettlePollInterval time.Duration
}

// Hooks são callbacks de métricas; todos opcionais
type Hooks struct {
	OnBet        func(kind string) // "accepted" ou o Kind do erro
	OnSettled    func(forced bool, took time.Duration)
	OnRandomness func(ok bool)
	OnPot        func(pot float64)
}

// RoundInfo é a visão pública do round corrente
type RoundInfo struct {
	RoundID      uint64                              `json:"round_id"`
	Phase        ledger.Phase                        `json:"phase"`
	Deadline     time.Time                           `json:"deadline"`
	Remaining    time.Duration                       `json:"remaining_ns"`
	Pot          decimal.Decimal                     `json:"pot"`
	ByContestant [ledger.Contestants]decimal.Decimal `json:"by_contestant"`
	TotalBets    int                                 `json:"total_bets"`
	Commitment   string                              `json:"commitment,omitempty"`
	MinBet       decimal.Decimal                     `json:"min_bet"`
}

// Session junta ledger, simulador e liquidação atrás de uma única API.
// Fechar, sortear e liquidar acontece sob s.mu, então gatilhos concorrentes
// (scheduler, HTTP, force-settle) nunca liquidam o mesmo round duas vezes.
type Session struct {
	mu sync.Mutex

	cfg    Config
	ledger *ledger.Ledger
	settle *settlement.Engine
	clock  *deadline.Authority
	source simulator.RandomnessSource
	emit   ledger.Emitter
	log    *zap.Logger
	hooks  Hooks

	// pending guarda o round fechado que ainda não foi liquidado
	// (fonte de aleatoriedade fora ou falha parcial na liquidação)
	pending *ledger.Round
}

type Option func(*Session)

func WithSource(src simulator.RandomnessSource) Option {
	return func(s *Session) { s.source = src }
}

func WithEmitter(e ledger.Emitter) Option { return func(s *Session) { s.emit = e } }

func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.log = l } }

func WithHooks(h Hooks) Option { return func(s *Session) { s.hooks = h } }

func New(cfg Config, l *ledger.Ledger, eng *settlement.Engine, clock *deadline.Authority, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		ledger: l,
		settle: eng,
		clock:  clock,
		log:    zap.NewNop(),
		emit:   ledger.EmitterFunc(func(context.Context, ...events.Envelope) {}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.source == nil {
		s.source = simulator.DeadlineSource{Deadline: s.deadlineOf}
	}
	return s
}

func (s *Session) deadlineOf(roundID uint64) (time.Time, bool) {
	r := s.ledger.CurrentRound()
	if r.ID != roundID || r.Phase == ledger.Idle {
		return time.Time{}, false
	}
	return r.Deadline, true
}

func (s *Session) OpenRound(ctx context.Context) (uint64, error) {
	id, err := s.ledger.OpenRound(ctx)
	if err != nil {
		return 0, err
	}
	s.observePot()
	return id, nil
}

func (s *Session) PlaceBet(ctx context.Context, participant string, contestant int, amount decimal.Decimal) (ledger.Ack, error) {
	ack, err := s.ledger.PlaceBet(ctx, participant, contestant, amount)
	if s.hooks.OnBet != nil {
		if err != nil {
			s.hooks.OnBet(Classify(err).String())
		} else {
			s.hooks.OnBet("accepted")
		}
	}
	if err != nil {
		return ledger.Ack{}, err
	}
	if s.hooks.OnPot != nil {
		s.hooks.OnPot(ack.Pot.InexactFloat64())
	}
	return ack, nil
}

func (s *Session) CurrentRound() RoundInfo {
	r := s.ledger.CurrentRound()
	info := RoundInfo{
		RoundID:      r.ID,
		Phase:        r.Phase,
		Pot:          r.Pot,
		ByContestant: r.ByContestant,
		TotalBets:    r.TotalBets(),
		Commitment:   r.Commitment,
		MinBet:       s.ledger.MinBet(),
	}
	if r.Phase != ledger.Idle {
		info.Deadline = r.Deadline
		info.Remaining = s.clock.Remaining(r.Deadline)
	}
	return info
}

// CloseAndSettle fecha o round (prazo vencido), sorteia a seed, simula a
// corrida e liquida com o vencedor simulado. Se a fonte de aleatoriedade
// falhar o round fica fechado e a próxima chamada tenta de novo.
func (s *Session) CloseAndSettle(ctx context.Context) (settlement.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	r, err := s.closeLocked()
	if err != nil {
		return settlement.Result{}, err
	}

	seed, err := s.source.Draw(ctx, r.ID)
	if s.hooks.OnRandomness != nil {
		s.hooks.OnRandomness(err == nil)
	}
	if err != nil {
		s.log.Warn("randomness draw failed, round stays closed",
			zap.Uint64("round_id", r.ID), zap.Error(err))
		return settlement.Result{}, fmt.Errorf("%w: round %d: %v", ErrRandomnessUnavailable, r.ID, err)
	}
	s.emit.Emit(ctx, events.NewRoundClosed(events.RoundClosed{RoundID: r.ID, Seed: seed}, s.clock.Now()))

	race, err := simulator.Simulate(seed, s.cfg.Params)
	if err != nil {
		return settlement.Result{}, err
	}
	s.log.Info("race simulated",
		zap.Uint64("round_id", r.ID),
		zap.Uint64("seed", seed),
		zap.Int("winner", race.Winner),
		zap.Float64s("final", race.Final[:]),
	)
	return s.settleLocked(ctx, r, race.Winner, settlement.Options{Seed: seed}, start)
}

// ForceSettle é a saída de emergência: o operador escolhe o vencedor
// e o simulador não roda. A contabilidade é a mesma da liquidação normal.
func (s *Session) ForceSettle(ctx context.Context, winner int) (settlement.Result, error) {
	if winner < 0 || winner >= ledger.Contestants {
		return settlement.Result{}, fmt.Errorf("%w: %d", settlement.ErrInvalidWinner, winner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	r, err := s.closeLocked()
	if err != nil {
		return settlement.Result{}, err
	}
	s.log.Warn("force-settling round", zap.Uint64("round_id", r.ID), zap.Int("winner", winner))
	return s.settleLocked(ctx, r, winner, settlement.Options{Forced: true}, start)
}

// closeLocked devolve o round pendente ou fecha o round aberto
func (s *Session) closeLocked() (ledger.Round, error) {
	if s.pending != nil {
		return *s.pending, nil
	}
	r, err := s.ledger.CloseForSettlement()
	if err != nil {
		return ledger.Round{}, err
	}
	s.pending = &r
	return r, nil
}

func (s *Session) settleLocked(ctx context.Context, r ledger.Round, winner int, opts settlement.Options, start time.Time) (settlement.Result, error) {
	res, err := s.settle.Settle(ctx, r, winner, opts)
	// histórico gravado: o round não está mais pendente mesmo que a
	// abertura do próximo tenha falhado
	if err == nil || res.Entry.RoundID == r.ID || errors.Is(err, settlement.ErrAlreadySettled) {
		s.pending = nil
	}
	if err != nil {
		return res, err
	}
	if s.hooks.OnSettled != nil {
		s.hooks.OnSettled(opts.Forced, s.clock.Now().Sub(start))
	}
	s.observePot()
	return res, nil
}

func (s *Session) observePot() {
	if s.hooks.OnPot != nil {
		s.hooks.OnPot(s.ledger.CurrentRound().Pot.InexactFloat64())
	}
}

// Pending informa se há round fechado esperando liquidação
func (s *Session) Pending() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return 0, false
	}
	return s.pending.ID, true
}

func (s *Session) PlayerStats(participant string) settlement.PlayerStats {
	return s.settle.PlayerStats(participant)
}

func (s *Session) History() []settlement.HistoryEntry { return s.settle.History() }

func (s *Session) Leaderboard(limit int) []settlement.Standing { return s.settle.Leaderboard(limit) }

func (s *Session) Deposit(participant string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.ledger.Deposit(participant, amount)
}

func (s *Session) Balance(participant string) decimal.Decimal { return s.ledger.Balance(participant) }

func (s *Session) Reserve() decimal.Decimal { return s.ledger.Reserve() }

// Replay reconstrói a corrida de um round já liquidado a partir da seed gravada
func (s *Session) Replay(roundID uint64) (simulator.Result, error) {
	entry, ok := s.settle.Entry(roundID)
	if !ok {
		return simulator.Result{}, fmt.Errorf("%w: %d", simulator.ErrUnknownRound, roundID)
	}
	if entry.Forced {
		return simulator.Result{}, fmt.Errorf("%w: %d", ErrNoReplay, roundID)
	}
	return simulator.Simulate(entry.Seed, s.cfg.Params)
}

func (s *Session) Resume() error { return s.ledger.Resume() }

// Healthy falha enquanto o ledger estiver parado por falha de integridade
func (s *Session) Healthy(context.Context) error {
	if err := s.ledger.Halted(); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrEngineUnavailable, err)
	}
	return nil
}
