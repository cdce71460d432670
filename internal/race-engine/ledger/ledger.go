package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/deadline"
	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// Emitter recebe os eventos já confirmados. É chamado fora do lock.
type Emitter interface {
	Emit(ctx context.Context, evs ...events.Envelope)
}

type EmitterFunc func(ctx context.Context, evs ...events.Envelope)

func (f EmitterFunc) Emit(ctx context.Context, evs ...events.Envelope) { f(ctx, evs...) }

// CommitFunc obtém o compromisso (hash) da fonte de aleatoriedade para o round
type CommitFunc func(ctx context.Context, roundID uint64, deadline time.Time) (string, error)

type Config struct {
	BettingWindow time.Duration
	MinBet        decimal.Decimal
}

// Ack confirma uma aposta aceita
type Ack struct {
	RoundID     uint64          `json:"round_id"`
	Participant string          `json:"participant"`
	Contestant  int             `json:"contestant"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Pot         decimal.Decimal `json:"pot"`
}

// Ledger é o único escritor do round corrente e dos saldos.
// Todas as mutações passam pelo mesmo mutex, então apostas concorrentes
// são linearizadas e nunca perdem atualizações de pot/byContestant.
type Ledger struct {
	mu sync.Mutex

	cfg    Config
	clock  *deadline.Authority
	log    *zap.Logger
	emit   Emitter
	commit CommitFunc

	nextID   uint64
	round    Round
	balances map[string]decimal.Decimal
	reserve  decimal.Decimal
	deposits decimal.Decimal
	paid     map[uint64]struct{}

	// halted != nil significa falha de integridade: nenhuma mutação até Resume
	halted error
}

type Option func(*Ledger)

func WithEmitter(e Emitter) Option { return func(l *Ledger) { l.emit = e } }

func WithCommitter(c CommitFunc) Option { return func(l *Ledger) { l.commit = c } }

func New(cfg Config, clock *deadline.Authority, log *zap.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		cfg:      cfg,
		clock:    clock,
		log:      log,
		emit:     EmitterFunc(func(context.Context, ...events.Envelope) {}),
		nextID:   1,
		round:    idleRound(1),
		balances: map[string]decimal.Decimal{},
		paid:     map[uint64]struct{}{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) MinBet() decimal.Decimal { return l.cfg.MinBet }

// OpenRound cria um round novo com prazo now+BettingWindow.
// O committer (se houver) roda sob o lock: o round está Idle, então só
// leituras esperam por ele.
func (l *Ledger) OpenRound(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	if err := l.haltedErr(); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if l.round.Phase != Idle {
		l.mu.Unlock()
		return 0, ErrAlreadyOpen
	}

	id := l.nextID
	dl := l.clock.DeadlineFrom(l.cfg.BettingWindow)

	var commitment string
	if l.commit != nil {
		c, err := l.commit(ctx, id, dl)
		if err != nil {
			l.mu.Unlock()
			return 0, fmt.Errorf("%w: round %d: %v", ErrCommitmentFailed, id, err)
		}
		commitment = c
	}

	r := idleRound(id)
	r.Phase = Open
	r.OpenedAt = l.clock.Now()
	r.Deadline = dl
	r.Commitment = commitment
	r.Version = l.round.Version + 1
	l.round = r
	l.nextID = id + 1
	l.mu.Unlock()

	l.log.Info("round opened", zap.Uint64("round_id", id), zap.Time("deadline", dl))
	l.emit.Emit(ctx, events.NewRoundOpened(events.RoundOpened{
		RoundID:    id,
		Deadline:   dl,
		Commitment: commitment,
	}, r.OpenedAt))
	return id, nil
}

// PlaceBet valida e registra a aposta. O débito do saldo e o registro da
// aposta acontecem juntos ou não acontecem.
// O aceite depende só do prazo, não de transições de apresentação.
func (l *Ledger) PlaceBet(ctx context.Context, participant string, contestant int, amount decimal.Decimal) (Ack, error) {
	l.mu.Lock()
	if err := l.haltedErr(); err != nil {
		l.mu.Unlock()
		return Ack{}, err
	}

	r := &l.round
	switch {
	case r.Phase != Open:
		l.mu.Unlock()
		return Ack{}, ErrRoundNotOpen
	case l.clock.PhaseOf(r.Deadline) == deadline.Expired:
		l.mu.Unlock()
		return Ack{}, ErrDeadlinePassed
	case contestant < 0 || contestant >= Contestants:
		l.mu.Unlock()
		return Ack{}, ErrInvalidContestant
	case participant == "":
		l.mu.Unlock()
		return Ack{}, ErrInvalidParticipant
	case amount.LessThan(l.cfg.MinBet):
		l.mu.Unlock()
		return Ack{}, ErrBelowMinimum
	}
	if _, dup := r.Bets[participant]; dup {
		l.mu.Unlock()
		return Ack{}, ErrDuplicateBet
	}
	balance := l.balances[participant]
	if balance.LessThan(amount) {
		l.mu.Unlock()
		return Ack{}, ErrInsufficientFunds
	}

	prevPot, prevSide := r.Pot, r.ByContestant[contestant]
	newBalance := balance.Sub(amount)

	r.Bets[participant] = Bet{
		Participant: participant,
		Contestant:  contestant,
		Amount:      amount,
		PlacedAt:    l.clock.Now(),
	}
	r.Pot = r.Pot.Add(amount)
	r.ByContestant[contestant] = r.ByContestant[contestant].Add(amount)

	if err := r.verify(); err != nil {
		// recusa o commit: desfaz e trava o ledger
		delete(r.Bets, participant)
		r.Pot, r.ByContestant[contestant] = prevPot, prevSide
		err = l.haltLocked(err)
		l.mu.Unlock()
		return Ack{}, err
	}

	l.balances[participant] = newBalance
	r.Version++
	ack := Ack{
		RoundID:     r.ID,
		Participant: participant,
		Contestant:  contestant,
		Amount:      amount,
		Balance:     newBalance,
		Pot:         r.Pot,
	}
	l.mu.Unlock()

	l.emit.Emit(ctx, events.NewBetPlaced(events.BetPlaced{
		Participant: participant,
		RoundID:     ack.RoundID,
		Contestant:  contestant,
		Amount:      amount,
	}, l.clock.Now()))
	return ack, nil
}

// CloseForSettlement congela o round e devolve uma cópia imutável.
// É a única porta de entrada para a liquidação: uma segunda chamada
// encontra o round Closed e falha com ErrRoundNotOpen.
func (l *Ledger) CloseForSettlement() (Round, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.haltedErr(); err != nil {
		return Round{}, err
	}
	if l.round.Phase != Open {
		return Round{}, ErrRoundNotOpen
	}
	if l.clock.PhaseOf(l.round.Deadline) == deadline.Open {
		return Round{}, ErrDeadlineNotReached
	}
	if err := l.round.verify(); err != nil {
		return Round{}, l.haltLocked(err)
	}

	l.round.Phase = Closed
	l.round.Version++
	l.log.Info("round closed",
		zap.Uint64("round_id", l.round.ID),
		zap.String("pot", l.round.Pot.String()),
		zap.Int("bets", l.round.TotalBets()),
	)
	return l.round.clone(), nil
}

// ApplyPayouts credita os prêmios de um round fechado e envia o que sobrou
// para a reserva. Idempotente por round id: a segunda chamada devolve
// applied=false sem tocar em saldo nenhum.
func (l *Ledger) ApplyPayouts(roundID uint64, payouts map[string]decimal.Decimal, retained decimal.Decimal) (applied bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.haltedErr(); err != nil {
		return false, err
	}
	if _, done := l.paid[roundID]; done {
		return false, nil
	}
	r := &l.round
	if r.ID != roundID || r.Phase != Closed {
		return false, fmt.Errorf("%w: round %d", ErrRoundNotClosed, roundID)
	}

	total := retained
	if retained.IsNegative() {
		return false, l.haltLocked(fmt.Errorf("%w: negative retained amount %s", ErrInvariantViolation, retained))
	}
	for p, amt := range payouts {
		if _, ok := r.Bets[p]; !ok || amt.IsNegative() {
			return false, l.haltLocked(fmt.Errorf("%w: payout %s to %q in round %d", ErrInvariantViolation, amt, p, roundID))
		}
		total = total.Add(amt)
	}
	if !total.Equal(r.Pot) {
		return false, l.haltLocked(fmt.Errorf("%w: round %d payouts+retained=%s pot=%s", ErrInvariantViolation, roundID, total, r.Pot))
	}

	for p, amt := range payouts {
		l.balances[p] = l.balances[p].Add(amt)
	}
	l.reserve = l.reserve.Add(retained)
	l.paid[roundID] = struct{}{}
	r.Paid = true
	r.Version++
	return true, nil
}

// Advance encerra o round liquidado: volta para Idle ou, com autoContinue,
// abre o próximo round imediatamente.
func (l *Ledger) Advance(ctx context.Context, autoContinue bool) (Round, error) {
	l.mu.Lock()
	if err := l.haltedErr(); err != nil {
		l.mu.Unlock()
		return Round{}, err
	}
	if l.round.Phase != Closed || !l.round.Paid {
		l.mu.Unlock()
		return Round{}, fmt.Errorf("%w: round %d", ErrRoundNotClosed, l.round.ID)
	}
	version := l.round.Version + 1
	l.round = idleRound(l.nextID)
	l.round.Version = version
	if err := l.verifyGlobalLocked(); err != nil {
		err = l.haltLocked(err)
		l.mu.Unlock()
		return Round{}, err
	}
	l.mu.Unlock()

	if autoContinue {
		if _, err := l.OpenRound(ctx); err != nil {
			return l.CurrentRound(), err
		}
	}
	return l.CurrentRound(), nil
}

// Deposit credita saldo para um participante (entrada de fundos)
func (l *Ledger) Deposit(participant string, amount decimal.Decimal) (decimal.Decimal, error) {
	if participant == "" {
		return decimal.Zero, ErrInvalidParticipant
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.haltedErr(); err != nil {
		return decimal.Zero, err
	}
	bal := l.balances[participant].Add(amount)
	l.balances[participant] = bal
	l.deposits = l.deposits.Add(amount)
	return bal, nil
}

func (l *Ledger) Balance(participant string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[participant]
}

// Reserve é a conta que guarda o que a liquidação não distribuiu
func (l *Ledger) Reserve() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserve
}

// CurrentRound devolve uma cópia; alterá-la não afeta o ledger
func (l *Ledger) CurrentRound() Round {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round.clone()
}

// Halted devolve a causa da parada por integridade, ou nil
func (l *Ledger) Halted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Resume é a intervenção do operador: só destrava se as invariantes
// voltaram a valer
func (l *Ledger) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted == nil {
		return nil
	}
	if err := l.round.verify(); err != nil {
		return err
	}
	if err := l.verifyGlobalLocked(); err != nil {
		return err
	}
	l.log.Warn("ledger resumed by operator", zap.NamedError("previous_fault", l.halted))
	l.halted = nil
	return nil
}

// Verify roda as checagens de conservação sem alterar nada
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.round.verify(); err != nil {
		return err
	}
	return l.verifyGlobalLocked()
}

// verifyGlobalLocked: Σ saldos + pot não distribuído + reserva == Σ depósitos
func (l *Ledger) verifyGlobalLocked() error {
	held := l.reserve
	for _, b := range l.balances {
		if b.IsNegative() {
			return fmt.Errorf("%w: negative balance", ErrInvariantViolation)
		}
		held = held.Add(b)
	}
	if !l.round.Paid {
		held = held.Add(l.round.Pot)
	}
	if !held.Equal(l.deposits) {
		return fmt.Errorf("%w: funds held=%s deposited=%s", ErrInvariantViolation, held, l.deposits)
	}
	return nil
}

func (l *Ledger) haltedErr() error {
	if l.halted != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, l.halted)
	}
	return nil
}

func (l *Ledger) haltLocked(cause error) error {
	l.halted = cause
	l.log.Error("ledger halted on integrity fault", zap.Error(cause), zap.Uint64("round_id", l.round.ID))
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, cause)
}

func sortBets(bs []Bet) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].Participant < bs[j].Participant })
}
