package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
	"github.com/radieske/race-session-engine/internal/session-reconciler/dedup"
	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// keepRounds limita quantos rounds antigos ficam em memória
const keepRounds = 32

// Reconciler projeta os eventos do engine numa visão local.
// A projeção é idempotente (dedup por Key) e tolera eventos fora de ordem:
// eventos de rounds antigos nunca fazem a visão corrente regredir.
type Reconciler struct {
	mu sync.Mutex

	clock  quartz.Clock
	params simulator.Params
	seen   dedup.Set
	log    *zap.Logger

	rounds map[uint64]*round
	latest uint64

	// presented é o round que os clientes estão vendo. Só anda para frente,
	// e não sai de um round enquanto a corrida dele estiver na tela.
	presented uint64

	OnChange     func(View) // chamado fora do lock
	OnDuplicate  func()     // métricas
	OnDivergence func()     // métricas
}

func New(clock quartz.Clock, params simulator.Params, seen dedup.Set, log *zap.Logger) *Reconciler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if seen == nil {
		seen = dedup.NewMemory(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		clock:  clock,
		params: params,
		seen:   seen,
		log:    log,
		rounds: map[uint64]*round{},
	}
}

// Apply aplica um evento. Devolve false quando o evento já tinha sido visto
// ou quando é de um round que já saiu da memória.
func (r *Reconciler) Apply(ctx context.Context, ev events.Envelope) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}
	first, err := r.seen.FirstSeen(ctx, ev.Key())
	if err != nil {
		return false, err
	}
	if !first {
		if r.OnDuplicate != nil {
			r.OnDuplicate()
		}
		return false, nil
	}

	r.mu.Lock()
	rd := r.roundLocked(ev.RoundID)
	if rd == nil {
		r.mu.Unlock()
		r.log.Debug("event for pruned round dropped",
			zap.String("kind", string(ev.Kind)), zap.Uint64("round_id", ev.RoundID))
		return false, nil
	}
	switch ev.Kind {
	case events.KindRoundOpened:
		rd.deadline = ev.RoundOpened.Deadline
	case events.KindBetPlaced:
		b := ev.BetPlaced
		if b.Contestant >= 0 && b.Contestant < simulator.Contestants {
			rd.pot = rd.pot.Add(b.Amount)
			rd.byContestant[b.Contestant] = rd.byContestant[b.Contestant].Add(b.Amount)
			rd.totalBets++
		}
	case events.KindRoundClosed:
		rd.seed, rd.seedKnown = ev.RoundClosed.Seed, true
		if rd.race != nil && rd.raceSeed != rd.seed {
			// a animação especulativa usou outra seed: refaz com a oficial
			r.simulateLocked(rd, rd.raceStart)
		}
	case events.KindRoundSettled:
		r.settleLocked(rd, ev.RoundSettled)
	case events.KindRewardCredited:
		rd.rewards[ev.RewardCredited.Participant] = ev.RewardCredited.Amount
	}
	now := r.clock.Now()
	r.advanceLocked(now)
	current := ev.RoundID == r.presented
	var v View
	if current {
		v = r.viewLocked(rd, now)
	}
	r.mu.Unlock()

	if current && r.OnChange != nil {
		r.OnChange(v)
	}
	return true, nil
}

func (r *Reconciler) settleLocked(rd *round, s *events.RoundSettled) {
	rd.settled = true
	rd.forced = s.Forced
	rd.winner = s.Winner
	rd.pot = s.FinalPot
	rd.totalBets = s.TotalBets

	if rd.race != nil && rd.race.Winner != s.Winner {
		rd.divergent = true
		r.log.Warn("local race diverged from settlement",
			zap.Uint64("round_id", rd.id),
			zap.Int("local_winner", rd.race.Winner),
			zap.Int("settled_winner", s.Winner),
			zap.Bool("forced", s.Forced),
		)
		if r.OnDivergence != nil {
			r.OnDivergence()
		}
	}
}

// roundLocked devolve nil para rounds mais antigos que a janela mantida
func (r *Reconciler) roundLocked(id uint64) *round {
	if r.latest > keepRounds && id <= r.latest-keepRounds {
		return nil
	}
	rd, ok := r.rounds[id]
	if !ok {
		rd = newRound(id)
		r.rounds[id] = rd
	}
	if id > r.latest {
		r.latest = id
		r.pruneLocked()
	}
	return rd
}

func (r *Reconciler) pruneLocked() {
	if r.latest <= keepRounds {
		return
	}
	for id := range r.rounds {
		if id <= r.latest-keepRounds {
			delete(r.rounds, id)
		}
	}
}

// holdLocked diz se o round ainda precisa ficar na tela: a corrida local
// vai do prazo até prazo+Duration, e o resultado dela é mostrado ao menos
// uma vez antes de passar para o próximo round
func (r *Reconciler) holdLocked(rd *round, now time.Time) bool {
	if rd.forced || rd.deadline.IsZero() || now.Before(rd.deadline) {
		return false
	}
	if now.Before(rd.deadline.Add(r.params.Duration)) {
		return true
	}
	return rd.race != nil && !rd.finishShown
}

// advanceLocked move presented para o round mais recente quando o atual libera
func (r *Reconciler) advanceLocked(now time.Time) {
	if r.presented == r.latest {
		return
	}
	if cur, ok := r.rounds[r.presented]; ok && r.holdLocked(cur, now) {
		return
	}
	r.presented = r.latest
}

func (r *Reconciler) simulateLocked(rd *round, start time.Time) {
	seed := rd.seed
	if !rd.seedKnown {
		seed = simulator.FallbackSeed(rd.id, rd.deadline)
	}
	res, err := simulator.Simulate(seed, r.params)
	if err != nil {
		r.log.Error("local simulation failed", zap.Uint64("round_id", rd.id), zap.Error(err))
		return
	}
	rd.race, rd.raceSeed, rd.raceStart = &res, seed, start
}

// Tick avança os temporizadores locais: passado o prazo a corrida começa sem
// esperar o engine. Devolve a visão se a apresentação mudou.
func (r *Reconciler) Tick() (View, bool) {
	r.mu.Lock()
	now := r.clock.Now()
	prev := r.presented
	var before Presentation
	if rd, ok := r.rounds[prev]; ok {
		before = r.presentationLocked(rd, now)
	}
	r.advanceLocked(now)
	rd, ok := r.rounds[r.presented]
	if !ok {
		r.mu.Unlock()
		return View{}, false
	}
	if rd.race == nil && !rd.forced && !rd.deadline.IsZero() && !now.Before(rd.deadline) {
		r.simulateLocked(rd, rd.deadline)
	}
	v := r.viewLocked(rd, now)
	if v.Presentation == Finished && rd.race != nil {
		rd.finishShown = true
	}
	r.mu.Unlock()

	changed := v.RoundID != prev || v.Presentation != before || v.Presentation == RaceInProgress
	if changed && r.OnChange != nil {
		r.OnChange(v)
	}
	return v, changed
}

// Run chama Tick a cada passo da corrida
func (r *Reconciler) Run(ctx context.Context) error {
	step := r.params.Step
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	w := r.clock.TickerFunc(ctx, step, func() error {
		r.Tick()
		return nil
	}, "reconciler")
	if err := w.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reconciler ticker: %w", err)
	}
	return nil
}

func (r *Reconciler) presentationLocked(rd *round, now time.Time) Presentation {
	switch {
	case rd.settled && rd.race == nil:
		return Finished
	case rd.deadline.IsZero():
		return Waiting
	case now.Before(rd.deadline):
		return AcceptingSelections
	case rd.race != nil && now.Before(rd.raceStart.Add(r.params.Duration)):
		return RaceInProgress
	case rd.race == nil:
		// prazo passou mas o Tick ainda não rodou
		return AcceptingSelections
	default:
		return Finished
	}
}

func (r *Reconciler) viewLocked(rd *round, now time.Time) View {
	v := View{
		RoundID:      rd.id,
		Presentation: r.presentationLocked(rd, now),
		Deadline:     rd.deadline,
		Pot:          rd.pot,
		ByContestant: rd.byContestant,
		TotalBets:    rd.totalBets,
		Settled:      rd.settled,
		Forced:       rd.forced,
		Divergent:    rd.divergent,
	}
	if len(rd.rewards) > 0 {
		v.Rewards = make(map[string]decimal.Decimal, len(rd.rewards))
		for p, a := range rd.rewards {
			v.Rewards[p] = a
		}
	}
	if rd.race != nil {
		v.Positions = rd.race.Final
		if v.Presentation == RaceInProgress {
			v.Positions = frameAt(rd.race, now.Sub(rd.raceStart), r.params.Step)
		}
	}
	switch {
	case rd.settled:
		w := rd.winner
		v.Winner = &w
	case v.Presentation == Finished && rd.race != nil:
		w := rd.race.Winner
		v.Winner = &w
	}
	return v
}

func frameAt(res *simulator.Result, elapsed, step time.Duration) [simulator.Contestants]float64 {
	if step <= 0 || elapsed < step {
		return [simulator.Contestants]float64{}
	}
	i := int(elapsed/step) - 1
	if i >= len(res.Frames) {
		i = len(res.Frames) - 1
	}
	return res.Frames[i]
}

// View devolve a visão do round em apresentação
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rounds[r.presented]
	if !ok {
		return View{Presentation: Waiting}
	}
	return r.viewLocked(rd, r.clock.Now())
}

// Round devolve a visão de um round específico, se ainda estiver em memória
func (r *Reconciler) Round(id uint64) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rounds[id]
	if !ok {
		return View{}, false
	}
	return r.viewLocked(rd, r.clock.Now()), true
}
