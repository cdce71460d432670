package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

//go:embed schema.sql
var schema string

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres persiste os eventos de corrida no arquivo histórico.
// Cada insert é idempotente pela chave natural do evento.
type Postgres struct{ db execer }

// NewPostgres retorna uma instância do repositório do arquivo
func NewPostgres(db execer) *Postgres { return &Postgres{db: db} }

// Migrate cria as tabelas se ainda não existirem
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate archive schema: %w", err)
	}
	return nil
}

// Record grava o evento na tabela correspondente ao seu Kind
func (p *Postgres) Record(ctx context.Context, ev events.Envelope) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	var err error
	switch ev.Kind {
	case events.KindRoundOpened:
		o := ev.RoundOpened
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO rounds (round_id, deadline, commitment, opened_at)
			VALUES ($1,$2,NULLIF($3,''),$4)
			ON CONFLICT (round_id) DO UPDATE SET
			  deadline   = EXCLUDED.deadline,
			  commitment = EXCLUDED.commitment`,
			o.RoundID, o.Deadline, o.Commitment, ev.OccurredAt)
	case events.KindBetPlaced:
		b := ev.BetPlaced
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO bets (round_id, participant, contestant, amount, placed_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (round_id, participant) DO NOTHING`,
			b.RoundID, b.Participant, b.Contestant, b.Amount, ev.OccurredAt)
	case events.KindRoundClosed:
		// a semente é uint64; BIGINT não comporta, então vai como NUMERIC
		c := ev.RoundClosed
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO rounds (round_id, seed, opened_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (round_id) DO UPDATE SET seed = EXCLUDED.seed`,
			c.RoundID, strconv.FormatUint(c.Seed, 10), ev.OccurredAt)
	case events.KindRoundSettled:
		s := ev.RoundSettled
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO rounds_history (round_id, winner, final_pot, total_bets, forced, settled_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (round_id) DO NOTHING`,
			s.RoundID, s.Winner, s.FinalPot, s.TotalBets, s.Forced, s.SettledAt)
	case events.KindRewardCredited:
		r := ev.RewardCredited
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO rewards (round_id, participant, amount, credited_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (round_id, participant) DO NOTHING`,
			r.RoundID, r.Participant, r.Amount, ev.OccurredAt)
	}
	if err != nil {
		return fmt.Errorf("archive %s round %d: %w", ev.Kind, ev.RoundID, err)
	}
	return nil
}
