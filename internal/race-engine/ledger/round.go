package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Contestants é fixo: a corrida sempre tem quatro competidores
const Contestants = 4

type Phase int

const (
	Idle Phase = iota
	Open
	Closed
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*p = Idle
	case "open":
		*p = Open
	case "closed":
		*p = Closed
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// Bet é imutável depois de registrada
type Bet struct {
	Participant string          `json:"participant"`
	Contestant  int             `json:"contestant"`
	Amount      decimal.Decimal `json:"amount"`
	PlacedAt    time.Time       `json:"placed_at"`
}

// Round é o valor versionado que o ledger possui com exclusividade.
// Para fora do pacote só saem cópias (ver clone).
type Round struct {
	ID           uint64                       `json:"round_id"`
	Phase        Phase                        `json:"phase"`
	OpenedAt     time.Time                    `json:"opened_at"`
	Deadline     time.Time                    `json:"deadline"`
	Pot          decimal.Decimal              `json:"pot"`
	ByContestant [Contestants]decimal.Decimal `json:"by_contestant"`
	Bets         map[string]Bet               `json:"-"`
	Commitment   string                       `json:"commitment,omitempty"`
	Version      uint64                       `json:"version"`
	// Paid indica que a liquidação já creditou os prêmios deste round
	Paid bool `json:"paid"`
}

func idleRound(id uint64) Round {
	return Round{ID: id, Phase: Idle, Bets: map[string]Bet{}}
}

func (r Round) TotalBets() int { return len(r.Bets) }

// BetsSorted devolve as apostas ordenadas por participante (saída estável)
func (r Round) BetsSorted() []Bet {
	out := make([]Bet, 0, len(r.Bets))
	for _, b := range r.Bets {
		out = append(out, b)
	}
	sortBets(out)
	return out
}

func (r Round) clone() Round {
	c := r
	c.Bets = make(map[string]Bet, len(r.Bets))
	for k, v := range r.Bets {
		c.Bets[k] = v
	}
	return c
}

// verify checa pot == Σ byContestant == Σ bets
func (r Round) verify() error {
	var byContestant, byBets decimal.Decimal
	for _, v := range r.ByContestant {
		if v.IsNegative() {
			return fmt.Errorf("%w: negative contestant total in round %d", ErrInvariantViolation, r.ID)
		}
		byContestant = byContestant.Add(v)
	}

	var perContestant [Contestants]decimal.Decimal
	for p, b := range r.Bets {
		if b.Participant != p || b.Contestant < 0 || b.Contestant >= Contestants {
			return fmt.Errorf("%w: malformed bet for %q in round %d", ErrInvariantViolation, p, r.ID)
		}
		byBets = byBets.Add(b.Amount)
		perContestant[b.Contestant] = perContestant[b.Contestant].Add(b.Amount)
	}

	if !r.Pot.Equal(byContestant) || !r.Pot.Equal(byBets) {
		return fmt.Errorf("%w: round %d pot=%s contestants=%s bets=%s",
			ErrInvariantViolation, r.ID, r.Pot, byContestant, byBets)
	}
	for i := range perContestant {
		if !perContestant[i].Equal(r.ByContestant[i]) {
			return fmt.Errorf("%w: round %d contestant %d total=%s bets=%s",
				ErrInvariantViolation, r.ID, i, r.ByContestant[i], perContestant[i])
		}
	}
	return nil
}
