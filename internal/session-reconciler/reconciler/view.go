package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
)

// Presentation é a fase que o observador mostra; não é a fase do ledger
type Presentation int

const (
	Waiting Presentation = iota
	AcceptingSelections
	RaceInProgress
	Finished
)

func (p Presentation) String() string {
	switch p {
	case AcceptingSelections:
		return "accepting_selections"
	case RaceInProgress:
		return "race_in_progress"
	case Finished:
		return "finished"
	default:
		return "waiting"
	}
}

func (p Presentation) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// View é o que vai para os clientes (HTTP e websocket).
// Winner é o vencedor oficial quando Settled, senão o palpite local.
type View struct {
	RoundID      uint64                                 `json:"round_id"`
	Presentation Presentation                           `json:"presentation"`
	Deadline     time.Time                              `json:"deadline"`
	Pot          decimal.Decimal                        `json:"pot"`
	ByContestant [simulator.Contestants]decimal.Decimal `json:"by_contestant"`
	TotalBets    int                                    `json:"total_bets"`
	Positions    [simulator.Contestants]float64         `json:"positions"`
	Winner       *int                                   `json:"winner,omitempty"`
	Settled      bool                                   `json:"settled"`
	Forced       bool                                   `json:"forced"`
	Divergent    bool                                   `json:"divergent"`
	Rewards      map[string]decimal.Decimal             `json:"rewards,omitempty"`
}

type round struct {
	id           uint64
	deadline     time.Time
	pot          decimal.Decimal
	byContestant [simulator.Contestants]decimal.Decimal
	totalBets    int

	seed      uint64
	seedKnown bool

	race        *simulator.Result
	raceSeed    uint64
	raceStart   time.Time
	finishShown bool

	settled   bool
	forced    bool
	winner    int
	divergent bool
	rewards   map[string]decimal.Decimal
}

func newRound(id uint64) *round {
	return &round{id: id, rewards: map[string]decimal.Decimal{}}
}
