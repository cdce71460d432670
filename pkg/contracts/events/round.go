package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento emitido pelo ledger quando um round abre para apostas.
// Commitment só vem preenchido quando há um beacon de aleatoriedade configurado.
type RoundOpened struct {
	RoundID    uint64    `json:"round_id"`
	Deadline   time.Time `json:"deadline"`
	Commitment string    `json:"commitment,omitempty"`
}

// Evento emitido quando o round fecha e a semente da simulação é conhecida
type RoundClosed struct {
	RoundID uint64 `json:"round_id"`
	Seed    uint64 `json:"seed"`
}

// Evento emitido pela liquidação. É a fonte de verdade do vencedor.
type RoundSettled struct {
	RoundID   uint64          `json:"round_id"`
	Winner    int             `json:"winner"`
	FinalPot  decimal.Decimal `json:"final_pot"`
	TotalBets int             `json:"total_bets"`
	SettledAt time.Time       `json:"settled_at"`
	Forced    bool            `json:"forced"`
}
