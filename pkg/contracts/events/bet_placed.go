package events

import "github.com/shopspring/decimal"

type BetPlaced struct {
	Participant string          `json:"participant"`
	RoundID     uint64          `json:"round_id"`
	Contestant  int             `json:"contestant"`
	Amount      decimal.Decimal `json:"amount"`
}

// Evento emitido pela liquidação, um por prêmio creditado
type RewardCredited struct {
	Participant string          `json:"participant"`
	RoundID     uint64          `json:"round_id"`
	Amount      decimal.Decimal `json:"amount"`
}
