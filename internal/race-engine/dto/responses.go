package dto

import "github.com/shopspring/decimal"

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type OpenRoundResponse struct {
	RoundID uint64 `json:"round_id"`
}

type BalanceResponse struct {
	Participant string          `json:"participant"`
	Balance     decimal.Decimal `json:"balance"`
}

type ResumeResponse struct {
	Status string `json:"status"`
}
