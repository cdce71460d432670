package dto

import "github.com/shopspring/decimal"

type PlaceBetRequest struct {
	Participant string          `json:"participant"`
	Contestant  *int            `json:"contestant"` // 0..3
	Amount      decimal.Decimal `json:"amount"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ForceSettleRequest struct {
	Winner *int `json:"winner"`
}
