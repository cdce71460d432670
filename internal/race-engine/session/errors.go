package session

import (
	"errors"

	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
	"github.com/radieske/race-session-engine/internal/race-engine/settlement"
	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
)

// Classify estende ledger.Classify com os erros de liquidação e simulação
func Classify(err error) ledger.Kind {
	if k := ledger.Classify(err); k != ledger.KindUnknown {
		return k
	}
	switch {
	case errors.Is(err, settlement.ErrInvalidWinner),
		errors.Is(err, simulator.ErrInvalidParams):
		return ledger.KindValidation
	case errors.Is(err, settlement.ErrAlreadySettled):
		return ledger.KindPhase
	case errors.Is(err, ErrRandomnessUnavailable):
		return ledger.KindUnavailable
	case errors.Is(err, simulator.ErrUnknownRound), errors.Is(err, ErrNoReplay):
		return ledger.KindNotFound
	}
	return ledger.KindUnknown
}
