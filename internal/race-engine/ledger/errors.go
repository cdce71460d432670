package ledger

import "errors"

var (
	// validação: o chamador corrige e tenta de novo, nada é alterado
	ErrInvalidContestant  = errors.New("invalid contestant")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrBelowMinimum       = errors.New("bet amount below minimum")
	ErrDuplicateBet       = errors.New("participant already placed a bet this round")

	// fase: a visão do chamador está desatualizada
	ErrAlreadyOpen        = errors.New("round already open")
	ErrRoundNotOpen       = errors.New("round not open")
	ErrDeadlinePassed     = errors.New("betting deadline passed")
	ErrDeadlineNotReached = errors.New("betting deadline not reached")
	ErrRoundNotClosed     = errors.New("round not closed")

	// recurso
	ErrInsufficientFunds = errors.New("insufficient funds")

	// integridade: fatal, o ledger para de aceitar mutações
	ErrInvariantViolation = errors.New("ledger invariant violated")
	ErrEngineUnavailable  = errors.New("engine unavailable")

	// dependência externa (beacon) indisponível ao abrir o round
	ErrCommitmentFailed = errors.New("randomness commitment failed")
)

// Kind agrupa os erros pelo que o chamador deve fazer com eles
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPhase
	KindResource
	KindIntegrity
	KindUnavailable
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPhase:
		return "phase"
	case KindResource:
		return "resource"
	case KindIntegrity:
		return "integrity"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Classify devolve a categoria de um erro do ledger.
// Integridade tem precedência: um erro que carrega ErrEngineUnavailable
// nunca deve ser tratado como retentável.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrInvariantViolation):
		return KindIntegrity
	case errors.Is(err, ErrInvalidContestant),
		errors.Is(err, ErrInvalidParticipant),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrBelowMinimum),
		errors.Is(err, ErrDuplicateBet):
		return KindValidation
	case errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrRoundNotOpen),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, ErrDeadlineNotReached),
		errors.Is(err, ErrRoundNotClosed):
		return KindPhase
	case errors.Is(err, ErrInsufficientFunds):
		return KindResource
	case errors.Is(err, ErrCommitmentFailed):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
