package simulator

import (
	"context"
	"time"
)

// RandomnessSource fornece a seed da corrida de um round
type RandomnessSource interface {
	Draw(ctx context.Context, roundID uint64) (uint64, error)
}

// FallbackSeed é previsível por qualquer um que conheça o round.
// Serve para demo e para reconciliadores sem acesso ao evento round_closed.
func FallbackSeed(roundID uint64, deadline time.Time) uint64 {
	return roundID*1000 + uint64(deadline.Unix())
}

// DeadlineSource usa a seed derivada do prazo; precisa saber o prazo de
// cada round, então consulta quem os conhece
type DeadlineSource struct {
	Deadline func(roundID uint64) (time.Time, bool)
}

func (s DeadlineSource) Draw(_ context.Context, roundID uint64) (uint64, error) {
	dl, ok := s.Deadline(roundID)
	if !ok {
		return 0, ErrUnknownRound
	}
	return FallbackSeed(roundID, dl), nil
}
