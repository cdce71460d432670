package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/deadline"
	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
)

// Tick faz uma passada do ciclo automático:
// Idle com auto-continue abre round; Open com prazo vencido fecha e liquida;
// Closed pendente tenta liquidar de novo.
func (s *Session) Tick(ctx context.Context) error {
	if s.ledger.Halted() != nil {
		return nil
	}
	r := s.ledger.CurrentRound()
	switch r.Phase {
	case ledger.Idle:
		if !s.cfg.AutoContinue {
			return nil
		}
		_, err := s.OpenRound(ctx)
		if errors.Is(err, ledger.ErrAlreadyOpen) {
			return nil
		}
		return err
	case ledger.Open:
		if s.clock.PhaseOf(r.Deadline) == deadline.Open {
			return nil
		}
	}
	_, err := s.CloseAndSettle(ctx)
	if errors.Is(err, ledger.ErrRoundNotOpen) || errors.Is(err, ledger.ErrDeadlineNotReached) {
		// outro gatilho chegou antes
		return nil
	}
	return err
}

// Run chama Tick a cada SettlePollInterval até o contexto acabar
func (s *Session) Run(ctx context.Context) error {
	every := s.cfg.SettlePollInterval
	if every <= 0 {
		every = time.Second
	}
	w := s.clock.Clock().TickerFunc(ctx, every, func() error {
		if err := s.Tick(ctx); err != nil {
			s.log.Warn("scheduler tick failed", zap.Error(err))
		}
		return nil
	}, "session", "tick")
	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
