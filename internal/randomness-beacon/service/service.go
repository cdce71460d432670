package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/randomness-beacon/store"
	"github.com/radieske/race-session-engine/pkg/contracts/beacon"
)

var (
	ErrTooEarly         = errors.New("reveal before deadline")
	ErrInvalidDeadline  = errors.New("invalid deadline")
	ErrDeadlineMismatch = errors.New("round committed with another deadline")
)

const secretSize = 32

type Store interface {
	PutIfAbsent(ctx context.Context, roundID uint64, rec store.Record) (store.Record, error)
	Get(ctx context.Context, roundID uint64, deadline int64) (store.Record, error)
}

// Service publica o hash do segredo na abertura do round e só revela o
// segredo depois do prazo de apostas
type Service struct {
	Store Store
	Clock quartz.Clock
	Rand  io.Reader
	Log   *zap.Logger
}

func New(s Store, clock quartz.Clock, log *zap.Logger) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: s, Clock: clock, Rand: rand.Reader, Log: log}
}

func (s *Service) Commit(ctx context.Context, roundID uint64, deadline time.Time) (beacon.Commitment, error) {
	if deadline.IsZero() || !deadline.After(s.Clock.Now()) {
		return beacon.Commitment{}, fmt.Errorf("%w: %s", ErrInvalidDeadline, deadline)
	}
	secret := make([]byte, secretSize)
	if _, err := io.ReadFull(s.Rand, secret); err != nil {
		return beacon.Commitment{}, fmt.Errorf("read entropy: %w", err)
	}

	rec, err := s.Store.PutIfAbsent(ctx, roundID, store.Record{
		Secret:   hex.EncodeToString(secret),
		Deadline: deadline.Unix(),
	})
	if err != nil {
		return beacon.Commitment{}, err
	}
	if rec.Deadline != deadline.Unix() {
		s.Log.Warn("commitment deadline mismatch", zap.Uint64("round_id", roundID),
			zap.Int64("stored", rec.Deadline), zap.Int64("requested", deadline.Unix()))
		return beacon.Commitment{}, fmt.Errorf("%w: round %d", ErrDeadlineMismatch, roundID)
	}
	stored, err := hex.DecodeString(rec.Secret)
	if err != nil {
		return beacon.Commitment{}, fmt.Errorf("corrupt secret for round %d: %w", roundID, err)
	}

	s.Log.Info("commitment issued", zap.Uint64("round_id", roundID), zap.Int64("deadline", rec.Deadline))
	return beacon.Commitment{
		RoundID:    roundID,
		Commitment: beacon.Commit(stored),
		Deadline:   time.Unix(rec.Deadline, 0).UTC(),
	}, nil
}

// Reveal devolve o segredo do round aberto com esse prazo
func (s *Service) Reveal(ctx context.Context, roundID uint64, deadline time.Time) (beacon.Reveal, error) {
	rec, err := s.Store.Get(ctx, roundID, deadline.Unix())
	if err != nil {
		return beacon.Reveal{}, err
	}
	if s.Clock.Now().Before(time.Unix(rec.Deadline, 0)) {
		return beacon.Reveal{}, fmt.Errorf("%w: round %d", ErrTooEarly, roundID)
	}
	secret, err := hex.DecodeString(rec.Secret)
	if err != nil {
		return beacon.Reveal{}, fmt.Errorf("corrupt secret for round %d: %w", roundID, err)
	}
	return beacon.Reveal{
		RoundID:    roundID,
		Secret:     rec.Secret,
		Commitment: beacon.Commit(secret),
		Seed:       beacon.SeedFrom(secret, roundID),
	}, nil
}
