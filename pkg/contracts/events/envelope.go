package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind identifica o tipo de evento publicado pelo race-engine
type Kind string

const (
	KindRoundOpened    Kind = "round_opened"
	KindBetPlaced      Kind = "bet_placed"
	KindRoundClosed    Kind = "round_closed"
	KindRoundSettled   Kind = "round_settled"
	KindRewardCredited Kind = "reward_credited"
)

var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Envelope é o formato publicado no Kafka e no Redis Pub/Sub.
// Exatamente um dos payloads é preenchido, conforme Kind.
type Envelope struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	RoundID    uint64    `json:"round_id"`
	OccurredAt time.Time `json:"occurred_at"`

	RoundOpened    *RoundOpened    `json:"round_opened,omitempty"`
	BetPlaced      *BetPlaced      `json:"bet_placed,omitempty"`
	RoundClosed    *RoundClosed    `json:"round_closed,omitempty"`
	RoundSettled   *RoundSettled   `json:"round_settled,omitempty"`
	RewardCredited *RewardCredited `json:"reward_credited,omitempty"`
}

func newEnvelope(kind Kind, roundID uint64, at time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		RoundID:    roundID,
		OccurredAt: at.UTC(),
	}
}

func NewRoundOpened(p RoundOpened, at time.Time) Envelope {
	e := newEnvelope(KindRoundOpened, p.RoundID, at)
	e.RoundOpened = &p
	return e
}

func NewBetPlaced(p BetPlaced, at time.Time) Envelope {
	e := newEnvelope(KindBetPlaced, p.RoundID, at)
	e.BetPlaced = &p
	return e
}

func NewRoundClosed(p RoundClosed, at time.Time) Envelope {
	e := newEnvelope(KindRoundClosed, p.RoundID, at)
	e.RoundClosed = &p
	return e
}

func NewRoundSettled(p RoundSettled, at time.Time) Envelope {
	e := newEnvelope(KindRoundSettled, p.RoundID, at)
	e.RoundSettled = &p
	return e
}

func NewRewardCredited(p RewardCredited, at time.Time) Envelope {
	e := newEnvelope(KindRewardCredited, p.RoundID, at)
	e.RewardCredited = &p
	return e
}

// Key é a chave estável de deduplicação: (kind, roundId, participant, amount).
// Reentregas do mesmo fato produzem a mesma chave, mesmo com IDs diferentes.
func (e Envelope) Key() string {
	var participant, amount string
	switch e.Kind {
	case KindBetPlaced:
		if e.BetPlaced != nil {
			participant = e.BetPlaced.Participant
			amount = e.BetPlaced.Amount.String()
		}
	case KindRewardCredited:
		if e.RewardCredited != nil {
			participant = e.RewardCredited.Participant
			amount = e.RewardCredited.Amount.String()
		}
	}
	return string(e.Kind) + ":" + strconv.FormatUint(e.RoundID, 10) + ":" + participant + ":" + amount
}

// PartitionKey mantém todos os eventos de um round na mesma partição
func (e Envelope) PartitionKey() string {
	return strconv.FormatUint(e.RoundID, 10)
}

// Validate confere se o payload corresponde ao Kind declarado
func (e Envelope) Validate() error {
	var ok bool
	switch e.Kind {
	case KindRoundOpened:
		ok = e.RoundOpened != nil
	case KindBetPlaced:
		ok = e.BetPlaced != nil
	case KindRoundClosed:
		ok = e.RoundClosed != nil
	case KindRoundSettled:
		ok = e.RoundSettled != nil
	case KindRewardCredited:
		ok = e.RewardCredited != nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, e.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: missing %s payload", ErrInvalidEnvelope, e.Kind)
	}
	if e.RoundID == 0 {
		return fmt.Errorf("%w: round id is zero", ErrInvalidEnvelope)
	}
	return nil
}

// Decode desserializa e valida um envelope vindo do Kafka ou do Redis
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
