// Package beacon define o contrato commit-reveal entre o randomness-beacon
// e o race-engine.
package beacon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var ErrCommitmentMismatch = errors.New("revealed secret does not match commitment")

type Commitment struct {
	RoundID    uint64    `json:"round_id"`
	Commitment string    `json:"commitment"` // sha256(secret) em hex
	Deadline   time.Time `json:"deadline"`
}

type Reveal struct {
	RoundID    uint64 `json:"round_id"`
	Secret     string `json:"secret"` // hex
	Commitment string `json:"commitment"`
	Seed       uint64 `json:"seed"`
}

// Commit devolve o hash publicado antes do prazo
func Commit(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// SeedFrom deriva a seed da corrida do segredo revelado e do round
func SeedFrom(secret []byte, roundID uint64) uint64 {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	h := sha256.New()
	h.Write(secret)
	h.Write(id[:])
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// Verify confere o segredo contra o compromisso e devolve a seed
func Verify(r Reveal, commitment string) (uint64, error) {
	secret, err := hex.DecodeString(r.Secret)
	if err != nil {
		return 0, fmt.Errorf("decode secret: %w", err)
	}
	if Commit(secret) != commitment {
		return 0, fmt.Errorf("%w: round %d", ErrCommitmentMismatch, r.RoundID)
	}
	seed := SeedFrom(secret, r.RoundID)
	if r.Seed != 0 && r.Seed != seed {
		return 0, fmt.Errorf("%w: round %d seed", ErrCommitmentMismatch, r.RoundID)
	}
	return seed, nil
}
