package beacon

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	c := Commit(secret)
	r := Reveal{RoundID: 4, Secret: hex.EncodeToString(secret), Commitment: c, Seed: SeedFrom(secret, 4)}

	seed, err := Verify(r, c)
	require.NoError(t, err)
	assert.Equal(t, SeedFrom(secret, 4), seed)
	assert.NotEqual(t, SeedFrom(secret, 5), seed, "seed depends on the round")

	_, err = Verify(r, Commit([]byte("other")))
	assert.ErrorIs(t, err, ErrCommitmentMismatch)

	r.Seed++
	_, err = Verify(r, c)
	assert.ErrorIs(t, err, ErrCommitmentMismatch)

	_, err = Verify(Reveal{Secret: "zz"}, c)
	assert.Error(t, err)
}
