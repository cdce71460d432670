package beacon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contract "github.com/radieske/race-session-engine/pkg/contracts/beacon"
)

const deadlineUnix = 1_700_000_300

func fakeBeacon(t *testing.T, secret []byte, revealSecret []byte, early bool) *httptest.Server {
	return fakeBeaconAt(t, time.Unix(deadlineUnix, 0), secret, revealSecret, early)
}

// fakeBeaconAt responde o compromisso com o prazo informado, certo ou não
func fakeBeaconAt(t *testing.T, deadline time.Time, secret []byte, revealSecret []byte, early bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rounds/3/commitment", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1700000300", r.URL.Query().Get("deadline"))
		_ = json.NewEncoder(w).Encode(contract.Commitment{
			RoundID:    3,
			Commitment: contract.Commit(secret),
			Deadline:   deadline.UTC(),
		})
	})
	mux.HandleFunc("/v1/rounds/3/reveal", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1700000300", r.URL.Query().Get("deadline"))
		if early {
			w.WriteHeader(http.StatusTooEarly)
			return
		}
		_ = json.NewEncoder(w).Encode(contract.Reveal{
			RoundID:    3,
			Secret:     hex.EncodeToString(revealSecret),
			Commitment: contract.Commit(revealSecret),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCommitThenDraw(t *testing.T) {
	ctx := context.Background()
	secret := []byte("round-three-secret")
	c := New(fakeBeacon(t, secret, secret, false).URL)

	commitment, err := c.Commit(ctx, 3, time.Unix(deadlineUnix, 0))
	require.NoError(t, err)
	assert.Equal(t, contract.Commit(secret), commitment)

	seed, err := c.Draw(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, contract.SeedFrom(secret, 3), seed)
}

func TestDrawRejectsSwappedSecret(t *testing.T) {
	ctx := context.Background()
	c := New(fakeBeacon(t, []byte("committed"), []byte("swapped"), false).URL)

	_, err := c.Commit(ctx, 3, time.Unix(deadlineUnix, 0))
	require.NoError(t, err)
	_, err = c.Draw(ctx, 3)
	assert.ErrorIs(t, err, contract.ErrCommitmentMismatch)
}

func TestDrawBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	c := New(fakeBeacon(t, []byte("s"), []byte("s"), true).URL)

	_, err := c.Commit(ctx, 3, time.Unix(deadlineUnix, 0))
	require.NoError(t, err)
	_, err = c.Draw(ctx, 3)
	assert.ErrorContains(t, err, "425")
}

func TestDrawWithoutCommitment(t *testing.T) {
	c := New(fakeBeacon(t, []byte("s"), []byte("s"), false).URL)
	_, err := c.Draw(context.Background(), 3)
	assert.ErrorContains(t, err, "no commitment for round 3")
}

// um beacon que devolve o registro de um round 3 antigo (prazo já vencido)
// não pode ser aceito como compromisso do round 3 atual
func TestCommitRejectsOtherDeadline(t *testing.T) {
	ctx := context.Background()
	secret := []byte("old-round-three")
	c := New(fakeBeaconAt(t, time.Unix(deadlineUnix-600, 0), secret, secret, false).URL)

	_, err := c.Commit(ctx, 3, time.Unix(deadlineUnix, 0))
	require.ErrorContains(t, err, "deadline")

	_, err = c.Draw(ctx, 3)
	assert.ErrorContains(t, err, "no commitment for round 3")
}
