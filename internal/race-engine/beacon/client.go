package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	contract "github.com/radieske/race-session-engine/pkg/contracts/beacon"
)

// Client fala com o randomness-beacon. Serve de CommitFunc para o ledger
// (Commit) e de simulator.RandomnessSource para a sessão (Draw).
type Client struct {
	BaseURL string
	HTTP    *http.Client

	mu          sync.Mutex
	commitments map[uint64]pending
}

type pending struct {
	commitment string
	deadline   time.Time
}

func New(base string) *Client {
	return &Client{
		BaseURL:     base,
		HTTP:        &http.Client{Timeout: 2 * time.Second},
		commitments: map[uint64]pending{},
	}
}

// Commit pede o compromisso do round e guarda o hash para conferir a revelação
func (c *Client) Commit(ctx context.Context, roundID uint64, deadline time.Time) (string, error) {
	u := fmt.Sprintf("%s/v1/rounds/%d/commitment?deadline=%s",
		c.BaseURL, roundID, url.QueryEscape(strconv.FormatInt(deadline.Unix(), 10)))
	var out contract.Commitment
	if err := c.get(ctx, u, &out); err != nil {
		return "", err
	}
	if out.RoundID != roundID || out.Commitment == "" {
		return "", fmt.Errorf("beacon commitment: unexpected response for round %d", roundID)
	}
	if out.Deadline.Unix() != deadline.Unix() {
		return "", fmt.Errorf("beacon commitment: round %d deadline %s, want %s",
			roundID, out.Deadline.UTC(), deadline.UTC())
	}

	c.mu.Lock()
	c.commitments[roundID] = pending{commitment: out.Commitment, deadline: deadline}
	c.mu.Unlock()
	return out.Commitment, nil
}

// Draw busca o segredo revelado e só aceita se bater com o compromisso
// recebido na abertura
func (c *Client) Draw(ctx context.Context, roundID uint64) (uint64, error) {
	c.mu.Lock()
	p, ok := c.commitments[roundID]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("beacon draw: no commitment for round %d", roundID)
	}

	var rv contract.Reveal
	u := fmt.Sprintf("%s/v1/rounds/%d/reveal?deadline=%d", c.BaseURL, roundID, p.deadline.Unix())
	if err := c.get(ctx, u, &rv); err != nil {
		return 0, err
	}
	seed, err := contract.Verify(rv, p.commitment)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	delete(c.commitments, roundID)
	c.mu.Unlock()
	return seed, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("beacon http %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
