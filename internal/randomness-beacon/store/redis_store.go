package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("round not committed")

// Record é o segredo de um round; uma vez gravado não muda
type Record struct {
	Secret   string `json:"secret"`
	Deadline int64  `json:"deadline"`
}

type kv interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore guarda os segredos com TTL (retenção depois da revelação)
type RedisStore struct {
	r   kv
	ttl time.Duration
}

func NewRedisStore(r kv, ttl time.Duration) *RedisStore {
	return &RedisStore{r: r, ttl: ttl}
}

// a chave inclui o prazo: ids de round recomeçam quando o motor reinicia e um
// round novo nunca pode herdar um segredo que já pode ser revelado
func key(roundID uint64, deadline int64) string {
	return "beacon:round:" + strconv.FormatUint(roundID, 10) + ":" + strconv.FormatInt(deadline, 10)
}

// PutIfAbsent grava o registro se o par (round, prazo) ainda não tiver um e
// devolve o que ficou valendo. Duas chamadas para o mesmo par nunca trocam o
// segredo.
func (s *RedisStore) PutIfAbsent(ctx context.Context, roundID uint64, rec Record) (Record, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	ok, err := s.r.SetNX(ctx, key(roundID, rec.Deadline), b, s.ttl).Result()
	if err != nil {
		return Record{}, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return rec, nil
	}
	return s.Get(ctx, roundID, rec.Deadline)
}

func (s *RedisStore) Get(ctx context.Context, roundID uint64, deadline int64) (Record, error) {
	raw, err := s.r.Get(ctx, key(roundID, deadline)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
