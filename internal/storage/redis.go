// Package storage provides the Redis-backed persistent writer the share
// ledger uses to durably account credited shares.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/tos-network/tos-pool/internal/util"
)

const (
	keyPrefix      = "tos-operator:"
	keySharesFmt   = keyPrefix + "shares:%d:%s"  // height, coinbase -> hash(prover -> count)
	keyRoundsSet   = keyPrefix + "rounds"          // set of "height:coinbase" round keys
	keyProversSet  = keyPrefix + "provers"         // set of distinct provers ever credited
	keyProverTotal = keyPrefix + "prover:%s:total" // per-prover aggregate across rounds
)

// ShareStore wraps the Redis operations that back the share ledger.
type ShareStore struct {
	client *redis.Client
	ctx    context.Context
}

// NewShareStore opens a connection to the given Redis endpoint.
func NewShareStore(url, password string, db int) (*ShareStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	util.Infof("Connected to Redis at %s", url)
	return &ShareStore{client: client, ctx: ctx}, nil
}

// Close closes the Redis connection.
func (s *ShareStore) Close() error {
	return s.client.Close()
}

func roundKey(height uint64, coinbase string) string {
	return fmt.Sprintf(keySharesFmt, height, coinbase)
}

func roundMember(height uint64, coinbase string) string {
	return fmt.Sprintf("%d:%s", height, coinbase)
}

// IncrementShare idempotently ensures the (height, coinbase, prover) key
// exists and adds 1. The writes go out as one MULTI/EXEC round trip, so they
// are applied together or not at all, and a crash after acknowledgement
// always leaves the increment applied.
func (s *ShareStore) IncrementShare(height uint64, coinbase, prover string) error {
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(s.ctx, roundKey(height, coinbase), prover, 1)
	pipe.SAdd(s.ctx, keyRoundsSet, roundMember(height, coinbase))
	pipe.SAdd(s.ctx, keyProversSet, prover)
	pipe.Incr(s.ctx, fmt.Sprintf(keyProverTotal, prover))
	_, err := pipe.Exec(s.ctx)
	if err != nil {
		return fmt.Errorf("increment share: %w", err)
	}
	return nil
}

// SharesForBlock returns the credited share counts for one round.
func (s *ShareStore) SharesForBlock(height uint64, coinbase string) (map[string]uint64, error) {
	data, err := s.client.HGetAll(s.ctx, roundKey(height, coinbase)).Result()
	if err != nil {
		return nil, fmt.Errorf("shares for block: %w", err)
	}
	out := make(map[string]uint64, len(data))
	for prover, v := range data {
		n, _ := strconv.ParseUint(v, 10, 64)
		out[prover] = n
	}
	return out, nil
}

// SharesForProver aggregates a prover's credited shares across all rounds.
func (s *ShareStore) SharesForProver(prover string) (uint64, error) {
	v, err := s.client.Get(s.ctx, fmt.Sprintf(keyProverTotal, prover)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("shares for prover: %w", err)
	}
	n, _ := strconv.ParseUint(v, 10, 64)
	return n, nil
}

// RoundShares is one (height, coinbase) round and its credited shares.
type RoundShares struct {
	Height   uint64
	Coinbase string
	Shares   map[string]uint64
}

// AllShares returns every round this operator has ever recorded.
func (s *ShareStore) AllShares() ([]RoundShares, error) {
	members, err := s.client.SMembers(s.ctx, keyRoundsSet).Result()
	if err != nil {
		return nil, fmt.Errorf("all shares: %w", err)
	}

	out := make([]RoundShares, 0, len(members))
	for _, m := range members {
		parts := strings.SplitN(m, ":", 2)
		if len(parts) != 2 {
			continue
		}
		height, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			continue
		}
		coinbase := parts[1]
		shares, err := s.SharesForBlock(height, coinbase)
		if err != nil {
			return nil, err
		}
		out = append(out, RoundShares{Height: height, Coinbase: coinbase, Shares: shares})
	}
	return out, nil
}

// Provers returns every distinct prover that has ever submitted a credited
// share to this operator.
func (s *ShareStore) Provers() ([]string, error) {
	provers, err := s.client.SMembers(s.ctx, keyProversSet).Result()
	if err != nil {
		return nil, fmt.Errorf("provers: %w", err)
	}
	return provers, nil
}
