package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each token's price is stored as a hash at key "price:{token}" with fields
// "price" (18-decimal fixed point integer) and "ts" (Unix nanoseconds).
type PriceCache struct {
	c   *Client
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c, rdb: c.Underlying()}
}

func (pc *PriceCache) priceKey(token common.Address) string {
	return pc.c.Key("price", token.Hex())
}

// SetPrice stores the latest price and timestamp for a token.
func (pc *PriceCache) SetPrice(ctx context.Context, token common.Address, price *num.Uint, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, pc.priceKey(token), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", token.Hex(), err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a token.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, token common.Address) (*num.Uint, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.priceKey(token)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %s: %w", token.Hex(), err)
	}
	price, ts, err := parsePriceFields(vals)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %s: %w", token.Hex(), err)
	}
	return price, ts, nil
}

// GetPrices retrieves the latest prices for multiple tokens using a pipeline.
// Tokens whose keys do not exist or hold malformed values are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, tokens []common.Address) (map[common.Address]*num.Uint, error) {
	if len(tokens) == 0 {
		return map[common.Address]*num.Uint{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[common.Address]*redis.MapStringStringCmd, len(tokens))
	for _, t := range tokens {
		cmds[t] = pipe.HGetAll(ctx, pc.priceKey(t))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[common.Address]*num.Uint, len(tokens))
	for t, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		price, _, err := parsePriceFields(vals)
		if err != nil {
			continue
		}
		result[t] = price
	}
	return result, nil
}

func parsePriceFields(vals map[string]string) (*num.Uint, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	price, err := num.UintFromString(priceStr)
	if err != nil {
		return nil, time.Time{}, err
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
