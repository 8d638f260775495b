// Package cache is a Redis cache-aside layer in front of the trade store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

const DefaultTTL = 5 * time.Minute

var errStale = errors.New("cache: generation changed")

// Connect returns a client for redisURL, or nil when caching should stay
// off: no URL, an invalid URL, or a failed ping.
func Connect(redisURL string) *redis.Client {
	if redisURL == "" {
		log.Info().Msg("redis cache: no URL configured, caching disabled")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis cache: invalid URL, caching disabled")
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache: connection failed, caching disabled")
		_ = rdb.Close()
		return nil
	}
	log.Info().Msg("redis cache: connected")
	return rdb
}

// TradeStore caches Get by request id. Reads inside Update never consult the
// cache; every successful Update or Delete drops the entry and bumps a
// per-id generation counter. A fill only lands when the generation it read
// before loading from the store is still current, so a snapshot loaded
// before a concurrent write is never written back.
type TradeStore struct {
	trade.Store
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// New wraps next. A nil client makes every call a pass-through.
func New(next trade.Store, rdb *redis.Client, ttl time.Duration) *TradeStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TradeStore{
		Store: next,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "trade_cache").Logger(),
	}
}

func tradeKey(id string) string { return "trade:" + id }

func genKey(id string) string { return "trade:gen:" + id }

// genTTL outlives any fill that could race with the bump.
func (c *TradeStore) genTTL() time.Duration { return 2 * c.ttl }

func (c *TradeStore) Get(ctx context.Context, id string) (*trade.Trade, error) {
	if c.rdb == nil {
		return c.Store.Get(ctx, id)
	}
	data, err := c.rdb.Get(ctx, tradeKey(id)).Bytes()
	switch {
	case err == nil:
		var t trade.Trade
		if err := json.Unmarshal(data, &t); err == nil {
			return &t, nil
		}
		c.log.Warn().Str("request_id", id).Msg("dropping undecodable cache entry")
		c.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("request_id", id).Msg("cache read failed")
	}

	gen, err := c.rdb.Get(ctx, genKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("request_id", id).Msg("cache read failed")
		return c.Store.Get(ctx, id)
	}

	t, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, id, gen, t)
	return t, nil
}

// fill stores t unless the generation moved past gen since it was read.
func (c *TradeStore) fill(ctx context.Context, id, gen string, t *trade.Trade) {
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(id)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tradeKey(id), b, c.ttl)
			return nil
		})
		return err
	}, genKey(id))
	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.log.Debug().Str("request_id", id).Msg("skipping fill of superseded snapshot")
	default:
		c.log.Warn().Err(err).Str("request_id", id).Msg("cache write failed")
	}
}

func (c *TradeStore) Update(ctx context.Context, id string, fn func(t *trade.Trade) error) (*trade.Trade, error) {
	t, err := c.Store.Update(ctx, id, fn)
	if err == nil {
		c.invalidate(ctx, id)
	}
	return t, err
}

func (c *TradeStore) Delete(ctx context.Context, id string, fn func(t *trade.Trade) error) error {
	err := c.Store.Delete(ctx, id, fn)
	if err == nil {
		c.invalidate(ctx, id)
	}
	return err
}

func (c *TradeStore) invalidate(ctx context.Context, id string) {
	if c.rdb == nil {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(id))
		pipe.Expire(ctx, genKey(id), c.genTTL())
		pipe.Del(ctx, tradeKey(id))
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("request_id", id).Msg("cache invalidation failed")
	}
}
