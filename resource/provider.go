package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/game/battle"
)

const (
	keyPokemonPrefix = "pokeapi:pokemon:"
	keyMovePrefix    = "pokeapi:move:"
	keyTypeChart     = "pokeapi:typechart"
)

// DefaultCacheTTL applies when ProviderConfig.CacheTTL is zero.
const DefaultCacheTTL = 24 * time.Hour

// ProviderConfig configures the caching provider.
type ProviderConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Provider is the data source the battle service reads from. It wraps the
// PokeAPI client with the shared cache and supplies offline fallbacks.
type Provider struct {
	client   *PokeAPIClient
	cache    cache.Cache
	ttl      time.Duration
	statuses *battle.StatusCatalog
	logger   *zap.Logger

	mu    sync.RWMutex
	chart *battle.TypeChart
}

// NewProvider creates a Provider. c may be nil to disable caching.
func NewProvider(client *PokeAPIClient, c cache.Cache, cfg ProviderConfig, logger *zap.Logger) *Provider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client:   client,
		cache:    c,
		ttl:      cfg.CacheTTL,
		statuses: battle.DefaultStatusCatalog(),
		logger:   logger,
	}
}

func (p *Provider) loadCached(ctx context.Context, key string, out any) bool {
	if p.cache == nil {
		return false
	}
	raw, err := p.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsNotFound(err) {
			p.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		p.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = p.cache.Del(ctx, key)
		return false
	}
	return true
}

func (p *Provider) store(ctx context.Context, key string, v any) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := p.cache.Set(ctx, key, string(raw), p.ttl); err != nil {
		p.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Pokemon returns the record for name, from cache when possible.
func (p *Provider) Pokemon(ctx context.Context, name string) (*battle.PokemonRecord, error) {
	n, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	key := keyPokemonPrefix + n
	var rec battle.PokemonRecord
	if p.loadCached(ctx, key, &rec) {
		return &rec, nil
	}
	fetched, err := p.client.Pokemon(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("fetch pokemon %s: %w", n, err)
	}
	p.store(ctx, key, fetched)
	if p.cache != nil {
		_ = p.cache.SAdd(ctx, cache.KeySeenPokemon, fetched.Name)
	}
	return fetched, nil
}

// Move returns the record for name. Any failure yields the generic
// fallback move, which is not cached.
func (p *Provider) Move(ctx context.Context, name string) *battle.MoveRecord {
	n, err := normalizeName(name)
	if err != nil {
		return battle.FallbackMove(name)
	}
	key := keyMovePrefix + n
	var mv battle.MoveRecord
	if p.loadCached(ctx, key, &mv) {
		return &mv
	}
	fetched, err := p.client.Move(ctx, n)
	if err != nil {
		p.logger.Warn("move fetch failed, using fallback", zap.String("move", n), zap.Error(err))
		return battle.FallbackMove(n)
	}
	p.store(ctx, key, fetched)
	return fetched
}

// Moves fetches each named move in order.
func (p *Provider) Moves(ctx context.Context, names []string) []*battle.MoveRecord {
	out := make([]*battle.MoveRecord, 0, len(names))
	for _, n := range names {
		out = append(out, p.Move(ctx, n))
	}
	return out
}

// TypeChart returns the memoized chart, then the cached one, then a fresh
// upstream build. If all fail the built-in chart is returned and nothing is
// memoized, so the next call retries.
func (p *Provider) TypeChart(ctx context.Context) *battle.TypeChart {
	p.mu.RLock()
	tc := p.chart
	p.mu.RUnlock()
	if tc != nil {
		return tc
	}

	var relations map[string]map[string]float64
	if p.loadCached(ctx, keyTypeChart, &relations) {
		if tc, err := battle.NewTypeChart(relations); err == nil {
			p.setChart(tc)
			return tc
		}
	}
	tc, err := p.RefreshTypeChart(ctx)
	if err != nil {
		p.logger.Warn("type chart fetch failed, using built-in chart", zap.Error(err))
		return battle.DefaultTypeChart()
	}
	return tc
}

// RefreshTypeChart rebuilds the chart from upstream and replaces the cached
// and memoized copies.
func (p *Provider) RefreshTypeChart(ctx context.Context) (*battle.TypeChart, error) {
	tc, err := p.client.TypeChart(ctx)
	if err != nil {
		return nil, err
	}
	p.store(ctx, keyTypeChart, tc.Relations())
	p.setChart(tc)
	p.logger.Info("type chart refreshed", zap.Int("types", len(tc.Types())))
	return tc, nil
}

func (p *Provider) setChart(tc *battle.TypeChart) {
	p.mu.Lock()
	p.chart = tc
	p.mu.Unlock()
}

// Statuses returns the status catalog.
func (p *Provider) Statuses() *battle.StatusCatalog { return p.statuses }

// Seen lists pokemon fetched through this provider's cache, sorted.
func (p *Provider) Seen(ctx context.Context) []string {
	if p.cache == nil {
		return nil
	}
	names, err := p.cache.SMembers(ctx, cache.KeySeenPokemon)
	if err != nil {
		p.logger.Warn("seen set read failed", zap.Error(err))
		return nil
	}
	return names
}

// SampleMoves picks up to n distinct names (never more than battle.MaxMoves)
// using a partial Fisher-Yates shuffle of a copy.
func SampleMoves(names []string, n int, rng battle.RNG) []string {
	if n > battle.MaxMoves {
		n = battle.MaxMoves
	}
	if n > len(names) {
		n = len(names)
	}
	if n <= 0 {
		return nil
	}
	pool := append([]string(nil), names...)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
