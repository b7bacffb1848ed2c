package rest_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/pokemcp/server/audit"
	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/game/arena"
	"github.com/pokemcp/server/metrics"
	"github.com/pokemcp/server/resource"
	"github.com/pokemcp/server/testutil"
)

// stack is a fully wired service layer over the fake PokeAPI.
type stack struct {
	api      *testutil.FakePokeAPI
	db       *gorm.DB
	cache    cache.Cache
	pubsub   cache.PubSub
	metrics  *metrics.Metrics
	provider *resource.Provider
	registry *resource.Registry
	arena    *arena.Service
	audit    *audit.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{api: testutil.NewFakePokeAPI(t), db: testutil.SetupTestDB(t)}
	s.cache, s.pubsub = testutil.SetupTestCache(t)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	client := resource.NewPokeAPIClient(resource.ClientConfig{BaseURL: s.api.URL, Timeout: 2 * time.Second}, s.metrics, nil)
	s.provider = resource.NewProvider(client, s.cache, resource.ProviderConfig{}, nil)
	s.registry = resource.NewRegistry(s.provider)
	s.arena = arena.NewService(arena.Deps{
		Data:    s.provider,
		DB:      s.db,
		Cache:   s.cache,
		PubSub:  s.pubsub,
		Metrics: s.metrics,
	}, arena.Config{RecentSize: 10})
	s.audit = audit.New(s.db, nil)
	t.Cleanup(func() { s.audit.Stop(context.Background()) })
	return s
}
