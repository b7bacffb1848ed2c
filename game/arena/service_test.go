package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/game/battle"
	"github.com/pokemcp/server/metrics"
	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/plugin/hook"
	"github.com/pokemcp/server/resource"
	"github.com/pokemcp/server/testutil"
)

type fakeData struct {
	pokemon map[string]*battle.PokemonRecord
	moves   map[string]*battle.MoveRecord
}

func (f *fakeData) Pokemon(_ context.Context, name string) (*battle.PokemonRecord, error) {
	rec, ok := f.pokemon[name]
	if !ok {
		return nil, fmt.Errorf("fetch pokemon %s: %w", name, resource.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeData) Moves(_ context.Context, names []string) []*battle.MoveRecord {
	out := make([]*battle.MoveRecord, len(names))
	for i, n := range names {
		if mv, ok := f.moves[n]; ok {
			out[i] = mv
		} else {
			out[i] = battle.FallbackMove(n)
		}
	}
	return out
}

func (f *fakeData) TypeChart(context.Context) *battle.TypeChart { return battle.DefaultTypeChart() }
func (f *fakeData) Statuses() *battle.StatusCatalog             { return battle.DefaultStatusCatalog() }

func newFakeData() *fakeData {
	return &fakeData{
		pokemon: map[string]*battle.PokemonRecord{
			"pikachu": {
				ID: 25, Name: "pikachu", Types: []string{"electric"},
				BaseStats: battle.BaseStats{HP: 35, Attack: 55, Defense: 40, SpAttack: 50, SpDefense: 50, Speed: 90},
				Moves:     []string{"thunder-shock", "quick-attack", "growl", "thunderbolt", "slam"},
			},
			"squirtle": {
				ID: 7, Name: "squirtle", Types: []string{"water"},
				BaseStats: battle.BaseStats{HP: 44, Attack: 48, Defense: 65, SpAttack: 50, SpDefense: 64, Speed: 43},
				Moves:     []string{"tackle", "water-gun", "bubble"},
			},
			"magikarp": {
				ID: 129, Name: "magikarp", Types: []string{"water"},
				BaseStats: battle.BaseStats{HP: 20, Attack: 10, Defense: 55, SpAttack: 15, SpDefense: 20, Speed: 80},
			},
		},
		moves: map[string]*battle.MoveRecord{
			"thunder-shock": {Name: "thunder-shock", Type: "electric", Power: battle.Int(40), Accuracy: battle.Int(100), PP: 30, Category: battle.CategorySpecial},
			"thunderbolt":   {Name: "thunderbolt", Type: "electric", Power: battle.Int(90), Accuracy: battle.Int(100), PP: 15, Category: battle.CategorySpecial},
			"water-gun":     {Name: "water-gun", Type: "water", Power: battle.Int(40), Accuracy: battle.Int(100), PP: 25, Category: battle.CategorySpecial},
			"bubble":        {Name: "bubble", Type: "water", Power: battle.Int(40), Accuracy: battle.Int(100), PP: 30, Category: battle.CategorySpecial},
		},
	}
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	cache   cache.Cache
	pubsub  cache.PubSub
	hooks   *hook.HookCenter
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	f := &fixture{db: db, cache: c, pubsub: ps, hooks: hook.NewHookCenter(nil), metrics: metrics.New()}
	f.svc = NewService(Deps{
		Data:    newFakeData(),
		DB:      db,
		Cache:   c,
		PubSub:  ps,
		Hooks:   f.hooks,
		Metrics: f.metrics,
	}, Config{MaxTurns: 50, RecentSize: 5})
	return f
}

func seed(v int64) *int64 { return &v }

func TestSimulateBattle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msgs, cancel, err := f.pubsub.Subscribe(ctx, cache.ChannelBattles)
	require.NoError(t, err)
	defer cancel()

	resp, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "Pikachu", Pokemon2: " squirtle ", Seed: seed(42)})
	require.NoError(t, err)
	require.Empty(t, resp.Error)

	assert.NotEmpty(t, resp.BattleID)
	assert.Equal(t, int64(42), resp.Seed)
	assert.Equal(t, "Fetched data for pikachu.", resp.BattleLog[0])
	assert.Equal(t, "Fetched data for squirtle.", resp.BattleLog[1])
	assert.Equal(t, "Fetching move data for pikachu and squirtle...", resp.BattleLog[2])
	assert.Contains(t, resp.BattleLog, "==== BATTLE START ====")
	assert.Positive(t, resp.Turns)
	assert.LessOrEqual(t, resp.Turns, 50)
	assert.Contains(t, []string{"side_a", "side_b", "draw", "draw_both_fainted"}, resp.WinnerSide)
	if resp.WinnerSide == "side_a" {
		assert.Equal(t, "pikachu", resp.Winner)
	}

	rec, err := f.svc.Get(ctx, resp.BattleID)
	require.NoError(t, err)
	assert.Equal(t, "pikachu", rec.Pokemon1)
	assert.Equal(t, "squirtle", rec.Pokemon2)
	assert.Equal(t, resp.Turns, rec.Turns)
	var stored []string
	require.NoError(t, json.Unmarshal(rec.Log, &stored))
	assert.Equal(t, resp.BattleLog, stored)

	select {
	case msg := <-msgs:
		var s model.BattleSummary
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &s))
		assert.Equal(t, resp.BattleID, s.ID)
	case <-time.After(time.Second):
		t.Fatal("no battle published")
	}

	recent, err := f.svc.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, resp.BattleID, recent[0].ID)

	sum, err := f.metrics.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1.0, sum["pokemcp_tool_calls_total{status=ok}{tool=simulate_battle}"])
	assert.Equal(t, 1.0, sum["pokemcp_battles_total{winner="+resp.WinnerSide+"}"])
}

func TestSimulateBattleDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(7)})
	require.NoError(t, err)
	b, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(7)})
	require.NoError(t, err)

	assert.Equal(t, a.BattleLog, b.BattleLog)
	assert.Equal(t, a.Winner, b.Winner)
	assert.Equal(t, a.Turns, b.Turns)
	assert.NotEqual(t, a.BattleID, b.BattleID)
}

func TestSimulateBattleClockSeed(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Unix(0, 123456789) }

	resp, err := f.svc.SimulateBattle(context.Background(), Request{Pokemon1: "pikachu", Pokemon2: "squirtle"})
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), resp.Seed)
}

func TestSimulateBattleFetchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "missingno", Seed: seed(1)})
	require.NoError(t, err)
	assert.Empty(t, resp.BattleID)
	assert.Empty(t, resp.Winner)
	assert.Contains(t, resp.Error, "missingno")
	require.Len(t, resp.BattleLog, 2)
	assert.Equal(t, "Fetched data for pikachu.", resp.BattleLog[0])
	assert.True(t, strings.HasPrefix(resp.BattleLog[1], "Error fetching Pokémon data:"))

	var count int64
	f.db.Model(&model.BattleRecord{}).Count(&count)
	assert.Zero(t, count)

	sum, _ := f.metrics.Summary()
	assert.Equal(t, 1.0, sum["pokemcp_tool_calls_total{status=error}{tool=simulate_battle}"])
}

func TestSimulateBattleNoMoves(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.SimulateBattle(context.Background(), Request{Pokemon1: "magikarp", Pokemon2: "squirtle", Seed: seed(3)})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, battle.ErrNoMoves.Error())
	assert.True(t, strings.HasPrefix(resp.BattleLog[len(resp.BattleLog)-1], "Error starting battle:"))
}

func TestSimulateBattleCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(1)})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, context.Canceled.Error())
	assert.Empty(t, resp.BattleID)
	assert.Empty(t, resp.Winner)
	assert.Empty(t, resp.WinnerSide)
	assert.Zero(t, resp.Turns)
	assert.NotContains(t, resp.BattleLog, "==== BATTLE START ====")

	bg := context.Background()
	var count int64
	f.db.Model(&model.BattleRecord{}).Count(&count)
	assert.Zero(t, count)

	recent, err := f.svc.Recent(bg, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
	board, err := f.svc.Leaderboard(bg, 10)
	require.NoError(t, err)
	assert.Empty(t, board)

	sum, _ := f.metrics.Summary()
	assert.Equal(t, 1.0, sum["pokemcp_tool_calls_total{status=error}{tool=simulate_battle}"])
	assert.Zero(t, sum["pokemcp_tool_calls_total{status=ok}{tool=simulate_battle}"])
}

func TestSimulateBattleInvalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SimulateBattle(context.Background(), Request{Pokemon1: "pikachu", Pokemon2: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.SimulateBattle(context.Background(), Request{Pokemon1: strings.Repeat("a", 65), Pokemon2: "pikachu"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSimulateBattleHooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.hooks.Register(hook.BeforeBattle, 0, "pin-seed", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		req := d.(*Request)
		req.Seed = seed(99)
		return req, nil
	})
	var after *Response
	f.hooks.Register(hook.AfterBattle, 0, "spy", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		after = d.(*Response)
		return d, nil
	})

	resp, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), resp.Seed)
	assert.Same(t, resp, after)

	f.hooks.Register(hook.BeforeBattle, 1, "deny", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		return d, hook.ErrInterrupt
	})
	_, err = f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSimulateBattleWithoutOptionalDeps(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(Deps{Data: newFakeData(), DB: db}, Config{})

	resp, err := svc.SimulateBattle(context.Background(), Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(5)})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.BattleID)

	recent, err := svc.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, resp.BattleID, recent[0].ID)
}

func TestSimulateBattleAgainstPokeAPI(t *testing.T) {
	api := testutil.NewFakePokeAPI(t)
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	client := resource.NewPokeAPIClient(resource.ClientConfig{BaseURL: api.URL}, nil, nil)
	provider := resource.NewProvider(client, c, resource.ProviderConfig{}, nil)
	svc := NewService(Deps{Data: provider, DB: db, Cache: c}, Config{})

	resp, err := svc.SimulateBattle(context.Background(), Request{Pokemon1: "pikachu", Pokemon2: "geodude", Seed: seed(11)})
	require.NoError(t, err)
	require.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.BattleID)
	assert.Equal(t, 1, api.Hits("/pokemon/pikachu"))
	assert.Contains(t, strings.Join(resp.BattleLog, "\n"), "PIKACHU vs GEODUDE")
}

func TestRecentFeedTrimmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var last string
	for i := 0; i < 7; i++ {
		resp, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(int64(i))})
		require.NoError(t, err)
		last = resp.BattleID
	}
	recent, err := f.svc.Recent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, last, recent[0].ID)
}

type trimFailCache struct {
	cache.Cache
}

func (trimFailCache) LTrim(context.Context, string, int64, int64) error {
	return errors.New("trim refused")
}

func TestRecentFeedTrimFailureLogged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(Deps{Data: newFakeData(), DB: db, Cache: trimFailCache{c}, Logger: zap.New(core)},
		Config{RecentSize: 5})

	resp, err := svc.SimulateBattle(context.Background(), Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(2)})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.BattleID)

	entries := logs.FilterMessage("recent feed trim failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "trim refused", entries[0].ContextMap()["error"])
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wins := map[string]int64{}
	for i := 0; i < 6; i++ {
		resp, err := f.svc.SimulateBattle(ctx, Request{Pokemon1: "pikachu", Pokemon2: "squirtle", Seed: seed(int64(100 + i))})
		require.NoError(t, err)
		if resp.WinnerSide == "side_a" || resp.WinnerSide == "side_b" {
			wins[resp.Winner]++
		}
	}

	board, err := f.svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	got := map[string]int64{}
	for i, e := range board {
		got[e.Pokemon] = e.Wins
		if i > 0 {
			assert.GreaterOrEqual(t, board[i-1].Wins, e.Wins)
		}
	}
	assert.Equal(t, wins, got)

	noCache := NewService(Deps{Data: newFakeData(), DB: f.db}, Config{})
	fromDB, err := noCache.Leaderboard(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, board, fromDB)
}

func TestHistoryAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	client := int64(9)

	rows := []model.BattleRecord{
		{ID: "old", Pokemon1: "pikachu", Pokemon2: "squirtle", WinnerSide: "side_a", Winner: "pikachu", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "mid", Pokemon1: "charmander", Pokemon2: "squirtle", WinnerSide: "side_b", Winner: "squirtle", ClientID: &client, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "new", Pokemon1: "geodude", Pokemon2: "pikachu", WinnerSide: "draw", Winner: "Draw", CreatedAt: now.Add(-time.Minute)},
	}
	require.NoError(t, f.db.Create(&rows).Error)

	list, total, err := f.svc.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{list[0].ID, list[1].ID, list[2].ID})

	list, total, err = f.svc.History(ctx, HistoryFilter{Pokemon: "Pikachu"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	list, _, err = f.svc.History(ctx, HistoryFilter{ClientID: &client})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mid", list[0].ID)

	list, total, err = f.svc.History(ctx, HistoryFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 1)
	assert.Equal(t, "mid", list[0].ID)

	n, err := f.svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.Get(ctx, "old")
	assert.True(t, errors.Is(err, ErrBattleNotFound))
	_, err = f.svc.Get(ctx, "new")
	assert.NoError(t, err)
}
