package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/game/battle"
	"github.com/pokemcp/server/metrics"
	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/plugin/hook"
	"github.com/pokemcp/server/resource"
)

var (
	ErrInvalidRequest = errors.New("arena: invalid request")
	ErrRejected       = errors.New("arena: rejected by hook")
	ErrBattleNotFound = errors.New("arena: battle not found")
	ErrUnknownTool    = errors.New("arena: unknown tool")
)

// DataProvider supplies the static records a battle needs.
// *resource.Provider satisfies it.
type DataProvider interface {
	Pokemon(ctx context.Context, name string) (*battle.PokemonRecord, error)
	Moves(ctx context.Context, names []string) []*battle.MoveRecord
	TypeChart(ctx context.Context) *battle.TypeChart
	Statuses() *battle.StatusCatalog
}

// Request is the simulate_battle input.
type Request struct {
	Pokemon1 string `json:"pokemon1_name" validate:"required,max=64"`
	Pokemon2 string `json:"pokemon2_name" validate:"required,max=64"`
	// Seed makes the battle reproducible; nil picks one from the clock.
	Seed     *int64 `json:"seed,omitempty"`
	ClientID *int64 `json:"-"`
}

// Response is the simulate_battle output. On a fetch failure Error is set
// and BattleLog holds the lines produced before the failure.
type Response struct {
	BattleID   string   `json:"battle_id,omitempty"`
	BattleLog  []string `json:"battle_log"`
	Winner     string   `json:"winner,omitempty"`
	WinnerSide string   `json:"winner_side,omitempty"`
	Turns      int      `json:"turns"`
	Seed       int64    `json:"seed"`
	Error      string   `json:"error,omitempty"`
}

// Config tunes the Service.
type Config struct {
	MaxTurns   int
	RecentSize int
	Timeout    time.Duration
}

// Service runs battles for the simulate_battle tool and keeps their history.
type Service struct {
	data     DataProvider
	db       *gorm.DB
	cache    cache.Cache
	pubsub   cache.PubSub
	hooks    *hook.HookCenter
	metrics  *metrics.Metrics
	validate *validator.Validate
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// Deps groups the Service collaborators. Only Data and DB are required.
type Deps struct {
	Data    DataProvider
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Hooks   *hook.HookCenter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// NewService creates a new arena Service.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = battle.DefaultMaxTurns
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 20
	}
	return &Service{
		data:     deps.Data,
		db:       deps.DB,
		cache:    deps.Cache,
		pubsub:   deps.PubSub,
		hooks:    deps.Hooks,
		metrics:  deps.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// SimulateBattle fetches both Pokémon, samples their moves, runs the engine
// and records the result. Upstream failures come back as a Response with
// Error set; the returned error covers invalid or rejected requests only.
func (svc *Service) SimulateBattle(ctx context.Context, req Request) (*Response, error) {
	req.Pokemon1, req.Pokemon2 = normalize(req.Pokemon1), normalize(req.Pokemon2)
	if err := svc.validate.Struct(req); err != nil {
		svc.metrics.ToolCall(ToolSimulateBattle, "invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	out, err := svc.hooks.Trigger(ctx, hook.BeforeBattle, &req)
	if errors.Is(err, hook.ErrInterrupt) {
		svc.metrics.ToolCall(ToolSimulateBattle, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if r, ok := out.(*Request); ok && r != nil {
		req = *r
	}

	seed := svc.now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	rng := battle.NewSeededRNG(seed)

	if svc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp := &Response{Seed: seed}
	fail := func(stage string, err error) (*Response, error) {
		svc.logger.Warn("battle setup failed",
			zap.String("pokemon1", req.Pokemon1),
			zap.String("pokemon2", req.Pokemon2),
			zap.Error(err))
		resp.BattleLog = append(resp.BattleLog, fmt.Sprintf("Error %s: %v", stage, err))
		resp.Error = err.Error()
		svc.metrics.ToolCall(ToolSimulateBattle, "error")
		return resp, nil
	}

	p1, err := svc.data.Pokemon(ctx, req.Pokemon1)
	if err != nil {
		return fail("fetching Pokémon data", err)
	}
	resp.BattleLog = append(resp.BattleLog, fmt.Sprintf("Fetched data for %s.", p1.Name))
	p2, err := svc.data.Pokemon(ctx, req.Pokemon2)
	if err != nil {
		return fail("fetching Pokémon data", err)
	}
	resp.BattleLog = append(resp.BattleLog,
		fmt.Sprintf("Fetched data for %s.", p2.Name),
		fmt.Sprintf("Fetching move data for %s and %s...", p1.Name, p2.Name))

	m1 := svc.data.Moves(ctx, resource.SampleMoves(p1.Moves, battle.MaxMoves, rng))
	m2 := svc.data.Moves(ctx, resource.SampleMoves(p2.Moves, battle.MaxMoves, rng))

	if err := ctx.Err(); err != nil {
		return fail("starting battle", err)
	}
	result, err := battle.Simulate(battle.BattleConfig{
		TypeChart: svc.data.TypeChart(ctx),
		Statuses:  svc.data.Statuses(),
		Logger:    svc.logger,
		RNG:       rng,
		MaxTurns:  svc.cfg.MaxTurns,
	}, battle.Entrant{Record: p1, Moves: m1}, battle.Entrant{Record: p2, Moves: m2})
	if err != nil {
		return fail("starting battle", err)
	}

	resp.BattleLog = append(resp.BattleLog, result.Log...)
	resp.Winner = result.WinnerName
	resp.WinnerSide = string(result.Winner)
	resp.Turns = result.TurnCount

	rec := &model.BattleRecord{
		ID:         uuid.NewString(),
		ClientID:   req.ClientID,
		Pokemon1:   p1.Name,
		Pokemon2:   p2.Name,
		WinnerSide: resp.WinnerSide,
		Winner:     resp.Winner,
		Turns:      resp.Turns,
		Seed:       seed,
		Log:        mustJSON(resp.BattleLog),
		Final:      mustJSON(result.Final),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	// A storage failure leaves BattleID empty; the result is still returned.
	if err := svc.db.WithContext(context.WithoutCancel(ctx)).Create(rec).Error; err != nil {
		svc.logger.Error("persist battle failed", zap.Error(err))
	} else {
		resp.BattleID = rec.ID
		svc.announce(context.WithoutCancel(ctx), rec)
	}

	svc.metrics.ObserveBattle(resp.WinnerSide, resp.Turns)
	svc.metrics.ToolCall(ToolSimulateBattle, "ok")
	svc.logger.Info("battle simulated",
		zap.String("battle_id", resp.BattleID),
		zap.String("pokemon1", p1.Name),
		zap.String("pokemon2", p2.Name),
		zap.String("winner", resp.Winner),
		zap.Int("turns", resp.Turns),
		zap.Int64("seed", seed))

	if _, err := svc.hooks.Trigger(ctx, hook.AfterBattle, resp); err != nil {
		svc.logger.Debug("after-battle hook interrupted", zap.Error(err))
	}
	return resp, nil
}

// announce pushes the summary to the recent feed, the win leaderboard and
// the battles channel. Failures are logged and ignored.
func (svc *Service) announce(ctx context.Context, rec *model.BattleRecord) {
	payload, err := json.Marshal(rec.Summary())
	if err != nil {
		return
	}
	if svc.cache != nil {
		if err := svc.cache.LPush(ctx, cache.KeyRecentBattles, string(payload)); err != nil {
			svc.logger.Warn("recent feed push failed", zap.Error(err))
		} else if err := svc.cache.LTrim(ctx, cache.KeyRecentBattles, 0, int64(svc.cfg.RecentSize-1)); err != nil {
			svc.logger.Warn("recent feed trim failed", zap.Error(err))
		}
		if rec.WinnerSide == string(battle.WinnerSideA) || rec.WinnerSide == string(battle.WinnerSideB) {
			if _, err := svc.cache.ZIncrBy(ctx, cache.KeyWinLeaderboard, 1, rec.Winner); err != nil {
				svc.logger.Warn("leaderboard update failed", zap.Error(err))
			}
		}
	}
	if svc.pubsub != nil {
		if err := svc.pubsub.Publish(ctx, cache.ChannelBattles, string(payload)); err != nil {
			svc.logger.Warn("battle publish failed", zap.Error(err))
		}
	}
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
