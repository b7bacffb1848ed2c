// Package app wires the server components into a runnable HTTP handler. It is
// shared by main and the integration harness.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/pokemcp/server/api/rest"
	"github.com/pokemcp/server/api/sse"
	apiws "github.com/pokemcp/server/api/ws"
	"github.com/pokemcp/server/audit"
	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/config"
	"github.com/pokemcp/server/game/arena"
	"github.com/pokemcp/server/metrics"
	mw "github.com/pokemcp/server/middleware"
	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/plugin/hook"
	"github.com/pokemcp/server/resource"
	"github.com/pokemcp/server/scheduler"
)

// Scheduler task names.
const (
	TaskPruneHistory    = "battle_prune"
	TaskTypeChart       = "typechart_refresh"
	TaskTypeChartWarmup = "typechart_warmup"
	TaskStats           = "stats_log"
)

// Infra holds the already opened storage handles.
type Infra struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Logger *zap.Logger
}

// App is the assembled server.
type App struct {
	Engine   *gin.Engine
	Metrics  *metrics.Metrics
	Hooks    *hook.HookCenter
	Provider *resource.Provider
	Registry *resource.Registry
	Arena    *arena.Service
	Audit    *audit.Service
	Sched    *scheduler.Scheduler
	Hub      *apiws.Hub
	SSE      *sse.Handler

	cfg    *config.Config
	infra  Infra
	cancel context.CancelFunc
}

// New builds every service and registers the routes. Nothing runs in the
// background until Start.
func New(cfg *config.Config, infra Infra) *App {
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
		infra.Logger = logger
	}

	a := &App{cfg: cfg, infra: infra}
	a.Metrics = metrics.New()
	a.Hooks = hook.NewHookCenter(logger)
	client := resource.NewPokeAPIClient(resource.ClientConfig{
		BaseURL: cfg.PokeAPI.BaseURL,
		Timeout: cfg.PokeAPI.Timeout,
	}, a.Metrics, logger)
	a.Provider = resource.NewProvider(client, infra.Cache, resource.ProviderConfig{CacheTTL: cfg.PokeAPI.CacheTTL}, logger)
	a.Registry = resource.NewRegistry(a.Provider)
	a.Arena = arena.NewService(arena.Deps{
		Data:    a.Provider,
		DB:      infra.DB,
		Cache:   infra.Cache,
		PubSub:  infra.PubSub,
		Hooks:   a.Hooks,
		Metrics: a.Metrics,
		Logger:  logger,
	}, arena.Config{
		MaxTurns:   cfg.Battle.MaxTurns,
		RecentSize: cfg.Battle.RecentSize,
		Timeout:    cfg.Battle.Timeout,
	})
	a.Audit = audit.New(infra.DB, logger)
	a.Sched = scheduler.New(logger)
	a.Hub = apiws.NewHub(logger)
	a.SSE = sse.NewHandler(infra.PubSub, infra.Cache, cfg.Security, logger)

	a.registerHooks()
	a.Engine = a.routes()
	return a
}

// registerHooks records client logins and logouts in the audit log.
func (a *App) registerHooks() {
	a.Hooks.Register(hook.OnClientLogin, 100, "audit.login", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		if client, ok := data.(*model.APIClient); ok {
			id := client.ID
			a.Audit.Log(audit.Entry{ClientID: &id, Username: client.Username, Action: "client.login", Transport: audit.TransportREST})
		}
		return data, nil
	})
	a.Hooks.Register(hook.OnClientLogout, 100, "audit.logout", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		if id, ok := data.(int64); ok {
			a.Audit.Log(audit.Entry{ClientID: &id, Action: "client.logout", Transport: audit.TransportREST})
		}
		return data, nil
	})
}

func (a *App) routes() *gin.Engine {
	cfg, logger, c := a.cfg, a.infra.Logger, a.infra.Cache

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), mw.Metrics(a.Metrics))
	r.Use(mw.RateLimit(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst))

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	authH := apirest.NewAuthHandler(a.infra.DB, c, cfg.Security, a.Hooks, logger)
	resH := apirest.NewResourceHandler(a.Registry, logger)
	toolH := apirest.NewToolHandler(a.Arena, a.Audit, logger)
	battleH := apirest.NewBattleHandler(a.Arena, logger)
	adminH := apirest.NewAdminHandler(apirest.AdminDeps{
		DB:        a.infra.DB,
		Arena:     a.Arena,
		Provider:  a.Provider,
		Sched:     a.Sched,
		Metrics:   a.Metrics,
		Audit:     a.Audit,
		Conns:     a.Hub,
		Announcer: a.SSE,
		Logger:    logger,
	})
	toolLimiter := mw.NewClientLimiter(rate.Limit(cfg.RateLimit.ToolRPS), cfg.RateLimit.ToolBurst)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		api.GET("/resources", resH.List)
		api.GET("/resources/read", resH.Read)
		api.GET("/pokemon/:name", resH.Pokemon)

		api.GET("/tools", toolH.List)
		api.POST("/tools/:name", mw.Auth(cfg.Security, c), toolLimiter.Middleware(), toolH.Call)

		battlesG := api.Group("/battles")
		battlesG.Use(mw.OptionalAuth(cfg.Security, c))
		battlesG.GET("", battleH.List)
		battlesG.GET("/recent", battleH.Recent)
		battlesG.GET("/:id", battleH.Get)
		api.GET("/leaderboard", battleH.Leaderboard)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics/summary", adminH.Stats)
		adminG.DELETE("/battles", adminH.PruneBattles)
		adminG.POST("/typechart/refresh", adminH.RefreshTypeChart)
		adminG.POST("/clients/:id/disable", adminH.SetClientStatus)
		adminG.POST("/announce", adminH.Announce)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/audit", adminH.AuditLog)
	}

	wsRouter := apiws.NewRouter(logger)
	apiws.NewHandlers(a.Registry, a.Arena, toolLimiter, a.Audit, logger).Register(wsRouter)
	wsH := apiws.NewHandler(c, cfg.Security, a.Hub, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	r.GET("/sse", a.SSE.ServeSSE)

	r.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func (a *App) health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if sqlDB, err := a.infra.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "ws_connections": a.Hub.Count()})
}

// Start launches the pub/sub relay and the scheduled jobs.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	logger, sc := a.infra.Logger, a.cfg.Scheduler

	if a.infra.PubSub != nil {
		if err := a.Hub.RelayBattles(ctx, a.infra.PubSub); err != nil {
			return err
		}
	}

	if sc.PruneCron != "" && sc.HistoryMaxAge > 0 {
		if err := a.Sched.AddCron(TaskPruneHistory, sc.PruneCron, func() {
			if _, err := a.Arena.Prune(ctx, sc.HistoryMaxAge); err != nil {
				logger.Error("scheduled prune failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	if sc.TypeChartCron != "" {
		if err := a.Sched.AddCron(TaskTypeChart, sc.TypeChartCron, func() {
			if _, err := a.Provider.RefreshTypeChart(ctx); err != nil {
				logger.Warn("scheduled type chart refresh failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	a.Sched.AddDelay(TaskTypeChartWarmup, 2*time.Second, func() {
		a.Provider.TypeChart(ctx)
	})
	if sc.StatsInterval > 0 {
		a.Sched.AddTicker(TaskStats, sc.StatsInterval, a.logStats)
	}
	a.Sched.Start()
	return nil
}

func (a *App) logStats() {
	summary, err := a.Metrics.Summary()
	if err != nil {
		return
	}
	var battles, calls float64
	for k, v := range summary {
		switch {
		case strings.HasPrefix(k, "pokemcp_battles_total"):
			battles += v
		case strings.HasPrefix(k, "pokemcp_tool_calls_total"):
			calls += v
		}
	}
	a.infra.Logger.Info("server stats",
		zap.Float64("battles", battles),
		zap.Float64("tool_calls", calls),
		zap.Int("ws_connections", a.Hub.Count()))
}

// Stop closes live connections, stops the jobs and flushes the audit log.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.Hub.CloseAll()
	a.Sched.Stop()
	a.Audit.Stop(ctx)
}
