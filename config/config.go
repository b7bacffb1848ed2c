package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	PokeAPI   PokeAPIConfig   `mapstructure:"pokeapi"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Battle    BattleConfig    `mapstructure:"battle"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts /api/admin to these client IPs; empty allows any.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type PokeAPIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type BattleConfig struct {
	MaxTurns int `mapstructure:"max_turns"`
	// RecentSize is how many battle summaries are kept in the cache feed.
	RecentSize int `mapstructure:"recent_size"`
	// Timeout bounds one simulate_battle call including upstream fetches.
	Timeout time.Duration `mapstructure:"timeout"`
}

type SecurityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTLH   time.Duration `mapstructure:"jwt_ttl_h"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	// ToolRPS / ToolBurst apply per client to tool invocations.
	ToolRPS   float64 `mapstructure:"tool_rps"`
	ToolBurst int     `mapstructure:"tool_burst"`
}

type SchedulerConfig struct {
	// PruneCron and TypeChartCron are standard five-field cron specs;
	// empty disables the job.
	PruneCron     string        `mapstructure:"prune_cron"`
	HistoryMaxAge time.Duration `mapstructure:"history_max_age"`
	TypeChartCron string        `mapstructure:"typechart_cron"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

const envPrefix = "POKEMCP"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("server.admin_ips", []string{})
	v.SetDefault("pokeapi.base_url", "https://pokeapi.co/api/v2")
	v.SetDefault("pokeapi.timeout", "10s")
	v.SetDefault("pokeapi.cache_ttl", "24h")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/pokemcp.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("battle.max_turns", 50)
	v.SetDefault("battle.recent_size", 20)
	v.SetDefault("battle.timeout", "30s")
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("rate_limit.rps", 100)
	v.SetDefault("rate_limit.burst", 200)
	v.SetDefault("rate_limit.tool_rps", 2)
	v.SetDefault("rate_limit.tool_burst", 5)
	v.SetDefault("scheduler.prune_cron", "0 4 * * *")
	v.SetDefault("scheduler.history_max_age", "720h")
	v.SetDefault("scheduler.typechart_cron", "30 3 * * 0")
	v.SetDefault("scheduler.stats_interval", "1m")
}

// Load reads config from the given YAML file path. A missing file is not an
// error: defaults and POKEMCP_* environment variables still apply, e.g.
// POKEMCP_SERVER_PORT or POKEMCP_SECURITY_JWT_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}
