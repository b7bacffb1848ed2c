package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://pokeapi.co/api/v2", cfg.PokeAPI.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.PokeAPI.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 50, cfg.Battle.MaxTurns)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalGCInterval)
	assert.Equal(t, "0 4 * * *", cfg.Scheduler.PruneCron)
	assert.Equal(t, 720*time.Hour, cfg.Scheduler.HistoryMaxAge)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  admin_key: secret
  admin_ips: ["127.0.0.1"]
pokeapi:
  base_url: http://localhost:9999
  cache_ttl: 1h
battle:
  max_turns: 20
database:
  mode: sqlite_memory
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.AdminKey)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Server.AdminIPs)
	assert.Equal(t, "http://localhost:9999", cfg.PokeAPI.BaseURL)
	assert.Equal(t, time.Hour, cfg.PokeAPI.CacheTTL)
	assert.Equal(t, 20, cfg.Battle.MaxTurns)
	assert.Equal(t, "sqlite_memory", cfg.Database.Mode)
	assert.Equal(t, 100.0, cfg.RateLimit.RPS, "unset keys keep defaults")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("POKEMCP_SERVER_PORT", "7070")
	t.Setenv("POKEMCP_SECURITY_JWT_SECRET", "from-env")
	t.Setenv("POKEMCP_BATTLE_MAX_TURNS", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
	assert.Equal(t, 12, cfg.Battle.MaxTurns)
}
