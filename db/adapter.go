package db

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pokemcp/server/config"
	dbmysql "github.com/pokemcp/server/db/mysql"
	dbsqlite "github.com/pokemcp/server/db/sqlite"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeSQLiteMemory:
		// Each call gets its own named in-memory database.
		return dbsqlite.OpenMemory(uuid.NewString())
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
