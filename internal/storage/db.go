package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/commentd/oauth-relay/internal/app"
)

// Open initialises a gorm.DB for the persistence sink. The driver may be left
// empty when a DSN is supplied; it is then inferred from the DSN scheme.
func Open(cfg app.DatabaseConfig) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)

	if driver == "" {
		switch {
		case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
			driver = "postgres"
		case strings.HasPrefix(dsn, "mysql://"):
			driver = "mysql"
			dsn = strings.TrimPrefix(dsn, "mysql://")
		default:
			driver = "sqlite"
		}
	}

	switch driver {
	case "sqlite":
		return openSQLite(cfg.Path, dsn)
	case "postgres", "postgresql":
		return gorm.Open(postgres.Open(dsn), gormConfig())
	case "mysql":
		return gorm.Open(mysql.Open(dsn), gormConfig())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openSQLite(path, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		path = strings.TrimSpace(path)
		switch {
		case path == "", strings.EqualFold(path, ":memory:"):
			dsn = "file::memory:?cache=shared"
		default:
			if err := ensureDir(path); err != nil {
				return nil, err
			}
			dsn = fmt.Sprintf("file:%s?_journal_mode=WAL", filepath.ToSlash(path))
		}
	}
	return gorm.Open(sqlite.Open(dsn), gormConfig())
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
