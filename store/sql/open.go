package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// PersistenceConfig satisfies the go-persistence-bun client configuration.
type PersistenceConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
	Identifier  string
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.DSN
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.Identifier) == "" {
		return "shopify-sync"
	}
	return c.Identifier
}

func OpenPostgres(dsn string) (*persistence.Client, error) {
	return Open(PersistenceConfig{Driver: DriverPostgres, DSN: dsn})
}

// OpenSQLite keeps a single open connection; sqlite serializes writers and
// shared in-memory databases vanish with their last connection.
func OpenSQLite(dsn string) (*persistence.Client, error) {
	return Open(PersistenceConfig{Driver: DriverSQLite, DSN: dsn})
}

func Open(cfg PersistenceConfig) (*persistence.Client, error) {
	cfg.Driver = strings.TrimSpace(strings.ToLower(cfg.Driver))
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	var dialect schema.Dialect
	switch cfg.Driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return client, nil
}
