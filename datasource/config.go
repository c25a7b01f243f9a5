package datasource

import (
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Driver selects the engine a data source connects to.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Config describes one named data source. Engine-specific connection
// parameters are carried in the DSN and passed through unmodified.
type Config struct {
	// Name is the logical connection name operations target. Empty means
	// the reserved default name.
	Name string

	// Driver selects the engine. Default: DriverPostgres.
	Driver Driver

	// DSN is the engine connection string.
	DSN string

	// Pool settings. Zero values keep database/sql defaults.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigError reports an invalid data source configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "datasource config error in field " + e.Field + ": " + e.Message
}

// Validate checks whether the configuration values are usable.
func (c Config) Validate() error {
	switch c.Driver {
	case "", DriverPostgres, DriverSQLite:
	default:
		return &ConfigError{Field: "Driver", Message: "unsupported driver " + string(c.Driver)}
	}
	if c.DSN == "" {
		return &ConfigError{Field: "DSN", Message: "must not be empty"}
	}
	return nil
}

// Open builds a *bun.DB for the configuration using bun's own drivers:
// pgdriver for postgres, the sqlite shim otherwise. The returned handle owns
// a connection pool and lives until Close.
func Open(cfg Config) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.Driver {
	case DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}
