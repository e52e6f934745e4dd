package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"reelsaver/server/internal/database/migrations"
)

// sqliteDriverName is go-sqlite3 with LOWER replaced by Go's Unicode case
// folding, so LOWER(title) and the search term fold the same way. The
// built-in LOWER only folds ASCII.
const sqliteDriverName = "sqlite3_reels"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
	sqlx.BindDriver(sqliteDriverName, sqlx.QUESTION)
}

// DB is a migrated connection pool that remembers its dialect.
type DB struct {
	*sqlx.DB
	driver string
}

// NewDB opens the configured database, applies connection pool settings and
// runs the embedded migrations unless the connection is read-only.
func NewDB(cfg *Config) (*DB, error) {
	cfg.applyDefaults()

	var open func(*Config) (*sqlx.DB, error)
	switch cfg.Driver {
	case DriverSQLite:
		open = openSQLite
	case DriverPostgres:
		open = openPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := open(cfg)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := prepare(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("driver", cfg.Driver).Str("mode", modeStr(cfg.ReadOnly)).Msg("Database connection successful")
	return &DB{DB: conn, driver: cfg.Driver}, nil
}

// prepare verifies the connection and brings the schema up to date.
func prepare(conn *sqlx.DB, cfg *Config) error {
	pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping db (%s): %w", modeStr(cfg.ReadOnly), err)
	}

	if cfg.ReadOnly {
		log.Info().Msg("Skipping migrations for read-only connection")
		return nil
	}

	files, err := migrations.LoadMigrations(migrations.Files, cfg.Driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrations.RunMigrations(conn, files); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("driver", cfg.Driver).Int("available", len(files)).Msg("Database schema up to date")
	return nil
}

// sqliteDSN sets journal, sync and busy timeout on the connection string.
// WAL lets the library be read while an ingest writes.
func sqliteDSN(cfg *Config) string {
	params := url.Values{}
	params.Set("_journal", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeoutMS))
	if cfg.ReadOnly {
		params.Set("mode", "ro")
	}
	return cfg.DBPath + "?" + params.Encode()
}

func openSQLite(cfg *Config) (*sqlx.DB, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for database: %w", err)
		}
	}
	log.Info().Str("path", cfg.DBPath).Str("mode", modeStr(cfg.ReadOnly)).Msg("Opening sqlite database")

	conn, err := sqlx.Open(sqliteDriverName, sqliteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = %d;", cfg.CacheSizeKB),
		"PRAGMA temp_store = MEMORY;",
	}
	if cfg.ReadOnly {
		pragmas = append(pragmas, "PRAGMA query_only = ON;")
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("Failed to set PRAGMA")
		}
	}
	return conn, nil
}

func openPostgres(cfg *Config) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	log.Info().Str("mode", modeStr(cfg.ReadOnly)).Msg("Opening postgres database")

	conn, err := sqlx.Open(DriverPostgres, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return conn, nil
}

func modeStr(readOnly bool) string {
	if readOnly {
		return "read-only"
	}
	return "read-write"
}

// Driver returns the name of the driver backing the connection.
func (db *DB) Driver() string {
	return db.driver
}

// Builder returns a squirrel statement builder using the placeholder
// format of the underlying driver.
func (db *DB) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(PlaceholderFor(db.driver))
}

// PlaceholderFor returns the bind variable style of a driver.
func PlaceholderFor(driver string) squirrel.PlaceholderFormat {
	if driver == DriverPostgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

// IsUniqueViolation reports whether err was raised by a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
