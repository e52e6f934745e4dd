package migrations

import (
	"cmp"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Files holds the SQL migrations, one directory per driver.
//
//go:embed sqlite/*.sql postgres/*.sql
var Files embed.FS

// Migration is one numbered schema change with its optional reversal.
type Migration struct {
	Version int
	Up      string
	Down    string
}

var driverDirs = map[string]string{
	"sqlite3":  "sqlite",
	"postgres": "postgres",
}

const versionsTable = `
	CREATE TABLE IF NOT EXISTS migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// parseName splits "0001_create_reels.up.sql" into 1 and "up".
func parseName(name string) (version int, direction string, ok bool) {
	prefix, rest, found := strings.Cut(name, "_")
	if !found {
		return 0, "", false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", false
	}
	switch {
	case strings.HasSuffix(rest, ".up.sql"):
		return v, "up", true
	case strings.HasSuffix(rest, ".down.sql"):
		return v, "down", true
	}
	return 0, "", false
}

// LoadMigrations reads the migrations of driver from fsys in version order.
func LoadMigrations(fsys fs.FS, driver string) ([]Migration, error) {
	dir, ok := driverDirs[driver]
	if !ok {
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, direction, ok := parseName(entry.Name())
		if !ok {
			log.Warn().Str("file", entry.Name()).Msg("Skipping invalid migration file")
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m, seen := byVersion[version]
		if !seen {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })

	log.Debug().Int("count", len(out)).Str("driver", driver).Msg("Loaded migrations")
	return out, nil
}

// RunMigrations applies every migration not yet recorded in the
// migrations table, each in its own transaction.
func RunMigrations(db *sqlx.DB, migrations []Migration) error {
	if _, err := db.Exec(versionsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var done []int
	if err := db.Select(&done, "SELECT version FROM migrations"); err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	for _, m := range migrations {
		if slices.Contains(done, m.Version) {
			continue
		}
		err := inTx(db, m.Up, "INSERT INTO migrations (version) VALUES (?)", m.Version)
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
		log.Info().Int("version", m.Version).Msg("Applied migration")
	}
	return nil
}

// RollbackMigrations reverts the n most recently applied migrations.
// Versions without a down file are left in place.
func RollbackMigrations(db *sqlx.DB, migrations []Migration, n int) error {
	var latest []int
	query := db.Rebind("SELECT version FROM migrations ORDER BY version DESC LIMIT ?")
	if err := db.Select(&latest, query, n); err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	for _, version := range latest {
		i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == version })
		if i < 0 || migrations[i].Down == "" {
			log.Warn().Int("version", version).Msg("No down migration, leaving it applied")
			continue
		}
		err := inTx(db, migrations[i].Down, "DELETE FROM migrations WHERE version = ?", version)
		if err != nil {
			return fmt.Errorf("rollback %d: %w", version, err)
		}
		log.Info().Int("version", version).Msg("Rolled back migration")
	}
	return nil
}

// inTx runs script and the bookkeeping statement atomically.
func inTx(db *sqlx.DB, script, record string, version int) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.Exec(db.Rebind(record), version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
