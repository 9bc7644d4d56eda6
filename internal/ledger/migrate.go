package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var schemaFiles embed.FS

type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// ParseDriver maps a config value to a DBDriver. "postgresql" is accepted as an alias.
func ParseDriver(name string) (DBDriver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DBSQLite, nil
	case "postgres", "postgresql":
		return DBPostgres, nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", name)
	}
}

// schemaDialect is what differs between the two ledger databases when
// tracking applied schema versions.
type schemaDialect struct {
	dir       string
	table     string
	stampType string
	insert    string
	stamp     func(time.Time) any
}

func dialectFor(driver DBDriver) (schemaDialect, error) {
	switch driver {
	case DBSQLite:
		return schemaDialect{
			dir:       "migrations/sqlite",
			table:     "schema_migrations",
			stampType: "TEXT",
			insert:    "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING",
			stamp:     func(t time.Time) any { return t.Format(time.RFC3339) },
		}, nil
	case DBPostgres:
		return schemaDialect{
			dir:       "migrations/postgres",
			table:     "autopay_schema_migrations",
			stampType: "TIMESTAMPTZ",
			insert:    "INSERT INTO autopay_schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING",
			stamp:     func(t time.Time) any { return t },
		}, nil
	default:
		return schemaDialect{}, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

// versions lists the embedded schema files for the dialect, oldest first.
func (d schemaDialect) versions() ([]string, error) {
	names, err := fs.Glob(schemaFiles, path.Join(d.dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (d schemaDialect) createTable() string {
	return "CREATE TABLE IF NOT EXISTS " + d.table + " (\n  version TEXT PRIMARY KEY,\n  applied_at " + d.stampType + " NOT NULL\n)"
}

// Migrate brings the ledger schema up to date. See MigrateContext.
func Migrate(db *sql.DB, driver DBDriver) error {
	return MigrateContext(context.Background(), db, driver)
}

// MigrateContext applies every embedded schema file for driver that is not
// yet recorded. A file and its version row commit together, so a failed file
// is retried on the next start.
func MigrateContext(ctx context.Context, db *sql.DB, driver DBDriver) error {
	if db == nil {
		return errors.New("ledger migrate: nil db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, d.createTable()); err != nil {
		return fmt.Errorf("ledger migrate: create %s: %w", d.table, err)
	}
	files, err := d.versions()
	if err != nil {
		return err
	}

	appliedAt := d.stamp(time.Now().UTC())
	for _, file := range files {
		if err := d.apply(ctx, db, file, appliedAt); err != nil {
			return err
		}
	}
	return nil
}

func (d schemaDialect) apply(ctx context.Context, db *sql.DB, file string, appliedAt any) error {
	version := strings.TrimSuffix(path.Base(file), ".sql")
	body, err := schemaFiles.ReadFile(file)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.insert, version, appliedAt)
	if err != nil {
		return fmt.Errorf("ledger migrate: record %s: %w", version, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	return tx.Commit()
}
