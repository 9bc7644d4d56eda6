package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMemorySQLite(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateCreatesLedgerTablesOnce(t *testing.T) {
	db := openMemorySQLite(t, "migrate_once")

	require.NoError(t, Migrate(db, DBSQLite))
	require.NoError(t, MigrateContext(context.Background(), db, DBSQLite), "second run must be a no-op")

	for _, table := range []string{"audit_entries", "decisions", "policy_versions", "webhook_outbox"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	var versions []string
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	require.Equal(t, []string{"0001_init", "0002_webhook_outbox", "0003_audit_tenant_amount"}, versions)
}

func TestMigrateSkipsRecordedVersions(t *testing.T) {
	db := openMemorySQLite(t, "migrate_skip")

	d, err := dialectFor(DBSQLite)
	require.NoError(t, err)
	_, err = db.Exec(d.createTable())
	require.NoError(t, err)
	_, err = db.Exec(d.insert, "0002_webhook_outbox", "2025-01-01T00:00:00Z")
	require.NoError(t, err)

	require.NoError(t, Migrate(db, DBSQLite))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='webhook_outbox'`).Scan(&n))
	require.Zero(t, n, "a recorded version is not applied again")
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('audit_entries') WHERE name IN ('organization_id', 'amount')`).Scan(&n))
	require.Equal(t, 2, n)
}

func TestDialects(t *testing.T) {
	pg, err := dialectFor(DBPostgres)
	require.NoError(t, err)
	require.Equal(t, "autopay_schema_migrations", pg.table)
	require.Contains(t, pg.createTable(), "TIMESTAMPTZ")

	files, err := pg.versions()
	require.NoError(t, err)
	require.Equal(t, []string{
		"migrations/postgres/0001_init.sql",
		"migrations/postgres/0002_webhook_outbox.sql",
		"migrations/postgres/0003_audit_tenant_amount.sql",
	}, files)

	_, err = dialectFor(DBDriver("nope"))
	require.Error(t, err)
	require.Error(t, Migrate(nil, DBSQLite))
	require.Error(t, Migrate(&sql.DB{}, DBDriver("nope")))
}

func TestParseDriver(t *testing.T) {
	cases := map[string]DBDriver{"sqlite": DBSQLite, "SQLite3": DBSQLite, " postgres ": DBPostgres, "postgresql": DBPostgres}
	for in, want := range cases {
		got, err := ParseDriver(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseDriver("mysql")
	require.Error(t, err)
}
