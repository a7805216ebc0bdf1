package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	connector "github.com/naashmtp/odoo-shopify-connector"
)

func TestSources_EmbeddedSchemaHasBothDialects(t *testing.T) {
	sources, err := Sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range sources {
		matches, err := entry.Files()
		if err != nil {
			t.Fatalf("files %s: %v", entry.Dialect, err)
		}
		if len(matches) != 2 || matches[0] != "00001_sync_core_schema.up.sql" {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_LimitsToSelectedDialects(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithDialects(" SQLite ", DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestSyncSchemaMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := connector.GetCoreMigrationsFS()
	for _, name := range []string{"00001_sync_core_schema", "00002_sync_webhook_delivery_logs"} {
		paths := []string{
			"data/sql/migrations/" + name + ".up.sql",
			"data/sql/migrations/" + name + ".down.sql",
			"data/sql/migrations/sqlite/" + name + ".up.sql",
			"data/sql/migrations/sqlite/" + name + ".down.sql",
		}
		for _, migrationPath := range paths {
			content, err := fs.ReadFile(root, migrationPath)
			if err != nil {
				t.Fatalf("read migration %s: %v", migrationPath, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				t.Fatalf("expected migration %s to have SQL content", migrationPath)
			}
		}
	}
}

func TestRegister_DefaultsToBothDialects(t *testing.T) {
	var labels []string
	reg, err := Register(context.Background(), func(_ context.Context, _ string, label string, _ fs.FS) error {
		labels = append(labels, label)
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Label != DefaultLabel {
		t.Fatalf("expected default label, got %q", reg.Label)
	}
	if len(labels) != 2 {
		t.Fatalf("expected postgres and sqlite registrations, got %v", labels)
	}
}

func TestRegister_RequiresFunction(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestSources_AcceptsDirectoryRootedFS(t *testing.T) {
	root, err := fs.Sub(connector.GetCoreMigrationsFS(), "data/sql/migrations")
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	sources, err := Sources(root)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if sources[0].Path != "." || sources[1].Path != DialectSQLite {
		t.Fatalf("unexpected source paths %+v", sources)
	}
}

func TestSQLiteCoreSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-sync-core-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	root := connector.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	for _, migration := range []string{
		"00001_sync_core_schema.up.sql",
		"00002_sync_webhook_delivery_logs.up.sql",
	} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	for _, tableName := range []string{
		"sync_jobs",
		"sync_shadow_records",
		"sync_webhook_registrations",
		"sync_webhook_delivery_logs",
	} {
		if tableCount(t, db, tableName) != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertShadow := `
		INSERT INTO sync_shadow_records (id, kind, scope, parent_id, external_id, data, created_at, updated_at)
		VALUES (?, 'order_line', 'shop_1', 'order_1', '100', '{}', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`
	if _, err := db.ExecContext(ctx, insertShadow, "shadow_1"); err != nil {
		t.Fatalf("insert shadow record: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertShadow, "shadow_2"); err == nil {
		t.Fatalf("expected natural key unique violation")
	}

	insertRunning := `
		INSERT INTO sync_jobs (id, operation, scope, state, exclusive, payload, created_at, updated_at)
		VALUES (?, 'import_products', 'shop_1', 'running', 1, '{}', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`
	if _, err := db.ExecContext(ctx, insertRunning, "job_1"); err != nil {
		t.Fatalf("insert running exclusive job: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertRunning, "job_2"); err == nil {
		t.Fatalf("expected second running exclusive job to be rejected")
	}

	for _, migration := range []string{
		"00002_sync_webhook_delivery_logs.down.sql",
		"00001_sync_core_schema.down.sql",
	} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("rollback migration %s: %v", migration, err)
		}
	}
	if tableCount(t, db, "sync_jobs") != 0 {
		t.Fatalf("expected sync_jobs to be dropped after down migration")
	}
}

func tableCount(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
