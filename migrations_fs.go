package connector

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the sync schema for postgres, with sqlite variants
// under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// GetCoreMigrationsFS returns the schema used by the SQL stores.
func GetCoreMigrationsFS() fs.FS {
	return migrationsFS
}
