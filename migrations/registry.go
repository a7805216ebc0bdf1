// Package migrations exposes the sync schema for hosts that run their own
// migration runner (go-persistence-bun, goose, golang-migrate).
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"

	connector "github.com/naashmtp/odoo-shopify-connector"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultLabel = "shopify-sync"

	schemaDir = "data/sql/migrations"
)

// Source is the migration directory for one SQL dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Files lists the forward migrations of the source in apply order.
func (s Source) Files() ([]string, error) {
	if s.FS == nil {
		return nil, fmt.Errorf("migrations: %s source has no filesystem", s.Dialect)
	}
	files, err := fs.Glob(s.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: list %s: %w", s.Dialect, err)
	}
	sort.Strings(files)
	return files, nil
}

type Registration struct {
	Label    string
	Dialects []string
	Sources  []Source
}

// RegisterFunc hands one dialect's migrations to the host runner.
type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Option func(*Registration)

func WithLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.Label = label
		}
	}
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(dialects); len(normalized) > 0 {
			r.Dialects = normalized
		}
	}
}

// WithSources replaces the embedded schema, e.g. with a host's own copy.
func WithSources(sources ...Source) Option {
	return func(r *Registration) {
		var kept []Source
		for _, source := range sources {
			source.Dialect = strings.ToLower(strings.TrimSpace(source.Dialect))
			if source.Dialect == "" || source.FS == nil {
				continue
			}
			kept = append(kept, source)
		}
		if len(kept) > 0 {
			r.Sources = kept
		}
	}
}

// Sources resolves the postgres and sqlite migration directories of root,
// falling back to the embedded schema when root is nil.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = connector.GetCoreMigrationsFS()
	}
	base, basePath, err := locateSchema(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: sqlite directory: %w", err)
	}
	sqlitePath := DialectSQLite
	if basePath != "." {
		sqlitePath = basePath + "/" + DialectSQLite
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: sqlitePath, FS: sqliteFS},
	}
	for _, source := range sources {
		files, err := source.Files()
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("migrations: %s directory %q is empty", source.Dialect, source.Path)
		}
	}
	return sources, nil
}

// Register calls fn once per selected dialect. By default both dialects of
// the embedded schema are registered under DefaultLabel.
func Register(ctx context.Context, fn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		Label:    DefaultLabel,
		Dialects: []string{DialectPostgres, DialectSQLite},
	}
	if fn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	sources, err := Sources(nil)
	if err != nil {
		return reg, err
	}
	reg.Sources = sources
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, source := range reg.Sources {
		if !slices.Contains(reg.Dialects, source.Dialect) {
			continue
		}
		if err := fn(ctx, source.Dialect, reg.Label, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
	}
	return reg, nil
}

func locateSchema(root fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(root, schemaDir); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, schemaDir)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: %s: %w", schemaDir, err)
		}
		return sub, schemaDir, nil
	}
	// Already rooted at the migration directory.
	if files, _ := fs.Glob(root, "*.sql"); len(files) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", schemaDir)
}

func normalizeDialects(values []string) []string {
	var out []string
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
