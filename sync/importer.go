// Package sync pulls Shopify resource collections page by page and mirrors
// every element through the resolver.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/resolver"
)

// Page is one fetched page of resource payloads. Next is empty on the last
// page.
type Page struct {
	Items []map[string]any
	Next  string
}

// ResourceFetcher fetches the page at cursor; the empty cursor is the first
// page.
type ResourceFetcher interface {
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

type ProgressReporter interface {
	Report(ctx context.Context, delta core.ProgressDelta) error
}

type ProgressReporterFunc func(ctx context.Context, delta core.ProgressDelta) error

func (f ProgressReporterFunc) Report(ctx context.Context, delta core.ProgressDelta) error {
	return f(ctx, delta)
}

type ImportStats struct {
	Pages     int
	Items     int
	Succeeded int
	Failed    int
}

func (s ImportStats) add(other ImportStats) ImportStats {
	return ImportStats{
		Pages:     s.Pages + other.Pages,
		Items:     s.Items + other.Items,
		Succeeded: s.Succeeded + other.Succeeded,
		Failed:    s.Failed + other.Failed,
	}
}

type Importer struct {
	upserter core.Upserter
	observer core.Observer
}

func NewImporter(upserter core.Upserter, observer core.Observer) (*Importer, error) {
	if upserter == nil {
		return nil, fmt.Errorf("sync: upserter is required")
	}
	return &Importer{upserter: upserter, observer: observer}, nil
}

// ImportAll walks every page of fetcher and resolves each element in order.
// Elements rejected as invalid are counted as failed and skipped; any other
// error aborts the import.
func (i *Importer) ImportAll(
	ctx context.Context,
	scope string,
	mapping resolver.Mapping,
	fetcher ResourceFetcher,
	progress ProgressReporter,
) (ImportStats, error) {
	startedAt := time.Now()
	stats := ImportStats{}
	fields := map[string]any{"scope": scope, "kind": string(mapping.Kind)}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return stats, core.TransientNetworkError(err, "sync: import interrupted", fields)
		}
		page, err := fetcher.FetchPage(ctx, cursor)
		if err != nil {
			i.observer.Observe(ctx, startedAt, "import_"+string(mapping.Kind), err, withStats(fields, stats))
			return stats, err
		}
		stats.Pages++

		pageStats := ImportStats{}
		for _, item := range page.Items {
			pageStats.Items++
			_, err := i.upserter.Upsert(ctx, mapping.Request(scope, item))
			if err == nil {
				pageStats.Succeeded++
				continue
			}
			if core.Classify(err) != core.ErrorClassValidation {
				stats = stats.add(pageStats)
				i.observer.Observe(ctx, startedAt, "import_"+string(mapping.Kind), err, withStats(fields, stats))
				return stats, err
			}
			pageStats.Failed++
			i.observer.Warn(ctx, "sync: skipped invalid element", map[string]any{
				"scope": scope,
				"kind":  string(mapping.Kind),
				"error": err.Error(),
			})
		}
		stats = stats.add(pageStats)

		if progress != nil {
			delta := core.ProgressDelta{
				Total:     int64(pageStats.Items),
				Processed: int64(pageStats.Items),
				Succeeded: int64(pageStats.Succeeded),
				Failed:    int64(pageStats.Failed),
			}
			if err := progress.Report(ctx, delta); err != nil {
				i.observer.Warn(ctx, "sync: progress report failed", map[string]any{"error": err.Error()})
			}
		}

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	i.observer.Observe(ctx, startedAt, "import_"+string(mapping.Kind), nil, withStats(fields, stats))
	return stats, nil
}

func withStats(fields map[string]any, stats ImportStats) map[string]any {
	out := make(map[string]any, len(fields)+4)
	for key, value := range fields {
		out[key] = value
	}
	out["pages"] = stats.Pages
	out["items"] = stats.Items
	out["succeeded"] = stats.Succeeded
	out["failed"] = stats.Failed
	return out
}
