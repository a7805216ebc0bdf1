package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{db: db, repo: repo}, nil
}

func (s *JobStore) Create(ctx context.Context, job core.Job) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	if strings.TrimSpace(string(job.Operation)) == "" {
		return core.Job{}, fmt.Errorf("sqlstore: job operation is required")
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = core.NewID()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	created, err := s.repo.Create(ctx, newJobRecord(job))
	if err != nil {
		return core.Job{}, err
	}
	return created.toDomain(), nil
}

func (s *JobStore) Get(ctx context.Context, id string) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	record := &jobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Job{}, fmt.Errorf("%w: id %q", core.ErrJobNotFound, id)
		}
		return core.Job{}, err
	}
	return record.toDomain(), nil
}

// Claim moves due queued jobs to running in one statement. An exclusive job
// is only eligible when it heads its (operation, scope) group and no job of
// that group is running. A concurrent claim that still slips through hits
// the partial unique index on running exclusive jobs and claims nothing.
func (s *JobStore) Claim(ctx context.Context, filter core.ClaimFilter) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	now := filter.Now.UTC()
	if filter.Now.IsZero() {
		now = time.Now().UTC()
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1
	}
	lock := ""
	if s.db.Dialect().Name() == dialect.PG {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	query := `
WITH claimed AS (
	SELECT c.id
	FROM sync_jobs AS c
	WHERE c.state = ?
	  AND (c.scheduled_at IS NULL OR c.scheduled_at <= ?)
	  AND (
		NOT c.exclusive
		OR (
			NOT EXISTS (
				SELECT 1 FROM sync_jobs AS r
				WHERE r.state = ? AND r.operation = c.operation AND r.scope = c.scope
			)
			AND NOT EXISTS (
				SELECT 1 FROM sync_jobs AS e
				WHERE e.state = ? AND e.exclusive
				  AND e.operation = c.operation AND e.scope = c.scope
				  AND (e.scheduled_at IS NULL OR e.scheduled_at <= ?)
				  AND (
					e.priority > c.priority
					OR (e.priority = c.priority AND e.created_at < c.created_at)
					OR (e.priority = c.priority AND e.created_at = c.created_at AND e.id < c.id)
				  )
			)
		)
	  )
	ORDER BY c.priority DESC, c.created_at ASC, c.id ASC
	LIMIT ?
	` + lock + `
)
UPDATE sync_jobs
SET state = ?, started_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND state = ?
RETURNING *
`
	var records []jobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(
			query,
			string(core.JobStateQueued),
			now,
			string(core.JobStateRunning),
			string(core.JobStateQueued),
			now,
			limit,
			string(core.JobStateRunning),
			now,
			now,
			string(core.JobStateQueued),
		).Scan(ctx, &records)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		left, right := records[i], records[j]
		if left.Priority != right.Priority {
			return left.Priority > right.Priority
		}
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.Before(right.CreatedAt)
		}
		return left.ID < right.ID
	})
	jobs := make([]core.Job, 0, len(records))
	for index := range records {
		jobs = append(jobs, records[index].toDomain())
	}
	return jobs, nil
}

// CompareAndSwap writes every column except the progress counters, which
// only AddProgress touches.
func (s *JobStore) CompareAndSwap(ctx context.Context, from core.JobState, job core.Job) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return false, fmt.Errorf("sqlstore: job id is required")
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	record := newJobRecord(job)
	res, err := s.db.NewUpdate().
		Model(record).
		Column(
			"name",
			"state",
			"priority",
			"exclusive",
			"payload",
			"scheduled_at",
			"started_at",
			"finished_at",
			"retry_count",
			"max_retries",
			"retry_delay_ms",
			"error_message",
			"result",
			"updated_at",
		).
		Where("id = ?", job.ID).
		Where("state = ?", string(from)).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	affected, _ := res.RowsAffected()
	if affected == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, job.ID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *JobStore) AddProgress(ctx context.Context, id string, delta core.ProgressDelta) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("progress_total = progress_total + ?", delta.Total).
		Set("progress_processed = progress_processed + ?", delta.Processed).
		Set("progress_succeeded = progress_succeeded + ?", delta.Succeeded).
		Set("progress_failed = progress_failed + ?", delta.Failed).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("state = ?", string(core.JobStateRunning)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return core.ErrJobNotRunning
}

func (s *JobStore) CountByState(ctx context.Context) (map[core.JobState]int, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	var rows []stateCountRow
	err := s.db.NewSelect().
		Model((*jobRecord)(nil)).
		Column("state").
		ColumnExpr("COUNT(*) AS count").
		Group("state").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	counts := make(map[core.JobState]int, len(rows))
	for _, row := range rows {
		counts[core.JobState(row.State)] = row.Count
	}
	return counts, nil
}

// RequeueStale releases running jobs abandoned by their worker in one
// statement.
func (s *JobStore) RequeueStale(ctx context.Context, startedBefore time.Time, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("state = ?", string(core.JobStateQueued)).
		Set("started_at = NULL").
		Set("scheduled_at = ?", now.UTC()).
		Set("updated_at = ?", now.UTC()).
		Where("state = ?", string(core.JobStateRunning)).
		Where("started_at < ?", startedBefore.UTC()).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, nil
		}
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *JobStore) PurgeTerminal(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*jobRecord)(nil)).
		Where("state IN (?)", bun.In([]string{
			string(core.JobStateDone),
			string(core.JobStateFailed),
			string(core.JobStateCancelled),
		})).
		Where("COALESCE(finished_at, updated_at) < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *JobStore) ListChildren(ctx context.Context, parentID string) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("parent_job_id", "=", strings.TrimSpace(parentID)),
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("id ASC"),
	)
	if err != nil {
		return nil, err
	}
	jobs := make([]core.Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, record.toDomain())
	}
	return jobs, nil
}
