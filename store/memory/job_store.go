package memorystore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

type JobStore struct {
	mu   sync.Mutex
	seq  int64
	jobs map[string]jobEntry
}

type jobEntry struct {
	seq int64
	job core.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: map[string]jobEntry{}}
}

func (s *JobStore) Create(_ context.Context, job core.Job) (core.Job, error) {
	if s == nil {
		return core.Job{}, fmt.Errorf("memorystore: job store is nil")
	}
	if strings.TrimSpace(string(job.Operation)) == "" {
		return core.Job{}, fmt.Errorf("memorystore: job operation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(job.ID) == "" {
		job.ID = core.NewID()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return core.Job{}, fmt.Errorf("memorystore: job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	s.seq++
	s.jobs[job.ID] = jobEntry{seq: s.seq, job: cloneJob(job)}
	return cloneJob(job), nil
}

func (s *JobStore) Get(_ context.Context, id string) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return core.Job{}, core.ErrJobNotFound
	}
	return cloneJob(entry.job), nil
}

func (s *JobStore) Claim(_ context.Context, filter core.ClaimFilter) ([]core.Job, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]jobEntry, 0)
	running := map[string]bool{}
	for _, entry := range s.jobs {
		switch entry.job.State {
		case core.JobStateQueued:
			if entry.job.ScheduledAt == nil || !entry.job.ScheduledAt.After(now) {
				due = append(due, entry)
			}
		case core.JobStateRunning:
			running[exclusiveKey(entry.job)] = true
		}
	}
	sort.Slice(due, func(i, j int) bool {
		left, right := due[i], due[j]
		if left.job.Priority != right.job.Priority {
			return left.job.Priority > right.job.Priority
		}
		if !left.job.CreatedAt.Equal(right.job.CreatedAt) {
			return left.job.CreatedAt.Before(right.job.CreatedAt)
		}
		return left.seq < right.seq
	})

	claimed := make([]core.Job, 0, limit)
	for _, entry := range due {
		if len(claimed) >= limit {
			break
		}
		job := entry.job
		key := exclusiveKey(job)
		if job.Exclusive && running[key] {
			continue
		}
		started := now
		job.State = core.JobStateRunning
		job.StartedAt = &started
		job.UpdatedAt = now
		running[key] = true
		s.jobs[job.ID] = jobEntry{seq: entry.seq, job: job}
		claimed = append(claimed, cloneJob(job))
	}
	return claimed, nil
}

func (s *JobStore) CompareAndSwap(_ context.Context, from core.JobState, job core.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[job.ID]
	if !ok {
		return false, core.ErrJobNotFound
	}
	if entry.job.State != from {
		return false, nil
	}
	// progress is owned by AddProgress
	job.Progress = entry.job.Progress
	s.jobs[job.ID] = jobEntry{seq: entry.seq, job: cloneJob(job)}
	return true, nil
}

func (s *JobStore) AddProgress(_ context.Context, id string, delta core.ProgressDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return core.ErrJobNotFound
	}
	if entry.job.State != core.JobStateRunning {
		return core.ErrJobNotRunning
	}
	entry.job.Progress.Total += delta.Total
	entry.job.Progress.Processed += delta.Processed
	entry.job.Progress.Succeeded += delta.Succeeded
	entry.job.Progress.Failed += delta.Failed
	s.jobs[entry.job.ID] = entry
	return nil
}

func (s *JobStore) CountByState(context.Context) (map[core.JobState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[core.JobState]int{}
	for _, entry := range s.jobs {
		counts[entry.job.State]++
	}
	return counts, nil
}

func (s *JobStore) RequeueStale(_ context.Context, startedBefore time.Time, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	requeued := 0
	for id, entry := range s.jobs {
		job := entry.job
		if job.State != core.JobStateRunning || job.StartedAt == nil || !job.StartedAt.Before(startedBefore) {
			continue
		}
		scheduled := now
		job.State = core.JobStateQueued
		job.StartedAt = nil
		job.ScheduledAt = &scheduled
		job.UpdatedAt = now
		s.jobs[id] = jobEntry{seq: entry.seq, job: job}
		requeued++
	}
	return requeued, nil
}

func (s *JobStore) PurgeTerminal(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.jobs {
		if !entry.job.State.Terminal() {
			continue
		}
		stamp := entry.job.UpdatedAt
		if entry.job.FinishedAt != nil {
			stamp = *entry.job.FinishedAt
		}
		if stamp.Before(before) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *JobStore) ListChildren(_ context.Context, parentID string) ([]core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]jobEntry, 0)
	for _, entry := range s.jobs {
		if entry.job.ParentJobID == parentID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]core.Job, 0, len(entries))
	for _, entry := range entries {
		out = append(out, cloneJob(entry.job))
	}
	return out, nil
}

func exclusiveKey(job core.Job) string {
	return string(job.Operation) + "::" + job.Scope
}

func cloneJob(job core.Job) core.Job {
	job.Payload = cloneMap(job.Payload)
	if job.ScheduledAt != nil {
		value := *job.ScheduledAt
		job.ScheduledAt = &value
	}
	if job.StartedAt != nil {
		value := *job.StartedAt
		job.StartedAt = &value
	}
	if job.FinishedAt != nil {
		value := *job.FinishedAt
		job.FinishedAt = &value
	}
	if job.Result != nil {
		result := *job.Result
		result.Data = cloneMap(result.Data)
		job.Result = &result
	}
	return job
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.JobStore = (*JobStore)(nil)
