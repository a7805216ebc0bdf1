package memorystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

func queuedJob(op core.Operation, scope string, priority core.Priority, createdAt time.Time) core.Job {
	return core.Job{
		Operation: op,
		Scope:     scope,
		State:     core.JobStateQueued,
		Priority:  priority,
		CreatedAt: createdAt,
	}
}

func TestJobStoreClaimOrdersByPriorityThenCreation(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	low, _ := store.Create(ctx, queuedJob(core.OperationImportProducts, "shop", core.PriorityLow, base))
	firstHigh, _ := store.Create(ctx, queuedJob(core.OperationImportOrders, "shop", core.PriorityHigh, base.Add(time.Second)))
	secondHigh, _ := store.Create(ctx, queuedJob(core.OperationImportCustomers, "shop", core.PriorityHigh, base.Add(2*time.Second)))

	claimed, err := store.Claim(ctx, core.ClaimFilter{Now: base.Add(time.Minute), Limit: 3})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	want := []string{firstHigh.ID, secondHigh.ID, low.ID}
	if len(claimed) != len(want) {
		t.Fatalf("expected %d claimed jobs, got %d", len(want), len(claimed))
	}
	for index, job := range claimed {
		if job.ID != want[index] {
			t.Fatalf("position %d: expected %s, got %s", index, want[index], job.ID)
		}
		if job.State != core.JobStateRunning || job.StartedAt == nil {
			t.Fatalf("expected running job with start time, got %+v", job)
		}
	}

	again, err := store.Claim(ctx, core.ClaimFilter{Now: base.Add(time.Minute), Limit: 3})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing left to claim, got %d", len(again))
	}
}

func TestJobStoreClaimSkipsFutureAndExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	future := queuedJob(core.OperationImportOrders, "shop", core.PriorityNormal, now)
	future.ScheduledAt = &later
	if _, err := store.Create(ctx, future); err != nil {
		t.Fatalf("create future: %v", err)
	}
	first := queuedJob(core.OperationSyncStock, "shop", core.PriorityNormal, now)
	first.Exclusive = true
	second := first
	second.CreatedAt = now.Add(time.Second)
	other := first
	other.Scope = "other-shop"
	for _, job := range []core.Job{first, second, other} {
		if _, err := store.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	claimed, err := store.Claim(ctx, core.ClaimFilter{Now: now, Limit: 10})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected one exclusive job per scope, got %d", len(claimed))
	}
	scopes := map[string]bool{}
	for _, job := range claimed {
		scopes[job.Scope] = true
		if job.Operation != core.OperationSyncStock {
			t.Fatalf("future job must not be claimed, got %s", job.Operation)
		}
	}
	if !scopes["shop"] || !scopes["other-shop"] {
		t.Fatalf("unexpected scopes %#v", scopes)
	}
}

func TestJobStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()
	job, _ := store.Create(ctx, core.Job{Operation: core.OperationCustom, State: core.JobStateDraft})

	job.State = core.JobStateQueued
	swapped, err := store.CompareAndSwap(ctx, core.JobStateDraft, job)
	if err != nil || !swapped {
		t.Fatalf("expected swap, got %v %v", swapped, err)
	}
	job.State = core.JobStateCancelled
	swapped, err = store.CompareAndSwap(ctx, core.JobStateDraft, job)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if swapped {
		t.Fatalf("expected stale cas to be rejected")
	}
	stored, _ := store.Get(ctx, job.ID)
	if stored.State != core.JobStateQueued {
		t.Fatalf("expected queued, got %s", stored.State)
	}
}

func TestJobStoreAddProgressRequiresRunning(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()
	job, _ := store.Create(ctx, queuedJob(core.OperationImportOrders, "shop", core.PriorityNormal, time.Now().UTC()))

	if err := store.AddProgress(ctx, job.ID, core.ProgressDelta{Processed: 1}); !errors.Is(err, core.ErrJobNotRunning) {
		t.Fatalf("expected not running error, got %v", err)
	}
	if _, err := store.Claim(ctx, core.ClaimFilter{Now: time.Now().UTC().Add(time.Second), Limit: 1}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.AddProgress(ctx, job.ID, core.ProgressDelta{Processed: 1, Succeeded: 1}); err != nil {
			t.Fatalf("add progress: %v", err)
		}
	}
	stored, _ := store.Get(ctx, job.ID)
	if stored.Progress.Processed != 3 || stored.Progress.Succeeded != 3 {
		t.Fatalf("unexpected progress %+v", stored.Progress)
	}
}

func TestJobStorePurgeTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cutoff := old.Add(24 * time.Hour)

	done, _ := store.Create(ctx, core.Job{Operation: core.OperationCustom, State: core.JobStateDone, FinishedAt: &old})
	running, _ := store.Create(ctx, core.Job{Operation: core.OperationCustom, State: core.JobStateRunning, UpdatedAt: old, CreatedAt: old})
	fresh := cutoff.Add(time.Hour)
	recent, _ := store.Create(ctx, core.Job{Operation: core.OperationCustom, State: core.JobStateFailed, FinishedAt: &fresh})

	removed, err := store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one purged job, got %d", removed)
	}
	if _, err := store.Get(ctx, done.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Fatalf("expected done job purged, got %v", err)
	}
	for _, id := range []string{running.ID, recent.ID} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Fatalf("expected job %s kept: %v", id, err)
		}
	}
}
