package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/naashmtp/odoo-shopify-connector/core"
	syncmigrations "github.com/naashmtp/odoo-shopify-connector/migrations"
	"github.com/naashmtp/odoo-shopify-connector/queue"
	"github.com/naashmtp/odoo-shopify-connector/resolver"
	memorystore "github.com/naashmtp/odoo-shopify-connector/store/memory"
	sqlstore "github.com/naashmtp/odoo-shopify-connector/store/sql"
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"sync_jobs",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "sync_jobs" {
		t.Fatalf("expected sync_jobs table, got %q", tableName)
	}
}

func TestJobStore_ClaimOrdersByPriorityThenCreation(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	jobs := factory.JobStore()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	low := mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportOrders, Scope: "shop_1", State: core.JobStateQueued, Priority: core.PriorityLow, CreatedAt: base})
	firstHigh := mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportProducts, Scope: "shop_1", State: core.JobStateQueued, Priority: core.PriorityHigh, CreatedAt: base.Add(time.Second)})
	secondHigh := mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportCustomers, Scope: "shop_1", State: core.JobStateQueued, Priority: core.PriorityHigh, CreatedAt: base.Add(2 * time.Second)})
	future := base.Add(time.Hour)
	mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportProducts, Scope: "shop_2", State: core.JobStateQueued, Priority: core.PriorityVeryHigh, ScheduledAt: &future, CreatedAt: base})
	mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportProducts, Scope: "shop_3", State: core.JobStateDraft, Priority: core.PriorityVeryHigh, CreatedAt: base})

	claimed, err := jobs.Claim(ctx, core.ClaimFilter{Now: base.Add(time.Minute), Limit: 10})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("expected 3 claimed jobs, got %d", len(claimed))
	}
	want := []string{firstHigh.ID, secondHigh.ID, low.ID}
	for index, job := range claimed {
		if job.ID != want[index] {
			t.Fatalf("claim order mismatch at %d: got %s want %s", index, job.ID, want[index])
		}
		if job.State != core.JobStateRunning || job.StartedAt == nil {
			t.Fatalf("expected claimed job to be running with start time, got %+v", job)
		}
	}

	again, err := jobs.Claim(ctx, core.ClaimFilter{Now: base.Add(time.Minute), Limit: 10})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing left to claim, got %d", len(again))
	}
}

func TestJobStore_ClaimHonorsExclusiveGroups(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	jobs := factory.JobStore()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := mustCreateJob(t, jobs, core.Job{Operation: core.OperationSyncStock, Scope: "shop_1", State: core.JobStateQueued, Exclusive: true, Priority: core.PriorityNormal, CreatedAt: base})
	second := mustCreateJob(t, jobs, core.Job{Operation: core.OperationSyncStock, Scope: "shop_1", State: core.JobStateQueued, Exclusive: true, Priority: core.PriorityNormal, CreatedAt: base.Add(time.Second)})
	other := mustCreateJob(t, jobs, core.Job{Operation: core.OperationSyncStock, Scope: "shop_2", State: core.JobStateQueued, Exclusive: true, Priority: core.PriorityNormal, CreatedAt: base.Add(2 * time.Second)})

	now := base.Add(time.Minute)
	claimed, err := jobs.Claim(ctx, core.ClaimFilter{Now: now, Limit: 10})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 || claimed[0].ID != first.ID || claimed[1].ID != other.ID {
		t.Fatalf("expected one job per exclusive group, got %+v", claimed)
	}

	blocked, err := jobs.Claim(ctx, core.ClaimFilter{Now: now, Limit: 10})
	if err != nil {
		t.Fatalf("claim while group running: %v", err)
	}
	if len(blocked) != 0 {
		t.Fatalf("expected exclusive group to stay blocked, got %d", len(blocked))
	}

	running := claimed[0]
	finishedAt := now.Add(time.Second)
	running.State = core.JobStateDone
	running.FinishedAt = &finishedAt
	swapped, err := jobs.CompareAndSwap(ctx, core.JobStateRunning, running)
	if err != nil || !swapped {
		t.Fatalf("finish running job: swapped=%v err=%v", swapped, err)
	}

	next, err := jobs.Claim(ctx, core.ClaimFilter{Now: now, Limit: 10})
	if err != nil {
		t.Fatalf("claim after finish: %v", err)
	}
	if len(next) != 1 || next[0].ID != second.ID {
		t.Fatalf("expected queued exclusive job to follow, got %+v", next)
	}
}

func TestEngine_CancelledWorkerReleasesClaimedJobs(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	jobs := factory.JobStore()

	workerCtx, stop := context.WithCancel(context.Background())
	defer stop()
	calls := 0
	ranScope := ""
	handler := core.JobHandlerFunc(func(_ context.Context, job core.Job) (core.JobResult, error) {
		calls++
		ranScope = job.Scope
		stop()
		return core.JobResult{Message: "Stock synced"}, nil
	})
	handlers := map[core.Operation]core.JobHandler{}
	for _, op := range core.Operations() {
		handlers[op] = handler
	}
	engine, err := queue.NewEngine(jobs, handlers)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	for _, scope := range []string{"shop_a", "shop_b", "shop_c"} {
		if _, err := engine.Create(ctx, core.CreateJobRequest{Operation: core.OperationSyncStock, Scope: scope, Enqueue: true}); err != nil {
			t.Fatalf("create %s: %v", scope, err)
		}
	}

	stats, err := engine.RunOnce(workerCtx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to be reported, got %v", err)
	}
	if calls != 1 || stats.Claimed != 3 || stats.Succeeded != 1 || stats.Requeued != 2 {
		t.Fatalf("unexpected run: calls=%d stats=%+v", calls, stats)
	}
	counts, err := jobs.CountByState(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[core.JobStateRunning] != 0 || counts[core.JobStateDone] != 1 || counts[core.JobStateQueued] != 2 {
		t.Fatalf("expected no job left running, got %v", counts)
	}

	next, err := engine.Create(ctx, core.CreateJobRequest{Operation: core.OperationSyncStock, Scope: ranScope, Enqueue: true})
	if err != nil {
		t.Fatalf("create follow-up: %v", err)
	}
	claimed, err := engine.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim after shutdown: %v", err)
	}
	found := false
	for _, job := range claimed {
		if job.ID == next.ID {
			found = true
		}
		if job.RetryCount != 0 {
			t.Fatalf("released job consumed a retry: %+v", job)
		}
	}
	if len(claimed) != 3 || !found {
		t.Fatalf("expected released jobs and the follow-up to be claimable, got %d (follow-up %v)", len(claimed), found)
	}
}

func TestJobStore_RequeueStaleRunningJobs(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	jobs := factory.JobStore()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	staleStart := base.Add(-2 * time.Hour)
	freshStart := base.Add(-time.Minute)
	stale := mustCreateJob(t, jobs, core.Job{Operation: core.OperationSyncPrices, Scope: "shop_1", State: core.JobStateRunning, Exclusive: true, Priority: core.PriorityNormal, StartedAt: &staleStart, RetryCount: 1, CreatedAt: base.Add(-3 * time.Hour)})
	fresh := mustCreateJob(t, jobs, core.Job{Operation: core.OperationSyncPrices, Scope: "shop_2", State: core.JobStateRunning, Exclusive: true, Priority: core.PriorityNormal, StartedAt: &freshStart, CreatedAt: base.Add(-time.Hour)})

	requeued, err := jobs.RequeueStale(ctx, base.Add(-31*time.Minute), base)
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected one stale job, got %d", requeued)
	}
	released, _ := jobs.Get(ctx, stale.ID)
	if released.State != core.JobStateQueued || released.StartedAt != nil || released.RetryCount != 1 {
		t.Fatalf("unexpected released job %+v", released)
	}
	if released.ScheduledAt == nil || !released.ScheduledAt.Equal(base) {
		t.Fatalf("expected release scheduled at %s, got %v", base, released.ScheduledAt)
	}
	untouched, _ := jobs.Get(ctx, fresh.ID)
	if untouched.State != core.JobStateRunning {
		t.Fatalf("expected fresh job to keep running, got %s", untouched.State)
	}

	claimed, err := jobs.Claim(ctx, core.ClaimFilter{Now: base, Limit: 10})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != stale.ID {
		t.Fatalf("expected released exclusive job to be claimable, got %+v", claimed)
	}
}

func TestJobStore_CompareAndSwapPreservesProgress(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	jobs := factory.JobStore()

	job := mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportProducts, Scope: "shop_1", State: core.JobStateQueued, Priority: core.PriorityNormal})
	claimed, err := jobs.Claim(ctx, core.ClaimFilter{Now: time.Now().UTC().Add(time.Second), Limit: 1})
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: jobs=%d err=%v", len(claimed), err)
	}
	if err := jobs.AddProgress(ctx, job.ID, core.ProgressDelta{Total: 10, Processed: 4, Succeeded: 3, Failed: 1}); err != nil {
		t.Fatalf("add progress: %v", err)
	}

	stale := claimed[0]
	stale.State = core.JobStateDone
	stale.Result = &core.JobResult{Status: "success", Message: "ok", Data: map[string]any{"imported": float64(3)}}
	swapped, err := jobs.CompareAndSwap(ctx, core.JobStateRunning, stale)
	if err != nil || !swapped {
		t.Fatalf("compare and swap: swapped=%v err=%v", swapped, err)
	}

	stored, err := jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Progress.Total != 10 || stored.Progress.Processed != 4 || stored.Progress.Failed != 1 {
		t.Fatalf("expected progress to survive swap, got %+v", stored.Progress)
	}
	if stored.Result == nil || stored.Result.Status != "success" || stored.Result.Data["imported"] != float64(3) {
		t.Fatalf("unexpected stored result %+v", stored.Result)
	}

	lost, err := jobs.CompareAndSwap(ctx, core.JobStateRunning, stale)
	if err != nil {
		t.Fatalf("stale compare and swap: %v", err)
	}
	if lost {
		t.Fatalf("expected stale swap to lose")
	}
	if err := jobs.AddProgress(ctx, job.ID, core.ProgressDelta{Processed: 1}); !errors.Is(err, core.ErrJobNotRunning) {
		t.Fatalf("expected ErrJobNotRunning, got %v", err)
	}
	if err := jobs.AddProgress(ctx, "missing", core.ProgressDelta{Processed: 1}); !errors.Is(err, core.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStore_PurgeCountsAndChildren(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	jobs := factory.JobStore()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	parent := mustCreateJob(t, jobs, core.Job{Operation: core.OperationCustom, Scope: "shop_1", State: core.JobStateDraft})
	mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportProducts, Scope: "shop_1", State: core.JobStateQueued, ParentJobID: parent.ID})
	mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportOrders, Scope: "shop_1", State: core.JobStateQueued, ParentJobID: parent.ID})
	mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportOrders, Scope: "shop_1", State: core.JobStateDone, FinishedAt: &old, CreatedAt: old, UpdatedAt: old})
	mustCreateJob(t, jobs, core.Job{Operation: core.OperationImportOrders, Scope: "shop_1", State: core.JobStateFailed, FinishedAt: &old, CreatedAt: old, UpdatedAt: old})

	children, err := jobs.ListChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}

	counts, err := jobs.CountByState(ctx)
	if err != nil {
		t.Fatalf("count by state: %v", err)
	}
	if counts[core.JobStateQueued] != 2 || counts[core.JobStateDone] != 1 || counts[core.JobStateFailed] != 1 || counts[core.JobStateDraft] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	purged, err := jobs.PurgeTerminal(ctx, old.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged jobs, got %d", purged)
	}
}

func TestShadowStore_NaturalKeyUniquenessAndImportFlag(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	shadows := factory.ShadowStore()

	created, err := shadows.Create(ctx, core.ShadowRecord{
		Kind:       core.ShadowKindOrder,
		Scope:      "shop_1",
		ExternalID: "1001",
		Data:       map[string]any{"name": "#1001"},
	})
	if err != nil {
		t.Fatalf("create shadow: %v", err)
	}
	_, err = shadows.Create(ctx, core.ShadowRecord{
		Kind:       core.ShadowKindOrder,
		Scope:      " shop_1 ",
		ExternalID: "1001",
	})
	if !errors.Is(err, core.ErrShadowRecordExists) {
		t.Fatalf("expected ErrShadowRecordExists, got %v", err)
	}

	found, err := shadows.FindByKey(ctx, core.NaturalKey{Kind: core.ShadowKindOrder, Scope: "shop_1", ExternalID: "1001"})
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found.ID != created.ID || found.Data["name"] != "#1001" {
		t.Fatalf("unexpected record %+v", found)
	}

	syncedAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	updated, err := shadows.UpdateData(ctx, created.ID, map[string]any{"name": "#1001-b"}, syncedAt)
	if err != nil {
		t.Fatalf("update data: %v", err)
	}
	if updated.Data["name"] != "#1001-b" || updated.LastSync == nil || !updated.LastSync.Equal(syncedAt) {
		t.Fatalf("unexpected updated record %+v", updated)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flipped, err := shadows.MarkImported(ctx, created.ID)
			if err != nil {
				t.Errorf("mark imported: %v", err)
				return
			}
			if flipped {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one import winner, got %d", winners)
	}
	if err := shadows.ResetImported(ctx, created.ID); err != nil {
		t.Fatalf("reset imported: %v", err)
	}
	flipped, err := shadows.MarkImported(ctx, created.ID)
	if err != nil || !flipped {
		t.Fatalf("expected flag to flip again after reset: flipped=%v err=%v", flipped, err)
	}

	if err := shadows.SetFulfillmentStatus(ctx, created.ID, core.FulfillmentStatusPartial); err != nil {
		t.Fatalf("set fulfillment status: %v", err)
	}
	if err := shadows.SetStatus(ctx, "missing", "paid"); !errors.Is(err, core.ErrShadowRecordNotFound) {
		t.Fatalf("expected ErrShadowRecordNotFound, got %v", err)
	}
}

func TestResolver_UpsertOverSQLStore(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	res, err := resolver.New(factory.ShadowStore(), memorystore.NewKeyLocker())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	req := core.UpsertRequest{
		Kind:       core.ShadowKindOrder,
		Scope:      "shop_1",
		ExternalID: "2001",
		Data:       map[string]any{"name": "#2001"},
		Children: map[core.ShadowKind][]core.ChildPayload{
			core.ShadowKindOrderLine: {
				{ExternalID: "l1", Data: map[string]any{"quantity": float64(1)}},
				{ExternalID: "l2", Data: map[string]any{"quantity": float64(2)}},
			},
		},
	}

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for index := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := res.Upsert(ctx, req)
			if err != nil {
				t.Errorf("upsert %d: %v", index, err)
				return
			}
			ids[index] = record.ID
		}()
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected concurrent upserts to converge on one record, got %v", ids)
		}
	}

	lines, err := factory.ShadowStore().ListChildren(ctx, ids[0], core.ShadowKindOrderLine)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 order lines, got %d", len(lines))
	}
}

func TestRegistrationStore_UpsertAndCounters(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	registrations := factory.RegistrationStore()

	first, err := registrations.Register(ctx, core.RegisterWebhookInput{
		Scope:   "shop_1",
		Topic:   "orders/create",
		Address: "https://example.test/a",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := registrations.Register(ctx, core.RegisterWebhookInput{
		Scope:             "shop_1",
		Topic:             "orders/create",
		Address:           "https://example.test/b",
		ExternalWebhookID: "gid://shopify/WebhookSubscription/1",
	})
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if second.ID != first.ID || second.Address != "https://example.test/b" {
		t.Fatalf("expected in-place update, got first=%+v second=%+v", first, second)
	}

	at := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	if err := registrations.RecordCall(ctx, first.ID, true, at); err != nil {
		t.Fatalf("record success: %v", err)
	}
	if err := registrations.RecordCall(ctx, first.ID, false, at.Add(time.Minute)); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	active, err := registrations.FindActive(ctx, "shop_1", "orders/create")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active.TotalCalls != 2 || active.SuccessfulCalls != 1 || active.FailedCalls != 1 {
		t.Fatalf("unexpected counters %+v", active)
	}

	if err := registrations.SetState(ctx, first.ID, core.RegistrationStateInactive); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if _, err := registrations.FindActive(ctx, "shop_1", "orders/create"); !errors.Is(err, core.ErrRegistrationNotFound) {
		t.Fatalf("expected inactive registration to be hidden, got %v", err)
	}
	listed, err := registrations.ListByScope(ctx, "shop_1")
	if err != nil {
		t.Fatalf("list by scope: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(listed))
	}
}

func TestDeliveryLogStore_FinishListAndPurge(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	logs := factory.DeliveryLogStore()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stale, err := logs.Append(ctx, core.DeliveryLog{Scope: "shop_1", Topic: "orders/paid", Payload: []byte(`{}`), CreatedAt: old})
	if err != nil {
		t.Fatalf("append stale: %v", err)
	}
	entry, err := logs.Append(ctx, core.DeliveryLog{
		Scope:      "shop_1",
		Topic:      "orders/create",
		DeliveryID: "delivery-1",
		Payload:    []byte(`{"id":1}`),
		Verified:   true,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.Status != core.DeliveryStatusProcessing {
		t.Fatalf("expected processing status, got %q", entry.Status)
	}

	finishedAt := time.Now().UTC()
	if err := logs.Finish(ctx, entry.ID, core.DeliveryStatusSuccess, "processed", finishedAt); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := logs.Finish(ctx, entry.ID, core.DeliveryStatusError, "late", finishedAt); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	stored, err := logs.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.DeliveryStatusSuccess || stored.Message != "processed" || stored.ProcessedAt == nil {
		t.Fatalf("expected first terminal status to stick, got %+v", stored)
	}
	if string(stored.Payload) != `{"id":1}` {
		t.Fatalf("unexpected payload %q", stored.Payload)
	}
	if err := logs.Finish(ctx, entry.ID, core.DeliveryStatusProcessing, "", finishedAt); err == nil {
		t.Fatalf("expected non-terminal finish to be rejected")
	}

	listed, err := logs.List(ctx, core.DeliveryLogFilter{Scope: "shop_1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != entry.ID {
		t.Fatalf("expected newest first, got %+v", listed)
	}
	filtered, err := logs.List(ctx, core.DeliveryLogFilter{Status: core.DeliveryStatusProcessing})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != stale.ID {
		t.Fatalf("expected only the stale entry, got %+v", filtered)
	}

	purged, err := logs.PurgeBefore(ctx, old.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}
}

func mustCreateJob(t *testing.T, jobs core.JobStore, job core.Job) core.Job {
	t.Helper()
	if job.Payload == nil {
		job.Payload = map[string]any{}
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = core.DefaultMaxRetries
	}
	created, err := jobs.Create(context.Background(), job)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return created
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:shopify-sync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}

	ctx := context.Background()
	_, err = syncmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != syncmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, syncmigrations.WithDialects(syncmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
