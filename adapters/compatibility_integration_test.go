package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/naashmtp/odoo-shopify-connector/adapters/gocommand"
	"github.com/naashmtp/odoo-shopify-connector/adapters/gojob"
	"github.com/naashmtp/odoo-shopify-connector/adapters/gologger"
	synccommand "github.com/naashmtp/odoo-shopify-connector/command"
	"github.com/naashmtp/odoo-shopify-connector/core"
	syncquery "github.com/naashmtp/odoo-shopify-connector/query"
	syncqueue "github.com/naashmtp/odoo-shopify-connector/queue"
	memorystore "github.com/naashmtp/odoo-shopify-connector/store/memory"
)

func newCompatEngine(t *testing.T, logger core.Logger) *syncqueue.Engine {
	t.Helper()
	handlers := map[core.Operation]core.JobHandler{}
	for _, op := range core.Operations() {
		handlers[op] = core.JobHandlerFunc(func(context.Context, core.Job) (core.JobResult, error) {
			return core.JobResult{Status: "success"}, nil
		})
	}
	engine, err := syncqueue.NewEngine(memorystore.NewJobStore(), handlers, syncqueue.WithLogger(logger))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	loggers := gologger.ForComponent("queue", &compatProvider{logger: logger}, nil, nil)
	if loggers.Job == nil {
		t.Fatalf("expected go-job logger bridge")
	}
	engine := newCompatEngine(t, loggers.Observer.Logger())

	enqueuer := gojob.NewEngineEnqueuer(engine)
	if err := enqueuer.Enqueue(ctx, &job.ExecutionMessage{
		JobID:      gojob.JobIDPrefix + string(core.OperationSyncPrices),
		Parameters: map[string]any{"scope": "shop_1"},
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}

	dequeuer := gojob.NewEngineDequeuer(engine, gojob.RetryPolicy{MaxAttempts: 3}, 5*time.Millisecond)
	dequeueCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	delivery, err := dequeuer.Dequeue(dequeueCtx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if delivery.Message().ScriptPath != string(core.OperationSyncPrices) {
		t.Fatalf("unexpected dequeued script %q", delivery.Message().ScriptPath)
	}
	loggers.Job.Info("go-job worker picked up", "job_id", delivery.Message().IdempotencyKey)
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if logger.infoCount == 0 {
		t.Fatalf("expected go-job logger to reach the component logger")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	bindings, err := gocommand.RegisterSyncHandlers(commandAdapter, gocommand.SyncServices{Queue: engine, Jobs: engine})
	if err != nil {
		t.Fatalf("register sync handlers: %v", err)
	}
	defer bindings.Close()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(synccommand.TypeRetryJob); !ok {
		t.Fatalf("expected retry command to be mirrored into go-job queue registry")
	}

	stats, err := gocommand.Query[syncquery.QueueStatsMessage, core.QueueStats](ctx, syncquery.QueueStatsMessage{})
	if err != nil {
		t.Fatalf("query queue stats: %v", err)
	}
	if stats.Total != 1 || stats.Counts[core.JobStateDone] != 1 {
		t.Fatalf("expected the go-job delivery to finish the job, got %#v", stats)
	}
}

type compatProvider struct {
	logger *compatLogger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	return p.logger
}

type compatLogger struct {
	infoCount int
}

func (l *compatLogger) Trace(string, ...any) {}
func (l *compatLogger) Debug(string, ...any) {}
func (l *compatLogger) Info(string, ...any)  { l.infoCount++ }
func (l *compatLogger) Warn(string, ...any)  {}
func (l *compatLogger) Error(string, ...any) {}
func (l *compatLogger) Fatal(string, ...any) {}

func (l *compatLogger) WithContext(context.Context) glog.Logger {
	return l
}
