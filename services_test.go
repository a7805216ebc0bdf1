package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-command"
	"github.com/naashmtp/odoo-shopify-connector/adapters/gocommand"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/inbound"
	"github.com/naashmtp/odoo-shopify-connector/webhooks"
)

const testSecret = "shpss_test_secret"

func testShop() core.Scope {
	return core.Scope{
		ID:            "shop_1",
		ShopURL:       "https://demo.myshopify.com",
		AccessToken:   "token",
		WebhookSecret: testSecret,
		Active:        true,
	}
}

func newTestService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service, err := NewService(cfg, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	return service
}

func postWebhook(t *testing.T, router http.Handler, path string, body string) inbound.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set(webhooks.HeaderShopDomain, "demo.myshopify.com")
	req.Header.Set(webhooks.HeaderHMAC, webhooks.Sign([]byte(body), testSecret))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", recorder.Code)
	}
	var response inbound.Response
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return response
}

func TestNewServiceDefaultsToMemoryRuntime(t *testing.T) {
	service := newTestService(t, DefaultConfig())

	engine := service.Engine()
	for _, op := range []core.Operation{
		core.OperationImportProducts,
		core.OperationImportOrders,
		core.OperationImportCustomers,
		core.OperationProcessWebhook,
		core.OperationCustom,
	} {
		if !engine.Supported(op) {
			t.Fatalf("expected %s to be supported", op)
		}
	}
	if engine.Supported(core.OperationExportProducts) {
		t.Fatalf("expected export-products to have no handler")
	}
	_, err := engine.Create(context.Background(), core.CreateJobRequest{Operation: core.OperationExportProducts, Scope: "shop_1"})
	if err == nil {
		t.Fatalf("expected unsupported operation to be rejected")
	}
	if service.Config().ServiceName != "shopify-sync" {
		t.Fatalf("unexpected service name %q", service.Config().ServiceName)
	}
	if service.Resolver() == nil || service.Importer() == nil || service.Dispatcher() == nil || service.WorkerPool() == nil {
		t.Fatalf("expected runtime components to be built")
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queue.DefaultPriority = 9
	if _, err := NewService(cfg); err == nil {
		t.Fatalf("expected invalid priority to fail")
	}
}

func TestWithJobHandlerEnablesOperation(t *testing.T) {
	var ran bool
	service := newTestService(t, DefaultConfig(),
		WithScopes(testShop()),
		WithJobHandler(core.OperationExportProducts, core.JobHandlerFunc(func(context.Context, core.Job) (core.JobResult, error) {
			ran = true
			return core.JobResult{Status: "success", Message: "Exported"}, nil
		})),
	)
	ctx := context.Background()
	job, err := service.Engine().Create(ctx, core.CreateJobRequest{Operation: core.OperationExportProducts, Scope: "shop_1", Enqueue: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Engine().RunOnce(ctx, 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	done, err := service.Engine().Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ran || done.State != core.JobStateDone {
		t.Fatalf("expected custom handler to run, state=%s", done.State)
	}
}

func TestInlineWebhookUpsertsShadow(t *testing.T) {
	service := newTestService(t, DefaultConfig(), WithScopes(testShop()))
	ctx := context.Background()
	if _, err := service.Dispatcher().RegisterDefaults(ctx, "shop_1", "https://erp.example.com"); err != nil {
		t.Fatalf("register defaults: %v", err)
	}

	body := `{"id":4401,"title":"Mug","variants":[{"id":1,"sku":"MUG-1"}]}`
	response := postWebhook(t, service.Router(), "/shopify/webhook/product/create", body)
	if response.Status != inbound.StatusSuccess || response.Message != "Webhook processed" {
		t.Fatalf("unexpected response %#v", response)
	}
	product, err := service.shadows.FindByKey(ctx, core.NaturalKey{Kind: core.ShadowKindProduct, Scope: "shop_1", ExternalID: "4401"})
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Data["title"] != "Mug" {
		t.Fatalf("unexpected product data %#v", product.Data)
	}
}

func TestQueuedWebhookRunsThroughEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhooks.Mode = core.WebhookModeQueued
	service := newTestService(t, cfg, WithScopes(testShop()))
	ctx := context.Background()
	if _, err := service.Dispatcher().RegisterDefaults(ctx, "shop_1", "https://erp.example.com"); err != nil {
		t.Fatalf("register defaults: %v", err)
	}

	body := `{"id":77,"email":"ada@example.com"}`
	response := postWebhook(t, service.Router(), "/shopify/webhook/customer/create", body)
	if response.Status != inbound.StatusSuccess || !strings.HasPrefix(response.Message, "Webhook queued as job ") {
		t.Fatalf("unexpected response %#v", response)
	}
	if _, err := service.shadows.FindByKey(ctx, core.NaturalKey{Kind: core.ShadowKindCustomer, Scope: "shop_1", ExternalID: "77"}); err == nil {
		t.Fatalf("expected no shadow before the job runs")
	}

	stats, err := service.Engine().RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("expected one processed webhook job, got %+v", stats)
	}
	if _, err := service.shadows.FindByKey(ctx, core.NaturalKey{Kind: core.ShadowKindCustomer, Scope: "shop_1", ExternalID: "77"}); err != nil {
		t.Fatalf("find customer: %v", err)
	}
}

func TestQueuedWebhookFailureIsRetriedAndRerun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhooks.Mode = core.WebhookModeQueued
	calls := 0
	service := newTestService(t, cfg, WithScopes(testShop()),
		WithTopicHandler(webhooks.TopicCustomersCreate, func(context.Context, webhooks.Event) (webhooks.HandlerResult, error) {
			calls++
			if calls == 1 {
				return webhooks.HandlerResult{}, core.TransientNetworkError(fmt.Errorf("connection reset"), "odoo unreachable", nil)
			}
			return webhooks.HandlerResult{OK: true, Message: "customer 78 synchronized"}, nil
		}),
	)
	ctx := context.Background()
	if _, err := service.Dispatcher().RegisterDefaults(ctx, "shop_1", "https://erp.example.com"); err != nil {
		t.Fatalf("register defaults: %v", err)
	}

	body := `{"id":78}`
	req := httptest.NewRequest(http.MethodPost, "/shopify/webhook/customer/create", bytes.NewBufferString(body))
	req.Header.Set(webhooks.HeaderShopDomain, "demo.myshopify.com")
	req.Header.Set(webhooks.HeaderHMAC, webhooks.Sign([]byte(body), testSecret))
	req.Header.Set(webhooks.HeaderWebhookID, "wh-78")
	recorder := httptest.NewRecorder()
	service.Router().ServeHTTP(recorder, req)
	var response inbound.Response
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	jobID := strings.TrimPrefix(response.Message, "Webhook queued as job ")
	if response.Status != inbound.StatusSuccess || jobID == response.Message {
		t.Fatalf("unexpected response %#v", response)
	}

	stats, err := service.Engine().RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if stats.Retried != 1 || stats.Failed != 0 {
		t.Fatalf("expected transient handler failure to be retried, got %+v", stats)
	}
	waiting, err := service.Engine().Get(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if waiting.State != core.JobStateQueued || waiting.RetryCount != 1 {
		t.Fatalf("expected queued job with one retry, got %s/%d", waiting.State, waiting.RetryCount)
	}

	if _, err := service.Engine().Cancel(ctx, jobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := service.Engine().Retry(ctx, jobID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, err := service.Engine().RunOnce(ctx, 10); err != nil {
		t.Fatalf("second run: %v", err)
	}
	done, _ := service.Engine().Get(ctx, jobID)
	if done.State != core.JobStateDone || calls != 2 {
		t.Fatalf("expected the handler to run again on retry, got state=%s calls=%d", done.State, calls)
	}
}

func TestImportJobPullsFromShop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprint(w, `{"products":[{"id":101,"title":"A"},{"id":102,"title":"B"}]}`)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Importer.RatePerSecond = 1000
	cfg.Importer.RateBurst = 100
	scope := testShop()
	scope.ShopURL = server.URL
	service := newTestService(t, cfg, WithScopes(scope), WithHTTPClient(server.Client()))

	ctx := context.Background()
	job, err := service.Engine().Create(ctx, core.CreateJobRequest{Operation: core.OperationImportProducts, Scope: "shop_1", Enqueue: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Engine().RunOnce(ctx, 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	done, err := service.Engine().Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.State != core.JobStateDone || done.Result == nil || done.Result.Message != "Imported 2 products" {
		t.Fatalf("unexpected job %+v", done)
	}
	if done.Progress.Processed != 2 {
		t.Fatalf("expected progress to count both products, got %+v", done.Progress)
	}
}

func TestBatchParentSummarizesChildren(t *testing.T) {
	service := newTestService(t, DefaultConfig(), WithScopes(testShop()))
	ctx := context.Background()
	batch, err := service.Engine().CreateImportBatch(ctx, "shop_1")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	result, err := service.runCustomJob(ctx, batch.Parent)
	if err != nil {
		t.Fatalf("run parent: %v", err)
	}
	if result.Message != "Batch 0/3 children done" || result.Data["queued"] != 3 {
		t.Fatalf("unexpected batch summary %+v", result)
	}

	if _, err := service.runCustomJob(ctx, core.Job{ID: "plain", Operation: core.OperationCustom}); core.Classify(err) != core.ErrorClassValidation {
		t.Fatalf("expected validation error for non-batch custom job, got %v", err)
	}
}

func TestAllowUnverifiedAppliesToEveryScope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhooks.AllowUnverified = true
	service := newTestService(t, cfg, WithScopes(testShop()))

	scope, err := service.Scopes().FindByShopDomain(context.Background(), "demo.myshopify.com")
	if err != nil {
		t.Fatalf("find scope: %v", err)
	}
	if !scope.AllowUnverified {
		t.Fatalf("expected allow_unverified to be applied")
	}
}

func TestPurgeUsesRetention(t *testing.T) {
	service := newTestService(t, DefaultConfig(), WithScopes(testShop()))
	ctx := context.Background()
	job, err := service.Engine().Create(ctx, core.CreateJobRequest{Operation: core.OperationImportProducts, Scope: "shop_1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Engine().Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := service.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if stats.Jobs != 0 || stats.DeliveryLogs != 0 {
		t.Fatalf("expected fresh records to survive retention, got %+v", stats)
	}
	if _, err := service.Engine().Get(ctx, job.ID); err != nil {
		t.Fatalf("expected job to survive purge: %v", err)
	}
}

func TestStartAndClose(t *testing.T) {
	service := newTestService(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !service.Start(ctx) {
		t.Fatalf("expected pool to start")
	}
	if service.Start(ctx) {
		t.Fatalf("expected second start to report running")
	}
	if err := service.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type stubStores struct {
	StoreProvider
	jobsCalled bool
}

func (s *stubStores) JobStore() core.JobStore {
	s.jobsCalled = true
	return s.StoreProvider.JobStore()
}

func TestWithStoresOverridesDefaults(t *testing.T) {
	stores := &stubStores{StoreProvider: NewMemoryStores()}
	newTestService(t, DefaultConfig(), WithStores(stores))
	if !stores.jobsCalled {
		t.Fatalf("expected provided stores to be used")
	}
}

func TestRedisConfigFailsFastWhenUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := NewService(cfg); err == nil {
		t.Fatalf("expected unreachable redis to fail construction")
	}
}

func TestBindRegistersEveryHandler(t *testing.T) {
	service := newTestService(t, DefaultConfig(), WithScopes(testShop()))
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	bindings, err := service.Bind(adapter)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer bindings.Close()
	if bindings.Len() != 14 {
		t.Fatalf("expected 9 commands and 5 queries, got %d", bindings.Len())
	}
}
