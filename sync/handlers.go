package sync

import (
	"context"
	"fmt"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/resolver"
	"github.com/naashmtp/odoo-shopify-connector/transport"
)

// ClientFactory builds a page getter for a shop.
type ClientFactory func(scope core.Scope) (PageGetter, error)

// ProgressFunc forwards progress of job id to the queue.
type ProgressFunc func(ctx context.Context, jobID string, delta core.ProgressDelta) error

type importPass struct {
	resource string
	query    map[string]string
}

type importPlan struct {
	mapping resolver.Mapping
	noun    string
	passes  []importPass
}

// Orders are pulled twice, once per fulfillment status still relevant to
// the ERP side.
var importPlans = map[core.Operation]importPlan{
	core.OperationImportProducts: {
		mapping: resolver.ProductMapping,
		noun:    "products",
		passes:  []importPass{{resource: "products"}},
	},
	core.OperationImportOrders: {
		mapping: resolver.OrderMapping,
		noun:    "orders",
		passes: []importPass{
			{resource: "orders", query: map[string]string{"status": "any", "fulfillment_status": core.FulfillmentStatusUnfulfilled}},
			{resource: "orders", query: map[string]string{"status": "any", "fulfillment_status": core.FulfillmentStatusPartial}},
		},
	},
	core.OperationImportCustomers: {
		mapping: resolver.CustomerMapping,
		noun:    "customers",
		passes:  []importPass{{resource: "customers"}},
	},
}

// ShopifyClientFactory returns a ClientFactory backed by transport.ShopifyClient.
func ShopifyClientFactory(cfg core.ImporterConfig, doer transport.HTTPDoer, opts ...transport.ClientOption) ClientFactory {
	return func(scope core.Scope) (PageGetter, error) {
		return transport.NewShopifyClient(scope, cfg, doer, opts...)
	}
}

// JobHandlers returns the queue handlers of the import operations.
func (i *Importer) JobHandlers(
	scopes core.ScopeProvider,
	clients ClientFactory,
	pageSize int,
	progress ProgressFunc,
) map[core.Operation]core.JobHandler {
	handlers := make(map[core.Operation]core.JobHandler, len(importPlans))
	for op, plan := range importPlans {
		handlers[op] = core.JobHandlerFunc(func(ctx context.Context, job core.Job) (core.JobResult, error) {
			return i.runPlan(ctx, job, plan, scopes, clients, pageSize, progress)
		})
	}
	return handlers
}

func (i *Importer) runPlan(
	ctx context.Context,
	job core.Job,
	plan importPlan,
	scopes core.ScopeProvider,
	clients ClientFactory,
	pageSize int,
	progress ProgressFunc,
) (core.JobResult, error) {
	if scopes == nil || clients == nil {
		return core.JobResult{}, fmt.Errorf("sync: scope provider and client factory are required")
	}
	scope, err := scopes.GetScope(ctx, job.Scope)
	if err != nil {
		return core.JobResult{}, core.ValidationError("sync: unknown scope "+job.Scope, map[string]any{"job_id": job.ID})
	}
	if !scope.Active {
		return core.JobResult{}, core.ValidationError("sync: scope "+job.Scope+" is inactive", map[string]any{"job_id": job.ID})
	}
	client, err := clients(scope)
	if err != nil {
		return core.JobResult{}, err
	}

	var reporter ProgressReporter
	if progress != nil {
		reporter = ProgressReporterFunc(func(ctx context.Context, delta core.ProgressDelta) error {
			return progress(ctx, job.ID, delta)
		})
	}

	total := ImportStats{}
	for _, pass := range plan.passes {
		stats, err := i.ImportAll(ctx, scope.ID, plan.mapping, ShopifyFetcher{
			Client:   client,
			Resource: pass.resource,
			Query:    pass.query,
			PageSize: pageSize,
		}, reporter)
		total = total.add(stats)
		if err != nil {
			return core.JobResult{}, err
		}
	}

	return core.JobResult{
		Status:  "success",
		Message: fmt.Sprintf("Imported %d %s", total.Succeeded, plan.noun),
		Data: map[string]any{
			"pages":     total.Pages,
			"items":     total.Items,
			"succeeded": total.Succeeded,
			"failed":    total.Failed,
		},
	}, nil
}
