package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	synccommand "github.com/naashmtp/odoo-shopify-connector/command"
	"github.com/naashmtp/odoo-shopify-connector/core"
	syncquery "github.com/naashmtp/odoo-shopify-connector/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into a go-job queue
// registry so operator commands can also be scheduled as go-job jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// SyncServices are the collaborators behind the operator commands and
// queries. Nil fields skip the handlers that need them.
type SyncServices struct {
	Queue         synccommand.QueueService
	Webhooks      synccommand.WebhookService
	Jobs          syncquery.JobReader
	DeliveryLogs  syncquery.DeliveryLogReader
	Registrations syncquery.RegistrationReader
}

// Bindings holds the dispatcher subscriptions created by RegisterSyncHandlers.
type Bindings struct {
	subscriptions []commanddispatcher.Subscription
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.subscriptions)
}

func (b *Bindings) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// RegisterSyncHandlers subscribes every operator command and query that
// services can back. On error the subscriptions made so far are released.
func RegisterSyncHandlers(adapter *RegistryAdapter, services SyncServices) (*Bindings, error) {
	bindings := &Bindings{}
	add := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		bindings.subscriptions = append(bindings.subscriptions, subscription)
		return nil
	}

	var errs []error
	if services.Queue != nil {
		errs = append(errs,
			add(RegisterAndSubscribe[synccommand.CreateJobMessage](adapter, synccommand.NewCreateJobCommand(services.Queue))),
			add(RegisterAndSubscribe[synccommand.EnqueueJobMessage](adapter, synccommand.NewEnqueueJobCommand(services.Queue))),
			add(RegisterAndSubscribe[synccommand.RetryJobMessage](adapter, synccommand.NewRetryJobCommand(services.Queue))),
			add(RegisterAndSubscribe[synccommand.CancelJobMessage](adapter, synccommand.NewCancelJobCommand(services.Queue))),
			add(RegisterAndSubscribe[synccommand.PurgeJobsMessage](adapter, synccommand.NewPurgeJobsCommand(services.Queue))),
			add(RegisterAndSubscribe[synccommand.RunQueueOnceMessage](adapter, synccommand.NewRunQueueOnceCommand(services.Queue))),
			add(RegisterAndSubscribe[synccommand.CreateImportBatchMessage](adapter, synccommand.NewCreateImportBatchCommand(services.Queue))),
		)
	}
	if services.Webhooks != nil {
		errs = append(errs,
			add(RegisterAndSubscribe[synccommand.RegisterWebhooksMessage](adapter, synccommand.NewRegisterWebhooksCommand(services.Webhooks))),
			add(RegisterAndSubscribe[synccommand.PurgeDeliveryLogsMessage](adapter, synccommand.NewPurgeDeliveryLogsCommand(services.Webhooks))),
		)
	}
	if services.Jobs != nil {
		errs = append(errs,
			add(RegisterAndSubscribeQuery[syncquery.GetJobMessage, core.Job](adapter, syncquery.NewGetJobQuery(services.Jobs))),
			add(RegisterAndSubscribeQuery[syncquery.QueueStatsMessage, core.QueueStats](adapter, syncquery.NewQueueStatsQuery(services.Jobs))),
			add(RegisterAndSubscribeQuery[syncquery.BatchStatusMessage, core.QueueStats](adapter, syncquery.NewBatchStatusQuery(services.Jobs))),
		)
	}
	if services.DeliveryLogs != nil {
		errs = append(errs, add(RegisterAndSubscribeQuery[syncquery.ListDeliveryLogsMessage, []core.DeliveryLog](adapter, syncquery.NewListDeliveryLogsQuery(services.DeliveryLogs))))
	}
	if services.Registrations != nil {
		errs = append(errs, add(RegisterAndSubscribeQuery[syncquery.ListWebhookRegistrationsMessage, []core.WebhookRegistration](adapter, syncquery.NewListWebhookRegistrationsQuery(services.Registrations))))
	}
	for _, err := range errs {
		if err != nil {
			bindings.Close()
			return nil, err
		}
	}
	return bindings, nil
}
