package connector

import (
	"fmt"

	synccommand "github.com/naashmtp/odoo-shopify-connector/command"
	syncquery "github.com/naashmtp/odoo-shopify-connector/query"
)

type Commands struct {
	CreateJob         *synccommand.CreateJobCommand
	EnqueueJob        *synccommand.EnqueueJobCommand
	RetryJob          *synccommand.RetryJobCommand
	CancelJob         *synccommand.CancelJobCommand
	PurgeJobs         *synccommand.PurgeJobsCommand
	RunQueueOnce      *synccommand.RunQueueOnceCommand
	CreateImportBatch *synccommand.CreateImportBatchCommand
	RegisterWebhooks  *synccommand.RegisterWebhooksCommand
	PurgeDeliveryLogs *synccommand.PurgeDeliveryLogsCommand
}

type Queries struct {
	GetJob                   *syncquery.GetJobQuery
	QueueStats               *syncquery.QueueStatsQuery
	BatchStatus              *syncquery.BatchStatusQuery
	ListDeliveryLogs         *syncquery.ListDeliveryLogsQuery
	ListWebhookRegistrations *syncquery.ListWebhookRegistrationsQuery
}

// Facade exposes the service as go-command handlers for hosts that call
// them directly instead of through a dispatcher.
type Facade struct {
	service  *Service
	commands Commands
	queries  Queries
}

func NewFacade(service *Service) (*Facade, error) {
	if service == nil || service.engine == nil || service.dispatcher == nil {
		return nil, fmt.Errorf("connector: service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateJob:         synccommand.NewCreateJobCommand(service.engine),
		EnqueueJob:        synccommand.NewEnqueueJobCommand(service.engine),
		RetryJob:          synccommand.NewRetryJobCommand(service.engine),
		CancelJob:         synccommand.NewCancelJobCommand(service.engine),
		PurgeJobs:         synccommand.NewPurgeJobsCommand(service.engine),
		RunQueueOnce:      synccommand.NewRunQueueOnceCommand(service.engine),
		CreateImportBatch: synccommand.NewCreateImportBatchCommand(service.engine),
		RegisterWebhooks:  synccommand.NewRegisterWebhooksCommand(service.dispatcher),
		PurgeDeliveryLogs: synccommand.NewPurgeDeliveryLogsCommand(service.dispatcher),
	}
	facade.queries = Queries{
		GetJob:                   syncquery.NewGetJobQuery(service.engine),
		QueueStats:               syncquery.NewQueueStatsQuery(service.engine),
		BatchStatus:              syncquery.NewBatchStatusQuery(service.engine),
		ListDeliveryLogs:         syncquery.NewListDeliveryLogsQuery(service.logs),
		ListWebhookRegistrations: syncquery.NewListWebhookRegistrationsQuery(service.registrations),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}
