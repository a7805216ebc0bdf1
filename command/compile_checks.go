package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/naashmtp/odoo-shopify-connector/queue"
	"github.com/naashmtp/odoo-shopify-connector/webhooks"
)

var (
	_ gocmd.Commander[CreateJobMessage]         = (*CreateJobCommand)(nil)
	_ gocmd.Commander[EnqueueJobMessage]        = (*EnqueueJobCommand)(nil)
	_ gocmd.Commander[RetryJobMessage]          = (*RetryJobCommand)(nil)
	_ gocmd.Commander[CancelJobMessage]         = (*CancelJobCommand)(nil)
	_ gocmd.Commander[PurgeJobsMessage]         = (*PurgeJobsCommand)(nil)
	_ gocmd.Commander[RunQueueOnceMessage]      = (*RunQueueOnceCommand)(nil)
	_ gocmd.Commander[CreateImportBatchMessage] = (*CreateImportBatchCommand)(nil)
	_ gocmd.Commander[RegisterWebhooksMessage]  = (*RegisterWebhooksCommand)(nil)
	_ gocmd.Commander[PurgeDeliveryLogsMessage] = (*PurgeDeliveryLogsCommand)(nil)

	_ QueueService   = (*queue.Engine)(nil)
	_ WebhookService = (*webhooks.Dispatcher)(nil)
)
