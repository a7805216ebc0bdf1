package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/queue"
)

var (
	_ gocmd.Querier[GetJobMessage, core.Job]                                     = (*GetJobQuery)(nil)
	_ gocmd.Querier[QueueStatsMessage, core.QueueStats]                          = (*QueueStatsQuery)(nil)
	_ gocmd.Querier[BatchStatusMessage, core.QueueStats]                         = (*BatchStatusQuery)(nil)
	_ gocmd.Querier[ListDeliveryLogsMessage, []core.DeliveryLog]                 = (*ListDeliveryLogsQuery)(nil)
	_ gocmd.Querier[ListWebhookRegistrationsMessage, []core.WebhookRegistration] = (*ListWebhookRegistrationsQuery)(nil)

	_ JobReader          = (*queue.Engine)(nil)
	_ DeliveryLogReader  = (core.DeliveryLogStore)(nil)
	_ RegistrationReader = (core.RegistrationStore)(nil)
)
