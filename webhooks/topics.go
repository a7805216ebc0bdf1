package webhooks

import (
	"strings"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

type Topic string

const (
	TopicOrdersCreate    Topic = "orders/create"
	TopicOrdersUpdated   Topic = "orders/updated"
	TopicOrdersCancelled Topic = "orders/cancelled"
	TopicOrdersFulfilled Topic = "orders/fulfilled"
	TopicProductsCreate  Topic = "products/create"
	TopicProductsUpdate  Topic = "products/update"
	TopicCustomersCreate Topic = "customers/create"
	TopicCustomersUpdate Topic = "customers/update"
	TopicRefundsCreate   Topic = "refunds/create"
)

const webhookRoutePrefix = "/shopify/webhook/"

func Topics() []Topic {
	return []Topic{
		TopicOrdersCreate,
		TopicOrdersUpdated,
		TopicOrdersCancelled,
		TopicOrdersFulfilled,
		TopicProductsCreate,
		TopicProductsUpdate,
		TopicCustomersCreate,
		TopicCustomersUpdate,
		TopicRefundsCreate,
	}
}

type route struct {
	entity string
	action string
}

var routeTopics = map[route]Topic{
	{"order", "create"}:    TopicOrdersCreate,
	{"order", "update"}:    TopicOrdersUpdated,
	{"order", "cancel"}:    TopicOrdersCancelled,
	{"order", "fulfill"}:   TopicOrdersFulfilled,
	{"product", "create"}:  TopicProductsCreate,
	{"product", "update"}:  TopicProductsUpdate,
	{"customer", "create"}: TopicCustomersCreate,
	{"customer", "update"}: TopicCustomersUpdate,
	{"refund", "create"}:   TopicRefundsCreate,
}

// TopicForRoute maps the entity/action path segments of the webhook
// endpoint to a Shopify topic.
func TopicForRoute(entity string, action string) (Topic, bool) {
	topic, ok := routeTopics[route{
		entity: strings.ToLower(strings.TrimSpace(entity)),
		action: strings.ToLower(strings.TrimSpace(action)),
	}]
	return topic, ok
}

// RoutePath returns the endpoint path serving topic.
func RoutePath(topic Topic) string {
	for key, candidate := range routeTopics {
		if candidate == topic {
			return webhookRoutePrefix + key.entity + "/" + key.action
		}
	}
	return ""
}

// DefaultTopics returns the registrations a shop needs, addressed relative
// to baseURL.
func DefaultTopics(scope string, baseURL string) []core.RegisterWebhookInput {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	out := make([]core.RegisterWebhookInput, 0, len(Topics()))
	for _, topic := range Topics() {
		out = append(out, core.RegisterWebhookInput{
			Scope:   scope,
			Topic:   string(topic),
			Address: base + RoutePath(topic),
			State:   core.RegistrationStateActive,
		})
	}
	return out
}
