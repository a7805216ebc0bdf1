// Package webhooks verifies inbound Shopify webhook signatures and routes
// verified events to topic handlers.
//
// Every routed delivery is recorded in a delivery log which moves from
// processing to exactly one of success, failed or error.
package webhooks
