// Package inbound exposes the Shopify webhook HTTP surface.
//
// Every webhook response is HTTP 200 with a JSON {status, message} body so
// Shopify does not retry deliveries that were rejected on purpose. Rejected
// deliveries are reported through the component logger instead.
package inbound
