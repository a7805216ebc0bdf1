package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/resolver"
)

func (d *Dispatcher) defaultHandlers() map[Topic]TopicHandler {
	return map[Topic]TopicHandler{
		TopicOrdersCreate:    d.upsertHandler(resolver.OrderMapping),
		TopicOrdersUpdated:   d.upsertHandler(resolver.OrderMapping),
		TopicOrdersCancelled: d.orderStatusHandler(core.ShadowStatusCancelled, false),
		TopicOrdersFulfilled: d.orderStatusHandler(core.FulfillmentStatusFulfilled, true),
		TopicProductsCreate:  d.upsertHandler(resolver.ProductMapping),
		TopicProductsUpdate:  d.upsertHandler(resolver.ProductMapping),
		TopicCustomersCreate: d.upsertHandler(resolver.CustomerMapping),
		TopicCustomersUpdate: d.upsertHandler(resolver.CustomerMapping),
		TopicRefundsCreate:   refundHandler,
	}
}

func (d *Dispatcher) upsertHandler(mapping resolver.Mapping) TopicHandler {
	return func(ctx context.Context, event Event) (HandlerResult, error) {
		req := mapping.Request(event.Scope, event.Payload)
		record, err := d.upserter.Upsert(ctx, req)
		if err != nil {
			return HandlerResult{}, err
		}
		return HandlerResult{
			OK:      true,
			Message: fmt.Sprintf("%s %s synchronized", record.Kind, record.ExternalID),
		}, nil
	}
}

func (d *Dispatcher) orderStatusHandler(status string, fulfillment bool) TopicHandler {
	return func(ctx context.Context, event Event) (HandlerResult, error) {
		externalID := resolver.ExternalID(event.Payload["id"])
		if externalID == "" {
			return HandlerResult{}, core.ValidationError("webhooks: order id is required", map[string]any{"topic": string(event.Topic)})
		}
		order, err := d.shadows.FindByKey(ctx, core.NaturalKey{
			Kind:       core.ShadowKindOrder,
			Scope:      event.Scope,
			ExternalID: externalID,
		})
		if errors.Is(err, core.ErrShadowRecordNotFound) {
			return HandlerResult{OK: false, Message: "order " + externalID + " is not known"}, nil
		}
		if err != nil {
			return HandlerResult{}, err
		}
		if fulfillment {
			err = d.shadows.SetFulfillmentStatus(ctx, order.ID, status)
		} else {
			err = d.shadows.SetStatus(ctx, order.ID, status)
		}
		if err != nil {
			return HandlerResult{}, err
		}
		return HandlerResult{OK: true, Message: "order " + externalID + " marked " + status}, nil
	}
}

func refundHandler(context.Context, Event) (HandlerResult, error) {
	return HandlerResult{OK: true, Message: "refund acknowledged"}, nil
}
