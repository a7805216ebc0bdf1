package resolver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

// Mapping describes how a Shopify resource payload is mirrored: the root
// kind and, keyed by payload field, the kind of its nested children.
type Mapping struct {
	Kind     core.ShadowKind
	Children map[string]core.ShadowKind
}

var (
	OrderMapping = Mapping{
		Kind:     core.ShadowKindOrder,
		Children: map[string]core.ShadowKind{"line_items": core.ShadowKindOrderLine},
	}
	ProductMapping = Mapping{
		Kind:     core.ShadowKindProduct,
		Children: map[string]core.ShadowKind{"variants": core.ShadowKindVariant},
	}
	CustomerMapping = Mapping{
		Kind:     core.ShadowKindCustomer,
		Children: map[string]core.ShadowKind{"addresses": core.ShadowKindAddress},
	}
)

// Request turns a resource payload into an upsert request. Child
// collections are split off the root data.
func (m Mapping) Request(scope string, payload map[string]any) core.UpsertRequest {
	data := make(map[string]any, len(payload))
	for key, value := range payload {
		if _, nested := m.Children[key]; nested {
			continue
		}
		data[key] = value
	}
	req := core.UpsertRequest{
		Kind:       m.Kind,
		Scope:      scope,
		ExternalID: ExternalID(payload["id"]),
		Data:       data,
	}
	for field, childKind := range m.Children {
		items, ok := payload[field].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		if req.Children == nil {
			req.Children = map[core.ShadowKind][]core.ChildPayload{}
		}
		for _, item := range items {
			itemData, ok := item.(map[string]any)
			if !ok {
				continue
			}
			req.Children[childKind] = append(req.Children[childKind], core.ChildPayload{
				ExternalID: ExternalID(itemData["id"]),
				Data:       itemData,
			})
		}
	}
	return req
}

// ExternalID renders a Shopify id as a string. Numeric ids decoded without
// UseNumber arrive as float64 and are printed without exponent.
func ExternalID(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
