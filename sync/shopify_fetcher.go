package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/transport"
)

const DefaultPageSize = 250

type PageGetter interface {
	Get(ctx context.Context, target string, query map[string]string) (transport.Response, error)
}

// ShopifyFetcher pages through one Admin REST collection. Query parameters
// apply to the first request only; pagination links already carry them.
type ShopifyFetcher struct {
	Client   PageGetter
	Resource string
	Query    map[string]string
	PageSize int
}

func (f ShopifyFetcher) FetchPage(ctx context.Context, cursor string) (Page, error) {
	var (
		res transport.Response
		err error
	)
	if cursor == "" {
		query := make(map[string]string, len(f.Query)+1)
		for key, value := range f.Query {
			query[key] = value
		}
		pageSize := f.PageSize
		if pageSize <= 0 || pageSize > DefaultPageSize {
			pageSize = DefaultPageSize
		}
		query["limit"] = strconv.Itoa(pageSize)
		res, err = f.Client.Get(ctx, f.Resource, query)
	} else {
		res, err = f.Client.Get(ctx, cursor, nil)
	}
	if err != nil {
		return Page{}, err
	}

	items, err := decodeCollection(res.Body, f.Resource)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Items: items,
		Next:  NextPageURL(transport.HeaderValue(res.Headers, "Link")),
	}, nil
}

func decodeCollection(body []byte, resource string) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	envelope := map[string][]map[string]any{}
	if err := decoder.Decode(&envelope); err != nil {
		return nil, core.ValidationError("sync: decode "+resource+" page: "+err.Error(), map[string]any{"resource": resource})
	}
	return envelope[resource], nil
}
