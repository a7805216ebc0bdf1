package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/ratelimit"
)

func TestShopifyClientGet(t *testing.T) {
	var gotPath, gotToken, gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get(HeaderAccessToken)
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer server.Close()

	client, err := NewShopifyClient(
		core.Scope{ID: "shop", ShopURL: server.URL, AccessToken: "shpat_123"},
		core.ImporterConfig{APIVersion: "2023-10", RequestTimeout: time.Second, RatePerSecond: 100, RateBurst: 10},
		server.Client(),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := client.Get(context.Background(), "products", map[string]string{"limit": "250"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", res.StatusCode)
	}
	if gotPath != "/admin/api/2023-10/products.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotToken != "shpat_123" || gotLimit != "250" {
		t.Fatalf("unexpected token %q or limit %q", gotToken, gotLimit)
	}
}

func TestShopifyClientAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewShopifyClient(core.Scope{ShopURL: server.URL, AccessToken: "bad"}, core.ImporterConfig{}, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Get(context.Background(), "orders", nil)
	if core.Classify(err) != core.ErrorClassAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestShopifyClientRejectsForeignPageURL(t *testing.T) {
	var shopCalls int
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		shopCalls++
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	defer shop.Close()
	var leaked string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked = r.Header.Get(HeaderAccessToken)
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	defer foreign.Close()

	client, err := NewShopifyClient(
		core.Scope{ID: "shop", ShopURL: shop.URL, AccessToken: "shpat_secret"},
		core.ImporterConfig{RatePerSecond: 100, RateBurst: 10},
		http.DefaultClient,
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Get(context.Background(), foreign.URL+"/admin/api/2023-10/orders.json?page_info=abc", nil)
	if core.Classify(err) != core.ErrorClassValidation {
		t.Fatalf("expected validation error for foreign url, got %v", err)
	}
	if leaked != "" {
		t.Fatalf("access token was sent to a foreign host")
	}

	if _, err := client.Get(context.Background(), shop.URL+"/admin/api/2023-10/orders.json?page_info=abc", nil); err != nil {
		t.Fatalf("same-shop page url: %v", err)
	}
	if shopCalls != 1 {
		t.Fatalf("expected one call to the shop, got %d", shopCalls)
	}
}

func TestNewShopifyClientRequiresCredentials(t *testing.T) {
	if _, err := NewShopifyClient(core.Scope{AccessToken: "x"}, core.ImporterConfig{}, nil); err == nil {
		t.Fatalf("expected missing shop url error")
	}
	_, err := NewShopifyClient(core.Scope{ShopURL: "demo.myshopify.com"}, core.ImporterConfig{}, nil)
	if core.Classify(err) != core.ErrorClassAuth {
		t.Fatalf("expected auth error for missing token, got %v", err)
	}
}

func TestShopifyClientHonoursThrottle(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set(ratelimit.HeaderRetryAfter, "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	throttle := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	client, err := NewShopifyClient(
		core.Scope{ShopURL: server.URL, AccessToken: "token"},
		core.ImporterConfig{RatePerSecond: 100, RateBurst: 10},
		server.Client(),
		WithThrottle(throttle),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Get(context.Background(), "orders", nil); core.Classify(err) != core.ErrorClassTransient {
		t.Fatalf("expected transient error on 429, got %v", err)
	}
	_, err = client.Get(context.Background(), "orders", nil)
	var throttled ratelimit.ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error before calling again, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected throttled call to skip the server, got %d hits", hits)
	}
}
