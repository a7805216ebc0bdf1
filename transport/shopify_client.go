package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"golang.org/x/time/rate"
)

const (
	HeaderAccessToken     = "X-Shopify-Access-Token"
	defaultShopifyVersion = "2023-10"
	defaultShopifyTimeout = 30 * time.Second
	defaultShopifyRate    = 2
	defaultShopifyBurst   = 4
)

// ShopifyClient issues Admin REST calls for one shop. Calls are throttled
// client side and every request carries its own timeout.
type ShopifyClient struct {
	rest       *RESTAdapter
	limiter    *rate.Limiter
	baseURL    string
	token      string
	apiVersion string
	timeout    time.Duration
	throttle   Throttle
	shop       string
}

// Throttle tracks the server-reported call budget of a shop.
// *ratelimit.AdaptivePolicy satisfies it.
type Throttle interface {
	Wait(ctx context.Context, key string) error
	AfterCall(ctx context.Context, key string, statusCode int, headers map[string]string) error
}

type ClientOption func(*ShopifyClient)

// WithThrottle shares throttle state across the clients of a shop.
func WithThrottle(throttle Throttle) ClientOption {
	return func(c *ShopifyClient) {
		c.throttle = throttle
	}
}

func NewShopifyClient(scope core.Scope, cfg core.ImporterConfig, client HTTPDoer, opts ...ClientOption) (*ShopifyClient, error) {
	base := shopBaseURL(scope.ShopURL)
	if base == "" {
		return nil, core.ValidationError("transport: shop url is required", map[string]any{"scope": scope.ID})
	}
	if strings.TrimSpace(scope.AccessToken) == "" {
		return nil, core.AuthError("transport: access token is required", map[string]any{"scope": scope.ID})
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultShopifyVersion
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultShopifyTimeout
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultShopifyRate
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultShopifyBurst
	}
	rest := NewRESTAdapter(client)
	rest.DefaultHeaders["Accept"] = "application/json"
	c := &ShopifyClient{
		rest:       rest,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		baseURL:    base,
		token:      strings.TrimSpace(scope.AccessToken),
		apiVersion: version,
		timeout:    timeout,
		shop:       base,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ResourceURL returns the Admin API URL of a resource collection such as
// "products" or "orders".
func (c *ShopifyClient) ResourceURL(resource string) string {
	return c.baseURL + "/admin/api/" + c.apiVersion + "/" + strings.Trim(strings.TrimSpace(resource), "/") + ".json"
}

// Get fetches target, which is either a resource name or an absolute URL
// taken from a pagination link. Non-2xx replies are returned as classified
// errors.
func (c *ShopifyClient) Get(ctx context.Context, target string, query map[string]string) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.ResourceURL(target)
	} else if !sameOrigin(target, c.baseURL) {
		return Response{}, core.ValidationError("transport: url is outside the shop", map[string]any{"url": stripQuery(target), "shop": c.baseURL})
	}
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx, c.shop); err != nil {
			return Response{}, err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, core.TransientNetworkError(err, "transport: shopify rate limiter", map[string]any{"url": target})
	}
	res, err := c.rest.Do(ctx, Request{
		Method:  http.MethodGet,
		URL:     target,
		Query:   query,
		Headers: map[string]string{HeaderAccessToken: c.token},
		Timeout: c.timeout,
	})
	if err != nil {
		return Response{}, err
	}
	if c.throttle != nil {
		if err := c.throttle.AfterCall(ctx, c.shop, res.StatusCode, res.Headers); err != nil {
			return res, err
		}
	}
	if err := StatusError(res, "GET "+stripQuery(target)); err != nil {
		return res, err
	}
	return res, nil
}

func shopBaseURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// sameOrigin reports whether target has the scheme and host of base.
func sameOrigin(target, base string) bool {
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(t.Scheme, b.Scheme) && strings.EqualFold(t.Host, b.Host) && t.User == nil
}

func stripQuery(target string) string {
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		return target[:idx]
	}
	return target
}
