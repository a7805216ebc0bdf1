package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const (
	HeaderHMAC        = "X-Shopify-Hmac-Sha256"
	HeaderTopic       = "X-Shopify-Topic"
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderWebhookID   = "X-Shopify-Webhook-Id"
	HeaderTriggeredAt = "X-Shopify-Triggered-At"
)

// DefaultReplayWindow is the tolerance used when replay checks are enabled
// without an explicit window.
const DefaultReplayWindow = 5 * time.Minute

// Sign returns the base64 encoded HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates body under secret. An empty
// secret or a malformed signature never verifies.
func Verify(body []byte, signature string, secret string) bool {
	if secret == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

type ShopifyVerifier struct {
	Secret          string
	AllowUnverified bool
	// ReplayWindow enables the X-Shopify-Triggered-At freshness check when
	// positive.
	ReplayWindow time.Duration
	Now          func() time.Time
}

// NewShopifyVerifier builds a verifier from the scope settings.
func NewShopifyVerifier(scope core.Scope, replayWindow time.Duration) ShopifyVerifier {
	return ShopifyVerifier{
		Secret:          strings.TrimSpace(scope.WebhookSecret),
		AllowUnverified: scope.AllowUnverified,
		ReplayWindow:    replayWindow,
	}
}

func (v ShopifyVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		if v.AllowUnverified {
			return nil
		}
		return core.AuthError("webhooks: no webhook secret configured and unverified deliveries are not allowed",
			map[string]any{"scope": req.Scope})
	}

	signature := headerValue(req.Headers, HeaderHMAC)
	if signature == "" {
		return core.AuthError("webhooks: "+HeaderHMAC+" header is required", map[string]any{"scope": req.Scope})
	}
	if !Verify(req.Body, signature, secret) {
		return core.AuthError("webhooks: signature verification failed", map[string]any{"scope": req.Scope})
	}
	return v.checkReplayWindow(req)
}

func (v ShopifyVerifier) checkReplayWindow(req core.InboundRequest) error {
	if v.ReplayWindow <= 0 {
		return nil
	}
	triggered := headerValue(req.Headers, HeaderTriggeredAt)
	if triggered == "" {
		return nil
	}
	triggeredAt, err := time.Parse(time.RFC3339Nano, triggered)
	if err != nil {
		return core.ValidationError("webhooks: parse "+HeaderTriggeredAt+": "+err.Error(), nil)
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	window := v.ReplayWindow
	delta := now.Sub(triggeredAt.UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return core.AuthError("webhooks: webhook trigger time outside replay window", map[string]any{
			"scope":        req.Scope,
			"triggered_at": triggered,
		})
	}
	return nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
