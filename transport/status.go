package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const maxErrorBodySnippet = 512

// StatusError converts a non-2xx response into a classified error:
// 401 and 403 are auth failures, 429 and 5xx are transient, any other
// status is a validation failure.
func StatusError(res Response, operation string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	metadata := map[string]any{
		"status_code": res.StatusCode,
		"operation":   operation,
	}
	if snippet := bodySnippet(res.Body); snippet != "" {
		metadata["body"] = snippet
	}
	message := fmt.Sprintf("transport: %s returned HTTP %d", operation, res.StatusCode)

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return core.AuthError(message, metadata)
	case res.StatusCode == http.StatusTooManyRequests:
		if retryAfter := headerValue(res.Headers, "Retry-After"); retryAfter != "" {
			metadata["retry_after"] = retryAfter
		}
		return core.TransientNetworkError(nil, message, metadata)
	case res.StatusCode >= 500:
		return core.TransientNetworkError(nil, message, metadata)
	default:
		return core.ValidationError(message, metadata)
	}
}

func bodySnippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodySnippet {
		text = text[:maxErrorBodySnippet]
	}
	return text
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[http.CanonicalHeaderKey(key)]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(existing, key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// HeaderValue reads a response header case-insensitively.
func HeaderValue(headers map[string]string, key string) string {
	return headerValue(headers, key)
}
