package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultClientTimeout       = 30 * time.Second
	defaultBodyLimit     int64 = 10 << 20
)

type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
	// MaxResponseBodyBytes overrides the adapter limit for one call.
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter runs plain HTTP exchanges and reports failures as go-errors
// envelopes. It does not interpret status codes; see StatusError.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultBodyLimit,
	}
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, transportError("transport: http client is not configured",
			goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	target := map[string]any{"method": httpReq.Method, "url": httpReq.URL.Redacted()}

	started := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: request failed", http.StatusBadGateway, target)
	}
	defer httpRes.Body.Close()

	limit := req.MaxResponseBodyBytes
	if limit <= 0 {
		limit = a.MaxResponseBodyBytes
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		target["status_code"] = httpRes.StatusCode
		return Response{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, target)
	}
	if int64(len(body)) > limit {
		target["status_code"] = httpRes.StatusCode
		target["limit_bytes"] = limit
		return Response{}, transportError(fmt.Sprintf("transport: response body exceeds %d bytes", limit),
			goerrors.CategoryExternal, http.StatusBadGateway, target)
	}

	headers := make(map[string]string, len(httpRes.Header))
	for key, values := range httpRes.Header {
		headers[key] = strings.Join(values, ",")
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    headers,
		Body:       body,
		Duration:   time.Since(started),
	}, nil
}

func (a *RESTAdapter) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return nil, transportError("transport: request url is required",
			goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: invalid request url", http.StatusBadRequest, map[string]any{"url": raw})
	}
	if len(req.Query) > 0 {
		values := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				values.Set(key, strings.TrimSpace(value))
			}
		}
		target.RawQuery = values.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: build request", http.StatusBadRequest, map[string]any{"method": method})
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	return httpReq, nil
}

func setHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}
