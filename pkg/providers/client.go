package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"flightsync/pkg/cache"
	"flightsync/pkg/metrics"
	fsotel "flightsync/pkg/otel"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "flightsync/1.0.0"

// StatusError is a non-200 provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Transient reports whether the same request may succeed later.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// HTTPClient performs GET requests against a provider API with tracing,
// a bounded timeout and an optional response cache.
type HTTPClient struct {
	httpClient *http.Client
	provider   string
	headers    map[string]string
	cache      *cache.ResponseCache
	tracer     trace.Tracer
}

func NewHTTPClient(provider string, timeout time.Duration, headers map[string]string, responses *cache.ResponseCache) *HTTPClient {
	// Create HTTP client with OpenTelemetry instrumentation
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}

	return &HTTPClient{
		httpClient: client,
		provider:   provider,
		headers:    headers,
		cache:      responses,
		tracer:     otel.Tracer(provider + "-client"),
	}
}

// SetTransport replaces the underlying transport.
func (c *HTTPClient) SetTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// Get fetches endpoint with query params and returns the body. Non-200
// responses are errors carrying the status and body.
func (c *HTTPClient) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "provider.get",
		trace.WithAttributes(
			attribute.String("provider", c.provider),
			attribute.String("api.endpoint", endpoint),
		),
	)
	defer span.End()

	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	cacheKey := c.provider + " " + target
	if body, ok := c.cache.Get(cacheKey); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return body, nil
	}

	span.SetAttributes(
		attribute.String("http.url", redact(endpoint, params)),
		attribute.String("http.method", "GET"),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		fsotel.RecordError(span, err, fsotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		fsotel.Fail(span, err, fsotel.ErrorTypeNetwork)
		metrics.RecordProviderRequest(ctx, c.provider, 0, time.Since(start))
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("http.response.content_type", resp.Header.Get("Content-Type")),
	)
	metrics.RecordProviderRequest(ctx, c.provider, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fsotel.RecordError(span, err, fsotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Provider: c.provider, Code: resp.StatusCode, Body: truncate(body, 256)}
		fsotel.Fail(span, err, fsotel.ErrorTypeHTTP)
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.size_bytes", len(body)))
	fsotel.SetSpanOk(span)

	c.cache.Set(cacheKey, body)
	return body, nil
}

var secretParams = []string{"access_key", "api_key", "token"}

// redact drops credentials from a URL before it is recorded.
func redact(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	clean := url.Values{}
	for k, v := range params {
		clean[k] = v
	}
	for _, k := range secretParams {
		if clean.Has(k) {
			clean.Set(k, "REDACTED")
		}
	}
	return endpoint + "?" + clean.Encode()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
