// Package loki ships ingest cycle summaries to a Loki push endpoint so
// cycle health can be queried next to the application logs.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"flightsync/pkg/metrics"
	"flightsync/pkg/otel"
	"flightsync/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const pushPath = "/loki/api/v1/push"

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// StatusError is a non-2xx answer from Loki.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("Loki returned status %d", e.Code)
	}
	return fmt.Sprintf("Loki returned status %d: %s", e.Code, e.Body)
}

// Transient reports whether resending the same push may succeed.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// NewClient returns a client for the Loki instance at baseURL. Basic auth is
// used only when both username and password are set.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		tracer:   gotel.Tracer("loki-client"),
	}
}

// dateLine is the per-date breakdown pushed next to the cycle line.
type dateLine struct {
	Kind    string `json:"kind"`
	CycleID string `json:"cycle_id"`
	Date    string `json:"date"`
	types.DateCounts
}

// SendCycleSummary pushes one line for the cycle and one per ingested date.
func (c *Client) SendCycleSummary(ctx context.Context, summary *types.CycleSummary) (err error) {
	ctx, span := c.tracer.Start(ctx, "loki.send_cycle_summary",
		trace.WithAttributes(
			attribute.String("cycle_id", summary.CycleID),
			attribute.Int("dates_count", len(summary.PerDate)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordLokiSend(ctx, time.Since(start), err == nil)
	}()

	stream, err := cycleStream(summary)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return err
	}
	span.SetAttributes(attribute.Int("log_lines_count", len(stream.Values)))

	if err := c.push(ctx, span, PushRequest{Streams: []Stream{stream}}); err != nil {
		return err
	}
	otel.SetSpanOk(span)
	return nil
}

// cycleStream renders summary as one stream. Timestamps start at the cycle
// end and step by a nanosecond per line, since Loki drops identical
// timestamps within a stream.
func cycleStream(summary *types.CycleSummary) (Stream, error) {
	ts := summary.StartedAt.Add(summary.Duration).UnixNano()
	stream := Stream{
		Stream: map[string]string{
			"job":     "flightsync",
			"service": "ingest",
			"dry_run": strconv.FormatBool(summary.DryRun),
		},
	}
	add := func(v any) error {
		line, err := json.Marshal(v)
		if err != nil {
			return err
		}
		stamp := strconv.FormatInt(ts+int64(len(stream.Values)), 10)
		stream.Values = append(stream.Values, []string{stamp, string(line)})
		return nil
	}

	if err := add(struct {
		Kind string `json:"kind"`
		*types.CycleSummary
	}{Kind: "cycle", CycleSummary: summary}); err != nil {
		return Stream{}, fmt.Errorf("failed to marshal cycle summary: %w", err)
	}

	dates := make([]string, 0, len(summary.PerDate))
	for d := range summary.PerDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		line := dateLine{Kind: "date", CycleID: summary.CycleID, Date: d, DateCounts: *summary.PerDate[d]}
		if err := add(line); err != nil {
			return Stream{}, fmt.Errorf("failed to marshal date %s: %w", d, err)
		}
	}
	return stream, nil
}

func (c *Client) push(ctx context.Context, span trace.Span, body PushRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	target := c.baseURL + pushPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeConfig, false)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", otel.ServiceName+"/"+otel.Version)

	auth := c.username != "" && c.password != ""
	if auth {
		req.SetBasicAuth(c.username, c.password)
	}
	span.SetAttributes(
		attribute.String("http.url", target),
		attribute.Bool("auth.enabled", auth),
		attribute.Int("request.size_bytes", len(payload)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		otel.Fail(span, err, otel.ErrorTypeNetwork)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(reason))}
		otel.Fail(span, err, otel.ErrorTypeHTTP)
		return err
	}
	return nil
}
