package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol is an OTLP transport.
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// Signal is a telemetry signal flightsync exports.
type Signal string

const (
	SignalTraces  Signal = "traces"
	SignalMetrics Signal = "metrics"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultMetricInterval = 60 * time.Second
)

// ExporterConfig is the resolved OTLP exporter setup for one signal.
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// Enabled reports whether export of signal is switched on through
// OTEL_TRACING_ENABLED or OTEL_METRICS_ENABLED. Both are off by default so
// a plain ingest run needs no collector.
func Enabled(signal Signal) bool {
	return env{os.Getenv}.enabled(signal)
}

// ExporterFor resolves the exporter configuration of signal from the
// standard OTEL_EXPORTER_OTLP_* variables. Signal-specific variables win
// over the base ones.
func ExporterFor(signal Signal) ExporterConfig {
	return env{os.Getenv}.exporter(signal)
}

// MetricInterval is the periodic reader interval from
// OTEL_METRIC_EXPORT_INTERVAL (milliseconds or a Go duration).
func MetricInterval() time.Duration {
	return parseDuration(os.Getenv("OTEL_METRIC_EXPORT_INTERVAL"), defaultMetricInterval)
}

// env resolves settings through lookup so tests can supply a map.
type env struct {
	lookup func(string) string
}

func (e env) first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(e.lookup(k)); v != "" {
			return v
		}
	}
	return ""
}

// signalKeys returns the signal-specific and base variable names for suffix.
func signalKeys(signal Signal, suffix string) []string {
	return []string{
		"OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(signal)) + "_" + suffix,
		"OTEL_EXPORTER_OTLP_" + suffix,
	}
}

var enableKeys = map[Signal]string{
	SignalTraces:  "OTEL_TRACING_ENABLED",
	SignalMetrics: "OTEL_METRICS_ENABLED",
}

func (e env) enabled(signal Signal) bool {
	return isTrue(e.first(enableKeys[signal]))
}

func (e env) exporter(signal Signal) ExporterConfig {
	cfg := ExporterConfig{
		Protocol:    parseProtocol(e.first(signalKeys(signal, "PROTOCOL")...)),
		Headers:     parseHeaders(e.first(signalKeys(signal, "HEADERS")...)),
		Timeout:     parseDuration(e.first(signalKeys(signal, "TIMEOUT")...), defaultTimeout),
		Compression: strings.ToLower(e.first(signalKeys(signal, "COMPRESSION")...)),
	}
	cfg.Endpoint = e.endpoint(signal, cfg.Protocol)

	if v := e.first(signalKeys(signal, "INSECURE")...); v != "" {
		cfg.Insecure = isTrue(v)
		return cfg
	}
	// gRPC endpoints lose their scheme in normalization, so look at the raw value.
	raw := e.first(signalKeys(signal, "ENDPOINT")...)
	switch {
	case cfg.Protocol == ProtocolGRPC:
		cfg.Insecure = raw == "" || strings.HasPrefix(raw, "http://")
	default:
		cfg.Insecure = strings.HasPrefix(cfg.Endpoint, "http://")
	}
	return cfg
}

// endpoint picks the signal endpoint as given, else the base endpoint with
// /v1/<signal> appended for HTTP, else the local collector default.
func (e env) endpoint(signal Signal, protocol Protocol) string {
	keys := signalKeys(signal, "ENDPOINT")
	if v := e.first(keys[0]); v != "" {
		return normalizeEndpoint(v, protocol)
	}
	if v := e.first(keys[1]); v != "" {
		return withSignalPath(normalizeEndpoint(v, protocol), signal, protocol)
	}
	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(signal)
}

func parseProtocol(s string) Protocol {
	switch Protocol(strings.ToLower(s)) {
	case ProtocolGRPC:
		return ProtocolGRPC
	case ProtocolHTTPJSON:
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// normalizeEndpoint reduces gRPC endpoints to host:port and gives HTTP
// endpoints a scheme.
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return u.Host
		}
		host, _, _ := strings.Cut(endpoint, "/")
		return host
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "https://" + endpoint
	}
	return endpoint
}

func withSignalPath(endpoint string, signal Signal, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}
	suffix := "/v1/" + string(signal)
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + suffix
	}
	if !strings.HasSuffix(u.Path, suffix) {
		u.Path = strings.TrimSuffix(u.Path, "/") + suffix
	}
	return u.String()
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseHeaders reads "k1=v1,k2=v2". Values keep everything after the first
// '=' so base64 credentials survive.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = value
		slog.Debug("Parsed OTLP header", "key", key, "value_length", len(value))
	}
	return headers
}

// parseDuration accepts Go durations and the plain milliseconds the OTel
// environment conventions use.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
