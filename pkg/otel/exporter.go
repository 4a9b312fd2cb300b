package otel

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewTraceExporter builds the OTLP span exporter described by cfg. Both
// HTTP protocols use the protobuf HTTP client.
func NewTraceExporter(ctx context.Context, cfg ExporterConfig) (*otlptrace.Exporter, error) {
	if cfg.Protocol == ProtocolGRPC {
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
			otlptracegrpc.WithHeaders(cfg.Headers),
			otlptracegrpc.WithDialOption(dialOptions(cfg)...),
		}
		if cfg.gzip() {
			opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
		}
		return otlptracegrpc.New(ctx, opts...)
	}

	host, path, err := cfg.httpTarget()
	if err != nil {
		return nil, err
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithTimeout(cfg.Timeout),
		otlptracehttp.WithHeaders(cfg.Headers),
	}
	if path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(path))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.gzip() {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
	}
	return otlptracehttp.New(ctx, opts...)
}

// NewMetricExporter builds the OTLP metric exporter described by cfg.
func NewMetricExporter(ctx context.Context, cfg ExporterConfig) (sdkmetric.Exporter, error) {
	if cfg.Protocol == ProtocolGRPC {
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithTimeout(cfg.Timeout),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
			otlpmetricgrpc.WithDialOption(dialOptions(cfg)...),
		}
		if cfg.gzip() {
			opts = append(opts, otlpmetricgrpc.WithCompressor("gzip"))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}

	host, path, err := cfg.httpTarget()
	if err != nil {
		return nil, err
	}
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(host),
		otlpmetrichttp.WithTimeout(cfg.Timeout),
		otlpmetrichttp.WithHeaders(cfg.Headers),
	}
	if path != "" {
		opts = append(opts, otlpmetrichttp.WithURLPath(path))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if cfg.gzip() {
		opts = append(opts, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func dialOptions(cfg ExporterConfig) []grpc.DialOption {
	opts := []grpc.DialOption{grpc.WithUserAgent(ServiceName + "/" + Version)}
	if cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return opts
}

func (c ExporterConfig) gzip() bool {
	return c.Compression == "gzip"
}

// httpTarget splits an HTTP endpoint into the host:port and path the OTLP
// HTTP clients take separately. An empty path keeps the client default.
func (c ExporterConfig) httpTarget() (string, string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid OTLP endpoint %q: %w", c.Endpoint, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid OTLP endpoint %q: missing host", c.Endpoint)
	}
	return u.Host, u.Path, nil
}
