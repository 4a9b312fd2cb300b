package otel

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const ServiceName = "flightsync"

// Version is stamped at build time:
//
//	go build -ldflags="-X flightsync/pkg/otel.Version=1.2.3"
var Version = "dev"

var component atomic.Value

// SetComponent names the subcommand this process runs (ingest or serve).
// It becomes the flightsync.component resource attribute.
func SetComponent(name string) {
	component.Store(name)
}

// Component returns the name set by SetComponent, or "cli".
func Component() string {
	if name, ok := component.Load().(string); ok && name != "" {
		return name
	}
	return "cli"
}

// NewResource describes this process to both the tracer and meter
// providers. OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES still apply.
func NewResource() (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace(envOr("OTEL_SERVICE_NAMESPACE", ServiceName)),
			semconv.ServiceInstanceID(instanceID()),
			semconv.DeploymentEnvironment(envOr("OTEL_DEPLOYMENT_ENVIRONMENT", "production")),
			semconv.ProcessRuntimeName("go"),
			semconv.ProcessRuntimeVersion(runtime.Version()),
			attribute.String("flightsync.component", Component()),
		),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// instanceID prefers OTEL_SERVICE_INSTANCE_ID, then the hostname, so each
// container reports separately.
func instanceID() string {
	if id := os.Getenv("OTEL_SERVICE_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "/" + Component()
	}
	return fmt.Sprintf("%s-%s-%d", ServiceName, Component(), os.Getpid())
}
