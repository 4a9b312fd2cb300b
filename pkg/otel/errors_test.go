package otel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type retryable bool

func (r retryable) Error() string   { return "upstream status" }
func (r retryable) Transient() bool { return bool(r) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      string
		wantTransient bool
	}{
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), ErrorTypeCanceled, false},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), ErrorTypeNetwork, true},
		{"transient status", fmt.Errorf("page 2: %w", retryable(true)), ErrorTypeHTTP, true},
		{"permanent status", retryable(false), ErrorTypeHTTP, false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrorTypeNetwork, true},
		{"unknown", errors.New("bad row"), ErrorTypeParse, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotTransient := Classify(tt.err, ErrorTypeParse)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantTransient, gotTransient)
		})
	}
}

func TestFail_RecordsAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "fetch")

	Fail(span, retryable(true), ErrorTypeNetwork)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	attrs := spans[0].Events()[0].Attributes
	assert.Contains(t, attrs, attribute.String("error.type", ErrorTypeHTTP))
	assert.Contains(t, attrs, attribute.Bool("error.transient", true))
}
