package otel

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Values of the error.type span attribute.
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeHTTP       = "http"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
	ErrorTypeConfig     = "config"
	ErrorTypeStore      = "store"
	ErrorTypeCanceled   = "canceled"
)

// Transient is implemented by errors that know whether a retry could succeed,
// such as provider status errors.
type Transient interface {
	Transient() bool
}

// Classify derives the error.type and retryability of err. Errors it cannot
// place get fallback and are treated as permanent.
func Classify(err error, fallback string) (string, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled, false
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeNetwork, true
	}

	var t Transient
	if errors.As(err, &t) {
		return ErrorTypeHTTP, t.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork, true
	}
	return fallback, false
}

// RecordError records err on span with error.type and error.transient
// attributes and marks the span failed.
func RecordError(span trace.Span, err error, errorType string, transient bool) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.Bool("error.transient", transient),
	))
	span.SetStatus(codes.Error, err.Error())
}

// Fail is RecordError with the type and retryability taken from Classify.
func Fail(span trace.Span, err error, fallback string) {
	errorType, transient := Classify(err, fallback)
	RecordError(span, err, errorType, transient)
}

// SetSpanOk marks span as successfully completed.
func SetSpanOk(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
