package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	fsotel "flightsync/pkg/otel"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RawRow is one element of a provider's result list.
type RawRow struct {
	Fields mxj.Map
	// Raw is the row re-encoded with sorted keys, stable across fetches.
	Raw []byte
}

type JSONParser struct {
	tracer trace.Tracer
}

func NewJSONParser() *JSONParser {
	return &JSONParser{
		tracer: otel.Tracer("json-parser"),
	}
}

// ParsePage decodes a provider page and returns the objects found at
// listPath. A page without the list yields no rows; a provider-reported
// error object is returned as an error.
func (p *JSONParser) ParsePage(ctx context.Context, body []byte, listPath string) ([]RawRow, error) {
	_, span := p.tracer.Start(ctx, "json_parser.parse_page",
		trace.WithAttributes(
			attribute.String("list_path", listPath),
			attribute.Int("json_size_bytes", len(body)),
		),
	)
	defer span.End()

	page, err := mxj.NewMapJson(body)
	if err != nil {
		fsotel.RecordError(span, err, fsotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if msg := providerError(page); msg != "" {
		err := fmt.Errorf("provider returned error: %s", msg)
		fsotel.RecordError(span, err, fsotel.ErrorTypeValidation, false)
		return nil, err
	}

	values, err := page.ValuesForPath(listPath)
	if err != nil {
		fsotel.RecordError(span, err, fsotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to read %s: %w", listPath, err)
	}

	rows := make([]RawRow, 0, len(values))
	for _, v := range values {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		m := mxj.Map(obj)
		raw, err := m.Json()
		if err != nil {
			continue
		}
		rows = append(rows, RawRow{Fields: m, Raw: raw})
	}

	span.SetAttributes(attribute.Int("rows_count", len(rows)))
	return rows, nil
}

func providerError(page mxj.Map) string {
	for _, path := range []string{"error.message", "error.info", "error.code", "message"} {
		if s := stringAt(page, path); s != "" {
			if ok, _ := page.Exists("data"); ok && path == "message" {
				return ""
			}
			return s
		}
	}
	return ""
}

// Str returns the first non-empty string found at any of the paths.
func (r RawRow) Str(paths ...string) string {
	for _, path := range paths {
		if s := stringAt(r.Fields, path); s != "" {
			return s
		}
	}
	return ""
}

// Has reports whether any of the paths holds a non-null object or value.
func (r RawRow) Has(paths ...string) bool {
	for _, path := range paths {
		v, err := r.Fields.ValueForPath(path)
		if err != nil || v == nil {
			continue
		}
		if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
			continue
		}
		return true
	}
	return false
}

func stringAt(m mxj.Map, path string) string {
	v, err := m.ValueForPath(path)
	if err != nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	}
	return ""
}
