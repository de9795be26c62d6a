package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "governance-api/api"
	eventDomain      = "governance"
	observabilityMsg = "observability.event"
	attrPrefix       = "governance."
)

// requestMetrics collects stage timings of one request and reports them as a
// structured log entry and an OpenTelemetry span.
type requestMetrics struct {
	logger     *log.Logger
	name       string
	route      string
	start      time.Time
	span       trace.Span
	stages     map[string]time.Duration
	attrs      map[string]any
	errorStage string
	cause      error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, name, route string) (*requestMetrics, context.Context) {
	m := &requestMetrics{
		logger: logger,
		name:   name,
		route:  route,
		start:  time.Now(),
		stages: make(map[string]time.Duration, 4),
		attrs:  make(map[string]any, 4),
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	m.span = span
	return m, spanCtx
}

// Observe records the duration of a named stage such as auth, load, apply,
// submit or encode.
func (m *requestMetrics) Observe(stage string, d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.stages[stage] += d
}

// Time runs fn and records its duration under stage.
func (m *requestMetrics) Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Observe(stage, time.Since(start))
	return err
}

// Set attaches a request attribute.
func (m *requestMetrics) Set(key string, value any) {
	if m == nil {
		return
	}
	m.attrs[key] = value
}

// Fail marks the stage that failed and the error behind it.
func (m *requestMetrics) Fail(stage string, err error) {
	if m == nil {
		return
	}
	if stage != "" {
		m.errorStage = stage
	}
	if err != nil {
		m.cause = err
	}
}

// Log emits the observability event and ends the span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.cause
	}

	attrs := map[string]any{
		"http.route":            m.route,
		"http.status_code":      status,
		attrPrefix + "total_ms": durationToMillis(time.Since(m.start)),
	}
	for stage, d := range m.stages {
		attrs[attrPrefix+stage+"_ms"] = durationToMillis(d)
	}
	for k, v := range m.attrs {
		attrs[attrPrefix+k] = v
	}
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	severityText, severityNumber := severityForStatus(status, err)
	fields := log.Fields{
		"event.name":      m.name,
		"event.domain":    eventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if sc := m.span.SpanContext(); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}

	kvs := toAttributes(attrs)
	m.span.SetAttributes(kvs...)
	m.span.AddEvent(observabilityMsg, trace.WithAttributes(append(kvs,
		attribute.String("event.name", m.name),
		attribute.String("event.domain", eventDomain),
		attribute.String("severity_text", severityText),
	)...))
	if severityText == "ERROR" {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		if desc == "" {
			desc = "request failed"
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

// severityForStatus maps a response to OpenTelemetry severity text and
// number.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	}
	return "INFO", 9
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
