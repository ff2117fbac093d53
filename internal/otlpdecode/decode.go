// Package otlpdecode turns a decoded OTLP ExportTraceServiceRequest into the
// flat []appstate.SpanEvent batch the ingestor operates on. All decoding
// anomalies (missing attributes, empty target, unrecognized status code)
// are absorbed locally via defaults (service name "unknown", target falling
// back to the scope name and then the span name, status "unset"); nothing
// here ever returns an error to the caller.
package otlpdecode

import (
	"encoding/hex"

	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	otlpCommon "go.opentelemetry.io/proto/otlp/common/v1"
	otlpTrace "go.opentelemetry.io/proto/otlp/trace/v1"
	otlpTraceColl "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
)

var serviceNameKey = string(semconv.ServiceNameKey)

// DecodeBatch flattens every resource/scope group in req into a contiguous
// sequence of SpanEvents, preserving the request's original ordering. This
// is phase 1 of the ingestor's three-phase ExportTrace pipeline.
func DecodeBatch(req *otlpTraceColl.ExportTraceServiceRequest) []appstate.SpanEvent {
	batch := make([]appstate.SpanEvent, 0)

	for _, rs := range req.GetResourceSpans() {
		serviceName := attrString(rs.GetResource().GetAttributes(), serviceNameKey)
		if serviceName == "" {
			serviceName = "unknown"
		}

		for _, ss := range rs.GetScopeSpans() {
			scopeTarget := ss.GetScope().GetName()

			for _, span := range ss.GetSpans() {
				batch = append(batch, decodeSpan(span, scopeTarget, serviceName))
			}
		}
	}

	return batch
}

func decodeSpan(span *otlpTrace.Span, scopeTarget, serviceName string) appstate.SpanEvent {
	traceID := hex.EncodeToString(span.GetTraceId())
	spanID := hex.EncodeToString(span.GetSpanId())

	var parentSpanID string
	if len(span.GetParentSpanId()) > 0 {
		parentSpanID = hex.EncodeToString(span.GetParentSpanId())
	}

	attributes, targetOverride := decodeAttributes(span.GetAttributes())

	target := scopeTarget
	if targetOverride != "" {
		target = targetOverride
	}
	if target == "" {
		target = span.GetName()
	}

	durationMs := clampZero(float64(span.GetEndTimeUnixNano())-float64(span.GetStartTimeUnixNano())) / 1e6

	return appstate.SpanEvent{
		TraceID:           traceID,
		SpanID:            spanID,
		ParentSpanID:      parentSpanID,
		Name:              span.GetName(),
		Target:            target,
		StartTimeUnixNano: span.GetStartTimeUnixNano(),
		EndTimeUnixNano:   span.GetEndTimeUnixNano(),
		DurationMs:        durationMs,
		Status:            mapStatus(span.GetStatus().GetCode()),
		ServiceName:       serviceName,
		Attributes:        attributes,
	}
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func mapStatus(code otlpTrace.Status_StatusCode) string {
	switch code {
	case otlpTrace.Status_STATUS_CODE_OK:
		return "ok"
	case otlpTrace.Status_STATUS_CODE_ERROR:
		return "error"
	default:
		return "unset"
	}
}

// decodeAttributes stringifies every key/value pair in order, and reports
// the value of whichever "target" or "code.namespace" attribute appeared
// last, for the caller to use as a target override.
func decodeAttributes(attrs []*otlpCommon.KeyValue) (pairs []appstate.Attribute, targetOverride string) {
	pairs = make([]appstate.Attribute, 0, len(attrs))
	for _, kv := range attrs {
		val := stringifyValue(kv.GetValue())
		pairs = append(pairs, appstate.Attribute{Key: kv.GetKey(), Value: val})
		if kv.GetKey() == "target" || kv.GetKey() == "code.namespace" {
			targetOverride = val
		}
	}
	return pairs, targetOverride
}

// attrString returns the stringified value of the first attribute matching
// key, or "" if absent.
func attrString(attrs []*otlpCommon.KeyValue, key string) string {
	for _, kv := range attrs {
		if kv.GetKey() == key {
			return stringifyValue(kv.GetValue())
		}
	}
	return ""
}
