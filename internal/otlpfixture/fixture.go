// Package otlpfixture builds OTLP export requests for tests. It exists so
// that ingest and otlpdecode tests can construct realistic
// ExportTraceServiceRequest payloads without hand-assembling protobuf
// structs span by span.
package otlpfixture

import (
	"crypto/rand"
	"fmt"

	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	otlpCommon "go.opentelemetry.io/proto/otlp/common/v1"
	otlpResource "go.opentelemetry.io/proto/otlp/resource/v1"
	otlpTrace "go.opentelemetry.io/proto/otlp/trace/v1"
	otlpTraceColl "go.opentelemetry.io/proto/otlp/collector/trace/v1"
)

// GenID returns a random trace or span ID of the given byte length. Per the
// W3C trace context spec an all-zero ID is invalid, so the rare all-zero
// draw is nudged to a non-zero value.
func GenID(numBytes int) []byte {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("generate random id: %w", err))
	}

	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		b[0] = 1
	}

	return b
}

// Span describes one span to embed in a built export request.
type Span struct {
	TraceID           []byte
	SpanID            []byte
	ParentSpanID      []byte
	Name              string
	Target            string // emitted as a "target" span attribute, if non-empty
	StartTimeUnixNano uint64
	EndTimeUnixNano   uint64
	Status            otlpTrace.Status_StatusCode
	Attributes        map[string]string
}

// Request builds a single-resource, single-scope ExportTraceServiceRequest
// carrying spans, tagged with serviceName as its resource service.name.
func Request(serviceName string, spans ...Span) *otlpTraceColl.ExportTraceServiceRequest {
	protoSpans := make([]*otlpTrace.Span, 0, len(spans))
	for _, s := range spans {
		protoSpans = append(protoSpans, spanToProto(s))
	}

	return &otlpTraceColl.ExportTraceServiceRequest{
		ResourceSpans: []*otlpTrace.ResourceSpans{
			{
				Resource: &otlpResource.Resource{
					Attributes: []*otlpCommon.KeyValue{stringAttr(string(semconv.ServiceNameKey), serviceName)},
				},
				ScopeSpans: []*otlpTrace.ScopeSpans{
					{
						Scope: &otlpCommon.InstrumentationScope{Name: "otlpfixture"},
						Spans: protoSpans,
					},
				},
			},
		},
	}
}

func spanToProto(s Span) *otlpTrace.Span {
	attrs := make([]*otlpCommon.KeyValue, 0, len(s.Attributes)+1)
	if s.Target != "" {
		attrs = append(attrs, stringAttr("target", s.Target))
	}
	for k, v := range s.Attributes {
		attrs = append(attrs, stringAttr(k, v))
	}

	return &otlpTrace.Span{
		TraceId:           s.TraceID,
		SpanId:            s.SpanID,
		ParentSpanId:      s.ParentSpanID,
		Name:              s.Name,
		StartTimeUnixNano: s.StartTimeUnixNano,
		EndTimeUnixNano:   s.EndTimeUnixNano,
		Status:            &otlpTrace.Status{Code: s.Status},
		Attributes:        attrs,
	}
}

func stringAttr(key, value string) *otlpCommon.KeyValue {
	return &otlpCommon.KeyValue{
		Key:   key,
		Value: &otlpCommon.AnyValue{Value: &otlpCommon.AnyValue_StringValue{StringValue: value}},
	}
}
