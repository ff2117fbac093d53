package appstate

import (
	"sync"
	"sync/atomic"
)

// Attribute is a single stringified span attribute, order-preserved.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SpanEvent is a fully decoded OTLP span, including its attribute list. Full
// spans live in the in-flight store until their trace is finalized; only the
// lightweight SpanArrivedPayload is ever broadcast per-span.
type SpanEvent struct {
	TraceID            string      `json:"trace_id"`
	SpanID             string      `json:"span_id"`
	ParentSpanID       string      `json:"parent_span_id,omitempty"`
	Name               string      `json:"name"`
	Target             string      `json:"target"`
	StartTimeUnixNano  uint64      `json:"start_time_unix_nano"`
	EndTimeUnixNano    uint64      `json:"end_time_unix_nano"`
	DurationMs         float64     `json:"duration_ms"`
	Status             string      `json:"status"`
	ServiceName        string      `json:"service_name"`
	Attributes         []Attribute `json:"attributes"`
}

// SpanArrivedPayload is the wire form broadcast for every ingested span. It
// omits the attribute list and adds the edge derived at ingest time.
type SpanArrivedPayload struct {
	TraceID           string   `json:"trace_id"`
	SpanID            string   `json:"span_id"`
	ParentSpanID      string   `json:"parent_span_id,omitempty"`
	Name              string   `json:"name"`
	Target            string   `json:"target"`
	StartTimeUnixNano uint64   `json:"start_time_unix_nano"`
	EndTimeUnixNano   uint64   `json:"end_time_unix_nano"`
	DurationMs        float64  `json:"duration_ms"`
	Status            string   `json:"status"`
	ServiceName       string   `json:"service_name"`
	FromNode          *string  `json:"from_node,omitempty"`
	ToNode            string   `json:"to_node"`
	EdgeLatencyMs     *float64 `json:"edge_latency_ms,omitempty"`
}

// TraceComplete is the fully assembled view of a finalized trace.
type TraceComplete struct {
	TraceID      string      `json:"trace_id"`
	Spans        []SpanEvent `json:"spans"`
	RootSpanName string      `json:"root_span_name"`
	DurationMs   float64     `json:"duration_ms"`
	StartedAt    uint64      `json:"started_at"`
}

// Node is a topology vertex keyed by "target::name". SpanCount is atomic
// because the pointer is shared across every goroutine that ingests a span
// for this node after its creation.
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Category  string `json:"category"`
	spanCount atomic.Uint64
}

func (n *Node) SpanCount() uint64     { return n.spanCount.Load() }
func (n *Node) incrSpanCount() uint64 { return n.spanCount.Add(1) }

// NodeView is the JSON projection of a Node.
type NodeView struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Category  string `json:"category"`
	SpanCount uint64 `json:"span_count"`
}

func (n *Node) View() NodeView {
	return NodeView{ID: n.ID, Label: n.Label, Category: n.Category, SpanCount: n.SpanCount()}
}

// Edge is a directed topology edge keyed by "source=>target".
type Edge struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	flowCount  atomic.Uint64
}

func (e *Edge) FlowCount() uint64     { return e.flowCount.Load() }
func (e *Edge) incrFlowCount() uint64 { return e.flowCount.Add(1) }

// EdgeView is the JSON projection of an Edge.
type EdgeView struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	FlowCount uint64 `json:"flow_count"`
}

func (e *Edge) View() EdgeView {
	return EdgeView{Source: e.Source, Target: e.Target, FlowCount: e.FlowCount()}
}

// traceBucket holds the in-flight spans for a single trace id. It carries
// its own mutex so concurrent ingests of the same trace never contend with
// ingests of other traces in the same shard.
type traceBucket struct {
	mu    sync.Mutex
	spans map[string]SpanEvent
}
