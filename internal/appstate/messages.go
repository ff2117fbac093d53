package appstate

// Outbound WebSocket message envelopes. Each carries a literal "type" tag so
// clients can dispatch on a single discriminant field, mirroring the tagged
// enum the reference implementation serializes.

type topologySnapshotMsg struct {
	Type  string     `json:"type"`
	Nodes []NodeView  `json:"nodes"`
	Edges []EdgeView  `json:"edges"`
}

type topologyUpdatedMsg struct {
	Type  string     `json:"type"`
	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

type traceCompletedMsg struct {
	Type  string        `json:"type"`
	Trace TraceComplete `json:"trace"`
}

type statsMsg struct {
	Type            string  `json:"type"`
	TotalTraces     uint64  `json:"total_traces"`
	SpansPerSecond  float64 `json:"spans_per_second"`
	ActiveNodes     int     `json:"active_nodes"`
	Timestamp       uint64  `json:"timestamp"`
}

type spansBatchMsg struct {
	Type  string               `json:"type"`
	Spans []SpanArrivedPayload `json:"spans"`
}

func newTopologySnapshotMsg(nodes []NodeView, edges []EdgeView) topologySnapshotMsg {
	return topologySnapshotMsg{Type: "topology_snapshot", Nodes: nodes, Edges: edges}
}

func newTopologyUpdatedMsg(nodes []NodeView, edges []EdgeView) topologyUpdatedMsg {
	return topologyUpdatedMsg{Type: "topology_updated", Nodes: nodes, Edges: edges}
}

func newTraceCompletedMsg(trace TraceComplete) traceCompletedMsg {
	return traceCompletedMsg{Type: "trace_completed", Trace: trace}
}

func newStatsMsg(totalTraces uint64, spansPerSecond float64, activeNodes int, timestamp uint64) statsMsg {
	return statsMsg{
		Type:           "stats",
		TotalTraces:    totalTraces,
		SpansPerSecond: spansPerSecond,
		ActiveNodes:    activeNodes,
		Timestamp:      timestamp,
	}
}

func newSpansBatchMsg(spans []SpanArrivedPayload) spansBatchMsg {
	return spansBatchMsg{Type: "spans_batch", Spans: spans}
}
