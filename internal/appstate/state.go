// Package appstate holds the shared, concurrent store that backs the OTLP
// ingestion pipeline: the topology graph (nodes/edges), in-flight traces,
// the span lookup indexes used to resolve parent edges, and the broadcast
// hub that fans state changes out to WebSocket subscribers.
package appstate

import (
	"encoding/json"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeluard/otel-ui-backend/internal/ratetracker"
)

// AppState is the shared store. Every field that can be mutated
// concurrently is either a sharded map or an atomic counter; there is no
// process-wide lock anywhere in this type.
type AppState struct {
	log *zap.Logger

	nodes          *shardedMap[*Node]
	edges          *shardedMap[*Edge]
	inFlight       *shardedMap[*traceBucket]
	spanNameIndex  *shardedMap[string]
	spanStartIndex *shardedMap[uint64]

	totalSpans  atomic.Uint64
	totalTraces atomic.Uint64
	lastTopoMs  atomic.Int64

	hub  *Hub
	rate *ratetracker.Tracker
}

// New builds an empty AppState.
func New(log *zap.Logger) *AppState {
	return &AppState{
		log:            log,
		nodes:          newShardedMap[*Node](defaultShardCount),
		edges:          newShardedMap[*Edge](defaultShardCount),
		inFlight:       newShardedMap[*traceBucket](defaultShardCount),
		spanNameIndex:  newShardedMap[string](defaultShardCount),
		spanStartIndex: newShardedMap[uint64](defaultShardCount),
		hub:            NewHub(),
		rate:           ratetracker.New(),
	}
}

// Hub exposes the broadcast hub for WebSocket sessions to subscribe to.
func (s *AppState) Hub() *Hub { return s.hub }

func nodeID(target, name string) string {
	return target + "::" + name
}

func edgeKey(fromNodeID, toNodeID string) string {
	return fromNodeID + "=>" + toNodeID
}

// deriveLabel takes the last "::"-segment of name, splits it on "_", title
// cases each word, and joins with spaces.
func deriveLabel(name string) string {
	segments := strings.Split(name, "::")
	last := segments[len(segments)-1]
	words := strings.Split(last, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// IndexSpan records span_id → node id and span_id → start time for this
// span. It must be called for every span in a batch before any span in
// that batch is ingested (phase 2 of the ingestor), so that a child
// arriving before its parent can still resolve the parent's edge once the
// parent is itself indexed.
func (s *AppState) IndexSpan(span SpanEvent) {
	s.spanNameIndex.Set(span.SpanID, nodeID(span.Target, span.Name))
	s.spanStartIndex.Set(span.SpanID, span.StartTimeUnixNano)
}

// IngestSpan records a single decoded span: creates or updates its node,
// resolves and upserts its parent edge if known, and inserts the full span
// into the in-flight store for its trace. Returns the lightweight payload
// to broadcast.
func (s *AppState) IngestSpan(span SpanEvent) SpanArrivedPayload {
	s.totalSpans.Add(1)

	id := nodeID(span.Target, span.Name)
	node, created := s.nodes.GetOrCreate(id, func() *Node {
		n := &Node{ID: id, Label: deriveLabel(span.Name), Category: span.Target}
		n.spanCount.Store(1)
		return n
	})
	if !created {
		node.incrSpanCount()
	}

	var fromNode *string
	var edgeLatencyMs *float64

	if span.ParentSpanID != "" {
		if parentNodeID, ok := s.spanNameIndex.Get(span.ParentSpanID); ok {
			fn := parentNodeID
			fromNode = &fn
		}
		if parentStart, ok := s.spanStartIndex.Get(span.ParentSpanID); ok {
			lat := clampZero(float64(span.StartTimeUnixNano)-float64(parentStart)) / 1e6
			edgeLatencyMs = &lat
		}
	}

	if fromNode != nil && *fromNode != id {
		key := edgeKey(*fromNode, id)
		edge, created := s.edges.GetOrCreate(key, func() *Edge {
			e := &Edge{Source: *fromNode, Target: id}
			e.flowCount.Store(1)
			return e
		})
		if !created {
			edge.incrFlowCount()
		}
	}

	bucket, _ := s.inFlight.GetOrCreate(span.TraceID, func() *traceBucket {
		return &traceBucket{spans: make(map[string]SpanEvent)}
	})
	bucket.mu.Lock()
	bucket.spans[span.SpanID] = span
	bucket.mu.Unlock()

	return SpanArrivedPayload{
		TraceID:           span.TraceID,
		SpanID:            span.SpanID,
		ParentSpanID:      span.ParentSpanID,
		Name:              span.Name,
		Target:            span.Target,
		StartTimeUnixNano: span.StartTimeUnixNano,
		EndTimeUnixNano:   span.EndTimeUnixNano,
		DurationMs:        span.DurationMs,
		Status:            span.Status,
		ServiceName:       span.ServiceName,
		FromNode:          fromNode,
		ToNode:            id,
		EdgeLatencyMs:     edgeLatencyMs,
	}
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// BroadcastSpans serializes and publishes one spans_batch message for an
// entire export call's worth of payloads.
func (s *AppState) BroadcastSpans(payloads []SpanArrivedPayload) {
	if len(payloads) == 0 {
		return
	}
	s.publish(newSpansBatchMsg(payloads))
}

// MaybeBroadcastTopology publishes a topology_updated snapshot if at least
// 500ms have elapsed since the last one.
func (s *AppState) MaybeBroadcastTopology(now time.Time) {
	nowMs := now.UnixMilli()
	last := s.lastTopoMs.Load()
	if nowMs-last < 500 {
		return
	}
	s.lastTopoMs.Store(nowMs)

	nodes, edges := s.topologyViews()
	s.publish(newTopologyUpdatedMsg(nodes, edges))
}

func (s *AppState) topologyViews() ([]NodeView, []EdgeView) {
	nodeVals := s.nodes.Values()
	edgeVals := s.edges.Values()
	nodes := make([]NodeView, len(nodeVals))
	for i, n := range nodeVals {
		nodes[i] = n.View()
	}
	edges := make([]EdgeView, len(edgeVals))
	for i, e := range edgeVals {
		edges[i] = e.View()
	}
	return nodes, edges
}

// FinalizeTrace removes trace_id from the in-flight store (if present),
// prunes its span indexes, and broadcasts the assembled trace_completed
// event. Returns false if the trace was not in flight.
func (s *AppState) FinalizeTrace(traceID string) bool {
	bucket, ok := s.inFlight.Delete(traceID)
	if !ok {
		return false
	}

	bucket.mu.Lock()
	spans := make([]SpanEvent, 0, len(bucket.spans))
	for _, sp := range bucket.spans {
		spans = append(spans, sp)
	}
	bucket.mu.Unlock()

	for _, sp := range spans {
		s.spanNameIndex.Delete(sp.SpanID)
		s.spanStartIndex.Delete(sp.SpanID)
	}

	sort.Slice(spans, func(i, j int) bool {
		return spans[i].StartTimeUnixNano < spans[j].StartTimeUnixNano
	})

	s.totalTraces.Add(1)

	var startedAt, endedAt uint64
	rootSpanName := ""
	if len(spans) > 0 {
		startedAt = spans[0].StartTimeUnixNano
	}
	for _, sp := range spans {
		if sp.EndTimeUnixNano > endedAt {
			endedAt = sp.EndTimeUnixNano
		}
		if rootSpanName == "" && sp.ParentSpanID == "" {
			rootSpanName = sp.Name
		}
	}
	durationMs := 0.0
	if endedAt > startedAt {
		durationMs = float64(endedAt-startedAt) / 1e6
	}

	trace := TraceComplete{
		TraceID:      traceID,
		Spans:        spans,
		RootSpanName: rootSpanName,
		DurationMs:   durationMs,
		StartedAt:    startedAt,
	}
	s.publish(newTraceCompletedMsg(trace))
	return true
}

// CleanupStaleTraces finalizes every in-flight trace whose representative
// span (the first one read back from its per-trace bucket — map iteration
// order is unspecified, but in-flight traces accumulate forward in time so
// any member is a reasonable witness) started before now-maxAge.
func (s *AppState) CleanupStaleTraces(maxAge time.Duration, now time.Time) int {
	cutoffNs := uint64(0)
	if cutoff := now.Add(-maxAge).UnixNano(); cutoff > 0 {
		cutoffNs = uint64(cutoff)
	}

	stale := make([]string, 0)
	for _, e := range s.inFlight.Entries() {
		bucket := e.Value
		bucket.mu.Lock()
		isStale := true
		for _, sp := range bucket.spans {
			isStale = sp.StartTimeUnixNano < cutoffNs
			break
		}
		bucket.mu.Unlock()
		if isStale {
			stale = append(stale, e.Key)
		}
	}

	for _, traceID := range stale {
		s.log.Debug("evicting stale in-flight trace", zap.String("trace_id", traceID))
		s.FinalizeTrace(traceID)
	}
	return len(stale)
}

// GetTopologySnapshot serializes the current topology as a
// topology_snapshot message.
func (s *AppState) GetTopologySnapshot() []byte {
	nodes, edges := s.topologyViews()
	return s.encode(newTopologySnapshotMsg(nodes, edges))
}

// StatsSnapshot serializes a stats heartbeat message.
func (s *AppState) StatsSnapshot(now time.Time) []byte {
	total := s.totalSpans.Load()
	spansPerSecond := s.rate.Rate(now, total)
	msg := newStatsMsg(s.totalTraces.Load(), spansPerSecond, s.nodes.Len(), uint64(now.UnixMilli()))
	return s.encode(msg)
}

func (s *AppState) encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to serialize outbound message", zap.Error(err))
		return nil
	}
	return b
}

func (s *AppState) publish(v any) {
	b := s.encode(v)
	if b == nil {
		return
	}
	s.hub.Publish(b)
}

// TotalSpans and TotalTraces expose the raw ingestion counters, used by
// tests asserting the sum-of-node / sum-of-edge invariants.
func (s *AppState) TotalSpans() uint64  { return s.totalSpans.Load() }
func (s *AppState) TotalTraces() uint64 { return s.totalTraces.Load() }

// NodeSpanCount and EdgeFlowCount are test/inspection helpers.
func (s *AppState) NodeSpanCount(id string) (uint64, bool) {
	n, ok := s.nodes.Get(id)
	if !ok {
		return 0, false
	}
	return n.SpanCount(), true
}

func (s *AppState) EdgeFlowCount(key string) (uint64, bool) {
	e, ok := s.edges.Get(key)
	if !ok {
		return 0, false
	}
	return e.FlowCount(), true
}

func (s *AppState) HasInFlight(traceID string) bool {
	_, ok := s.inFlight.Get(traceID)
	return ok
}

func (s *AppState) NodeCount() int { return s.nodes.Len() }
func (s *AppState) EdgeCount() int { return s.edges.Len() }
