package ingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	otlpTrace "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
	"github.com/jeluard/otel-ui-backend/internal/otlpfixture"
)

func newTestServer() (*TraceServer, *appstate.AppState) {
	state := appstate.New(zap.NewNop())
	return NewTraceServer(state, zap.NewNop()), state
}

// TestExport_ChildBeforeParentInSameBatch exercises scenario S1: a child
// span ordered before its parent within a single export call must still
// resolve its parent edge, because every span in the batch is pre-indexed
// before any span is ingested.
func TestExport_ChildBeforeParentInSameBatch(t *testing.T) {
	srv, state := newTestServer()

	traceID := otlpfixture.GenID(16)
	parentID := otlpfixture.GenID(8)
	childID := otlpfixture.GenID(8)

	req := otlpfixture.Request("svc",
		otlpfixture.Span{TraceID: traceID, SpanID: childID, ParentSpanID: parentID, Name: "query", Target: "db", StartTimeUnixNano: 150, EndTimeUnixNano: 300},
		otlpfixture.Span{TraceID: traceID, SpanID: parentID, Name: "root", Target: "api", StartTimeUnixNano: 100, EndTimeUnixNano: 500},
	)

	_, err := srv.Export(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 2, state.NodeCount())
	require.Equal(t, 1, state.EdgeCount())
	require.Equal(t, uint64(2), state.TotalSpans())

	// the batch's only root span finalized the trace once ingestion completed.
	require.False(t, state.HasInFlight(hex.EncodeToString(traceID)))
	require.Equal(t, uint64(1), state.TotalTraces())
}

// TestExport_SelfEdgeSuppressed exercises scenario S2.
func TestExport_SelfEdgeSuppressed(t *testing.T) {
	srv, state := newTestServer()

	traceID := otlpfixture.GenID(16)
	rootID := otlpfixture.GenID(8)
	nestedID := otlpfixture.GenID(8)

	req := otlpfixture.Request("svc",
		otlpfixture.Span{TraceID: traceID, SpanID: rootID, Name: "recurse", Target: "api", StartTimeUnixNano: 100, EndTimeUnixNano: 400},
		otlpfixture.Span{TraceID: traceID, SpanID: nestedID, ParentSpanID: rootID, Name: "recurse", Target: "api", StartTimeUnixNano: 150, EndTimeUnixNano: 300},
	)

	_, err := srv.Export(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, state.NodeCount())
	require.Equal(t, 0, state.EdgeCount())
}

// TestExport_OrphanChildIngestsWithoutEdge exercises scenario S3: a child
// whose parent never appears in any batch still ingests, with no edge.
func TestExport_OrphanChildIngestsWithoutEdge(t *testing.T) {
	srv, state := newTestServer()

	traceID := otlpfixture.GenID(16)
	req := otlpfixture.Request("svc",
		otlpfixture.Span{TraceID: traceID, SpanID: otlpfixture.GenID(8), ParentSpanID: otlpfixture.GenID(8), Name: "query", Target: "db", StartTimeUnixNano: 100, EndTimeUnixNano: 200},
	)

	_, err := srv.Export(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, state.NodeCount())
	require.Equal(t, 0, state.EdgeCount())
}

// TestExport_OneSpansBatchMessagePerExport exercises invariant #7: a single
// Export call, regardless of how many spans it carries, broadcasts exactly
// one spans_batch message. The same call may also publish topology_updated
// and trace_completed messages, which are not counted here.
func TestExport_OneSpansBatchMessagePerExport(t *testing.T) {
	srv, state := newTestServer()
	sub := state.Hub().Subscribe()
	defer sub.Close()

	traceID := otlpfixture.GenID(16)
	req := otlpfixture.Request("svc",
		otlpfixture.Span{TraceID: traceID, SpanID: otlpfixture.GenID(8), Name: "a", Target: "api", StartTimeUnixNano: 100, EndTimeUnixNano: 200},
		otlpfixture.Span{TraceID: traceID, SpanID: otlpfixture.GenID(8), Name: "b", Target: "api", StartTimeUnixNano: 100, EndTimeUnixNano: 200},
		otlpfixture.Span{TraceID: traceID, SpanID: otlpfixture.GenID(8), Name: "c", Target: "api", StartTimeUnixNano: 100, EndTimeUnixNano: 200},
	)

	_, err := srv.Export(context.Background(), req)
	require.NoError(t, err)

	spansBatches := 0
	for {
		select {
		case msg := <-sub.Messages():
			var env struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(msg, &env))
			if env.Type == "spans_batch" {
				spansBatches++
			}
		default:
			require.Equal(t, 1, spansBatches, "expected exactly one spans_batch message")
			return
		}
	}
}

// TestExport_ErrorStatusMapped exercises scenario S6.
func TestExport_ErrorStatusMapped(t *testing.T) {
	srv, state := newTestServer()
	sub := state.Hub().Subscribe()
	defer sub.Close()

	traceID := otlpfixture.GenID(16)
	req := otlpfixture.Request("svc",
		otlpfixture.Span{TraceID: traceID, SpanID: otlpfixture.GenID(8), Name: "failing_op", Target: "api", Status: otlpTrace.Status_STATUS_CODE_ERROR},
	)

	_, err := srv.Export(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, uint64(1), state.TotalSpans())

	// the spans_batch message is published first and carries the mapped status.
	var batch struct {
		Type  string                        `json:"type"`
		Spans []appstate.SpanArrivedPayload `json:"spans"`
	}
	require.NoError(t, json.Unmarshal(<-sub.Messages(), &batch))
	require.Equal(t, "spans_batch", batch.Type)
	require.Len(t, batch.Spans, 1)
	require.Equal(t, "error", batch.Spans[0].Status)
}
