// Package ingest wires the OTLP TraceService gRPC server to AppState: decode
// the export request into a flat batch, pre-index every span id before any
// span is ingested, ingest the whole batch, broadcast it as one message,
// maybe broadcast a topology delta, then finalize any traces that just
// received their root span.
package ingest

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	otlpTraceColl "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
	"github.com/jeluard/otel-ui-backend/internal/otlpdecode"
)

// TraceServer implements the OTLP TraceServiceServer interface over a
// shared AppState.
type TraceServer struct {
	otlpTraceColl.UnimplementedTraceServiceServer

	state *appstate.AppState
	log   *zap.Logger
}

func NewTraceServer(state *appstate.AppState, log *zap.Logger) *TraceServer {
	return &TraceServer{state: state, log: log}
}

// Export implements the three-phase ingestion pipeline. It never returns an
// error to the caller — OTLP exporters own their own retry policy and this
// service is a sink; malformed input is absorbed via defaults in decode.
func (t *TraceServer) Export(ctx context.Context, req *otlpTraceColl.ExportTraceServiceRequest) (*otlpTraceColl.ExportTraceServiceResponse, error) {
	batch := otlpdecode.DecodeBatch(req)

	// Phase 2: pre-index the whole batch before any span in it is ingested.
	// Children close before their parents in most exporters, so without
	// this pass a child's parent edge would never resolve.
	for _, span := range batch {
		t.state.IndexSpan(span)
	}

	// Phase 3: ingest, batched broadcast, throttled topology, finalize.
	payloads := make([]appstate.SpanArrivedPayload, 0, len(batch))
	rootTraceIDs := make([]string, 0)
	for _, span := range batch {
		if span.ParentSpanID == "" {
			rootTraceIDs = append(rootTraceIDs, span.TraceID)
		}
		payloads = append(payloads, t.state.IngestSpan(span))
	}

	t.state.BroadcastSpans(payloads)
	t.state.MaybeBroadcastTopology(time.Now())

	for _, traceID := range rootTraceIDs {
		t.state.FinalizeTrace(traceID)
	}

	return &otlpTraceColl.ExportTraceServiceResponse{}, nil
}

// Server runs the gRPC listener for the TraceService.
type Server struct {
	addr string
	log  *zap.Logger
	srv  *grpc.Server
}

func NewServer(addr string, traceServer otlpTraceColl.TraceServiceServer, log *zap.Logger) *Server {
	srv := grpc.NewServer()
	otlpTraceColl.RegisterTraceServiceServer(srv, traceServer)
	return &Server{addr: addr, log: log, srv: srv}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.srv.Serve(lis); err != nil {
			s.log.Error("OTLP gRPC server error", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Stop() {
	s.srv.GracefulStop()
}

func (s *Server) Addr() string { return s.addr }
