// Package wsserver serves the HTTP surface: health/config endpoints and the
// WebSocket upgrade that streams topology snapshots, span arrivals, trace
// completions, and stats heartbeats to connected UIs.
package wsserver

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
)

var upgrader = websocket.Upgrader{
	// Origin checking is out of scope: CORS is wide open per the external
	// interface contract, and this service authenticates no one.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the HTTP/WebSocket listener.
type Server struct {
	addr  string
	log   *zap.Logger
	state *appstate.AppState
	srv   *http.Server
}

func New(addr string, state *appstate.AppState, log *zap.Logger) *Server {
	s := &Server{addr: addr, log: log, state: state}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace}),
		handlers.AllowedHeaders([]string{"*"}),
	)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: cors(r),
	}

	return s
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) Addr() string { return s.addr }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	log := s.log.With(zap.String("session_id", sessionID))

	sess := newSession(conn, s.state, log)
	sess.run()
}
