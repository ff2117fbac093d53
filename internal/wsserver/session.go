package wsserver

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeluard/otel-ui-backend/internal/appstate"
)

const statsHeartbeatInterval = 2 * time.Second

// session runs the per-client loop: initial snapshot, forwarded broadcast
// events, a periodic stats heartbeat, and inbound control frames. Sessions
// never mutate shared state — they only read snapshots and drain the hub.
type session struct {
	conn  *websocket.Conn
	state *appstate.AppState
	log   *zap.Logger
}

func newSession(conn *websocket.Conn, state *appstate.AppState, log *zap.Logger) *session {
	return &session{conn: conn, state: state, log: log}
}

func (s *session) run() {
	defer s.conn.Close()

	if err := s.conn.WriteMessage(websocket.TextMessage, s.state.GetTopologySnapshot()); err != nil {
		return
	}

	sub := s.state.Hub().Subscribe()
	defer sub.Close()

	stop := make(chan struct{})
	defer close(stop)

	inbound := make(chan []byte)
	inboundDone := make(chan struct{})
	go s.readLoop(inbound, inboundDone, stop)

	heartbeat := time.NewTicker(statsHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case msg := <-sub.Messages():
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case n := <-sub.Lagged():
			s.log.Debug("websocket client lagged", zap.Uint64("count", n))

		case <-heartbeat.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, s.state.StatsSnapshot(time.Now())); err != nil {
				return
			}

		case text, ok := <-inbound:
			if !ok {
				return
			}
			if strings.TrimSpace(string(text)) == "topology" {
				if err := s.conn.WriteMessage(websocket.TextMessage, s.state.GetTopologySnapshot()); err != nil {
					return
				}
			}

		case <-inboundDone:
			return
		}
	}
}

// readLoop drains inbound frames. Only text frames are forwarded to
// inbound; binary/ping/pong frames are silently ignored. A close frame or
// read error closes inboundDone, terminating the session.
func (s *session) readLoop(inbound chan<- []byte, done chan<- struct{}, stop <-chan struct{}) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			close(done)
			return
		}
		if mt == websocket.TextMessage {
			select {
			case inbound <- data:
			case <-stop:
				return
			}
		}
	}
}
