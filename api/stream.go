package api

import (
	"errors"
	"net/http"
	"time"

	"monitor/logger"
	"monitor/query"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream handles GET /api/metrics/stream. The client first receives
// the latest stored snapshot (when there is one), then every snapshot
// stored while the connection is open.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.log)
	if s.feed == nil {
		s.respondError(w, r, http.StatusServiceUnavailable, errors.New("live stream unavailable"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	snaps, cancel := s.feed.Subscribe()
	defer cancel()
	streamClients.Inc()
	defer streamClients.Dec()

	// The client never sends anything meaningful; reading is how close
	// frames and pongs get processed.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// The subscription is taken first, so the latest snapshot may also
	// arrive on the feed.
	var sentID int64
	if latest, err := s.queries.Latest(r.Context()); err == nil {
		if err := writeJSON(conn, latest); err != nil {
			return
		}
		sentID = latest.ID
	} else if !errors.Is(err, query.ErrNoData) {
		log.Warn("could not load latest snapshot for stream", zap.Error(err))
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if sentID != 0 && snap.ID == sentID {
				continue
			}
			if err := writeJSON(conn, snap); err != nil {
				log.Debug("stream client gone", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
