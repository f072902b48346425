package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleStream pushes the market-data payload over a websocket right after
// the upgrade and then every stream interval. Pushes read the cache only.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r)
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log.Info("stream opened")

	// The read loop only services control frames; it ends when the peer
	// closes or stops answering pings.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(s.quotesResponse(s.svc.GetCachedQuotes(), "Market data update"))
	}
	if err := push(); err != nil {
		log.WithError(err).Debug("stream write failed")
		return
	}

	updates := time.NewTicker(s.opts.StreamInterval)
	defer updates.Stop()
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-closed:
			log.Info("stream closed by client")
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-updates.C:
			if err := push(); err != nil {
				log.WithError(err).Debug("stream write failed")
				return
			}
		case <-pings.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.WithError(err).Debug("stream ping failed")
				return
			}
		}
	}
}
