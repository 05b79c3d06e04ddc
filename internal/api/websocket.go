package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/agents"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy matches the permissive CORS config above
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSignalStream upgrades the connection and relays agent signals
// from NATS to the websocket client until either side disconnects.
func (s *Server) handleSignalStream(c *gin.Context) {
	if s.natsConn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "signal bus not configured",
		})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close() //nolint:errcheck

	signals := make(chan *agents.Signal, 64)
	sub, err := agents.SubscribeSignals(s.natsConn, func(sig *agents.Signal) {
		select {
		case signals <- sig:
		default:
			// Slow client, drop rather than block the bus callback
		}
	}, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to signal bus")
		return
	}
	defer sub.Unsubscribe() //nolint:errcheck

	log.Info().Str("client", c.ClientIP()).Msg("Signal stream client connected")

	// Reader goroutine detects client disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Info().Str("client", c.ClientIP()).Msg("Signal stream client disconnected")
			return
		case sig := <-signals:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
			if err := conn.WriteJSON(sig); err != nil {
				log.Debug().Err(err).Msg("Signal stream write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
