package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"smartattend/internal/countdown"
)

const (
	eventCountdown = "COUNTDOWN"
	eventClosed    = "QR_CLOSED"

	wsWriteWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS middleware
	},
}

type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// qrSocket streams the open QR code's countdown. The stream ends when the
// countdown finishes, the code is closed or the client goes away.
func (s *Server) qrSocket(c *gin.Context) {
	w := workspaceOf(c)
	if _, ok := w.currentModal(); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoModal.Error()})
		return
	}

	ticks, unsubscribe := w.countdown.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "client", w.id, "err", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(m); err != nil {
			s.log.Debug("ws write failed", "client", w.id, "err", err)
			return false
		}
		return true
	}

	poll := s.clock.NewTicker(time.Second)
	defer poll.Stop()

	first := countdown.Tick{Remaining: w.countdown.Remaining(), Done: !w.countdown.Active()}
	if !send(wsMessage{Event: eventCountdown, Data: first}) || first.Done {
		return
	}

	for {
		select {
		case <-gone:
			return
		case t := <-ticks:
			if !send(wsMessage{Event: eventCountdown, Data: t}) || t.Done {
				return
			}
		case <-poll.Chan():
			if _, ok := w.currentModal(); !ok {
				send(wsMessage{Event: eventClosed})
				return
			}
		}
	}
}
