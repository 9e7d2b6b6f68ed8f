package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"insightquest/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type eventMessage struct {
	Type  events.EventType `json:"type"`
	Event events.Event     `json:"event"`
}

// streamEvents forwards every bus event to the client as one JSON message, in bus order
func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Event stream upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	write := func(messageType int, data any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if messageType == websocket.PingMessage {
			return conn.WriteMessage(websocket.PingMessage, nil)
		}
		return conn.WriteJSON(data)
	}

	unsubscribe := h.events.SubscribeAll(func(_ context.Context, e events.Event) {
		select {
		case <-done:
			return
		default:
		}
		if err := write(websocket.TextMessage, eventMessage{Type: e.Type(), Event: e}); err != nil {
			log.WithFields(log.Fields{
				"eventType": e.Type(),
				"error":     err,
			}).Debug("Event stream write failed")
			stop()
		}
	})
	defer unsubscribe()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					stop()
					return
				}
			}
		}
	}()

	log.WithField("remote", r.RemoteAddr).Info("Event stream opened")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// client messages are ignored; the read only detects close
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	stop()

	log.WithField("remote", r.RemoteAddr).Info("Event stream closed")
}
