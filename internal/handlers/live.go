package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mytodos/internal/models"
)

const liveWriteTimeout = 10 * time.Second

type liveMessage struct {
	Items []models.Item `json:"items"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// LiveTodos streams the list over a websocket: the current list first,
// then the list after every change, including optimistic changes and
// their rollbacks. A client that falls behind only receives the latest
// list.
func (h *Handlers) LiveTodos(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade", slog.Any("err", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Incoming messages are ignored; reading is how a close is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lists, err := h.engine.Watch(ctx)
	if err != nil {
		h.logger.Error("failed to watch todos", slog.Any("err", err))
		return
	}

	for items := range lists {
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(liveMessage{Items: items}); err != nil {
			h.logger.Debug("live client gone", slog.Any("err", err))
			return
		}
	}
}
