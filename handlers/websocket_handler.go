package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/ladder-system/live"
	"github.com/Dosada05/ladder-system/services"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin.
		return true
	},
}

type WebSocketHandler struct {
	hub            *live.Hub
	sessionService services.SessionService
}

func NewWebSocketHandler(hub *live.Hub, ss services.SessionService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		sessionService: ss,
	}
}

// ServeWs подключает клиента к комнате сессии: /ws/sessions/{sessionID}.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if _, err := h.sessionService.GetByID(r.Context(), sessionID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP-ошибку клиенту.
		slog.Warn("failed to upgrade websocket connection",
			slog.Int("session_id", sessionID),
			slog.Any("error", err),
		)
		return
	}

	h.hub.Join(sessionID, conn)
}
