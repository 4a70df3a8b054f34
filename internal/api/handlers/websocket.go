package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/rl-arena/matchmaker/internal/websocket"
)

type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleMatchEvents 매치 이벤트 구독.
// ?environment= 쿼리로 특정 환경만 구독할 수 있다.
func (h *WebSocketHandler) HandleMatchEvents(c *gin.Context) {
	environmentID := c.Query("environment")
	websocket.ServeWs(h.hub, c.Writer, c.Request, environmentID)
}
