package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Hub 매치 이벤트 WebSocket 브로드캐스트.
// 구독자는 익명이며 연결 시 발급되는 client id로 구분된다. 구독자가
// environment 필터를 걸면 해당 환경의 이벤트만 받는다.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message 허브가 구독자에게 내려보내는 이벤트 봉투
type Message struct {
	// EnvironmentID 라우팅용 (빈 문자열이면 전체 브로드캐스트)
	EnvironmentID string      `json:"-"`
	Type          string      `json:"type"`
	Payload       interface{} `json:"payload"`
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run Hub 실행
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	h.logger.Info("WebSocket client registered",
		zap.String("clientId", client.id),
		zap.String("environmentFilter", client.environmentID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.id]; exists {
		delete(h.clients, client.id)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("clientId", client.id),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.environmentID != "" && client.environmentID != message.EnvironmentID {
			continue
		}

		select {
		case client.send <- message:
		default:
			// 밀린 구독자는 끊는다
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("clientId", client.id))
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// Broadcast 이벤트를 구독자에게 전송. environmentID가 빈 문자열이면 전체.
func (h *Hub) Broadcast(msgType, environmentID string, payload interface{}) {
	h.broadcast <- &Message{
		EnvironmentID: environmentID,
		Type:          msgType,
		Payload:       payload,
	}
}
