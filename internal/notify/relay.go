package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ws "github.com/rl-arena/matchmaker/internal/websocket"
)

// Relay Redis 채널을 구독해서 로컬 WebSocket 허브로 중계한다.
// 여러 인스턴스가 떠 있어도 모든 인스턴스의 구독자가 같은 이벤트를 받는다.
type Relay struct {
	client     *redis.Client
	hub        *ws.Hub
	logger     *zap.Logger
	instanceID string

	stopChan  chan struct{}
	cancelSub context.CancelFunc
}

func NewRelay(client *redis.Client, hub *ws.Hub, logger *zap.Logger) *Relay {
	return &Relay{
		client:     client,
		hub:        hub,
		logger:     logger,
		instanceID: uuid.New().String(),
		stopChan:   make(chan struct{}),
	}
}

// Start 수신 루프. 블로킹이므로 고루틴에서 호출한다.
func (r *Relay) Start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	r.cancelSub = cancel

	pubsub := r.client.Subscribe(subCtx, EventChannel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.logger.Info("Match event relay started",
		zap.String("instanceId", r.instanceID),
		zap.String("channel", EventChannel))

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				continue
			}

			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				r.logger.Error("Failed to unmarshal event envelope", zap.Error(err))
				continue
			}

			var payload interface{}
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				r.logger.Error("Failed to unmarshal event payload",
					zap.String("type", envelope.Type), zap.Error(err))
				continue
			}

			r.hub.Broadcast(envelope.Type, envelope.EnvironmentID, payload)

		case <-r.stopChan:
			r.logger.Info("Match event relay stopped")
			return nil

		case <-subCtx.Done():
			return subCtx.Err()
		}
	}
}

// Stop 수신 중지
func (r *Relay) Stop() {
	close(r.stopChan)
	if r.cancelSub != nil {
		r.cancelSub()
	}
}
