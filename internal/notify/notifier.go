package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ws "github.com/rl-arena/matchmaker/internal/websocket"
)

// EventChannel 매치 이벤트 Redis Pub/Sub 채널
const EventChannel = "arena:match:events"

// Envelope 채널에 실리는 이벤트 봉투
type Envelope struct {
	Type          string          `json:"type"`
	EnvironmentID string          `json:"environment_id"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Publisher 매치 상태 전이 알림. best-effort: 발행 실패는 로깅만 하고
// 스케줄러로 전파하지 않는다.
//
// Redis가 설정되면 채널로만 발행하고 로컬 허브 전달은 Relay가 맡는다
// (자기 발행분도 구독으로 돌아오므로 이중 전달이 없다). Redis가 없는
// 단일 인스턴스 배포에서는 허브로 직접 브로드캐스트한다.
type Publisher struct {
	redis  *redis.Client
	hub    *ws.Hub
	logger *zap.Logger
}

func NewPublisher(redisClient *redis.Client, hub *ws.Hub, logger *zap.Logger) *Publisher {
	return &Publisher{
		redis:  redisClient,
		hub:    hub,
		logger: logger,
	}
}

// MatchCreated 매치 생성 알림
func (p *Publisher) MatchCreated(event MatchCreatedEvent) {
	p.publish(EventMatchCreated, event.EnvironmentID, event)
}

// MatchCompleted 매치 정산 완료 알림
func (p *Publisher) MatchCompleted(event MatchCompletedEvent) {
	p.publish(EventMatchCompleted, event.EnvironmentID, event)
}

func (p *Publisher) publish(eventType, environmentID string, payload interface{}) {
	if p.redis == nil {
		if p.hub != nil {
			p.hub.Broadcast(eventType, environmentID, payload)
		}
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal event payload",
			zap.String("type", eventType), zap.Error(err))
		return
	}

	envelope, err := json.Marshal(Envelope{
		Type:          eventType,
		EnvironmentID: environmentID,
		Payload:       data,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("Failed to marshal event envelope",
			zap.String("type", eventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.redis.Publish(ctx, EventChannel, envelope).Err(); err != nil {
		p.logger.Error("Failed to publish match event",
			zap.String("type", eventType), zap.Error(err))
	}
}
