package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tickLockKey = "matchmaking:tick"

// TickLock 매칭 틱 리더십. 여러 인스턴스 중 한 인스턴스만 틱을 수행하도록
// 틱마다 분산 락을 잡는다. TTL은 락 소유 인스턴스가 죽었을 때의 안전망이다.
type TickLock struct {
	manager    *RedisLockManager
	instanceID string
	ttl        time.Duration
	logger     *zap.Logger
}

func NewTickLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TickLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &TickLock{
		manager:    NewRedisLockManager(client),
		instanceID: uuid.New().String(),
		ttl:        ttl,
		logger:     logger,
	}
}

// AcquireTick 틱 락 획득 시도. 다른 인스턴스가 잡고 있으면 acquired=false로
// 조용히 돌아간다 (에러가 아니다).
func (t *TickLock) AcquireTick(ctx context.Context) (func(), bool, error) {
	lock, err := t.manager.AcquireLock(ctx, tickLockKey, t.instanceID, t.ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, ErrLockNotHeld) {
			t.logger.Error("Failed to release tick lock", zap.Error(err))
		}
	}

	return release, true, nil
}
