package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl-arena/matchmaker/internal/api"
	"github.com/rl-arena/matchmaker/internal/config"
	"github.com/rl-arena/matchmaker/internal/models"
	"github.com/rl-arena/matchmaker/internal/notify"
	"github.com/rl-arena/matchmaker/internal/repository"
	"github.com/rl-arena/matchmaker/internal/service"
	"github.com/rl-arena/matchmaker/internal/websocket"
	"github.com/rl-arena/matchmaker/pkg/database"
	"github.com/rl-arena/matchmaker/pkg/distributed"
	"github.com/rl-arena/matchmaker/pkg/executor"
	"github.com/rl-arena/matchmaker/pkg/logger"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting matchmaker",
		"port", cfg.Port,
		"env", cfg.Env,
		"interval", cfg.MatchmakingInterval,
	)

	// 데이터베이스 연결
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	// Redis 연결 (선택). 없으면 단일 인스턴스 모드:
	// 틱 락 없이 돌고 이벤트는 로컬 허브로만 나간다.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid Redis URL", "error", err)
		}
		redisClient = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		cancel()
		defer redisClient.Close()

		logger.Info("Redis connection established")
	}

	// WebSocket Hub
	hub := websocket.NewHub(logger.L())
	go hub.Run()

	// 이벤트 발행자 + (Redis가 있으면) 중계
	publisher := notify.NewPublisher(redisClient, hub, logger.L())

	var relay *notify.Relay
	if redisClient != nil {
		relay = notify.NewRelay(redisClient, hub, logger.L())
		go func() {
			if err := relay.Start(context.Background()); err != nil && err != context.Canceled {
				logger.Error("Match event relay exited", "error", err)
			}
		}()
	}

	// Repository
	agentRepo := repository.NewAgentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	statsRepo := repository.NewUsageStatsRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)

	// 도메인 서비스
	guard := service.NewRateLimitGuard(models.RateLimitConfig{
		DailyMatchLimit: cfg.DailyMatchLimit,
		MatchCooldown:   cfg.MatchCooldown,
	})
	pairing := service.NewPairingService(service.PairingConfig{
		WindowMin:  cfg.RatingWindowMin,
		WindowMax:  cfg.RatingWindowMax,
		WindowStep: cfg.RatingWindowStep,
	}, logger.L())
	elo := service.NewELOService()

	executorClient := executor.NewClient(cfg.ExecutorURL, cfg.MatchTimeout)
	dispatcher := service.NewDispatchService(executorClient, cfg.MatchTimeout, logger.L())

	// 틱 리더십 (Redis가 있을 때만)
	var tickLocker service.TickLocker
	if redisClient != nil {
		tickLocker = distributed.NewTickLock(redisClient, cfg.MatchmakingInterval, logger.L())
	}

	scheduler := service.NewMatchmakingScheduler(
		queueRepo, matchRepo, settlementRepo, statsRepo, agentRepo,
		guard, pairing, elo, dispatcher, publisher, tickLocker,
		logger.L(),
		service.SchedulerConfig{
			Interval:            cfg.MatchmakingInterval,
			DispatchConcurrency: cfg.DispatchConcurrency,
			AutoRequeue:         cfg.AutoRequeue,
			InfraRetryBackoff:   cfg.InfraRetryBackoff,
		},
	)

	// 재기동 복구: queued 매치 재개, running 매치 실패 처리
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if err := scheduler.Recover(recoverCtx); err != nil {
		cancelRecover()
		logger.Fatal("Failed to recover unsettled matches", "error", err)
	}
	cancelRecover()

	scheduler.Start()

	// HTTP 표면
	mmService := service.NewMatchmakingService(
		agentRepo, submissionRepo, queueRepo, matchRepo, agentRepo,
		statsRepo, guard, logger.L(),
	)
	router := api.SetupRouter(cfg, mmService, hub)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 진행 중인 디스패치가 정산될 때까지 기다린 뒤 HTTP를 닫는다
	scheduler.Stop()
	if relay != nil {
		relay.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
