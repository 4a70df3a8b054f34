package api

import (
	"github.com/gin-gonic/gin"

	"github.com/rl-arena/matchmaker/internal/api/handlers"
	"github.com/rl-arena/matchmaker/internal/api/middleware"
	"github.com/rl-arena/matchmaker/internal/config"
	"github.com/rl-arena/matchmaker/internal/service"
	"github.com/rl-arena/matchmaker/internal/websocket"
)

// SetupRouter API 라우터 설정.
// 조회 표면(/api/v1)과 플랫폼 내부 표면(/internal/v1)을 분리한다:
// 큐 등록/철회는 빌드 파이프라인 등 신뢰된 내부 호출자만 쓴다.
func SetupRouter(cfg *config.Config, mmService *service.MatchmakingService, hub *websocket.Hub) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Handler 초기화
	mmHandler := handlers.NewMatchmakingHandler(mmService)
	matchHandler := handlers.NewMatchHandler(mmService)
	leaderboardHandler := handlers.NewLeaderboardHandler(mmService)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// 매치 이벤트 구독
	router.GET("/ws/matches", wsHandler.HandleMatchEvents)

	// API v1 (조회)
	v1 := router.Group("/api/v1")
	{
		agents := v1.Group("/agents")
		{
			agents.GET("/:id/eligibility", mmHandler.GetEligibility)
			agents.GET("/:id/matches", matchHandler.ListMatchesByAgent)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("/:id", matchHandler.GetMatch)
		}

		leaderboard := v1.Group("/leaderboard")
		{
			leaderboard.GET("/:envId", leaderboardHandler.GetLeaderboardByEnvironment)
		}
	}

	// 내부 표면 (빌드 파이프라인 → 큐 등록, 운영 → 철회)
	internal := router.Group("/internal/v1")
	{
		internal.POST("/queue", mmHandler.Enqueue)
		internal.DELETE("/queue/:agentId", mmHandler.Withdraw)
	}

	return router
}
