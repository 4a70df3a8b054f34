package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/matchmaker/internal/service"
)

type LeaderboardHandler struct {
	mmService *service.MatchmakingService
}

func NewLeaderboardHandler(mmService *service.MatchmakingService) *LeaderboardHandler {
	return &LeaderboardHandler{mmService: mmService}
}

// GetLeaderboardByEnvironment 환경별 레이팅 순위
func (h *LeaderboardHandler) GetLeaderboardByEnvironment(c *gin.Context) {
	envID := c.Param("envId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	agents, err := h.mmService.GetLeaderboard(c.Request.Context(), envID, limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Environment is required",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"environmentId": envID,
		"agents":        agents,
		"total":         len(agents),
	})
}
