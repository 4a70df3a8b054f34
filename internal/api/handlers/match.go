package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/matchmaker/internal/service"
)

type MatchHandler struct {
	mmService *service.MatchmakingService
}

func NewMatchHandler(mmService *service.MatchmakingService) *MatchHandler {
	return &MatchHandler{mmService: mmService}
}

// GetMatch 매치 단건 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id := c.Param("id")

	match, err := h.mmService.GetMatch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get match",
		})
		return
	}

	c.JSON(http.StatusOK, match)
}

// ListMatchesByAgent 에이전트의 매치 이력 조회 (최신순)
func (h *MatchHandler) ListMatchesByAgent(c *gin.Context) {
	agentID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	matches, err := h.mmService.ListAgentMatches(c.Request.Context(), agentID, limit)
	if err != nil {
		if errors.Is(err, service.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Agent not found",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list matches",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agentId": agentID,
		"matches": matches,
		"total":   len(matches),
	})
}
