package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/matchmaker/internal/service"
)

type MatchmakingHandler struct {
	mmService *service.MatchmakingService
}

func NewMatchmakingHandler(mmService *service.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{mmService: mmService}
}

// GetEligibility 에이전트의 현재 매치 적격 여부 조회
func (h *MatchmakingHandler) GetEligibility(c *gin.Context) {
	agentID := c.Param("id")

	resp, err := h.mmService.EligibilityFor(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, service.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Agent not found",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to evaluate eligibility",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

type enqueueRequest struct {
	AgentID      string `json:"agentId" binding:"required"`
	SubmissionID string `json:"submissionId"`
}

// Enqueue 에이전트를 매칭 큐에 등록.
// submissionId를 생략하면 에이전트의 active 제출을 쓴다.
func (h *MatchmakingHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	err := h.mmService.Enqueue(c.Request.Context(), req.AgentID, req.SubmissionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAgentNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Agent not found",
			})
		case errors.Is(err, service.ErrAgentNotReady):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Agent has no usable submission",
			})
		case errors.Is(err, service.ErrSubmissionNotBuilt):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Submission is not built yet",
			})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to enqueue agent",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"agentId": req.AgentID,
		"status":  "queued",
	})
}

// Withdraw 큐에서 에이전트 철회
func (h *MatchmakingHandler) Withdraw(c *gin.Context) {
	agentID := c.Param("agentId")

	err := h.mmService.Withdraw(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Agent is not queued",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to withdraw agent",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agentId": agentID,
		"status":  "withdrawn",
	})
}
