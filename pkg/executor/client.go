package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rl-arena/matchmaker/pkg/logger"
)

// Match execution statuses reported by the executor service.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// Client 원격 매치 실행 서비스 HTTP 클라이언트.
// 실행 자체는 외부 샌드박스의 책임이고, 여기서는 단일 RunMatch 호출을
// 바운디드 타임아웃 동기 호출로 모델링한다.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient Executor 클라이언트 생성. timeout은 매치 실행 시간 + 여유분.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AgentRef 실행에 필요한 에이전트 참조
type AgentRef struct {
	AgentID      string `json:"agentId"`
	SubmissionID string `json:"submissionId"`
	Name         string `json:"name,omitempty"`
}

// RunMatchRequest Executor에 보낼 요청
type RunMatchRequest struct {
	MatchID       string   `json:"matchId"`
	EnvironmentID string   `json:"environmentId"`
	AgentA        AgentRef `json:"agentA"`
	AgentB        AgentRef `json:"agentB"`
	TimeoutSec    int      `json:"timeoutSec,omitempty"`
}

// RunMatchResponse Executor로부터 받는 응답
type RunMatchResponse struct {
	MatchID      string  `json:"matchId"`
	Status       string  `json:"status"` // "completed", "failed", "timeout"
	WinnerID     string  `json:"winnerId,omitempty"`
	ScoreA       float64 `json:"scoreA"`
	ScoreB       float64 `json:"scoreB"`
	DurationMs   int64   `json:"durationMs"`
	ErrorMessage string  `json:"error,omitempty"`
}

// RunMatch 매치 실행 요청. 호출은 executor가 종료 상태를 보고하거나
// ctx/클라이언트 타임아웃이 만료될 때까지 블록된다.
func (c *Client) RunMatch(ctx context.Context, req RunMatchRequest) (*RunMatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/matches/run"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Info("Sending match execution request to executor",
		"matchId", req.MatchID,
		"environment", req.EnvironmentID,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("executor returned status %d: %s", resp.StatusCode, string(data))
	}

	var result RunMatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode executor response: %w", err)
	}

	logger.Info("Match execution finished",
		"matchId", result.MatchID,
		"status", result.Status,
		"durationMs", result.DurationMs,
	)

	return &result, nil
}

// HealthCheck Executor 상태 확인
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executor health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("executor is not healthy: status %d", resp.StatusCode)
	}

	return nil
}
