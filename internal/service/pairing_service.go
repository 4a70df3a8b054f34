package service

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/rl-arena/matchmaker/internal/models"
)

// PairingConfig 레이팅 근접 윈도우 정책.
// 윈도우는 Min에서 시작해 상대를 찾지 못하면 Step씩 Max까지 넓어진다.
// 경계는 포함(diff <= window)이다.
type PairingConfig struct {
	WindowMin  float64
	WindowMax  float64
	WindowStep float64
}

// DefaultPairingConfig documented ±100–500 window, expanding in steps of 100.
func DefaultPairingConfig() PairingConfig {
	return PairingConfig{
		WindowMin:  100,
		WindowMax:  500,
		WindowStep: 100,
	}
}

// PairingService eligible pool에서 겹치지 않는 상대 쌍을 고르는 순수 로직.
// 결정적이다: 동일한 풀과 동일한 레이팅에 대해 항상 같은 쌍을 만든다.
type PairingService struct {
	config PairingConfig
	logger *zap.Logger
}

// NewPairingService pairing service 생성
func NewPairingService(config PairingConfig, logger *zap.Logger) *PairingService {
	if config.WindowStep <= 0 {
		config.WindowStep = 100
	}
	if config.WindowMax < config.WindowMin {
		config.WindowMax = config.WindowMin
	}
	return &PairingService{config: config, logger: logger}
}

// SelectPairs 환경별로 분할한 뒤 각 분할에서 greedy nearest-neighbor 페어링.
// 가장 낮은 레이팅의 미페어 에이전트부터, 윈도우 안에서 가장 가까운 상대와
// 묶는다. 윈도우 안에 상대가 없는 에이전트는 그대로 남아 다음 틱을 기다린다.
func (s *PairingService) SelectPairs(pool []models.QueuedAgent) []models.Pair {
	byEnv := make(map[string][]models.QueuedAgent)
	for _, agent := range pool {
		byEnv[agent.EnvironmentID] = append(byEnv[agent.EnvironmentID], agent)
	}

	// 환경 순서도 결정적으로
	envs := make([]string, 0, len(byEnv))
	for env := range byEnv {
		envs = append(envs, env)
	}
	sort.Strings(envs)

	var pairs []models.Pair
	for _, env := range envs {
		pairs = append(pairs, s.pairEnvironment(byEnv[env])...)
	}

	return pairs
}

func (s *PairingService) pairEnvironment(partition []models.QueuedAgent) []models.Pair {
	if len(partition) < 2 {
		return nil
	}

	// 레이팅 오름차순, 동률이면 낮은 agent_id 우선
	sort.Slice(partition, func(i, j int) bool {
		if partition[i].Rating != partition[j].Rating {
			return partition[i].Rating < partition[j].Rating
		}
		return partition[i].AgentID < partition[j].AgentID
	})

	paired := make([]bool, len(partition))
	var pairs []models.Pair

	for i := range partition {
		if paired[i] {
			continue
		}

		j, gap := s.findOpponentWithExpandingWindow(partition, paired, i)
		if j < 0 {
			// 이번 틱에는 상대가 없다. 에러가 아니며 풀에 남는다.
			continue
		}

		paired[i] = true
		paired[j] = true
		pairs = append(pairs, models.Pair{
			A:         partition[i],
			B:         partition[j],
			RatingGap: gap,
		})
	}

	return pairs
}

// findOpponentWithExpandingWindow 레이팅 윈도우를 넓혀가며 i의 상대 찾기.
// i가 미페어 중 최저 레이팅이므로, 가장 가까운 후보는 정렬 순서상 다음
// 미페어 에이전트다. 항상 최소 diff 후보를 먼저 집는다.
func (s *PairingService) findOpponentWithExpandingWindow(
	partition []models.QueuedAgent,
	paired []bool,
	i int,
) (int, float64) {
	nearest := -1
	for j := i + 1; j < len(partition); j++ {
		if !paired[j] {
			nearest = j
			break
		}
	}
	if nearest < 0 {
		return -1, 0
	}

	gap := math.Abs(partition[nearest].Rating - partition[i].Rating)

	for window := s.config.WindowMin; window <= s.config.WindowMax; window += s.config.WindowStep {
		if gap <= window {
			if s.logger != nil && window > s.config.WindowMin {
				s.logger.Debug("Paired with widened rating window",
					zap.String("agent", partition[i].AgentID),
					zap.String("opponent", partition[nearest].AgentID),
					zap.Float64("gap", gap),
					zap.Float64("window", window))
			}
			return nearest, gap
		}
	}

	return -1, 0
}
