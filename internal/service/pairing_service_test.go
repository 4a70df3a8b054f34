package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/matchmaker/internal/models"
)

func queuedAgent(id, env string, rating float64) models.QueuedAgent {
	return models.QueuedAgent{
		QueueEntry: models.QueueEntry{
			ID:            "q-" + id,
			AgentID:       id,
			SubmissionID:  "sub-" + id,
			EnvironmentID: env,
			EnqueuedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		Rating: rating,
	}
}

func newPairing() *PairingService {
	return NewPairingService(DefaultPairingConfig(), nil)
}

func TestPairingService_BasicNearestNeighbor(t *testing.T) {
	pairing := newPairing()

	pool := []models.QueuedAgent{
		queuedAgent("c", "pong", 1800),
		queuedAgent("a", "pong", 1200),
		queuedAgent("b", "pong", 1300),
	}

	pairs := pairing.SelectPairs(pool)
	require.Len(t, pairs, 1)

	// A(1200)와 B(1300)가 묶이고 C(1800)는 남는다
	assert.Equal(t, "a", pairs[0].A.AgentID)
	assert.Equal(t, "b", pairs[0].B.AgentID)
	assert.Equal(t, 100.0, pairs[0].RatingGap)
}

func TestPairingService_WindowBoundaryInclusive(t *testing.T) {
	pairing := newPairing()

	// diff == WindowMax는 포함이므로 페어링된다
	pairs := pairing.SelectPairs([]models.QueuedAgent{
		queuedAgent("a", "pong", 1200),
		queuedAgent("b", "pong", 1700),
	})
	require.Len(t, pairs, 1)
	assert.Equal(t, 500.0, pairs[0].RatingGap)

	// diff > WindowMax는 제외되어 아무도 페어링되지 않는다
	pairs = pairing.SelectPairs([]models.QueuedAgent{
		queuedAgent("a", "pong", 1200),
		queuedAgent("b", "pong", 1701),
	})
	assert.Empty(t, pairs)
}

func TestPairingService_EnvironmentPartition(t *testing.T) {
	pairing := newPairing()

	// 같은 레이팅이라도 환경이 다르면 절대 묶이지 않는다
	pool := []models.QueuedAgent{
		queuedAgent("a", "pong", 1200),
		queuedAgent("b", "chess", 1200),
		queuedAgent("c", "chess", 1250),
		queuedAgent("d", "pong", 1210),
	}

	pairs := pairing.SelectPairs(pool)
	require.Len(t, pairs, 2)

	for _, p := range pairs {
		assert.Equal(t, p.A.EnvironmentID, p.B.EnvironmentID)
	}
}

func TestPairingService_NoAgentInTwoPairs(t *testing.T) {
	pairing := newPairing()

	pool := []models.QueuedAgent{
		queuedAgent("a", "pong", 1200),
		queuedAgent("b", "pong", 1210),
		queuedAgent("c", "pong", 1220),
		queuedAgent("d", "pong", 1230),
		queuedAgent("e", "pong", 1240),
	}

	pairs := pairing.SelectPairs(pool)
	require.Len(t, pairs, 2) // 홀수 풀은 정확히 한 명을 남긴다

	seen := make(map[string]bool)
	for _, p := range pairs {
		assert.False(t, seen[p.A.AgentID], "agent %s appears twice", p.A.AgentID)
		assert.False(t, seen[p.B.AgentID], "agent %s appears twice", p.B.AgentID)
		seen[p.A.AgentID] = true
		seen[p.B.AgentID] = true
	}
}

func TestPairingService_Determinism(t *testing.T) {
	pairing := newPairing()

	pool := []models.QueuedAgent{
		queuedAgent("e", "pong", 1500),
		queuedAgent("b", "pong", 1200),
		queuedAgent("a", "pong", 1200),
		queuedAgent("d", "pong", 1450),
		queuedAgent("c", "pong", 1320),
	}

	first := pairing.SelectPairs(pool)

	// 입력 순서를 섞어도 같은 쌍이 나와야 한다
	shuffled := []models.QueuedAgent{pool[3], pool[1], pool[4], pool[0], pool[2]}
	second := pairing.SelectPairs(shuffled)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].A.AgentID, second[i].A.AgentID)
		assert.Equal(t, first[i].B.AgentID, second[i].B.AgentID)
	}
}

func TestPairingService_RatingTieBreakByAgentID(t *testing.T) {
	pairing := newPairing()

	pool := []models.QueuedAgent{
		queuedAgent("z", "pong", 1200),
		queuedAgent("a", "pong", 1200),
		queuedAgent("m", "pong", 1200),
	}

	pairs := pairing.SelectPairs(pool)
	require.Len(t, pairs, 1)

	// 동률은 낮은 agent_id부터 소비된다
	assert.Equal(t, "a", pairs[0].A.AgentID)
	assert.Equal(t, "m", pairs[0].B.AgentID)
}

func TestPairingService_SmallPools(t *testing.T) {
	pairing := newPairing()

	assert.Empty(t, pairing.SelectPairs(nil))
	assert.Empty(t, pairing.SelectPairs([]models.QueuedAgent{
		queuedAgent("a", "pong", 1200),
	}))
}

func TestPairingService_SkipsOutOfWindowAndContinues(t *testing.T) {
	pairing := newPairing()

	// a는 윈도우 안에 아무도 없지만, b와 c는 서로 묶여야 한다
	pool := []models.QueuedAgent{
		queuedAgent("a", "pong", 400),
		queuedAgent("b", "pong", 1500),
		queuedAgent("c", "pong", 1580),
	}

	pairs := pairing.SelectPairs(pool)
	require.Len(t, pairs, 1)
	assert.Equal(t, "b", pairs[0].A.AgentID)
	assert.Equal(t, "c", pairs[0].B.AgentID)
}
