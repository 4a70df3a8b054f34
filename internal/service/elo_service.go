package service

import "math"

// ELOService ELO 레이팅 계산 서비스. 순수 함수만 포함한다:
// I/O 없음, 상태 없음, 동일 입력에 대해 결정적.
type ELOService struct{}

// NewELOService ELO 서비스 생성
func NewELOService() *ELOService {
	return &ELOService{}
}

// GetKFactor returns the appropriate K-factor based on the number of matches
// an agent has played. Provisional rating system similar to Kaggle
// competitions:
// - New agents (< 10 matches): K=40 for faster convergence
// - Intermediate agents (10-19 matches): K=32 for moderate adjustment
// - Established agents (>= 20 matches): K=24 for rating stability
func (s *ELOService) GetKFactor(matchCount int) float64 {
	if matchCount < 10 {
		return 40.0 // Provisional rating - faster convergence
	} else if matchCount < 20 {
		return 32.0 // Intermediate - moderate adjustment
	}
	return 24.0 // Established rating - stable
}

// UpdateRatings 매치 결과에 따른 새로운 레이팅 계산.
// score: 1.0 (A 승), 0.5 (무승부), 0.0 (B 승).
// K-factor는 각 에이전트 자신의 매치 수로 결정되며 양쪽이 다를 수 있다.
// 그 경우 양쪽 변동 합이 0이 되지 않는데, 이는 의도된 동작이다
// (신규 에이전트가 더 빨리 수렴한다).
func (s *ELOService) UpdateRatings(
	ratingA float64, matchesA int,
	ratingB float64, matchesB int,
	score float64,
) (newRatingA, newRatingB float64) {
	expectedA := s.expectedScore(ratingA, ratingB)
	expectedB := 1.0 - expectedA

	kA := s.GetKFactor(matchesA)
	kB := s.GetKFactor(matchesB)

	newRatingA = ratingA + kA*(score-expectedA)
	newRatingB = ratingB + kB*((1.0-score)-expectedB)

	return newRatingA, newRatingB
}

// expectedScore ELO에 기반한 기대 승률 계산
func (s *ELOService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
