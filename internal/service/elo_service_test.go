package service

import (
	"math"
	"testing"
)

func TestELOService_GetKFactor(t *testing.T) {
	eloService := NewELOService()

	tests := []struct {
		name       string
		matchCount int
		expectedK  float64
	}{
		{"brand new agent - 0 matches", 0, 40.0},
		{"new agent - 5 matches", 5, 40.0},
		{"last provisional match - 9 matches", 9, 40.0},
		{"first intermediate match - 10 matches", 10, 32.0},
		{"mid intermediate - 15 matches", 15, 32.0},
		{"last intermediate match - 19 matches", 19, 32.0},
		{"first established match - 20 matches", 20, 24.0},
		{"veteran - 100 matches", 100, 24.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualK := eloService.GetKFactor(tt.matchCount)
			if actualK != tt.expectedK {
				t.Errorf("GetKFactor(%d) = %v, want %v", tt.matchCount, actualK, tt.expectedK)
			}
		})
	}
}

func TestELOService_UpdateRatings_EqualOpponents(t *testing.T) {
	eloService := NewELOService()

	// 두 신규 에이전트(K=40)이 1200에서 맞붙으면 기대 승률은 정확히 0.5 이므로
	// 승자는 +K*0.5, 패자는 -K*0.5 만큼 움직인다.
	newA, newB := eloService.UpdateRatings(1200, 0, 1200, 0, 1.0)
	if newA != 1220 {
		t.Errorf("winner rating = %v, want 1220", newA)
	}
	if newB != 1180 {
		t.Errorf("loser rating = %v, want 1180", newB)
	}

	// 동일 레이팅, 동일 K의 무승부는 아무것도 바꾸지 않는다
	newA, newB = eloService.UpdateRatings(1200, 0, 1200, 0, 0.5)
	if newA != 1200 || newB != 1200 {
		t.Errorf("draw between equals changed ratings: %v / %v", newA, newB)
	}
}

func TestELOService_UpdateRatings_TieredKFactors(t *testing.T) {
	eloService := NewELOService()

	tests := []struct {
		name          string
		ratingA       float64
		ratingB       float64
		matchesA      int
		matchesB      int
		score         float64
		expectedDiffA float64 // exact expected change for agent A
		expectedDiffB float64
	}{
		{
			name:    "provisional beats established at equal rating",
			ratingA: 1200, ratingB: 1200,
			matchesA: 5, matchesB: 50,
			score:         1.0,
			expectedDiffA: 20,  // K=40 * (1 - 0.5)
			expectedDiffB: -12, // K=24 * (0 - 0.5)
		},
		{
			name:    "established beats provisional at equal rating",
			ratingA: 1200, ratingB: 1200,
			matchesA: 50, matchesB: 5,
			score:         1.0,
			expectedDiffA: 12,
			expectedDiffB: -20,
		},
		{
			name:    "provisional loses to established",
			ratingA: 1200, ratingB: 1200,
			matchesA: 5, matchesB: 50,
			score:         0.0,
			expectedDiffA: -20,
			expectedDiffB: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newA, newB := eloService.UpdateRatings(
				tt.ratingA, tt.matchesA,
				tt.ratingB, tt.matchesB,
				tt.score,
			)

			diffA := newA - tt.ratingA
			diffB := newB - tt.ratingB

			if math.Abs(diffA-tt.expectedDiffA) > 1e-9 {
				t.Errorf("agent A change = %v, want %v", diffA, tt.expectedDiffA)
			}
			if math.Abs(diffB-tt.expectedDiffB) > 1e-9 {
				t.Errorf("agent B change = %v, want %v", diffB, tt.expectedDiffB)
			}

			// 서로 다른 K 구간에서는 합이 0이 아니다. 이것은 버그가 아니라
			// provisional 에이전트가 더 빨리 움직이게 하는 설계다.
			if tt.matchesA != tt.matchesB && diffA+diffB == 0 {
				t.Errorf("expected non-zero-sum update with mixed K-factors, got %v and %v", diffA, diffB)
			}
		})
	}
}

func TestELOService_UpdateRatings_ExpectedScore(t *testing.T) {
	eloService := NewELOService()

	// 400점 차이에서 강자의 기대 승률은 1/(1+10^-1) ≈ 0.909...
	newHigh, newLow := eloService.UpdateRatings(1600, 50, 1200, 50, 1.0)

	expectedHigh := 1.0 / (1.0 + math.Pow(10, (1200.0-1600.0)/400.0))
	wantHighGain := 24.0 * (1.0 - expectedHigh)
	wantLowLoss := 24.0 * (0.0 - (1.0 - expectedHigh))

	if math.Abs((newHigh-1600)-wantHighGain) > 1e-9 {
		t.Errorf("favourite gain = %v, want %v", newHigh-1600, wantHighGain)
	}
	if math.Abs((newLow-1200)-wantLowLoss) > 1e-9 {
		t.Errorf("underdog loss = %v, want %v", newLow-1200, wantLowLoss)
	}
}
