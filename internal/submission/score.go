package submission

// Score bounds. A score inside [MinScore, MaxScore] means accepted, even
// at zero; anything outside means rejected.
const (
	MinScore = 0
	MaxScore = 100
)

// DefaultPointsPerTest matches the observed scoring rule: 4 points per
// correct test case, so a 25-test problem maxes out at 100.
const DefaultPointsPerTest = 4

// ScorePolicy turns a correct-test-case count into a score. The constant
// is deliberately configuration, not an invariant.
type ScorePolicy struct {
	PointsPerTest float64
}

func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{PointsPerTest: DefaultPointsPerTest}
}

func (p ScorePolicy) Score(correctTestCases int64) float64 {
	return float64(correctTestCases) * p.PointsPerTest
}

func (p ScorePolicy) StatusFor(score float64) Status {
	if score < MinScore || score > MaxScore {
		return StatusRejected
	}
	return StatusAccepted
}
