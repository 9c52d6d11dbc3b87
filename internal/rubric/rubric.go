package rubric

import "github.com/provara/provara/pkg/types"

// Evaluate scores a reviewer's submission against a weighted rubric.
// A criterion with no submitted score counts as 0. Any criterion below
// its pass threshold fails the review outright, regardless of the
// weighted aggregate; so does a normalized total below MinScoreToPass.
// The result is immutable once produced.
func Evaluate(rubric types.Rubric, scores map[string]float64, reviewerID, comments, createdAt string) types.ReviewResult {
	passed := true
	weightedSum := 0.0
	totalWeight := 0.0

	for _, criterion := range rubric.Criteria {
		score := scores[criterion.CriterionID]
		if score < criterion.PassThreshold {
			passed = false
		}
		weightedSum += score * criterion.Weight
		totalWeight += criterion.Weight
	}

	normalized := 0.0
	if totalWeight > 0 {
		normalized = weightedSum / totalWeight
	}
	if normalized < rubric.MinScoreToPass {
		passed = false
	}

	submitted := make(map[string]float64, len(scores))
	for id, score := range scores {
		submitted[id] = score
	}

	return types.ReviewResult{
		ReviewerID: reviewerID,
		RubricID:   rubric.RubricID,
		Scores:     submitted,
		TotalScore: normalized,
		Passed:     passed,
		Comments:   comments,
		CreatedAt:  createdAt,
	}
}
