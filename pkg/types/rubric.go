package types

// Rubric is a weighted scoring policy applied by reviewers.
type Rubric struct {
	RubricID       string      `yaml:"rubric_id" json:"rubric_id"`
	MinScoreToPass float64     `yaml:"min_score_to_pass" json:"min_score_to_pass"`
	Criteria       []Criterion `yaml:"criteria" json:"criteria"`
}

type Criterion struct {
	CriterionID   string  `yaml:"criterion_id" json:"criterion_id"`
	Weight        float64 `yaml:"weight" json:"weight"`
	PassThreshold float64 `yaml:"pass_threshold" json:"pass_threshold"`
}

type ReviewResult struct {
	ReviewerID string             `json:"reviewer_id"`
	RubricID   string             `json:"rubric_id"`
	Scores     map[string]float64 `json:"scores"`
	TotalScore float64            `json:"total_score"`
	Passed     bool               `json:"passed"`
	Comments   string             `json:"comments,omitempty"`
	CreatedAt  string             `json:"created_at"`
}
