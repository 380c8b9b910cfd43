// Package scoring derives a project's security posture from its raw
// findings. It is deliberately pure: identical finding sets always produce
// identical output, and nothing in here touches the database.
package scoring

import "github.com/calebfinn/sitewarden/internal/database"

// Ratings are the fine-grained letter grade shown next to a project.
const (
	RatingA = "A"
	RatingB = "B"
	RatingC = "C"
	RatingD = "D"
	RatingF = "F"
)

// Statuses are the coarse dashboard badge. They cut the same score at
// different points than the rating on purpose; do not merge the two.
const (
	StatusSecure     = "secure"
	StatusWarning    = "warning"
	StatusVulnerable = "vulnerable"
)

// Stats is the computed posture for one set of findings.
type Stats struct {
	Score  int    `json:"score"`
	Rating string `json:"rating"`
	Status string `json:"status"`
}

// Penalty is the score deduction for a single finding of the given
// severity. Unknown severities deduct nothing.
func Penalty(severity string) int {
	switch severity {
	case database.SeverityCritical:
		return 15
	case database.SeverityHigh:
		return 10
	case database.SeverityMedium:
		return 5
	case database.SeverityLow:
		return 2
	default:
		return 0
	}
}

// Compute maps a finding set to its score, rating, and status. The score
// starts at 100 and each finding deducts its severity penalty, clamped to
// [0, 100]. Order of the input does not matter.
func Compute(findings []database.Finding) Stats {
	score := 100
	for _, f := range findings {
		score -= Penalty(f.Severity)
	}
	if score < 0 {
		score = 0
	}

	return Stats{
		Score:  score,
		Rating: rating(score),
		Status: status(score),
	}
}

func rating(score int) string {
	switch {
	case score >= 90:
		return RatingA
	case score >= 80:
		return RatingB
	case score >= 70:
		return RatingC
	case score >= 60:
		return RatingD
	default:
		return RatingF
	}
}

func status(score int) string {
	switch {
	case score > 80:
		return StatusSecure
	case score > 60:
		return StatusWarning
	default:
		return StatusVulnerable
	}
}

// CountBySeverity tallies findings per severity for summary displays.
func CountBySeverity(findings []database.Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
