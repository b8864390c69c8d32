package scoring

import "github.com/HanTheDev/phish-guard/internal/models"

const (
	highWeight   = 3
	mediumWeight = 1
)

// Weight returns 3 per high-severity finding plus 1 per medium one.
func Weight(findings []models.Finding) int {
	total := 0
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityHigh:
			total += highWeight
		case models.SeverityMedium:
			total += mediumWeight
		}
	}
	return total
}

func FromWeight(total int) models.RiskLevel {
	switch {
	case total >= 9:
		return models.Critical
	case total >= 6:
		return models.High
	case total >= 4:
		return models.Medium
	case total >= 1:
		return models.Low
	default:
		return models.Safe
	}
}

func FromFindings(findings []models.Finding) models.RiskLevel {
	return FromWeight(Weight(findings))
}

// HigherRisk compares by ordinal position, never by name.
func HigherRisk(a, b models.RiskLevel) models.RiskLevel {
	if b > a {
		return b
	}
	return a
}

// MergeHighlights concatenates lists and drops repeated texts, keeping the
// first occurrence.
func MergeHighlights(lists ...[]models.Highlight) []models.Highlight {
	seen := make(map[string]struct{})
	out := []models.Highlight{}
	for _, list := range lists {
		for _, h := range list {
			if _, dup := seen[h.Text]; dup {
				continue
			}
			seen[h.Text] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

func Highlights(findings []models.Finding) []models.Highlight {
	out := make([]models.Highlight, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Highlight())
	}
	return out
}
