package llm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HanTheDev/phish-guard/internal/models"
)

var ErrInvalidVerdict = errors.New("invalid classifier verdict")

type rawHighlight struct {
	Text   *string `json:"text"`
	Reason *string `json:"reason"`
}

type rawVerdict struct {
	Score      *string         `json:"score"`
	Highlights *[]rawHighlight `json:"highlights"`
	Summary    *string         `json:"summary"`
}

// ParseVerdict decodes the analyze_phishing arguments and rejects anything
// missing a required field or carrying an unknown score.
func ParseVerdict(arguments string) (*models.AnalysisResult, error) {
	var raw rawVerdict
	if err := json.Unmarshal([]byte(arguments), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if raw.Score == nil {
		return nil, fmt.Errorf("%w: missing score", ErrInvalidVerdict)
	}
	if raw.Highlights == nil {
		return nil, fmt.Errorf("%w: missing highlights", ErrInvalidVerdict)
	}
	if raw.Summary == nil {
		return nil, fmt.Errorf("%w: missing summary", ErrInvalidVerdict)
	}

	score, err := models.ParseRiskLevel(*raw.Score)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}

	highlights := make([]models.Highlight, 0, len(*raw.Highlights))
	for i, h := range *raw.Highlights {
		if h.Text == nil || *h.Text == "" {
			return nil, fmt.Errorf("%w: highlight %d has no text", ErrInvalidVerdict, i)
		}
		if h.Reason == nil {
			return nil, fmt.Errorf("%w: highlight %d has no reason", ErrInvalidVerdict, i)
		}
		highlights = append(highlights, models.Highlight{Text: *h.Text, Reason: *h.Reason})
	}

	return &models.AnalysisResult{
		Score:      score,
		Highlights: highlights,
		Summary:    *raw.Summary,
	}, nil
}
