package rules

import (
	"fmt"

	"github.com/HanTheDev/phish-guard/internal/models"
)

type Engine struct {
	rules []Rule
}

// New returns an engine loaded with DefaultRules.
func New() *Engine {
	e, _ := NewWithRules(DefaultRules()...)
	return e
}

func NewWithRules(rules ...Rule) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.match == nil {
			return nil, fmt.Errorf("rule %q has no matcher", r.Reason)
		}
		if seen[r.Reason] {
			return nil, fmt.Errorf("duplicate rule reason %q", r.Reason)
		}
		seen[r.Reason] = true
	}
	return &Engine{rules: rules}, nil
}

// Scan applies every rule in order and returns one finding per match.
// The result is never nil.
func (e *Engine) Scan(content string) []models.Finding {
	findings := []models.Finding{}
	if content == "" {
		return findings
	}
	for _, r := range e.rules {
		for _, m := range r.Match(content) {
			findings = append(findings, models.Finding{
				MatchedText: m,
				Reason:      r.Reason,
				Severity:    r.Severity,
			})
		}
	}
	return findings
}
