package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel is ordered by its integer value: Safe < Low < Medium < High < Critical.
// Comparisons must always go through the integer, never the name.
type RiskLevel int

const (
	Safe RiskLevel = iota
	Low
	Medium
	High
	Critical
)

var riskLevelNames = [...]string{"Safe", "Low", "Medium", "High", "Critical"}

// RiskLevels lists every level from lowest to highest risk.
func RiskLevels() []RiskLevel {
	return []RiskLevel{Safe, Low, Medium, High, Critical}
}

// RiskLevelNames returns the level names in ascending risk order.
func RiskLevelNames() []string {
	out := make([]string, len(riskLevelNames))
	copy(out, riskLevelNames[:])
	return out
}

func (l RiskLevel) Valid() bool {
	return l >= Safe && l <= Critical
}

func (l RiskLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
	return riskLevelNames[l]
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskLevelNames {
		if name == s {
			return RiskLevel(i), nil
		}
	}
	return Safe, fmt.Errorf("unknown risk level %q", s)
}

func (l RiskLevel) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid risk level %d", int(l))
	}
	return json.Marshal(l.String())
}

func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("risk level must be a string: %w", err)
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Finding is a single rule match. Reason identifies the rule that produced it.
type Finding struct {
	MatchedText string   `json:"matched_text"`
	Reason      string   `json:"reason"`
	Severity    Severity `json:"severity"`
}

func (f Finding) Highlight() Highlight {
	return Highlight{Text: f.MatchedText, Reason: f.Reason}
}

type Highlight struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

type AnalysisResult struct {
	Score      RiskLevel   `json:"score"`
	Highlights []Highlight `json:"highlights"`
	Summary    string      `json:"summary"`
}

// Clone returns a deep copy so the cache never shares a slice with a live response.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := &AnalysisResult{
		Score:      r.Score,
		Summary:    r.Summary,
		Highlights: make([]Highlight, len(r.Highlights)),
	}
	copy(out.Highlights, r.Highlights)
	return out
}

type RateLimitRecord struct {
	Count   int64     `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

type CacheEntry struct {
	Fingerprint string         `json:"fingerprint"`
	Domain      string         `json:"domain"`
	Result      AnalysisResult `json:"result"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	HitCount    int            `json:"hit_count"`
}

func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type CacheStat struct {
	Domain    string    `json:"domain"`
	Score     RiskLevel `json:"score"`
	HitCount  int       `json:"hit_count"`
	CreatedAt time.Time `json:"created_at"`
}
