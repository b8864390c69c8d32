package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/rules"
	"github.com/HanTheDev/phish-guard/internal/scoring"
)

// ErrThresholdReached is returned by scan when --fail-on is met.
var ErrThresholdReached = errors.New("static score reached the failure threshold")

type scanJSON struct {
	Score    models.RiskLevel `json:"score"`
	Weight   int              `json:"weight"`
	Findings []models.Finding `json:"findings"`
}

// Execute implements the go-flags Commander interface for ScanCommand.
func (c *ScanCommand) Execute(args []string) error {
	var failOn models.RiskLevel
	if c.FailOn != "" {
		level, err := models.ParseRiskLevel(c.FailOn)
		if err != nil {
			return fmt.Errorf("--fail-on: %w", err)
		}
		failOn = level
	}

	content, err := c.readContent(args)
	if err != nil {
		return err
	}

	findings := rules.New().Scan(content)
	report := scanJSON{
		Score:    scoring.FromFindings(findings),
		Weight:   scoring.Weight(findings),
		Findings: findings,
	}

	if c.env.globals.JSON {
		enc := json.NewEncoder(c.env.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printScan(c.env.stdout, report)
	}

	if c.FailOn != "" && report.Score >= failOn {
		return fmt.Errorf("%w: %s >= %s", ErrThresholdReached, report.Score, failOn)
	}
	return nil
}

func (c *ScanCommand) readContent(args []string) (string, error) {
	sources := 0
	for _, set := range []bool{c.Text != "", c.File != "", len(args) > 0} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return "", errors.New("provide exactly one of --text, --file or a positional argument")
	}

	switch {
	case c.Text != "":
		return c.Text, nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case c.File == "-":
		raw, err := io.ReadAll(c.env.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	default:
		raw, err := os.ReadFile(c.File)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", c.File, err)
		}
		return string(raw), nil
	}
}

func printScan(w io.Writer, report scanJSON) {
	fmt.Fprintf(w, "Static score: %s (weight %d)\n", report.Score, report.Weight)
	if len(report.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}
	fmt.Fprintf(w, "Findings (%d):\n", len(report.Findings))
	for _, f := range report.Findings {
		fmt.Fprintf(w, "  [%s] %s\n", f.Severity, f.Reason)
		fmt.Fprintf(w, "         %q\n", f.MatchedText)
	}
}
