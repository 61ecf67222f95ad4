package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrCoverageUnparseable marks a report whose format was not recognized.
// It is distinct from a coverage shortfall so the operator knows the
// pipeline is misconfigured rather than the tests under-covered.
var ErrCoverageUnparseable = errors.New("coverage report not parseable")

// ParseCoverageReport extracts the total line coverage percentage from a
// JSON report. Three shapes are recognized: Istanbul summaries
// (total.lines.pct), pytest-cov (totals.percent_covered), and a generic
// top-level coverage_percent.
func ParseCoverageReport(path string) (float64, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return 0, fmt.Errorf("reading coverage report: %w", err)
	}

	var istanbul struct {
		Total struct {
			Lines struct {
				Pct *float64 `json:"pct"`
			} `json:"lines"`
		} `json:"total"`
	}
	if err := json.Unmarshal(data, &istanbul); err == nil && istanbul.Total.Lines.Pct != nil {
		return *istanbul.Total.Lines.Pct, nil
	}

	var pytest struct {
		Totals struct {
			PercentCovered *float64 `json:"percent_covered"`
		} `json:"totals"`
	}
	if err := json.Unmarshal(data, &pytest); err == nil && pytest.Totals.PercentCovered != nil {
		return *pytest.Totals.PercentCovered, nil
	}

	var generic struct {
		CoveragePercent *float64 `json:"coverage_percent"`
	}
	if err := json.Unmarshal(data, &generic); err == nil && generic.CoveragePercent != nil {
		return *generic.CoveragePercent, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrCoverageUnparseable, path)
}
