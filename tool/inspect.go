package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// MissingRunMessage is reported for a candidate that declares a definition
// but binds no run function.
const MissingRunMessage = "missing callable run(payload) handler"

// CandidateReport is the offline verdict for one candidate module.
type CandidateReport struct {
	Module   string  `json:"module"`
	OK       bool    `json:"ok"`
	Runnable bool    `json:"runnable"`
	Issues   []Issue `json:"issues"`
}

// Inspect validates every candidate of every source without running any of
// them. Reserved modules are skipped. Unlike discovery, a source that fails
// to enumerate is an error, and a candidate without a run function fails.
func Inspect(ctx context.Context, sources ...CandidateSource) ([]CandidateReport, error) {
	var candidates []Candidate
	for _, source := range sources {
		if source == nil {
			continue
		}
		found, err := source.Candidates(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool: enumerate candidates: %w", err)
		}
		candidates = append(candidates, found...)
	}
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return strings.Compare(a.Module, b.Module)
	})

	reports := make([]CandidateReport, 0, len(candidates))
	for _, candidate := range candidates {
		if IsReservedModule(candidate.Module) {
			continue
		}
		reports = append(reports, inspectCandidate(candidate))
	}
	return reports, nil
}

func inspectCandidate(candidate Candidate) CandidateReport {
	report := CandidateReport{
		Module:   candidate.Module,
		Runnable: candidate.Run != nil,
	}
	if candidate.LoadErr != nil {
		report.Issues = []Issue{{
			Level:   SeverityError,
			Message: candidate.LoadErr.Error(),
		}}
		return report
	}

	validation := Validate(candidate.Definition)
	report.Issues = append(report.Issues, validation.Issues...)
	if candidate.Run == nil {
		report.Issues = append(report.Issues, Issue{
			Level:   SeverityError,
			Message: MissingRunMessage,
		})
	}
	report.OK = validation.OK && candidate.Run != nil
	return report
}

// AllPassed reports whether every report is OK.
func AllPassed(reports []CandidateReport) bool {
	for _, report := range reports {
		if !report.OK {
			return false
		}
	}
	return true
}
