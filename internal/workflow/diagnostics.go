package workflow

import (
	"context"
	"fmt"
	"math"

	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

const StepDiagnostics = "Diagnostics"

// Lines that must be present and non-negative on Form 1120: gross
// receipts, cost of goods sold and taxable income.
var criticalLines = []string{"line_1a", "line_4", "line_26"}

type diagnostics struct {
	engine.Base
	rt *Runtime
}

// Diagnostics runs rule-based checks over the drafted forms.
func Diagnostics(rt *Runtime) engine.Step {
	return &diagnostics{
		Base: engine.NewBase(StepDiagnostics, "Run rule-based diagnostics to identify potential issues and anomalies"),
		rt:   rt,
	}
}

func (s *diagnostics) Run(ctx context.Context, st *state.State) (*state.State, error) {
	forms, ok, err := lookup[Forms](st, KeyDraftedForms)
	if err != nil {
		return nil, err
	}

	if !ok {
		report := newDiagnosticReport([]Issue{{
			Type:        "no_forms",
			Severity:    SeverityInfo,
			Title:       "No Forms Available",
			Description: "No forms were drafted for diagnostics",
			Field:       "general",
		}})
		return st, s.store(ctx, st, report, false)
	}

	report := newDiagnosticReport(Check(&forms, s.rt.Config))
	return st, s.store(ctx, st, report, true)
}

func (s *diagnostics) store(ctx context.Context, st *state.State, report DiagnosticReport, track bool) error {
	value, err := encode(report)
	if err != nil {
		return err
	}
	st.Set(KeyDiagnostics, value)

	if track {
		s.rt.Tracker.Add(s.Name(), "diagnostic_summary", fmt.Sprintf("Found %d issues", report.TotalIssues), "diagnostic_step",
			provenance.WithConfidence(0.95),
			provenance.WithMetadata(map[string]any{
				"total_issues":    report.TotalIssues,
				"critical_issues": report.CriticalIssues,
				"warnings":        report.Warnings,
				"info":            report.Info,
			}),
		)
	}

	s.rt.Logger.InfoContext(ctx, "diagnostics complete",
		"issues", report.TotalIssues,
		"critical", report.CriticalIssues,
	)
	return nil
}

// Check runs every diagnostic rule over forms in a fixed order: COGS
// ratio, arithmetic, missing fields, unusual values, schedule consistency.
func Check(forms *Forms, cfg *Config) []Issue {
	var issues []Issue
	if issue, ok := checkCOGSRatio(forms.Form1120, cfg.COGSRatioThreshold); ok {
		issues = append(issues, issue)
	}
	issues = append(issues, checkMath(forms.Form1120, cfg.MathTolerance)...)
	issues = append(issues, checkMissing(forms.Form1120)...)
	issues = append(issues, checkUnusual(forms.Form1120, cfg.LargeValueThreshold)...)
	issues = append(issues, checkSchedules(forms, cfg.MathTolerance)...)
	return issues
}

func checkCOGSRatio(f Form, threshold float64) (Issue, bool) {
	gross, ok := f.Value("line_1a")
	cogs, ok2 := f.Value("line_4")
	if !ok || !ok2 || gross <= 0 || cogs == 0 {
		return Issue{}, false
	}

	ratio := cogs / gross
	if ratio <= threshold {
		return Issue{}, false
	}

	return Issue{
		Type:        "high_cogs_ratio",
		Severity:    SeverityWarning,
		Title:       "High Cost of Goods Sold Ratio",
		Description: fmt.Sprintf("COGS ratio is %.1f%%, which is unusually high. Typical ratios are 60-70%%.", ratio*100),
		Field:       "line_4",
		Value:       ptr(cogs),
		Threshold:   ptr(threshold),
		ActualRatio: ptr(ratio),
	}, true
}

func checkMath(f Form, tolerance float64) []Issue {
	var issues []Issue

	line1a, ok1a := f.Value("line_1a")
	line2, ok2 := f.Value("line_2")
	line3, ok3 := f.Value("line_3")

	if ok1a && ok2 && ok3 {
		expected := line1a - line2
		if math.Abs(line3-expected) > tolerance {
			issues = append(issues, Issue{
				Type:        "math_error",
				Severity:    SeverityCritical,
				Title:       "Mathematical Error in Net Receipts",
				Description: fmt.Sprintf("Line 3 should equal Line 1a - Line 2. Expected: %s, Found: %s", number(expected), number(line3)),
				Field:       "line_3",
				Value:       ptr(line3),
				Expected:    ptr(expected),
			})
		}
	}

	line4, ok4 := f.Value("line_4")
	line5, ok5 := f.Value("line_5")

	if ok3 && ok4 && ok5 {
		expected := line3 - line4
		if math.Abs(line5-expected) > tolerance {
			issues = append(issues, Issue{
				Type:        "math_error",
				Severity:    SeverityCritical,
				Title:       "Mathematical Error in Gross Profit",
				Description: fmt.Sprintf("Line 5 should equal Line 3 - Line 4. Expected: %s, Found: %s", number(expected), number(line5)),
				Field:       "line_5",
				Value:       ptr(line5),
				Expected:    ptr(expected),
			})
		}
	}

	return issues
}

func checkMissing(f Form) []Issue {
	var issues []Issue
	for _, field := range criticalLines {
		if v, ok := f.Value(field); ok && v != 0 {
			continue
		}
		issues = append(issues, Issue{
			Type:        "missing_field",
			Severity:    SeverityCritical,
			Title:       "Missing Critical Field: " + field,
			Description: fmt.Sprintf("Critical field %s is missing or zero", field),
			Field:       field,
		})
	}
	return issues
}

func checkUnusual(f Form, largeValue float64) []Issue {
	var issues []Issue
	for _, field := range criticalLines {
		v, ok := f.Value(field)
		if !ok || v >= 0 {
			continue
		}
		issues = append(issues, Issue{
			Type:        "negative_value",
			Severity:    SeverityWarning,
			Title:       "Negative Value in " + field,
			Description: fmt.Sprintf("Field %s has a negative value: %s", field, number(v)),
			Field:       field,
			Value:       ptr(v),
		})
	}

	if gross, ok := f.Value("line_1a"); ok && gross > largeValue {
		issues = append(issues, Issue{
			Type:        "large_value",
			Severity:    SeverityInfo,
			Title:       "Unusually Large Gross Receipts",
			Description: fmt.Sprintf("Gross receipts of %s may need verification", money(gross, 0)),
			Field:       "line_1a",
			Value:       ptr(gross),
		})
	}

	return issues
}

func checkSchedules(forms *Forms, tolerance float64) []Issue {
	if len(forms.ScheduleC) == 0 {
		return nil
	}

	formLine, ok := forms.Form1120.Value("line_1a")
	scheduleLine, ok2 := forms.ScheduleC.Value("line_1")
	if !ok || !ok2 || math.Abs(formLine-scheduleLine) <= tolerance {
		return nil
	}

	return []Issue{{
		Type:        "schedule_inconsistency",
		Severity:    SeverityWarning,
		Title:       "Schedule C Inconsistency",
		Description: fmt.Sprintf("Form 1120 Line 1a (%s) doesn't match Schedule C Line 1 (%s)", number(formLine), number(scheduleLine)),
		Field:       "schedule_c_line_1",
		Value:       ptr(scheduleLine),
		Expected:    ptr(formLine),
	}}
}
