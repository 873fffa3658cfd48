package workflow

import (
	"fmt"
	"strings"
)

// Line is a single drafted form line.
type Line struct {
	Value       *float64 `json:"value"`
	Description string   `json:"description,omitempty"`
}

// Form maps line keys such as "line_1a" to lines.
type Form map[string]Line

// Value returns the numeric value of key, or false when the line or its
// value is absent.
func (f Form) Value(key string) (float64, bool) {
	line, ok := f[key]
	if !ok || line.Value == nil {
		return 0, false
	}
	return *line.Value, true
}

// Forms is the drafted_forms context entry.
type Forms struct {
	Form1120   Form   `json:"form_1120"`
	ScheduleC  Form   `json:"schedule_c"`
	ScheduleM1 Form   `json:"schedule_m1"`
	Reasoning  string `json:"reasoning"`
}

// Severity ranks diagnostic issues.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is a problem found by Diagnostics.
type Issue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Field       string   `json:"field"`
	Value       *float64 `json:"value"`
	Expected    *float64 `json:"expected,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	ActualRatio *float64 `json:"actual_ratio,omitempty"`
}

// DiagnosticReport is the diagnostics context entry.
type DiagnosticReport struct {
	Issues         []Issue `json:"issues"`
	TotalIssues    int     `json:"total_issues"`
	CriticalIssues int     `json:"critical_issues"`
	Warnings       int     `json:"warnings"`
	Info           int     `json:"info"`
}

func newDiagnosticReport(issues []Issue) DiagnosticReport {
	r := DiagnosticReport{Issues: issues, TotalIssues: len(issues)}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	for _, i := range issues {
		switch i.Severity {
		case SeverityCritical:
			r.CriticalIssues++
		case SeverityWarning:
			r.Warnings++
		case SeverityInfo:
			r.Info++
		}
	}
	return r
}

// Adjustment types.
const (
	AdjustMath     = "mathematical_correction"
	AdjustRatio    = "ratio_adjustment"
	AdjustMissing  = "missing_field_population"
	AdjustNegative = "negative_value_correction"
	AdjustSchedule = "schedule_correction"
	AdjustModel    = "llm_suggestion"
)

// Suggestion is a proposed correction for one issue.
type Suggestion struct {
	IssueID        string   `json:"issue_id"`
	Field          string   `json:"field"`
	CurrentValue   *float64 `json:"current_value"`
	SuggestedValue *float64 `json:"suggested_value"`
	AdjustmentType string   `json:"adjustment_type"`
	Description    string   `json:"description"`
	Reasoning      string   `json:"reasoning"`
	Confidence     float64  `json:"confidence"`
	Priority       string   `json:"priority"`
}

// AdjustmentReport is the adjustments context entry. Suggestions are
// never applied automatically, so AppliedAdjustments stays empty.
type AdjustmentReport struct {
	Suggestions        []Suggestion `json:"suggestions"`
	TotalSuggestions   int          `json:"total_suggestions"`
	AppliedAdjustments []Suggestion `json:"applied_adjustments"`
}

func ptr(f float64) *float64 { return &f }

// money formats v as $1,234,567 with the given number of decimals.
func money(v float64, decimals int) string {
	s := fmt.Sprintf("%.*f", decimals, v)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := "$" + b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// number formats v with two decimals, dropped for whole values.
func number(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.2f", v), ".00")
}

func titleCase(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
