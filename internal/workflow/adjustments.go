package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

const StepAdjustments = "Adjustments"

// Tax data field backing each critical form line.
var lineTaxFields = map[string]string{
	"line_1a": extraction.GrossReceipts,
	"line_4":  extraction.CostOfGoodsSold,
	"line_26": extraction.NetIncome,
}

type adjustments struct {
	engine.Base
	rt *Runtime
}

// Adjustments proposes corrections for critical and warning issues.
// Suggestions are recorded but never applied to the drafted forms.
func Adjustments(rt *Runtime) engine.Step {
	return &adjustments{
		Base: engine.NewBase(StepAdjustments, "Generate AI-suggested adjustments for flagged diagnostic issues"),
		rt:   rt,
	}
}

type modelSuggestion struct {
	SuggestedValue *float64 `json:"suggested_value"`
	Reasoning      string   `json:"reasoning"`
	Confidence     *float64 `json:"confidence"`
}

func (s *adjustments) Run(ctx context.Context, st *state.State) (*state.State, error) {
	report, _, err := lookup[DiagnosticReport](st, KeyDiagnostics)
	if err != nil {
		return nil, err
	}
	forms, _, err := lookup[Forms](st, KeyDraftedForms)
	if err != nil {
		return nil, err
	}
	taxData, _, err := lookup[map[string]float64](st, KeyTaxData)
	if err != nil {
		return nil, err
	}

	out := AdjustmentReport{Suggestions: []Suggestion{}, AppliedAdjustments: []Suggestion{}}

	if len(report.Issues) == 0 {
		return st, s.store(st, out)
	}

	for _, issue := range report.Issues {
		if issue.Severity != SeverityCritical && issue.Severity != SeverityWarning {
			continue
		}
		suggestion, ok := s.suggest(ctx, issue, &forms, taxData)
		if !ok {
			continue
		}
		out.Suggestions = append(out.Suggestions, suggestion)
	}
	out.TotalSuggestions = len(out.Suggestions)

	if err := s.store(st, out); err != nil {
		return nil, err
	}

	critical := 0
	for _, i := range report.Issues {
		if i.Severity == SeverityCritical {
			critical++
		}
	}

	s.rt.Tracker.Add(s.Name(), "adjustment_summary", fmt.Sprintf("Generated %d suggestions", out.TotalSuggestions), "adjustment_step",
		provenance.WithConfidence(0.8),
		provenance.WithMetadata(map[string]any{
			"total_suggestions": out.TotalSuggestions,
			"issues_processed":  len(report.Issues),
			"critical_issues":   critical,
		}),
	)

	for _, sg := range out.Suggestions {
		var v any
		if sg.SuggestedValue != nil {
			v = *sg.SuggestedValue
		}
		s.rt.Tracker.Add(s.Name(), "adjustment_"+sg.Field, v, sg.AdjustmentType,
			provenance.WithConfidence(sg.Confidence),
			provenance.WithMetadata(map[string]any{
				"issue_id":    sg.IssueID,
				"description": sg.Description,
				"reasoning":   sg.Reasoning,
				"priority":    sg.Priority,
			}),
		)
	}

	s.rt.Logger.InfoContext(ctx, "adjustments suggested", "suggestions", out.TotalSuggestions)
	return st, nil
}

func (s *adjustments) store(st *state.State, report AdjustmentReport) error {
	value, err := encode(report)
	if err != nil {
		return err
	}
	st.Set(KeyAdjustments, value)
	return nil
}

func (s *adjustments) suggest(ctx context.Context, issue Issue, forms *Forms, taxData map[string]float64) (Suggestion, bool) {
	switch issue.Type {
	case "math_error":
		return suggestMath(issue)
	case "high_cogs_ratio":
		return suggestCOGS(issue, forms)
	case "missing_field":
		return suggestMissing(issue, taxData)
	case "negative_value":
		return suggestNegative(issue)
	case "schedule_inconsistency":
		return suggestSchedule(issue)
	default:
		return s.suggestWithModel(ctx, issue, taxData)
	}
}

func suggestMath(issue Issue) (Suggestion, bool) {
	if issue.Value == nil || issue.Expected == nil {
		return Suggestion{}, false
	}
	return Suggestion{
		IssueID:        issue.Type,
		Field:          issue.Field,
		CurrentValue:   issue.Value,
		SuggestedValue: issue.Expected,
		AdjustmentType: AdjustMath,
		Description:    fmt.Sprintf("Correct %s from %s to %s", issue.Field, number(*issue.Value), number(*issue.Expected)),
		Reasoning:      "Mathematical calculation error. " + issue.Description,
		Confidence:     0.95,
		Priority:       "high",
	}, true
}

func suggestCOGS(issue Issue, forms *Forms) (Suggestion, bool) {
	gross, ok := forms.Form1120.Value("line_1a")
	if !ok || gross == 0 || issue.Value == nil {
		return Suggestion{}, false
	}

	suggested := gross * 0.7
	ratio := 0.0
	if issue.ActualRatio != nil {
		ratio = *issue.ActualRatio
	}

	return Suggestion{
		IssueID:        "high_cogs_ratio",
		Field:          "line_4",
		CurrentValue:   issue.Value,
		SuggestedValue: ptr(suggested),
		AdjustmentType: AdjustRatio,
		Description:    fmt.Sprintf("Reduce COGS from %s to %s", money(*issue.Value, 0), money(suggested, 0)),
		Reasoning:      fmt.Sprintf("Current COGS ratio of %.1f%% is unusually high. Suggesting 70%% ratio based on industry standards.", ratio*100),
		Confidence:     0.75,
		Priority:       "medium",
	}, true
}

func suggestMissing(issue Issue, taxData map[string]float64) (Suggestion, bool) {
	field, ok := lineTaxFields[issue.Field]
	if !ok {
		return Suggestion{}, false
	}
	v, ok := taxData[field]
	if !ok || v == 0 {
		return Suggestion{}, false
	}

	return Suggestion{
		IssueID:        "missing_field",
		Field:          issue.Field,
		SuggestedValue: ptr(v),
		AdjustmentType: AdjustMissing,
		Description:    fmt.Sprintf("Populate %s with %s from extracted data", issue.Field, money(v, 0)),
		Reasoning:      fmt.Sprintf("Critical field %s is missing. Using extracted %s value.", issue.Field, field),
		Confidence:     0.8,
		Priority:       "high",
	}, true
}

func suggestNegative(issue Issue) (Suggestion, bool) {
	if issue.Value == nil {
		return Suggestion{}, false
	}
	suggested := math.Abs(*issue.Value)

	return Suggestion{
		IssueID:        "negative_value",
		Field:          issue.Field,
		CurrentValue:   issue.Value,
		SuggestedValue: ptr(suggested),
		AdjustmentType: AdjustNegative,
		Description:    fmt.Sprintf("Change %s from %s to %s", issue.Field, number(*issue.Value), number(suggested)),
		Reasoning:      fmt.Sprintf("Field %s should not be negative. Converting to positive value.", issue.Field),
		Confidence:     0.9,
		Priority:       "medium",
	}, true
}

func suggestSchedule(issue Issue) (Suggestion, bool) {
	if issue.Expected == nil {
		return Suggestion{}, false
	}
	return Suggestion{
		IssueID:        "schedule_inconsistency",
		Field:          issue.Field,
		CurrentValue:   issue.Value,
		SuggestedValue: issue.Expected,
		AdjustmentType: AdjustSchedule,
		Description:    fmt.Sprintf("Correct %s to match main form value", issue.Field),
		Reasoning:      "Schedule value should match corresponding main form value for consistency.",
		Confidence:     0.85,
		Priority:       "medium",
	}, true
}

// suggestWithModel asks the reasoning service for a correction. Failures
// drop the suggestion rather than failing the step.
func (s *adjustments) suggestWithModel(ctx context.Context, issue Issue, taxData map[string]float64) (Suggestion, bool) {
	prompt, err := ComposePrompt(ctx, s.rt.Prompts, prompts.StageAdjust, issuePrompt(issue, taxData))
	if err != nil {
		s.rt.Logger.WarnContext(ctx, "compose adjust prompt failed", "field", issue.Field, "error", err)
		return Suggestion{}, false
	}

	reply, err := reasoning.ChatJSON[modelSuggestion](ctx, s.rt.Reasoner, prompt)
	if err != nil {
		s.rt.Logger.WarnContext(ctx, "model suggestion failed", "field", issue.Field, "error", err)
		return Suggestion{}, false
	}

	confidence := 0.7
	if reply.Confidence != nil {
		confidence = *reply.Confidence
	}
	reason := reply.Reasoning
	if reason == "" {
		reason = "AI-generated suggestion"
	}
	field := issue.Field
	if field == "" {
		field = "unknown"
	}

	return Suggestion{
		IssueID:        issue.Type,
		Field:          field,
		CurrentValue:   issue.Value,
		SuggestedValue: reply.SuggestedValue,
		AdjustmentType: AdjustModel,
		Description:    "LLM-suggested adjustment for " + field,
		Reasoning:      reason,
		Confidence:     confidence,
		Priority:       "medium",
	}, true
}

func issuePrompt(issue Issue, taxData map[string]float64) string {
	current := "Unknown"
	if issue.Value != nil {
		current = number(*issue.Value)
	}

	data, _ := json.Marshal(taxData)

	var sb strings.Builder
	sb.WriteString("Analyze this tax form issue and suggest an adjustment:\n\n")
	fmt.Fprintf(&sb, "Issue: %s\n", issue.Title)
	fmt.Fprintf(&sb, "Description: %s\n", issue.Description)
	fmt.Fprintf(&sb, "Field: %s\n", issue.Field)
	fmt.Fprintf(&sb, "Current Value: %s\n", current)
	fmt.Fprintf(&sb, "Severity: %s\n\n", issue.Severity)
	fmt.Fprintf(&sb, "Available tax data: %s", data)
	return sb.String()
}
