package workflow

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/formatting"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

const StepDraftForms = "DraftForms"

//go:embed draft_forms.schema.json
var draftSchemaJSON []byte

var draftSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(draftSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("draft_forms.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("draft_forms.schema.json")
})

// Sample figures used when demo defaults are enabled and no data exists.
var demoTaxData = map[string]float64{
	extraction.GrossReceipts:     1_000_000,
	extraction.CostOfGoodsSold:   700_000,
	extraction.OperatingExpenses: 200_000,
	extraction.NetIncome:         100_000,
}

type draftForms struct {
	engine.Base
	rt *Runtime
}

// DraftForms asks the reasoning service to populate Form 1120 and its
// schedules from the extracted tax data.
func DraftForms(rt *Runtime) engine.Step {
	return &draftForms{
		Base: engine.NewBase(StepDraftForms, "Draft Form 1120 fields using AI analysis of extracted financial data"),
		rt:   rt,
	}
}

func (s *draftForms) Run(ctx context.Context, st *state.State) (*state.State, error) {
	extracted, _, err := lookup[map[string]extractedFile](st, KeyExtractedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}

	taxData, err := s.taxData(st, extracted)
	if err != nil {
		return nil, err
	}

	prompt, err := ComposePrompt(ctx, s.rt.Prompts, prompts.StageDraft,
		draftData(taxData, extracted, s.rt.Config.PromptTextLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}

	reply, err := s.rt.Reasoner.Chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}

	forms, err := parseForms(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}

	value, err := encode(forms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}
	st.Set(KeyDraftedForms, value)

	for _, key := range LineKeys(forms.Form1120) {
		line := forms.Form1120[key]
		var v any
		if line.Value != nil {
			v = *line.Value
		}
		s.rt.Tracker.Add(s.Name(), "form_1120_"+key, v, "llm_drafting",
			provenance.WithConfidence(0.85),
			provenance.WithMetadata(map[string]any{
				"description": line.Description,
				"reasoning":   forms.Reasoning,
			}),
		)
	}

	s.rt.Tracker.Add(s.Name(), "drafting_summary",
		fmt.Sprintf("Drafted %d Form 1120 fields", len(forms.Form1120)), "llm_drafting_step",
		provenance.WithConfidence(0.85),
		provenance.WithMetadata(map[string]any{
			"form_1120_fields":   len(forms.Form1120),
			"schedule_c_fields":  len(forms.ScheduleC),
			"schedule_m1_fields": len(forms.ScheduleM1),
			"reasoning":          forms.Reasoning,
		}),
	)

	s.rt.Logger.InfoContext(ctx, "forms drafted", "form_1120_fields", len(forms.Form1120))
	return st, nil
}

// extractedFile is the part of an extracted_data entry drafting reads.
type extractedFile struct {
	Text  string       `json:"text"`
	Table *state.Table `json:"table"`
}

// taxData resolves the figures to draft from: extracted tax data, then a
// ledger estimate, then demo defaults when enabled.
func (s *draftForms) taxData(st *state.State, extracted map[string]extractedFile) (map[string]float64, error) {
	data, _, err := lookup[map[string]float64](st, KeyTaxData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}
	if len(data) > 0 {
		return data, nil
	}

	for _, name := range slices.Sorted(maps.Keys(extracted)) {
		table := extracted[name].Table
		if table == nil {
			continue
		}
		estimate, ok := ledgerEstimate(table)
		if !ok {
			continue
		}
		s.rt.Tracker.Add(s.Name(), "tax_data_estimate", estimate, "ledger_estimate",
			provenance.WithConfidence(0.6),
			provenance.WithMetadata(map[string]any{
				"file_name": name,
				"method":    "debit_credit_totals",
			}),
		)
		return estimate, nil
	}

	if s.rt.Config.DemoDefaults {
		data := maps.Clone(demoTaxData)
		s.rt.Tracker.Add(s.Name(), "tax_data_estimate", data, "demo_defaults",
			provenance.WithConfidence(0.1),
			provenance.WithMetadata(map[string]any{
				"reason": "no tax data extracted",
			}),
		)
		return data, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrDraftFailed, ErrNoTaxData)
}

// ledgerEstimate derives rough totals from a general ledger: gross receipts
// from positive credits, and debits split 70/30 between cost of goods sold
// and operating expenses.
func ledgerEstimate(table *state.Table) (map[string]float64, bool) {
	rows, ok := extraction.LedgerRows(table)
	if !ok {
		return nil, false
	}

	var gross, debits float64
	for _, r := range rows {
		if r.Credit > 0 {
			gross += r.Credit
		}
		debits += r.Debit
	}

	return map[string]float64{
		extraction.GrossReceipts:     gross,
		extraction.CostOfGoodsSold:   debits * 0.7,
		extraction.OperatingExpenses: debits * 0.3,
		extraction.NetIncome:         gross - debits,
	}, true
}

func draftData(taxData map[string]float64, extracted map[string]extractedFile, limit int) string {
	var sb strings.Builder
	sb.WriteString("Please draft Form 1120 based on the following financial data:\n\n")
	sb.WriteString("EXTRACTED FINANCIAL DATA:\n")

	for _, field := range taxFieldOrder(taxData) {
		fmt.Fprintf(&sb, "- %s: %s\n", titleCase(field), money(taxData[field], 2))
	}

	if len(extracted) > 0 {
		sb.WriteString("\nRAW DOCUMENT TEXT:\n")
		for _, name := range slices.Sorted(maps.Keys(extracted)) {
			text := extracted[name].Text
			if text == "" {
				continue
			}
			fmt.Fprintf(&sb, "\nFrom %s:\n%s...\n", name, formatting.Truncate(text, limit))
		}
	}

	sb.WriteString("\nIf certain values are missing, use reasonable estimates based on the available data. ")
	sb.WriteString("Ensure all calculations are mathematically correct.")
	return sb.String()
}

// taxFieldOrder lists known tax fields first, then any others by name.
func taxFieldOrder(data map[string]float64) []string {
	out := make([]string, 0, len(data))
	for _, f := range extraction.TaxFields {
		if _, ok := data[f]; ok {
			out = append(out, f)
		}
	}
	for _, f := range slices.Sorted(maps.Keys(data)) {
		if !slices.Contains(extraction.TaxFields, f) {
			out = append(out, f)
		}
	}
	return out
}

// parseForms decodes the model reply and validates it against the drafted
// forms schema.
func parseForms(reply string) (*Forms, error) {
	raw, err := formatting.Parse[map[string]any](reply)
	if err != nil {
		return nil, err
	}

	schema, err := draftSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var forms Forms
	if err := json.Unmarshal(data, &forms); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if forms.Form1120 == nil {
		forms.Form1120 = Form{}
	}
	if forms.ScheduleC == nil {
		forms.ScheduleC = Form{}
	}
	if forms.ScheduleM1 == nil {
		forms.ScheduleM1 = Form{}
	}
	return &forms, nil
}

// LineKeys returns the keys of f in form order: line_1a, line_2, ... line_31.
func LineKeys(f Form) []string {
	keys := slices.Collect(maps.Keys(f))
	slices.SortFunc(keys, func(a, b string) int {
		na, sa := splitLine(a)
		nb, sb := splitLine(b)
		if na != nb {
			return na - nb
		}
		return strings.Compare(sa, sb)
	})
	return keys
}

func splitLine(key string) (int, string) {
	rest := strings.TrimPrefix(key, "line_")
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(rest[:i])
	if err != nil {
		return 1 << 30, key
	}
	return n, rest[i:]
}
