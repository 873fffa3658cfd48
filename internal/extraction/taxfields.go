package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JaimeStill/taxdraft/pkg/state"
)

// Tax fields in the order they are reported.
const (
	GrossReceipts     = "gross_receipts"
	CostOfGoodsSold   = "cost_of_goods_sold"
	OperatingExpenses = "operating_expenses"
	NetIncome         = "net_income"
	TotalAssets       = "total_assets"
	TotalLiabilities  = "total_liabilities"
	Equity            = "equity"
)

var TaxFields = []string{
	GrossReceipts,
	CostOfGoodsSold,
	OperatingExpenses,
	NetIncome,
	TotalAssets,
	TotalLiabilities,
	Equity,
}

const amount = `[:\s]*\$?\s*([\d,]+(?:\.\d+)?)`

var patterns = map[string][]*regexp.Regexp{
	GrossReceipts:     compile("gross receipts", "revenue"),
	CostOfGoodsSold:   compile("cost of goods sold", "cogs"),
	OperatingExpenses: compile("operating expenses", "expenses"),
	NetIncome:         compile("net income", "profit"),
	TotalAssets:       compile("total assets", "assets"),
	TotalLiabilities:  compile("total liabilities", "liabilities"),
	Equity:            compile("equity"),
}

var operatingAccounts = []string{"salar", "wage", "rent", "utilit", "insur", "depreciat"}

func compile(labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(labels))
	for i, l := range labels {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(l) + amount)
	}
	return out
}

// MapTaxData derives tax fields from a general ledger table and from text.
// Ledger values take precedence; text patterns only fill fields the ledger
// left unset, first matching pattern wins.
func MapTaxData(table *state.Table, text string) (map[string]float64, []Finding) {
	data := make(map[string]float64)
	var findings []Finding

	if table != nil {
		ledger, ok := mapLedger(table)
		if ok {
			for _, field := range TaxFields {
				v, set := ledger[field]
				if !set {
					continue
				}
				data[field] = v
				findings = append(findings, Finding{
					Field:      field,
					Value:      v,
					Source:     SourceLedger,
					Confidence: 0.95,
					Metadata: map[string]any{
						"extraction_method": "dataframe_mapping",
						"columns":           table.Columns,
					},
				})
			}
		}
	}

	if text == "" {
		return data, findings
	}

	for _, field := range TaxFields {
		if _, set := data[field]; set {
			continue
		}
		v, pattern, ok := matchField(field, text)
		if !ok {
			continue
		}
		data[field] = v
		findings = append(findings, Finding{
			Field:      field,
			Value:      v,
			Source:     SourcePattern,
			Confidence: 0.8,
			Metadata: map[string]any{
				"extraction_method": "regex_pattern",
				"pattern":           pattern,
			},
		})
	}

	return data, findings
}

func matchField(field, text string) (float64, string, bool) {
	for _, re := range patterns[field] {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return v, re.String(), true
	}
	return 0, "", false
}

// LedgerColumns holds the column names of a general ledger table.
type LedgerColumns struct {
	Account string
	Debit   string
	Credit  string
}

// FindLedgerColumns matches Account, Debit and Credit columns
// case-insensitively.
func FindLedgerColumns(table *state.Table) (LedgerColumns, bool) {
	var cols LedgerColumns
	for _, c := range table.Columns {
		switch strings.ToLower(c) {
		case "account":
			cols.Account = c
		case "debit":
			cols.Debit = c
		case "credit":
			cols.Credit = c
		}
	}
	return cols, cols.Account != "" && cols.Debit != "" && cols.Credit != ""
}

// LedgerRow is one general ledger entry. Missing amounts are zero.
type LedgerRow struct {
	Account string
	Debit   float64
	Credit  float64
}

// LedgerRows returns the ledger entries of table, or false when the table
// is not a general ledger.
func LedgerRows(table *state.Table) ([]LedgerRow, bool) {
	cols, ok := FindLedgerColumns(table)
	if !ok {
		return nil, false
	}

	rows := make([]LedgerRow, 0, table.Len())
	for i := range table.Len() {
		var row LedgerRow
		if v, ok := table.Cell(i, cols.Account); ok && v != nil {
			if t, isText := v.(state.Text); isText {
				row.Account = string(t)
			} else if v.Any() != nil {
				row.Account = fmt.Sprint(v.Any())
			}
		}
		if v, ok := table.Cell(i, cols.Debit); ok {
			row.Debit, _ = state.Float(v)
		}
		if v, ok := table.Cell(i, cols.Credit); ok {
			row.Credit, _ = state.Float(v)
		}
		rows = append(rows, row)
	}
	return rows, true
}

func mapLedger(table *state.Table) (map[string]float64, bool) {
	rows, ok := LedgerRows(table)
	if !ok {
		return nil, false
	}

	out := make(map[string]float64)
	for _, row := range rows {
		account := strings.ToLower(row.Account)
		switch {
		case strings.Contains(account, "gross") && strings.Contains(account, "receipt"):
			out[GrossReceipts] += row.Credit
		case strings.Contains(account, "cost") && strings.Contains(account, "goods"):
			out[CostOfGoodsSold] += row.Debit
		case containsAny(account, operatingAccounts):
			out[OperatingExpenses] += row.Debit
		}
	}
	return out, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
