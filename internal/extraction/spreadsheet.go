package extraction

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/taxdraft/pkg/state"
)

func readCSV(data []byte) (*state.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return toTable(records)
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(data []byte) (*state.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyDocument
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return toTable(rows)
}

// toTable treats the first record as the header. Short rows are padded
// with nulls and cells beyond the header are dropped.
func toTable(records [][]string) (*state.Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyDocument
	}

	columns := make([]string, len(records[0]))
	for i, c := range records[0] {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}

	rows := make([][]state.Value, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make([]state.Value, len(columns))
		for i := range columns {
			if i < len(rec) {
				row[i] = parseCell(rec[i])
			} else {
				row[i] = state.Null{}
			}
		}
		rows = append(rows, row)
	}

	return &state.Table{Columns: columns, Rows: rows}, nil
}

// parseCell converts numeric cells, including "$1,200.50" and "(300)", to
// Number. Empty cells become Null.
func parseCell(s string) state.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return state.Null{}
	}
	if n, ok := parseAmount(s); ok {
		return state.Number(n)
	}
	return state.Text(s)
}

func parseAmount(s string) (float64, bool) {
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
