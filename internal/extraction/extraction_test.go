package extraction_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

const ledgerCSV = `Account,Debit,Credit
Gross Receipts,,"1,250,000"
Cost of Goods Sold,700000,
Salaries and Wages,150000,
Office Rent,"$36,000",
Insurance,12000,
Depreciation,(2000),
Interest Income,,4000
`

type memSource map[string][]byte

func (m memSource) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type mockVision struct {
	calls atomic.Int32
	reply func(prompt string, images []string) (string, error)
}

func (m *mockVision) Chat(context.Context, string) (string, error) {
	return "", errors.New("chat not expected")
}

func (m *mockVision) Vision(_ context.Context, prompt string, images []string) (string, error) {
	m.calls.Add(1)
	return m.reply(prompt, images)
}

func findings(r *extraction.Result, field string) []extraction.Finding {
	var out []extraction.Finding
	for _, f := range r.Findings {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        extraction.Format
		wantErr     bool
	}{
		{"ledger.csv", "", extraction.FormatCSV, false},
		{"LEDGER.XLSX", "", extraction.FormatXLSX, false},
		{"book.xlsm", "", extraction.FormatXLSX, false},
		{"return.pdf", "", extraction.FormatPDF, false},
		{"notes.txt", "", extraction.FormatText, false},
		{"upload", "application/pdf", extraction.FormatPDF, false},
		{"upload", "text/plain; charset=utf-8", extraction.FormatText, false},
		{"photo.png", "image/png", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.contentType, func(t *testing.T) {
			got, err := extraction.DetectFormat(tt.name, tt.contentType)
			if tt.wantErr {
				if !errors.Is(err, extraction.ErrUnsupportedFormat) {
					t.Errorf("err = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("DetectFormat = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestExtractLedgerCSV(t *testing.T) {
	src := memSource{"runs/1/ledger.csv": []byte(ledgerCSV)}
	sys := extraction.New(src, nil, prompts.Defaults{})

	result, err := sys.Extract(context.Background(), extraction.Document{
		Name: "ledger.csv",
		Key:  "runs/1/ledger.csv",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if result.Format != extraction.FormatCSV {
		t.Errorf("Format = %q", result.Format)
	}
	if result.Table.Len() != 7 {
		t.Fatalf("rows = %d, want 7", result.Table.Len())
	}

	want := map[string]float64{
		extraction.GrossReceipts:     1250000,
		extraction.CostOfGoodsSold:   700000,
		extraction.OperatingExpenses: 150000 + 36000 + 12000 - 2000,
	}
	for field, v := range want {
		if got := result.TaxData[field]; got != v {
			t.Errorf("%s = %g, want %g", field, got, v)
		}
	}
	if len(result.TaxData) != len(want) {
		t.Errorf("TaxData = %v, want only ledger fields", result.TaxData)
	}

	sheet := findings(result, "spreadsheet_data")
	if len(sheet) != 1 || sheet[0].Source != extraction.SourceSpreadsheet || sheet[0].Confidence != 1.0 {
		t.Errorf("spreadsheet finding = %+v", sheet)
	}
	if sheet[0].Value != "7 rows, 3 columns" {
		t.Errorf("spreadsheet value = %v", sheet[0].Value)
	}

	gross := findings(result, extraction.GrossReceipts)
	if len(gross) != 1 || gross[0].Source != extraction.SourceLedger || gross[0].Confidence != 0.95 {
		t.Errorf("gross finding = %+v", gross)
	}
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"account", "DEBIT", "Credit"},
		{"Gross receipts", nil, 500000},
		{"Cost of goods sold", 200000, nil},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	sys := extraction.New(memSource{"k": buf.Bytes()}, nil, prompts.Defaults{})
	result, err := sys.Extract(context.Background(), extraction.Document{Name: "ledger.xlsx", Key: "k"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if result.TaxData[extraction.GrossReceipts] != 500000 {
		t.Errorf("gross = %g", result.TaxData[extraction.GrossReceipts])
	}
	if result.TaxData[extraction.CostOfGoodsSold] != 200000 {
		t.Errorf("cogs = %g", result.TaxData[extraction.CostOfGoodsSold])
	}
}

func TestExtractTextPatterns(t *testing.T) {
	text := strings.Join([]string{
		"Summary of operations",
		"Revenue: $2,400,000.00",
		"COGS: 1,500,000",
		"Operating expenses $600,000",
		"Net income: 300,000",
		"Total assets: $5,000,000",
		"Liabilities 1,200,000",
		"Equity: 3,800,000",
	}, "\n")

	sys := extraction.New(memSource{"notes.txt": []byte(text)}, nil, prompts.Defaults{})
	result, err := sys.Extract(context.Background(), extraction.Document{Name: "notes.txt", Key: "notes.txt"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := map[string]float64{
		extraction.GrossReceipts:     2400000,
		extraction.CostOfGoodsSold:   1500000,
		extraction.OperatingExpenses: 600000,
		extraction.NetIncome:         300000,
		extraction.TotalAssets:       5000000,
		extraction.TotalLiabilities:  1200000,
		extraction.Equity:            3800000,
	}
	for field, v := range want {
		if got := result.TaxData[field]; got != v {
			t.Errorf("%s = %g, want %g", field, got, v)
		}
	}

	doc := findings(result, "document_text")
	if len(doc) != 1 || doc[0].Source != extraction.SourceText || doc[0].Confidence != 0.9 {
		t.Errorf("document_text finding = %+v", doc)
	}
	for _, f := range findings(result, extraction.NetIncome) {
		if f.Source != extraction.SourcePattern || f.Confidence != 0.8 {
			t.Errorf("net income finding = %+v", f)
		}
	}
}

func TestMapTaxDataLedgerTakesPrecedence(t *testing.T) {
	table := &state.Table{
		Columns: []string{"Account", "Debit", "Credit"},
		Rows: [][]state.Value{
			{state.Text("Gross receipts"), state.Null{}, state.Number(900)},
		},
	}

	data, found := extraction.MapTaxData(table, "gross receipts: 100\nnet income: 50")

	if data[extraction.GrossReceipts] != 900 {
		t.Errorf("gross = %g, want ledger value 900", data[extraction.GrossReceipts])
	}
	if data[extraction.NetIncome] != 50 {
		t.Errorf("net income = %g, want text value 50", data[extraction.NetIncome])
	}

	var sources []string
	for _, f := range found {
		sources = append(sources, f.Field+"="+f.Source)
	}
	got := strings.Join(sources, ",")
	if got != "gross_receipts=dataframe_extraction,net_income=pattern_matching" {
		t.Errorf("findings = %s", got)
	}
}

func TestMapTaxDataFirstPatternWins(t *testing.T) {
	data, _ := extraction.MapTaxData(nil, "Revenue: 10\nGross receipts: 20")
	if data[extraction.GrossReceipts] != 20 {
		t.Errorf("gross = %g, want the gross receipts pattern to win", data[extraction.GrossReceipts])
	}
}

func TestLedgerRowsNonLedger(t *testing.T) {
	table := &state.Table{Columns: []string{"Date", "Amount"}}
	if _, ok := extraction.LedgerRows(table); ok {
		t.Error("expected non-ledger table")
	}
}

func TestExtractErrors(t *testing.T) {
	src := memSource{"empty.csv": nil, "bad.pdf": []byte("not a pdf")}
	sys := extraction.New(src, &mockVision{}, prompts.Defaults{})

	tests := []struct {
		name string
		doc  extraction.Document
		want error
	}{
		{"unsupported", extraction.Document{Name: "a.docx", Key: "a.docx"}, extraction.ErrUnsupportedFormat},
		{"missing", extraction.Document{Name: "gone.csv", Key: "gone.csv"}, os.ErrNotExist},
		{"empty", extraction.Document{Name: "empty.csv", Key: "empty.csv"}, extraction.ErrEmptyDocument},
		{"invalid pdf", extraction.Document{Name: "bad.pdf", Key: "bad.pdf"}, extraction.ErrInvalidPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sys.Extract(context.Background(), tt.doc)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// minimalPDF builds a PDF with the given number of blank pages and a
// correct cross-reference table.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := []int{}

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for range pages {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

func TestExtractPDFTranscribesPages(t *testing.T) {
	renderer := extraction.RendererFunc(func(_ context.Context, data []byte) ([]string, error) {
		return []string{"data:image/png;base64,MQ==", "data:image/png;base64,Mg=="}, nil
	})

	vision := &mockVision{
		reply: func(prompt string, images []string) (string, error) {
			if !strings.Contains(prompt, "transcribing a page") {
				return "", errors.New("missing transcribe instructions")
			}
			switch images[0] {
			case "data:image/png;base64,MQ==":
				return "Gross receipts: $800,000\n", nil
			default:
				return "Cost of goods sold: 500,000", nil
			}
		},
	}

	src := memSource{"return.pdf": minimalPDF(2)}
	sys := extraction.New(src, vision, prompts.Defaults{},
		extraction.WithRenderer(renderer),
		extraction.WithWorkers(2),
	)

	result, err := sys.Extract(context.Background(), extraction.Document{Name: "return.pdf", Key: "return.pdf"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if result.Pages != 2 {
		t.Errorf("Pages = %d, want 2", result.Pages)
	}
	if vision.calls.Load() != 2 {
		t.Errorf("vision calls = %d, want 2", vision.calls.Load())
	}
	if !strings.HasPrefix(result.Text, "Gross receipts") {
		t.Errorf("pages out of order: %q", result.Text)
	}
	if result.TaxData[extraction.GrossReceipts] != 800000 || result.TaxData[extraction.CostOfGoodsSold] != 500000 {
		t.Errorf("TaxData = %v", result.TaxData)
	}

	doc := findings(result, "document_text")
	if len(doc) != 1 || doc[0].Source != extraction.SourceOCR || doc[0].Confidence != 0.7 {
		t.Errorf("document_text finding = %+v", doc)
	}
}

func TestExtractPDFTranscriptionFailure(t *testing.T) {
	renderer := extraction.RendererFunc(func(context.Context, []byte) ([]string, error) {
		return []string{"data:image/png;base64,MQ=="}, nil
	})
	vision := &mockVision{
		reply: func(string, []string) (string, error) { return "", errors.New("model offline") },
	}

	sys := extraction.New(memSource{"r.pdf": minimalPDF(1)}, vision, prompts.Defaults{}, extraction.WithRenderer(renderer))

	_, err := sys.Extract(context.Background(), extraction.Document{Name: "r.pdf", Key: "r.pdf"})
	if !errors.Is(err, extraction.ErrTranscribeFailed) {
		t.Errorf("err = %v, want ErrTranscribeFailed", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Equity: 10"), 0600); err != nil {
		t.Fatal(err)
	}

	sys := extraction.New(extraction.FileSource{Root: dir}, nil, prompts.Defaults{})
	result, err := sys.Extract(context.Background(), extraction.Document{Name: "notes.txt", Key: "notes.txt"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.TaxData[extraction.Equity] != 10 {
		t.Errorf("equity = %g", result.TaxData[extraction.Equity])
	}
}

func TestResultValue(t *testing.T) {
	r := &extraction.Result{
		Name:    "notes.txt",
		Format:  extraction.FormatText,
		Text:    "hello",
		TaxData: map[string]float64{extraction.Equity: 5},
	}

	v := r.Value()
	if text, _ := v.Text("text"); text != "hello" {
		t.Errorf("text = %q", text)
	}
	if _, ok := v["table"].(state.Null); !ok {
		t.Errorf("table = %#v, want Null", v["table"])
	}
	taxData, ok := v.Map("tax_data")
	if !ok {
		t.Fatal("tax_data missing")
	}
	if n, _ := taxData.Number(extraction.Equity); n != 5 {
		t.Errorf("equity = %g", n)
	}
}
