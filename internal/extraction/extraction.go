// Package extraction turns uploaded financial documents into text, tables
// and tax fields. PDFs are rendered page by page and transcribed through a
// vision model; spreadsheets and plain text are parsed directly.
package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

// Format is the detected document format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// Source references recorded with findings.
const (
	SourceSpreadsheet = "spreadsheet"
	SourceOCR         = "ocr_transcription"
	SourceText        = "text_document"
	SourceLedger      = "dataframe_extraction"
	SourcePattern     = "pattern_matching"
)

// Document identifies an uploaded file.
type Document struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
}

// Finding is a value discovered during extraction, ready to be recorded in
// the provenance trail.
type Finding struct {
	Field      string
	Value      any
	Source     string
	Confidence float64
	Metadata   map[string]any
}

// Result is everything extracted from one document.
type Result struct {
	Name     string
	Format   Format
	Text     string
	Table    *state.Table
	Pages    int
	TaxData  map[string]float64
	Findings []Finding
}

// Value renders the result as the context entry stored under the
// document name.
func (r *Result) Value() state.Map {
	taxData := make(state.Map, len(r.TaxData))
	for k, v := range r.TaxData {
		taxData[k] = state.Number(v)
	}

	var table state.Value = state.Null{}
	if r.Table != nil {
		table = r.Table
	}

	return state.Map{
		"text":     state.Text(r.Text),
		"table":    table,
		"tax_data": taxData,
		"pages":    state.Number(r.Pages),
		"format":   state.Text(r.Format),
	}
}

// System extracts a single document.
type System interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// Option configures the extractor.
type Option func(*extractor)

// WithWorkers bounds concurrent page transcriptions. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRenderer replaces the ImageMagick page renderer.
func WithRenderer(r Renderer) Option {
	return func(e *extractor) { e.renderer = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *extractor) { e.logger = l }
}

type extractor struct {
	source   Source
	vision   reasoning.System
	prompts  prompts.Resolver
	renderer Renderer
	workers  int
	logger   *slog.Logger
}

// New creates an extractor reading documents from source. vision and
// resolver are only used for PDFs.
func New(source Source, vision reasoning.System, resolver prompts.Resolver, opts ...Option) System {
	e := &extractor{
		source:   source,
		vision:   vision,
		prompts:  resolver,
		renderer: ImageMagick{},
		workers:  4,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("system", "extraction")
	return e
}

func (e *extractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	format, err := DetectFormat(doc.Name, doc.ContentType)
	if err != nil {
		return nil, err
	}

	rc, err := e.source.Open(ctx, doc.Key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", doc.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc.Name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Name)
	}

	result := &Result{Name: doc.Name, Format: format}

	switch format {
	case FormatCSV:
		result.Table, err = readCSV(data)
	case FormatXLSX:
		result.Table, err = readXLSX(data)
	case FormatPDF:
		result.Text, result.Pages, err = e.transcribe(ctx, doc.Name, data)
	case FormatText:
		result.Text = string(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", doc.Name, err)
	}

	result.Findings = append(result.Findings, contentFinding(result))

	taxData, findings := MapTaxData(result.Table, result.Text)
	result.TaxData = taxData
	result.Findings = append(result.Findings, findings...)

	e.logger.InfoContext(ctx, "document extracted",
		"name", doc.Name,
		"format", format,
		"pages", result.Pages,
		"tax_fields", len(taxData),
	)
	return result, nil
}

func contentFinding(r *Result) Finding {
	switch r.Format {
	case FormatCSV, FormatXLSX:
		return Finding{
			Field:      "spreadsheet_data",
			Value:      fmt.Sprintf("%d rows, %d columns", r.Table.Len(), len(r.Table.Columns)),
			Source:     SourceSpreadsheet,
			Confidence: 1.0,
			Metadata: map[string]any{
				"file_type": string(r.Format),
				"file_name": r.Name,
				"columns":   r.Table.Columns,
			},
		}
	case FormatPDF:
		return Finding{
			Field:      "document_text",
			Value:      len(r.Text),
			Source:     SourceOCR,
			Confidence: 0.7,
			Metadata: map[string]any{
				"method":    "vision_transcription",
				"file_name": r.Name,
				"pages":     r.Pages,
			},
		}
	default:
		return Finding{
			Field:      "document_text",
			Value:      len(r.Text),
			Source:     SourceText,
			Confidence: 0.9,
			Metadata: map[string]any{
				"method":    "plain_text",
				"file_name": r.Name,
			},
		}
	}
}

// DetectFormat picks the format from the file extension, falling back to
// the content type.
func DetectFormat(name, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".pdf":
		return FormatPDF, nil
	case ".txt":
		return FormatText, nil
	}

	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(mediaType) {
	case "text/csv":
		return FormatCSV, nil
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX, nil
	case "application/pdf":
		return FormatPDF, nil
	case "text/plain":
		return FormatText, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}
