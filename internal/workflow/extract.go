package workflow

import (
	"context"
	"fmt"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

const StepExtractData = "ExtractData"

type extractData struct {
	engine.Base
	rt *Runtime
}

// ExtractData extracts every uploaded file and merges the tax fields found.
func ExtractData(rt *Runtime) engine.Step {
	return &extractData{
		Base: engine.NewBase(StepExtractData, "Extract financial data from uploaded documents using PDF parsing and OCR"),
		rt:   rt,
	}
}

func (s *extractData) Run(ctx context.Context, st *state.State) (*state.State, error) {
	docs, err := uploadedFiles(st)
	if err != nil || len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	extracted := make(state.Map, len(docs))
	taxData := make(state.Map)
	names := make([]string, 0, len(docs))

	for _, doc := range docs {
		result, err := s.rt.Extractor.Extract(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtractFailed, err)
		}

		extracted[doc.Name] = result.Value()
		names = append(names, doc.Name)

		for _, f := range result.Findings {
			s.rt.Tracker.Add(s.Name(), f.Field, f.Value, f.Source,
				provenance.WithConfidence(f.Confidence),
				provenance.WithMetadata(f.Metadata),
			)
		}

		for _, field := range extraction.TaxFields {
			v, ok := result.TaxData[field]
			if !ok {
				continue
			}
			if _, seen := taxData[field]; !seen {
				taxData[field] = state.Number(v)
			}
		}
	}

	st.Set(KeyExtractedData, extracted)
	st.Set(KeyTaxData, taxData)

	s.rt.Tracker.Add(s.Name(), "extraction_summary", fmt.Sprintf("Processed %d files", len(docs)), "extract_data_step",
		provenance.WithConfidence(0.9),
		provenance.WithMetadata(map[string]any{
			"files_processed":  len(docs),
			"file_names":       names,
			"tax_fields_found": len(taxData),
		}),
	)

	s.rt.Logger.InfoContext(ctx, "data extracted",
		"files", len(docs),
		"tax_fields", len(taxData),
	)
	return st, nil
}
