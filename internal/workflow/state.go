package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/pkg/state"
)

// Context keys written and read by the steps.
const (
	KeyUploadedFiles = "uploaded_files"
	KeyExtractedData = "extracted_data"
	KeyTaxData       = "tax_data"
	KeyDraftedForms  = "drafted_forms"
	KeyDiagnostics   = "diagnostics"
	KeyAdjustments   = "adjustments"
)

// UploadedFiles renders docs as the uploaded_files context entry.
func UploadedFiles(docs []extraction.Document) state.List {
	out := make(state.List, len(docs))
	for i, d := range docs {
		out[i] = state.Map{
			"name":         state.Text(d.Name),
			"key":          state.Text(d.Key),
			"content_type": state.Text(d.ContentType),
		}
	}
	return out
}

func uploadedFiles(s *state.State) ([]extraction.Document, error) {
	files, err := state.Lookup[state.List](s, KeyUploadedFiles)
	if err != nil {
		return nil, err
	}
	return decode[[]extraction.Document](files)
}

// encode converts a JSON-shaped Go value into a context value.
func encode(v any) (state.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return state.From(raw)
}

// decode converts a context value into T through its JSON form.
func decode[T any](v state.Value) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %w", state.ErrShapeMismatch, err)
	}
	return out, nil
}

// lookup reads key as T, reporting false when the key is absent.
func lookup[T any](s *state.State, key string) (T, bool, error) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false, nil
	}
	if _, isNull := v.(state.Null); isNull {
		return zero, false, nil
	}
	out, err := decode[T](v)
	if err != nil {
		return zero, true, fmt.Errorf("%s: %w", key, err)
	}
	return out, true, nil
}
