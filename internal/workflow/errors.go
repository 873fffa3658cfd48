package workflow

import "errors"

var (
	ErrNoDocuments       = errors.New("no documents uploaded")
	ErrExtractFailed     = errors.New("data extraction failed")
	ErrNoTaxData         = errors.New("no tax data available")
	ErrDraftFailed       = errors.New("form drafting failed")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrInvalidPolicy     = errors.New("policy must be continue, halt, or halt_on_cancel")
)
