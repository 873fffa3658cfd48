package extraction

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("document is empty")
	ErrInvalidPDF        = errors.New("invalid pdf")
	ErrRenderFailed      = errors.New("page rendering failed")
	ErrTranscribeFailed  = errors.New("page transcription failed")
)
