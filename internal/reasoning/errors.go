package reasoning

import "errors"

var (
	ErrAllProvidersFailed = errors.New("all reasoning providers failed")
	ErrVisionUnsupported  = errors.New("provider does not support vision")
	ErrUnknownProvider    = errors.New("unknown reasoning provider")
	ErrNoProviders        = errors.New("no reasoning providers configured")
	ErrEmptyResponse      = errors.New("empty reasoning response")
)
