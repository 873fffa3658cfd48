// Package middleware holds the HTTP middleware stack: CORS, request
// logging and OIDC bearer authentication.
package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Stack applies middleware in registration order; the first registered is outermost.
type Stack struct {
	stack []Middleware
}

func (s *Stack) Use(mw ...Middleware) {
	s.stack = append(s.stack, mw...)
}

func (s *Stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.stack) - 1; i >= 0; i-- {
		handler = s.stack[i](handler)
	}
	return handler
}

func (s *Stack) Len() int {
	return len(s.stack)
}
