// Package routes declares HTTP routes as data so handlers can describe
// their endpoints and the API module can register them on a ServeMux.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group shares a prefix across routes and nested groups.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route in groups to mux as "METHOD prefix+pattern".
func Register(mux *http.ServeMux, groups ...Group) {
	for _, g := range groups {
		g.walk("", func(pattern string, rt Route) {
			mux.HandleFunc(pattern, rt.Handler)
		})
	}
}

// Patterns lists the registration patterns of groups in declaration order.
func Patterns(groups ...Group) []string {
	var out []string
	for _, g := range groups {
		g.walk("", func(pattern string, _ Route) {
			out = append(out, pattern)
		})
	}
	return out
}

func (g Group) walk(parent string, fn func(pattern string, rt Route)) {
	prefix := parent + g.Prefix
	for _, rt := range g.Routes {
		fn(rt.Method+" "+prefix+rt.Pattern, rt)
	}
	for _, child := range g.Children {
		child.walk(prefix, fn)
	}
}
