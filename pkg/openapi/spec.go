package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Spec represents an OpenAPI 3.1 specification document.
type Spec struct {
	OpenAPI    string               `json:"openapi"`
	Info       *Info                `json:"info"`
	Servers    []*Server            `json:"servers,omitempty"`
	Paths      map[string]*PathItem `json:"paths"`
	Components *Components          `json:"components,omitempty"`
}

// NewSpec creates a Spec from cfg with the given version and default components.
func NewSpec(cfg *Config, version string) *Spec {
	return &Spec{
		OpenAPI: "3.1.0",
		Info: &Info{
			Title:       cfg.Title,
			Version:     version,
			Description: cfg.Description,
		},
		Components: NewComponents(),
		Paths:      make(map[string]*PathItem),
	}
}

// AddServer appends a server URL to the spec.
func (s *Spec) AddServer(url string) {
	s.Servers = append(s.Servers, &Server{URL: url})
}

// AddPatterns describes ServeMux patterns of the form "METHOD /path/{param}".
// Wildcards become required path parameters and the first path segment
// becomes the operation tag.
func (s *Spec) AddPatterns(patterns ...string) {
	for _, p := range patterns {
		method, path, ok := strings.Cut(p, " ")
		if !ok {
			continue
		}
		if path == "" {
			path = "/"
		}

		path, params := pathParams(path)
		op := &Operation{
			OperationID: operationID(method, path),
			Tags:        tags(path),
			Parameters:  params,
			Responses:   defaultResponses(method, len(params) > 0),
		}
		if method == http.MethodPost || method == http.MethodPut {
			op.RequestBody = JSONBody()
		}

		item, exists := s.Paths[path]
		if !exists {
			item = &PathItem{}
			s.Paths[path] = item
		}
		item.set(method, op)
	}
}

// SetRequestBody replaces the request body of the operation registered for
// pattern. It reports whether the operation exists.
func (s *Spec) SetRequestBody(pattern string, body *RequestBody) bool {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		return false
	}
	path, _ = pathParams(path)

	item, exists := s.Paths[path]
	if !exists {
		return false
	}
	op := item.get(method)
	if op == nil {
		return false
	}
	op.RequestBody = body
	return true
}

// MarshalJSON serializes the spec to indented JSON bytes.
func MarshalJSON(spec *Spec) ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

// ServeSpec returns a handler that serves pre-serialized JSON spec bytes.
func ServeSpec(specBytes []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(specBytes)
	}
}

func (p *PathItem) set(method string, op *Operation) {
	switch method {
	case http.MethodGet:
		p.Get = op
	case http.MethodPost:
		p.Post = op
	case http.MethodPut:
		p.Put = op
	case http.MethodDelete:
		p.Delete = op
	}
}

func (p *PathItem) get(method string) *Operation {
	switch method {
	case http.MethodGet:
		return p.Get
	case http.MethodPost:
		return p.Post
	case http.MethodPut:
		return p.Put
	case http.MethodDelete:
		return p.Delete
	}
	return nil
}

func pathParams(path string) (string, []*Parameter) {
	segments := strings.Split(path, "/")
	var params []*Parameter

	for i, seg := range segments {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSuffix(seg[1:len(seg)-1], "..."), "$")
		if name == "" {
			continue
		}
		segments[i] = "{" + name + "}"

		param := &Parameter{
			Name:     name,
			In:       "path",
			Required: true,
			Schema:   &Schema{Type: "string"},
		}
		if name == "id" {
			param.Schema.Format = "uuid"
		}
		params = append(params, param)
	}

	return strings.Join(segments, "/"), params
}

func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for seg := range strings.SplitSeq(path, "/") {
		seg = strings.Trim(seg, "{}")
		if seg == "" {
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(seg[1:])
	}
	return b.String()
}

func tags(path string) []string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "" || strings.HasPrefix(first, "{") {
		return nil
	}
	return []string{first}
}

func defaultResponses(method string, hasParams bool) map[int]*Response {
	responses := map[int]*Response{
		http.StatusBadRequest:   ResponseRef("BadRequest"),
		http.StatusUnauthorized: ResponseRef("Unauthorized"),
	}

	switch method {
	case http.MethodPost:
		responses[http.StatusCreated] = &Response{Description: "Created"}
		responses[http.StatusOK] = &Response{Description: "OK"}
	case http.MethodDelete:
		responses[http.StatusNoContent] = &Response{Description: "Deleted"}
	default:
		responses[http.StatusOK] = &Response{Description: "OK"}
	}

	if hasParams {
		responses[http.StatusNotFound] = ResponseRef("NotFound")
	}
	return responses
}
