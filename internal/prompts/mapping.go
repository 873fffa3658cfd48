package prompts

import (
	"net/url"
	"strconv"

	"github.com/JaimeStill/taxdraft/pkg/query"
	"github.com/JaimeStill/taxdraft/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "prompts", "p").
	Project("id", "ID").
	Project("name", "Name").
	Project("stage", "Stage").
	Project("instructions", "Instructions").
	Project("description", "Description").
	Project("active", "Active")

var defaultSort = query.SortField{
	Field: "Name",
}

// Filters narrows prompt queries. Nil fields are ignored; Name matches
// case-insensitively as a substring.
type Filters struct {
	Stage  *Stage  `json:"stage,omitempty"`
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func (f Filters) Apply(b *query.Builder) *query.Builder {
	var stage *string
	if f.Stage != nil {
		s := string(*f.Stage)
		stage = &s
	}

	return b.
		WhereEquals("Stage", stage).
		WhereContains("Name", f.Name).
		WhereEquals("Active", f.Active)
}

// FiltersFromQuery reads stage, name and active from query parameters.
// Unknown stages and unparsable booleans are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("stage"); s != "" {
		if stage, err := ParseStage(s); err == nil {
			f.Stage = &stage
		}
	}

	if n := values.Get("name"); n != "" {
		f.Name = &n
	}

	if a := values.Get("active"); a != "" {
		if v, err := strconv.ParseBool(a); err == nil {
			f.Active = &v
		}
	}

	return f
}

func scanPrompt(s repository.Scanner) (Prompt, error) {
	var p Prompt
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Stage,
		&p.Instructions,
		&p.Description,
		&p.Active,
	)
	return p, err
}

func validate(name string, stage Stage, instructions string) error {
	if name == "" {
		return ErrEmptyName
	}
	if _, err := ParseStage(string(stage)); err != nil {
		return err
	}
	if instructions == "" {
		return ErrEmpty
	}
	return nil
}
