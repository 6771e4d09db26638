// Package markup has the rendering helpers shared by the built-in modules.
// Region markup is rendered with html/template; user-authored rich text goes
// through a bluemonday policy first.
package markup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"

	"github.com/microcosm-cc/bluemonday"
)

var ugc = bluemonday.UGCPolicy()

// Rich sanitises user HTML for embedding as-is
func Rich(s string) template.HTML {
	return template.HTML(ugc.Sanitize(s))
}

// Render executes t with data
func Render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Decode unmarshals an action payload. An empty payload leaves v untouched.
func Decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid action payload: %w", err)
	}
	return nil
}

// ID accepts both JSON numbers and numeric strings, the way form values
// arrive from the page
type ID int

func (id *ID) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("id must be a number: %s", b)
	}
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("id must be a number: %q", s)
	}
	*id = ID(n)
	return nil
}

// Funcs are available to every module template
var Funcs = template.FuncMap{
	"rich": Rich,
}
