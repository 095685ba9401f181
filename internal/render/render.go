// internal/render/render.go
package render

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/gitter-badger/grapevine-go/internal/model"
)

// Failure describes a rendering error without crashing the caller. It is
// surfaced to operators as "Category: message" diagnostic text.
type Failure struct {
	Category string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Category, f.Err)
}

// Rendered is the output of rendering one Sendable's template state.
type Rendered struct {
	Subject string
	Body    string
}

// Render executes the template's subject and body against the Sendable's
// render context. Missing keys and parse errors come back as a *Failure.
func Render(tpl *model.Template, data map[string]string) (*Rendered, error) {
	subject, err := renderOne("subject", tpl.Subject, data)
	if err != nil {
		return nil, err
	}
	body, err := renderOne("body", tpl.Body, data)
	if err != nil {
		return nil, err
	}
	return &Rendered{Subject: subject, Body: body}, nil
}

func renderOne(name, text string, data map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", &Failure{Category: "TemplateParseError", Err: err}
	}
	var out strings.Builder
	if data == nil {
		data = map[string]string{}
	}
	if err := t.Execute(&out, data); err != nil {
		return "", &Failure{Category: "TemplateExecError", Err: err}
	}
	return out.String(), nil
}
