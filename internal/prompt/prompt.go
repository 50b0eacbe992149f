// Package prompt builds the chat instructions sent to the completion endpoint.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// Messages is a system instruction paired with the user content it applies to.
type Messages struct {
	System string
	User   string
}

const modelTemplate = `You are a helpful SQL Developer and Expert in dbt.
Your job is to receive a SQL and generate the YAML in dbt format.
You will not respond anything else, just the YAML code formatted to be saved into a file.

IMPORTANT RULES:

1. DO NOT PROSE.
2. DO NOT DEVIATE OR INVENT FROM THE CONTEXT.
3. Always follow dbt conventions!
4. The context will always be ONE FULL SQL.
5. DO NOT WRAP WITH MARKDOWN.
6. The model name will always be the file name.
7. NO NEW LINE BETWEEN COLUMNS!

DO NOT ADD A HEADER TO DBT YAML.
THIS CODE WILL APPEND TO AN EXISTING YAML FILE.

Examples of YAML structure:

  - name: model_name
    description: markdown_string
    columns:
      - name: column_name
        description: markdown_string
      - name: column_name
        description: markdown_string

INCLUDE TESTS IF YOU KNOW WHAT THE COLUMN NEEDS.

File Name to be used as MODEL NAME: {{.Name}}

Convert the following DBT SQL code to YAML:
`

const logTemplate = `You are an expert in dbt and SQL troubleshooting.
You receive one section of a dbt log and extract what went wrong.

Respond with a single JSON object and nothing else, using exactly these keys:

{
  "errors": ["each error message found in the log, verbatim"],
  "keywords": ["SQL or dbt keywords involved in the errors"],
  "models": ["names of the dbt models mentioned in the errors"],
  "corrections": ["one concrete suggested fix per error"]
}

Use empty arrays when nothing applies. DO NOT WRAP WITH MARKDOWN.
{{- if .Name}}

Log section: {{.Name}}
{{- end}}
`

// Builder renders the instruction templates. A Builder is safe for
// concurrent use.
type Builder struct {
	model *template.Template
	logs  *template.Template
}

// NewBuilder parses the instruction templates.
func NewBuilder() *Builder {
	return &Builder{
		model: template.Must(template.New("model").Parse(modelTemplate)),
		logs:  template.Must(template.New("logs").Parse(logTemplate)),
	}
}

// Build returns the instructions documenting one SQL model. name is embedded
// verbatim in the system text and content is passed through untouched as
// the user text.
func (b *Builder) Build(content, name string) (Messages, error) {
	system, err := render(b.model, name)
	if err != nil {
		return Messages{}, fmt.Errorf("failed to render prompt for %s: %w", name, err)
	}
	return Messages{System: system, User: content}, nil
}

// BuildLogAnalysis returns the instructions extracting errors from one log
// section. label identifies the section in the system text and may be empty.
func (b *Builder) BuildLogAnalysis(label, section string) (Messages, error) {
	system, err := render(b.logs, label)
	if err != nil {
		return Messages{}, fmt.Errorf("failed to render log analysis prompt: %w", err)
	}
	return Messages{System: system, User: section}, nil
}

func render(tmpl *template.Template, name string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Name string }{Name: name}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
