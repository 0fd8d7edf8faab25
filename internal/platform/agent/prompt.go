package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/phrazzld/taskforge/internal/domain"
)

var planTemplate = template.Must(template.New("plan").Parse(
	`You are planning a {{.Type}} task for an autonomous agent.

Goal:
{{.Goal}}

Reply with a single JSON object of the form
{"steps": ["<step>", ...], "deliverable": "<what the result will contain>"}
and nothing else.`))

var executeTemplate = template.Must(template.New("execute").Parse(
	`You are an autonomous agent carrying out a {{.Type}} task.

Goal:
{{.Goal}}

Plan:
{{.Plan}}

Carry out the plan. Reply with a single JSON object of the form
{"summary": "<one paragraph>", "output": <the deliverable>}
and nothing else.`))

type promptData struct {
	Goal string
	Type domain.TaskType
	Plan string
}

func render(tmpl *template.Template, t *domain.Task, plan json.RawMessage) (string, error) {
	data := promptData{Goal: t.Goal, Type: t.Type, Plan: "(none)"}
	if len(plan) > 0 {
		data.Plan = string(plan)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
