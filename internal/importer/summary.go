package importer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type ProjectUpdate struct {
	AwardNumber string        `json:"award_number"`
	ProjectID   int64         `json:"project_id"`
	Title       string        `json:"title"`
	Changes     []FieldChange `json:"changes"`
}

type PeopleSummary struct {
	AwardNumber string   `json:"award_number"`
	Linked      []string `json:"linked"`
	Matched     []string `json:"matched"`
	ToCreate    []string `json:"to_create"`
}

// Summary is what the operator reviews before confirming an import.
type Summary struct {
	Format       string          `json:"format"`
	Rows         int             `json:"rows"`
	AwardNumbers []string        `json:"award_numbers"`
	ToCreate     []string        `json:"to_create"`
	ToUpdate     []ProjectUpdate `json:"to_update"`
	Unchanged    []string        `json:"unchanged"`
	People       []PeopleSummary `json:"people"`
	Warnings     []string        `json:"warnings,omitempty"`
}

func buildSummary(format string, plans []*RowPlan) *Summary {
	s := &Summary{Format: format, Rows: len(plans)}
	for _, plan := range plans {
		for _, w := range plan.Warnings {
			s.Warnings = append(s.Warnings, fmt.Sprintf("%s: %s", lineLabel(plan.Line), w))
		}
		if plan.Skip {
			continue
		}
		s.AwardNumbers = append(s.AwardNumbers, plan.AwardNumber)

		switch {
		case plan.IsNew():
			s.ToCreate = append(s.ToCreate, plan.AwardNumber)
		case len(plan.Changes) > 0:
			s.ToUpdate = append(s.ToUpdate, ProjectUpdate{
				AwardNumber: plan.AwardNumber,
				ProjectID:   plan.Project.ID,
				Title:       plan.Project.Title,
				Changes:     plan.Changes,
			})
		default:
			s.Unchanged = append(s.Unchanged, plan.AwardNumber)
		}

		if len(plan.People) == 0 {
			continue
		}
		ps := PeopleSummary{AwardNumber: plan.AwardNumber}
		for _, p := range plan.People {
			switch p.State {
			case MatchLinked:
				ps.Linked = append(ps.Linked, p.Name)
			case MatchExisting:
				ps.Matched = append(ps.Matched, p.Name)
			default:
				ps.ToCreate = append(ps.ToCreate, p.Name)
			}
		}
		s.People = append(s.People, ps)
	}
	return s
}

// UsersToCreate lists every distinct name that will get a new account.
func (s *Summary) UsersToCreate() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ps := range s.People {
		for _, name := range ps.ToCreate {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out
}

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"excerpt": func(s string) string { return Excerpt(s, 160) },
}).Parse(`<div class="pimm-import-summary">
<p>Format: {{.Format}}. Rows: {{.Rows}}.</p>
{{if .ToCreate}}<h3>Projects to be created</h3>
<ul>{{range .ToCreate}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .ToUpdate}}<h3>Projects to be updated</h3>
{{range .ToUpdate}}<h4>{{.AwardNumber}}: {{.Title}}</h4>
<table><thead><tr><th>Field</th><th>Current</th><th>New</th></tr></thead><tbody>
{{range .Changes}}<tr><td>{{.Field}}</td><td>{{excerpt .Old}}</td><td>{{excerpt .New}}</td></tr>{{end}}
</tbody></table>{{end}}{{end}}
{{if .Unchanged}}<h3>Unchanged</h3>
<ul>{{range .Unchanged}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .People}}<h3>Users</h3>
<table><thead><tr><th>Award</th><th>Linked</th><th>Matched</th><th>To be created</th></tr></thead><tbody>
{{range .People}}<tr><td>{{.AwardNumber}}</td><td>{{range .Linked}}{{.}}<br>{{end}}</td><td>{{range .Matched}}{{.}}<br>{{end}}</td><td>{{range .ToCreate}}{{.}}<br>{{end}}</td></tr>{{end}}
</tbody></table>{{end}}
{{if .Warnings}}<h3>Warnings</h3>
<ul>{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>{{end}}
</div>`))

// HTML renders the summary as a sanitized fragment.
func (s *Summary) HTML() (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return bodyPolicy.Sanitize(buf.String()), nil
}

// Text renders the summary as plain tables for terminal output.
func (s *Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Format: %s. Rows: %d.\n", s.Format, s.Rows)

	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Award", "Action", "Field", "Current", "New"})
	for _, award := range s.ToCreate {
		t.AppendRow(table.Row{award, "create", "", "", ""})
	}
	for _, u := range s.ToUpdate {
		for _, c := range u.Changes {
			t.AppendRow(table.Row{u.AwardNumber, "update", c.Field, Excerpt(c.Old, 40), Excerpt(c.New, 40)})
		}
	}
	for _, award := range s.Unchanged {
		t.AppendRow(table.Row{award, "unchanged", "", "", ""})
	}
	t.Render()

	if len(s.People) > 0 {
		p := table.NewWriter()
		p.SetOutputMirror(&b)
		p.SetStyle(table.StyleLight)
		p.AppendHeader(table.Row{"Award", "Linked", "Matched", "To be created"})
		for _, ps := range s.People {
			p.AppendRow(table.Row{
				ps.AwardNumber,
				strings.Join(ps.Linked, ", "),
				strings.Join(ps.Matched, ", "),
				strings.Join(ps.ToCreate, ", "),
			})
		}
		p.Render()
	}

	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}
