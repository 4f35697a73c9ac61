package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"pulse/bot/internal/store"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"orDash": func(s string) string {
			if strings.TrimSpace(s) == "" {
				return store.Sentinel
			}
			return s
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// TemplateData holds data for report template rendering.
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Kind        Kind
	AllClear    bool
	Groups      []TemplateGroup
}

// TemplateGroup is one category section of the report.
type TemplateGroup struct {
	Category string
	Records  []*store.ProjectRecord
}

// RenderReportHTML renders the report template with provided data.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Helvetica, Arial, sans-serif; color: #1a1a2e; margin: 0; }
    h1 { font-size: 22px; border-bottom: 2px solid #1a1a2e; padding-bottom: 8px; }
    h2 { font-size: 16px; margin-top: 28px; color: #16213e; }
    .meta { color: #666; font-size: 11px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; font-size: 12px; }
    th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #ddd; vertical-align: top; }
    th { background: #f4f4f8; }
    .blocker { color: #b00020; }
    @page { size: letter; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p class="meta">Generated {{.GeneratedAt.Format "2006-01-02 15:04"}}</p>
  {{if .AllClear}}
  <h2>All clear</h2>
  <p>No projects are currently blocked.</p>
  {{end}}
  {{range .Groups}}
  <h2>{{.Category}} ({{len .Records}})</h2>
  <table>
    <tr>
      <th>Client</th>
      <th>Status</th>
      {{if ne $.Kind "summary"}}<th>Blocker</th>{{end}}
      {{if eq $.Kind "full"}}<th>Owner</th><th>Developer</th><th>Last Contact</th><th>Updated</th>{{end}}
    </tr>
    {{range .Records}}
    <tr>
      <td>{{.Client}}</td>
      <td>{{orDash .Status}}</td>
      {{if ne $.Kind "summary"}}<td class="blocker">{{orDash .Blocker}}</td>{{end}}
      {{if eq $.Kind "full"}}
      <td>{{orDash .Owner}}</td>
      <td>{{orDash .Developer}}</td>
      <td>{{orDash .LastContactDate}}</td>
      <td>{{orDash .LastUpdated}}</td>
      {{end}}
    </tr>
    {{end}}
  </table>
  {{end}}
</body>
</html>`
