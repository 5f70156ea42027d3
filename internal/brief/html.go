package brief

import (
	"bytes"
	"html/template"
)

var briefTemplate = template.Must(template.New("brief").Parse(briefHTML))

// RenderHTML renders a brief document as a self-contained HTML fragment.
// Styles are inline so the markup prints cleanly and survives being stored
// verbatim in a proposal row.
func RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := briefTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EmptyHTML is stored when no active questionnaire exists.
const EmptyHTML = "<p>No active questionnaire found.</p>"

const briefHTML = `<article style="font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial; line-height:1.5; color:#111">
  <header style="margin-bottom:24px">
    <h1 style="font-size:22px; font-weight:700; margin:0">{{.ProjectName}}</h1>
    <p style="margin:4px 0 0; opacity:.75">{{.ClientName}} &bull; {{.ProjectType}}</p>
    <p style="margin:2px 0 0; opacity:.6">{{.GeneratedAt.Format "Jan 2, 2006 3:04 PM"}}</p>
  </header>
{{- range .Sections}}
  <section style="margin:24px 0; padding:16px; border:1px solid #e5e7eb; border-radius:12px">
    <h2 style="font-size:16px; font-weight:600; margin:0 0 12px">{{.Title}}</h2>
    <dl style="display:grid; grid-template-columns: 220px 1fr; gap:10px 16px; margin:0">
{{- range .Items}}
      <dt style="opacity:.7">{{.Label}}</dt>
      <dd style="margin:0">{{.Value}}</dd>
{{- end}}
    </dl>
  </section>
{{- end}}
</article>
`
