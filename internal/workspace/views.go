package workspace

import (
	"html/template"
	"strings"

	"github.com/xelth-com/modspace/internal/registry"
)

var views = template.Must(template.New("views").Parse(`
{{define "welcome"}}<div class="welcome-state">
  <div class="welcome-icon">🚀</div>
  <div class="welcome-title">Welcome to the Modular Workspace!</div>
  <div class="welcome-description">Select a workspace to start</div>
</div>{{end}}

{{define "loading"}}<div class="loading-state">
  <div class="spinner"></div>
  <div class="loading-text">Loading {{.Name}}...</div>
</div>{{end}}

{{define "error"}}<div class="error-state">
  <div class="error-icon">⚠️</div>
  <div class="error-title">Error loading {{.Name}}</div>
  <div class="error-description">{{.Err}}</div>
  <button class="btn btn-primary" data-signal="activate" data-module="{{.ID}}">🔄 Reload</button>
</div>{{end}}

{{define "title"}}{{.}}{{end}}
`))

func render(name string, data any) string {
	var sb strings.Builder
	if err := views.ExecuteTemplate(&sb, name, data); err != nil {
		return template.HTMLEscapeString(err.Error())
	}
	return sb.String()
}

func welcomeView() string { return render("welcome", nil) }

func titleView(title string) string { return render("title", title) }

func loadingView(d registry.Descriptor) string { return render("loading", d) }

func errorView(d registry.Descriptor, err error) string {
	return render("error", struct {
		ID, Name, Err string
	}{d.ID, d.Name, err.Error()})
}
