// Package dashboard renders Grafana dashboards for the GreptimeDB tables the
// sinks write.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"loadprobe/internal/config"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// DatasourceEnv names the variable holding the Grafana datasource UID.
const DatasourceEnv = "GREPTIMEDB_DATASOURCE_UID"

// Tables are the table names substituted into the dashboard queries.
type Tables struct {
	Requests string
	Summary  string
}

// TablesFrom takes the table names from the greptime config, falling back to
// the defaults for empty names.
func TablesFrom(g config.GreptimeConfig) Tables {
	def := config.Default().Greptime
	t := Tables{Requests: g.RequestTable, Summary: g.SummaryTable}
	if t.Requests == "" {
		t.Requests = def.RequestTable
	}
	if t.Summary == "" {
		t.Summary = def.SummaryTable
	}
	return t
}

// Render parses the embedded dashboard templates and writes the rendered
// dashboards to outDir. It returns the written paths.
func Render(outDir string, tables Tables) ([]string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, e := range names {
		t, err := template.New(e.Name()).Funcs(funcMap).ParseFS(templates, "templates/"+e.Name())
		if err != nil {
			return nil, err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(e.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return nil, err
		}
		if err := t.Execute(f, tables); err != nil {
			f.Close()
			return nil, fmt.Errorf("render %s: %w", e.Name(), err)
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
