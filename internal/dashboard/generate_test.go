package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadprobe/internal/config"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv(DatasourceEnv, "")
	_, err := Render(t.TempDir(), TablesFrom(config.GreptimeConfig{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), DatasourceEnv)
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv(DatasourceEnv, "uid1")

	dir := t.TempDir()
	paths, err := Render(dir, Tables{Requests: "probe_requests", Summary: "probe_summary"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "loadprobe-dashboard.json"), paths[0])

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	body := string(b)
	assert.Contains(t, body, `"uid": "uid1"`)
	assert.Contains(t, body, "FROM probe_requests")
	assert.Contains(t, body, "FROM probe_summary")
	assert.False(t, strings.Contains(body, "{{"), "template actions left unrendered")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc), "rendered dashboard must be valid JSON")
	assert.Len(t, doc["panels"], 6)
}

func TestTablesFromDefaults(t *testing.T) {
	assert.Equal(t, Tables{Requests: "loadtest_requests", Summary: "cluster_summary"}, TablesFrom(config.GreptimeConfig{}))
	assert.Equal(t, "x", TablesFrom(config.GreptimeConfig{RequestTable: "x"}).Requests)
}
