package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadprobe/internal/classify"
	"loadprobe/internal/room"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loadprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
loadtest:
  target: https://chat.example.com
  vus: 25
  iterations: 500
  think_min: 500ms
  think_max: 900ms
  room_mode: single
  rooms_file: rooms.json
  payload:
    tenant_id: acme
  markers:
    - pattern: Throttled
      category: rate_limited
collector:
  endpoint: https://search.example.com
  indices: [a, b]
  interval: 1m
  parallel: true
  aws:
    profile: ops
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	lt := cfg.LoadTest
	assert.Equal(t, 25, lt.VUs)
	assert.Equal(t, int64(500), lt.Iterations)
	assert.Equal(t, 500*time.Millisecond, lt.ThinkMin)
	assert.Equal(t, room.ModeSingle, lt.RoomMode)
	assert.Equal(t, "acme", lt.Payload.TenantID)
	assert.Equal(t, "/api/v1/messages", lt.Path, "defaults survive partial files")
	assert.Equal(t, 100*time.Second, lt.Timeout)
	require.NoError(t, lt.Validate())
	assert.Equal(t, []classify.Marker{{Pattern: "Throttled", Category: classify.CategoryRateLimited}}, lt.ClassifierMarkers())

	col := cfg.Collector
	assert.Equal(t, time.Minute, col.Interval)
	assert.True(t, col.Parallel)
	assert.Equal(t, []string{"a", "b"}, col.Indices)
	assert.Equal(t, "ops", col.AWS.Profile)
	require.NoError(t, col.Validate())
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "loadtest:\n  vus: 1\n  bogus: true\n",
		"zero vus":      "loadtest:\n  vus: 0\n",
		"bad mode":      "loadtest:\n  room_mode: random\n",
		"bad duration":  "collector:\n  interval: soon\n",
		"bad category":  "loadtest:\n  markers:\n    - pattern: x\n      category: other\n",
		"relative path": "loadtest:\n  path: api\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("LOADPROBE_TARGET", "")
	t.Setenv("SEARCH_ENDPOINT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().LoadTest.VUs, cfg.LoadTest.VUs)
	assert.Equal(t, DefaultEndpointParam, cfg.Collector.EndpointParam)
	assert.Nil(t, cfg.LoadTest.ClassifierMarkers())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LOADPROBE_TARGET":      "http://localhost:9000",
		"SEARCH_ENDPOINT":       "https://search.local",
		"SEARCH_ENDPOINT_PARAM": "/custom/param",
		"AWS_REGION":            "eu-west-1",
		"GREPTIMEDB_ENDPOINT":   "greptime:4001",
		"GREPTIMEDB_DATABASE":   "probe",
		"AWS_PROFILE":           "staging",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "http://localhost:9000", cfg.LoadTest.Target)
	assert.Equal(t, "https://search.local", cfg.Collector.Endpoint)
	assert.Equal(t, "/custom/param", cfg.Collector.EndpointParam)
	assert.Equal(t, "eu-west-1", cfg.Collector.Region)
	assert.True(t, cfg.Greptime.Enabled())
	assert.Equal(t, "probe", cfg.Greptime.Database)
	assert.Equal(t, "staging", cfg.Collector.AWS.Profile)
}

func TestLoadTestValidate(t *testing.T) {
	base := Default().LoadTest
	base.Target = "https://chat.example.com"
	base.RoomsFile = "rooms.json"
	require.NoError(t, base.Validate())

	mutate := map[string]func(c *LoadTestConfig){
		"no target":     func(c *LoadTestConfig) { c.Target = "" },
		"not http":      func(c *LoadTestConfig) { c.Target = "ftp://x" },
		"no rooms":      func(c *LoadTestConfig) { c.RoomsFile = "" },
		"think order":   func(c *LoadTestConfig) { c.ThinkMax = c.ThinkMin - time.Millisecond },
		"no timeout":    func(c *LoadTestConfig) { c.Timeout = 0 },
		"bad format":    func(c *LoadTestConfig) { c.Report.Format = "html" },
		"bad mode":      func(c *LoadTestConfig) { c.RoomMode = "ring" },
		"bad category":  func(c *LoadTestConfig) { c.Markers = []MarkerConfig{{Pattern: "x", Category: "y"}} },
		"no users left": func(c *LoadTestConfig) { c.VUs = 0 },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			c := base
			fn(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestCollectorValidate(t *testing.T) {
	c := Default().Collector
	require.NoError(t, c.Validate())

	c.EndpointParam = ""
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = Default().Collector
	c.Interval = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = Default().Collector
	c.Indices = nil
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestResolveThink(t *testing.T) {
	lt := Default().LoadTest
	lt.RoomMode = room.ModeSingle
	lt.ResolveThink()
	assert.Equal(t, 700*time.Millisecond, lt.ThinkMin)
	assert.Equal(t, 700*time.Millisecond, lt.ThinkMax)

	lt = Default().LoadTest
	lt.ResolveThink()
	assert.Equal(t, time.Second, lt.ThinkMin)
	assert.Equal(t, 1400*time.Millisecond, lt.ThinkMax)

	lt.RoomMode = room.ModeSingle
	lt.ThinkMin, lt.ThinkMax = 0, 3*time.Second
	lt.ResolveThink()
	assert.Zero(t, lt.ThinkMin)
	assert.Equal(t, 3*time.Second, lt.ThinkMax)
}
