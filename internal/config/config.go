// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"loadprobe/internal/classify"
	"loadprobe/internal/room"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// DefaultEndpointParam is the parameter store key holding the search endpoint.
const DefaultEndpointParam = "/search/opensearch/endpoint"

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// GreptimeConfig points the sinks at a GreptimeDB instance.
type GreptimeConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Database     string `yaml:"database"`
	RequestTable string `yaml:"request_table"`
	SummaryTable string `yaml:"summary_table"`
}

// Enabled reports whether an endpoint is configured.
func (g GreptimeConfig) Enabled() bool { return g.Endpoint != "" }

// MarkerConfig is one body marker entry.
type MarkerConfig struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

// ReportConfig controls the end-of-run report.
type ReportConfig struct {
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// EventsConfig selects the per-request event writers.
type EventsConfig struct {
	Stdout   bool   `yaml:"stdout"`
	File     string `yaml:"file"`
	TUI      bool   `yaml:"tui"`
	Greptime bool   `yaml:"greptime"`
}

// ThinkDefaults returns the pause range used for mode when none is configured.
func ThinkDefaults(mode room.Mode) (min, max time.Duration) {
	if mode == room.ModeSingle {
		return 700 * time.Millisecond, 700 * time.Millisecond
	}
	return time.Second, 1400 * time.Millisecond
}

// LoadTestConfig configures the load driver. A zero think range takes the
// room mode's default once ResolveThink runs.
type LoadTestConfig struct {
	Target     string               `yaml:"target"`
	Path       string               `yaml:"path"`
	Profile    string               `yaml:"profile"`
	VUs        int                  `yaml:"vus"`
	Iterations int64                `yaml:"iterations"`
	Duration   time.Duration        `yaml:"duration"`
	ThinkMin   time.Duration        `yaml:"think_min"`
	ThinkMax   time.Duration        `yaml:"think_max"`
	Timeout    time.Duration        `yaml:"timeout"`
	RoomMode   room.Mode            `yaml:"room_mode"`
	RoomsFile  string               `yaml:"rooms_file"`
	MaxRPS     float64              `yaml:"max_rps"`
	AdminAddr  string               `yaml:"admin_addr"`
	Payload    room.PayloadDefaults `yaml:"payload"`
	Markers    []MarkerConfig       `yaml:"markers"`
	Report     ReportConfig         `yaml:"report"`
	Events     EventsConfig         `yaml:"events"`
}

// ClassifierMarkers converts configured markers. An empty list yields nil so
// the classifier falls back to its defaults.
func (c LoadTestConfig) ClassifierMarkers() []classify.Marker {
	if len(c.Markers) == 0 {
		return nil
	}
	out := make([]classify.Marker, 0, len(c.Markers))
	for _, m := range c.Markers {
		out = append(out, classify.Marker{Pattern: m.Pattern, Category: classify.Category(m.Category)})
	}
	return out
}

// Validate checks invariants the schema cannot express.
// ResolveThink fills an unset think range from the room mode.
func (c *LoadTestConfig) ResolveThink() {
	if c.ThinkMin == 0 && c.ThinkMax == 0 {
		c.ThinkMin, c.ThinkMax = ThinkDefaults(c.RoomMode)
	}
}

func (c LoadTestConfig) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("%w: loadtest.target is required", ErrInvalid)
	}
	if !strings.HasPrefix(c.Target, "http://") && !strings.HasPrefix(c.Target, "https://") {
		return fmt.Errorf("%w: loadtest.target must be an http(s) URL, got %q", ErrInvalid, c.Target)
	}
	if c.RoomsFile == "" {
		return fmt.Errorf("%w: loadtest.rooms_file is required", ErrInvalid)
	}
	if c.VUs < 1 {
		return fmt.Errorf("%w: loadtest.vus must be at least 1", ErrInvalid)
	}
	if c.ThinkMax < c.ThinkMin {
		return fmt.Errorf("%w: loadtest.think_max %s is below think_min %s", ErrInvalid, c.ThinkMax, c.ThinkMin)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: loadtest.timeout must be positive", ErrInvalid)
	}
	switch c.RoomMode {
	case room.ModeMulti, room.ModeSingle:
	default:
		return fmt.Errorf("%w: unknown room mode %q", ErrInvalid, c.RoomMode)
	}
	switch c.Report.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: unknown report format %q", ErrInvalid, c.Report.Format)
	}
	for _, m := range c.Markers {
		switch classify.Category(m.Category) {
		case classify.CategoryRateLimited, classify.CategoryStorageError:
		default:
			return fmt.Errorf("%w: marker %q has unknown category %q", ErrInvalid, m.Pattern, m.Category)
		}
	}
	return nil
}

// AWSConfig selects credentials for signing and the parameter lookup. Static
// keys win over the profile; with neither the default chain is used.
type AWSConfig struct {
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// CollectorConfig configures the metrics collector.
type CollectorConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	EndpointParam string        `yaml:"endpoint_param"`
	Region        string        `yaml:"region"`
	Indices       []string      `yaml:"indices"`
	Interval      time.Duration `yaml:"interval"`
	OutputDir     string        `yaml:"output_dir"`
	Parallel      bool          `yaml:"parallel"`
	HotThreads    int           `yaml:"hot_threads"`
	Timeout       time.Duration `yaml:"timeout"`
	Greptime      bool          `yaml:"greptime"`
	AWS           AWSConfig     `yaml:"aws"`
}

// Validate checks invariants the schema cannot express.
func (c CollectorConfig) Validate() error {
	if c.Endpoint == "" && c.EndpointParam == "" {
		return fmt.Errorf("%w: collector needs an endpoint or an endpoint parameter", ErrInvalid)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: collector.interval must be positive", ErrInvalid)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: collector.output_dir is required", ErrInvalid)
	}
	if len(c.Indices) == 0 {
		return fmt.Errorf("%w: collector.indices must name at least one index", ErrInvalid)
	}
	return nil
}

// Config is the root document. Both pipelines read the same file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Greptime  GreptimeConfig  `yaml:"greptime"`
	LoadTest  LoadTestConfig  `yaml:"loadtest"`
	Collector CollectorConfig `yaml:"collector"`
}

// Default returns a config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Greptime: GreptimeConfig{
			Database:     "public",
			RequestTable: "loadtest_requests",
			SummaryTable: "cluster_summary",
		},
		LoadTest: LoadTestConfig{
			Path:     "/api/v1/messages",
			Profile:  "multi-room",
			VUs:      10,
			Timeout:  100 * time.Second,
			RoomMode: room.ModeMulti,
			Payload:  room.DefaultPayload(),
			Report:   ReportConfig{Format: "text"},
		},
		Collector: CollectorConfig{
			EndpointParam: DefaultEndpointParam,
			Region:        "us-east-1",
			Indices:       []string{"chat-messages", "chat-rooms"},
			Interval:      30 * time.Second,
			OutputDir:     "metrics",
			HotThreads:    3,
			Timeout:       30 * time.Second,
		},
	}
}

// Load reads the YAML file at path, validates it against the CUE schema and
// overlays it on Default. An empty path returns the defaults. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := ValidateYAML(path, data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides file values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("LOADPROBE_TARGET"); v != "" {
		c.LoadTest.Target = v
	}
	if v := getenv("SEARCH_ENDPOINT"); v != "" {
		c.Collector.Endpoint = v
	}
	if v := getenv("SEARCH_ENDPOINT_PARAM"); v != "" {
		c.Collector.EndpointParam = v
	}
	if v := getenv("AWS_REGION"); v != "" {
		c.Collector.Region = v
	}
	if v := getenv("AWS_PROFILE"); v != "" && c.Collector.AWS.Profile == "" {
		c.Collector.AWS.Profile = v
	}
	if v := getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Greptime.Database = v
	}
}
