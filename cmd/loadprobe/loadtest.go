package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"loadprobe/internal/admin"
	"loadprobe/internal/breakpoint"
	"loadprobe/internal/config"
	"loadprobe/internal/loadtest"
	"loadprobe/internal/profile"
	"loadprobe/internal/room"
	"loadprobe/internal/sink"
)

var (
	ltTarget       string
	ltPath         string
	ltProfile      string
	ltProfileFile  string
	ltVUs          int
	ltIterations   int64
	ltDuration     time.Duration
	ltThinkMin     time.Duration
	ltThinkMax     time.Duration
	ltTimeout      time.Duration
	ltRooms        string
	ltRoomMode     string
	ltMaxRPS       float64
	ltAdminAddr    string
	ltReportFormat string
	ltReportFile   string
	ltStdout       bool
	ltEventsFile   string
	ltTUI          bool
	ltGreptime     bool
	ltTenantID     string
	ltMessage      string
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive virtual users against the target until it breaks",
	Long: "loadtest posts chat messages from virtual users into rooms and reports the first " +
		"iteration at which timeouts, error responses and rate limiting appeared.",
	RunE: func(cmd *cobra.Command, args []string) error {
		lt := &appCfg.LoadTest
		if cmd.Flags().Changed("profile") {
			lt.Profile = ltProfile
		}
		prof, err := resolveProfile(lt, ltProfileFile)
		if err != nil {
			return err
		}
		if applyLoadTestFlags(cmd.Flags(), lt) && prof != nil {
			// Explicit sizing on the command line replaces the profile's ramp.
			prof.Stages = nil
		}
		if err := lt.Validate(); err != nil {
			return err
		}
		rooms, err := room.Load(lt.RoomsFile)
		if err != nil {
			return err
		}

		ctx, stop, log := signalContext("loadtest")
		defer stop()

		writer, cleanup, err := newRequestWriter(appCfg, log)
		if err != nil {
			return err
		}
		metrics := loadtest.NewMetrics()
		driver, err := loadtest.New(loadtest.Options{
			Config:  *lt,
			Rooms:   rooms,
			Profile: prof,
			Writer:  writer,
			Metrics: metrics,
		})
		if err != nil {
			cleanup()
			return err
		}

		var srv *admin.Server
		if lt.AdminAddr != "" {
			srv = admin.NewServer(driver, metrics.Registry, log)
			go func() {
				if err := srv.Start(lt.AdminAddr); err != nil {
					log.Error("admin server failed", zap.Error(err))
				}
			}()
			if aw, ok := writer.(sink.AdminStatusWriter); ok {
				aw.SetAdminStatus(true)
			}
		}

		rep := driver.Run(ctx)

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
		}
		cleanup()
		return writeReport(cmd.OutOrStdout(), rep, lt.Report)
	},
}

// resolveProfile loads the profile named by file, or the built-in named in
// lt, and applies its sizing and pacing to lt. It returns nil when neither
// is set.
func resolveProfile(lt *config.LoadTestConfig, file string) (*profile.Profile, error) {
	var p profile.Profile
	switch {
	case file != "":
		loaded, err := profile.Load(file)
		if err != nil {
			return nil, err
		}
		p = *loaded
	case lt.Profile != "":
		var err error
		if p, err = profile.Lookup(lt.Profile); err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}
	applyProfile(lt, p)
	return &p, nil
}

func applyProfile(lt *config.LoadTestConfig, p profile.Profile) {
	if p.RoomMode != "" {
		lt.RoomMode = p.RoomMode
	}
	if p.VUs > 0 {
		lt.VUs = p.VUs
	}
	lt.Iterations = p.Iterations
	lt.Duration = p.Duration
	if p.ThinkMin > 0 || p.ThinkMax > 0 {
		lt.ThinkMin = p.ThinkMin
		lt.ThinkMax = p.ThinkMax
	}
}

// applyLoadTestFlags copies explicitly set flags over lt. It reports whether
// any flag sizing the run (vus, iterations, duration) was set.
func applyLoadTestFlags(fs *pflag.FlagSet, lt *config.LoadTestConfig) bool {
	set := fs.Changed
	if set("target") {
		lt.Target = ltTarget
	}
	if set("path") {
		lt.Path = ltPath
	}
	if set("think-min") {
		lt.ThinkMin = ltThinkMin
	}
	if set("think-max") {
		lt.ThinkMax = ltThinkMax
	}
	if set("timeout") {
		lt.Timeout = ltTimeout
	}
	if set("rooms") {
		lt.RoomsFile = ltRooms
	}
	if set("room-mode") {
		lt.RoomMode = room.Mode(ltRoomMode)
	}
	if set("max-rps") {
		lt.MaxRPS = ltMaxRPS
	}
	if set("admin-addr") {
		lt.AdminAddr = ltAdminAddr
	}
	if set("report-format") {
		lt.Report.Format = ltReportFormat
	}
	if set("report-file") {
		lt.Report.File = ltReportFile
	}
	if set("stdout") {
		lt.Events.Stdout = ltStdout
	}
	if set("events-file") {
		lt.Events.File = ltEventsFile
	}
	if set("tui") {
		lt.Events.TUI = ltTUI
	}
	if set("greptime") {
		lt.Events.Greptime = ltGreptime
	}
	if set("tenant-id") {
		lt.Payload.TenantID = ltTenantID
	}
	if set("message") {
		lt.Payload.Message = ltMessage
	}

	sized := false
	if set("vus") {
		lt.VUs = ltVUs
		sized = true
	}
	if set("iterations") {
		lt.Iterations = ltIterations
		sized = true
	}
	if set("duration") {
		lt.Duration = ltDuration
		sized = true
	}
	if !set("think-min") && !set("think-max") {
		lt.ResolveThink()
	}
	return sized
}

// writeReport prints the report to out in the configured format and, when a
// report file is configured, also writes it there. A text report is saved as
// JSON.
func writeReport(out io.Writer, rep *breakpoint.Report, rc config.ReportConfig) error {
	if rc.Format == "" || rc.Format == "text" {
		rep.Print(out)
	} else {
		data, err := render(rep, rc.Format)
		if err != nil {
			return err
		}
		_, _ = out.Write(append(data, '\n'))
	}
	if rc.File == "" {
		return nil
	}
	format := rc.Format
	if format == "" || format == "text" {
		format = "json"
	}
	data, err := render(rep, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(rc.File, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func render(rep *breakpoint.Report, format string) ([]byte, error) {
	f, err := breakpoint.FormatterFor(format)
	if err != nil {
		return nil, err
	}
	return rep.Generate(f)
}

func init() {
	f := loadtestCmd.Flags()
	f.StringVar(&ltTarget, "target", "", "Base URL of the chat service (e.g. https://chat.example.com)")
	f.StringVar(&ltPath, "path", "/api/v1/messages", "Endpoint path appended to the target")
	f.StringVar(&ltProfile, "profile", "", fmt.Sprintf("Built-in run profile %v; empty uses the config's", profile.Names()))
	f.StringVar(&ltProfileFile, "profile-file", "", "Path to a YAML run profile")
	f.IntVar(&ltVUs, "vus", 10, "Number of virtual users")
	f.Int64Var(&ltIterations, "iterations", 0, "Total iterations shared by all users (0 = unbounded)")
	f.DurationVar(&ltDuration, "duration", 0, "Duration budget (0 = unbounded)")
	f.DurationVar(&ltThinkMin, "think-min", 0, "Minimum pause between iterations (default 1s, 700ms in single-room mode)")
	f.DurationVar(&ltThinkMax, "think-max", 0, "Maximum pause between iterations (default 1.4s, 700ms in single-room mode)")
	f.DurationVar(&ltTimeout, "timeout", 100*time.Second, "Per-request timeout")
	f.StringVar(&ltRooms, "rooms", "", "Path to the rooms JSON file")
	f.StringVar(&ltRoomMode, "room-mode", "multi", "Room selection: multi or single")
	f.Float64Var(&ltMaxRPS, "max-rps", 0, "Global request rate cap (0 = none)")
	f.StringVar(&ltAdminAddr, "admin-addr", "", "Serve live status and metrics on this address (e.g. :8080)")
	f.StringVar(&ltReportFormat, "report-format", "text", "Report format on stdout: text, json or yaml")
	f.StringVar(&ltReportFile, "report-file", "", "Also write the report to this file")
	f.BoolVar(&ltStdout, "stdout", false, "Print every request to STDOUT")
	f.StringVar(&ltEventsFile, "events-file", "", "Write every request as JSONL to this file")
	f.BoolVar(&ltTUI, "tui", false, "Show a live terminal UI")
	f.BoolVar(&ltGreptime, "greptime", false, "Write every request to GreptimeDB")
	f.StringVar(&ltTenantID, "tenant-id", "", "Tenant id placed in every payload")
	f.StringVar(&ltMessage, "message", "", "Message text placed in every payload")
}
