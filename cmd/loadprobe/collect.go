package main

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"loadprobe/internal/cluster"
	"loadprobe/internal/collector"
	"loadprobe/internal/config"
)

var (
	colEndpoint      string
	colEndpointParam string
	colRegion        string
	colIndices       []string
	colInterval      time.Duration
	colOutputDir     string
	colParallel      bool
	colOnce          bool
	colGreptime      bool
	colAWSProfile    string
	colNoSign        bool
	colQuiet         bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Poll search cluster diagnostics and flag issues",
	Long: "collect fetches health, node, index, task, breaker, cache and thread pool metrics " +
		"from the search cluster each interval, classifies them against thresholds and writes " +
		"a JSON snapshot, a CSV summary row and a console report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cc := &appCfg.Collector
		applyCollectFlags(cmd.Flags(), cc)
		if err := cc.Validate(); err != nil {
			return err
		}

		ctx, stop, log := signalContext("collector")
		defer stop()

		api, err := newClusterClient(ctx, *cc, !colNoSign)
		if err != nil {
			return err
		}
		log.Info("collecting from cluster", zap.String("endpoint", api.Endpoint()), zap.Strings("indices", api.Indices()))

		out, err := newSnapshotWriter(appCfg, colQuiet, log)
		if err != nil {
			return err
		}
		defer out.Close()

		c := collector.New(api, collector.Options{
			Parallel: cc.Parallel,
			Interval: cc.Interval,
			Sink:     out,
		})
		return c.Run(ctx, colOnce)
	},
}

// newClusterClient resolves the endpoint, from the parameter store when none
// is configured, and builds a client signing requests when sign is set.
func newClusterClient(ctx context.Context, cc config.CollectorConfig, sign bool) (*cluster.Client, error) {
	var awsCfg *aws.Config
	if sign || cc.Endpoint == "" {
		c, err := cluster.LoadAWSConfig(ctx, cluster.AWSOptions{
			Region:          cc.Region,
			Profile:         cc.AWS.Profile,
			AccessKeyID:     cc.AWS.AccessKeyID,
			SecretAccessKey: cc.AWS.SecretAccessKey,
			SessionToken:    cc.AWS.SessionToken,
		})
		if err != nil {
			return nil, err
		}
		awsCfg = &c
	}
	endpoint := cc.Endpoint
	if endpoint == "" {
		var err error
		endpoint, err = cluster.ResolveEndpoint(ctx, cluster.NewParameterAPI(*awsCfg), cc.EndpointParam)
		if err != nil {
			return nil, err
		}
	}
	opts := cluster.Options{
		Endpoint:   endpoint,
		Indices:    cc.Indices,
		HotThreads: cc.HotThreads,
		Timeout:    cc.Timeout,
	}
	if sign {
		opts.AWS = awsCfg
	}
	return cluster.NewClient(opts)
}

func applyCollectFlags(fs *pflag.FlagSet, cc *config.CollectorConfig) {
	set := fs.Changed
	if set("endpoint") {
		cc.Endpoint = colEndpoint
	}
	if set("endpoint-param") {
		cc.EndpointParam = colEndpointParam
	}
	if set("region") {
		cc.Region = colRegion
	}
	if set("indices") {
		cc.Indices = colIndices
	}
	if set("interval") {
		cc.Interval = colInterval
	}
	if set("output-dir") {
		cc.OutputDir = colOutputDir
	}
	if set("parallel") {
		cc.Parallel = colParallel
	}
	if set("greptime") {
		cc.Greptime = colGreptime
	}
	if set("aws-profile") {
		cc.AWS.Profile = colAWSProfile
	}
}

func init() {
	f := collectCmd.Flags()
	f.StringVar(&colEndpoint, "endpoint", "", "Search cluster endpoint; skips the parameter store lookup")
	f.StringVar(&colEndpointParam, "endpoint-param", config.DefaultEndpointParam, "Parameter store key holding the endpoint")
	f.StringVar(&colRegion, "region", "us-east-1", "AWS region")
	f.StringSliceVar(&colIndices, "indices", []string{"chat-messages", "chat-rooms"}, "Indices to report on")
	f.DurationVar(&colInterval, "interval", 30*time.Second, "Time between cycles")
	f.StringVar(&colOutputDir, "output-dir", "metrics", "Directory for snapshots and the summary CSV")
	f.BoolVar(&colParallel, "parallel", false, "Fetch metric groups concurrently")
	f.BoolVar(&colOnce, "once", false, "Run a single cycle and exit")
	f.BoolVar(&colGreptime, "greptime", false, "Write cycle summaries to GreptimeDB")
	f.StringVar(&colAWSProfile, "aws-profile", "", "Shared config profile for AWS credentials")
	f.BoolVar(&colNoSign, "no-sign", false, "Send unsigned requests (local clusters)")
	f.BoolVar(&colQuiet, "quiet", false, "Skip the console report")
}
