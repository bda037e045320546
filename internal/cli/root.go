package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/snac-tools/eacsupp/internal/config"
	"github.com/snac-tools/eacsupp/internal/logging"
	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/snac-tools/eacsupp/internal/pipeline"
	"github.com/snac-tools/eacsupp/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "0.3.0"

var (
	cfgFile       string
	verbose       bool
	noCache       bool
	dryRun        bool
	politeFactor  float64
	timeout       time.Duration
	userAgent     string
	httpProxy     string
	httpsProxy    string
	respectRobots bool
	rps           float64
)

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"verbose":        "output.verbose",
	"polite-factor":  "polite.factor",
	"timeout":        "http.timeout",
	"ua":             "http.user_agent",
	"http-proxy":     "http.http_proxy",
	"https-proxy":    "http.https_proxy",
	"respect-robots": "polite.respect_robots",
	"rps":            "polite.requests_per_second",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "eacsupp <data> <supplemental_data>",
	Short: "eacsupp - supplement EAC-CPF records with thumbnails and aggregator presence",
	Long: `eacsupp reads every EAC-CPF authority record under <data> and writes one
<supplemental> XML element per record to <supplemental_data>, using the
same file name.

For each record it:
- looks up a thumbnail and its rights page through DBpedia when the record
  links to an English Wikipedia article, and verifies the image URL
- asks DPLA and Europeana whether they hold anything under the record's name

Records whose output already exists are skipped, so an interrupted run can
simply be restarted. Every remote call is followed by a pause proportional
to how long the call took.

Example:
  eacsupp ./data ./supplemental_data
  eacsupp ./data ./supplemental_data --config ~/snac/api.ini --polite-factor 2
  eacsupp ./data ./supplemental_data --dry-run`,
	Args:          cobra.ExactArgs(2),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runEnrich,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "eacsupp v%s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	flags := rootCmd.Flags()
	flags.BoolVar(&noCache, "no-cache", false, "query aggregators again for repeated names")
	flags.BoolVar(&dryRun, "dry-run", false, "list records that would be processed without calling any service")
	flags.Float64Var(&politeFactor, "polite-factor", 1, "sleep this multiple of each call's latency after the call")
	flags.DurationVar(&timeout, "timeout", 0, "per-request timeout (0 waits indefinitely)")
	flags.StringVar(&userAgent, "ua", "", "HTTP User-Agent")
	flags.StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	flags.StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	flags.BoolVar(&respectRobots, "respect-robots", false, "never pause less than a host's robots.txt Crawl-delay")
	flags.Float64Var(&rps, "rps", 0, "per-host request ceiling (0 disables)")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the configuration for cmd, honoring its flags
func loadConfig(cmd *cobra.Command) (*model.Config, *config.Loader, error) {
	loader, err := config.NewLoader()
	if err != nil {
		return nil, nil, err
	}
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := loader.BindFlag(key, flag); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := loader.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	return cfg, loader, nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	dataDir, suppDir := args[0], args[1]

	info, err := os.Stat(dataDir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory: %s is not a directory", dataDir)
	}

	cfg, loader, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Output.Verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if !dryRun {
		if err := os.MkdirAll(suppDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	stderr := cmd.ErrOrStderr()
	configUsed := loader.Used()
	if configUsed == "" {
		configUsed = "(defaults)"
	}

	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "  eacsupp %s\n", Version)
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "  Records:      %s\n", dataDir)
	fmt.Fprintf(stderr, "  Output dir:   %s\n", suppDir)
	fmt.Fprintf(stderr, "  Config:       %s\n", configUsed)
	fmt.Fprintf(stderr, "  Politeness:   x%g\n", cfg.Polite.Factor)
	if dryRun {
		fmt.Fprintf(stderr, "  Mode:         dry run\n")
	}
	fmt.Fprintf(stderr, "\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("run started",
		zap.String("data", dataDir),
		zap.String("supplemental", suppDir),
		zap.Bool("dry_run", dryRun))

	driver := worker.NewDriver(
		pipeline.NewPipeline(cfg, logger),
		worker.WithDryRun(dryRun),
		worker.WithLogger(logger),
		worker.WithProgress(func(e worker.Event) {
			switch {
			case e.Skipped:
				if cfg.Output.Verbose {
					fmt.Fprintf(stderr, "·  %s (exists)\n", e.Output)
				}
			case e.DryRun:
				fmt.Fprintf(stderr, "→  %s\n", e.Input)
			default:
				fmt.Fprintf(stderr, "✓  %s\n", e.Output)
			}
		}),
	)

	start := time.Now()
	sum, runErr := driver.Run(ctx, dataDir, suppDir)

	fmt.Fprintf(stderr, "\n")
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	if runErr != nil {
		fmt.Fprintf(stderr, "  Run Aborted\n")
	} else {
		fmt.Fprintf(stderr, "  Run Complete\n")
	}
	fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(stderr, "\n")
	if dryRun {
		fmt.Fprintf(stderr, "  Pending:    %d\n", sum.Processed)
	} else {
		fmt.Fprintf(stderr, "  Processed:  %d\n", sum.Processed)
	}
	fmt.Fprintf(stderr, "  Skipped:    %d\n", sum.Skipped)
	fmt.Fprintf(stderr, "  Elapsed:    %v\n", time.Since(start).Round(time.Second))
	fmt.Fprintf(stderr, "\n")

	return runErr
}
