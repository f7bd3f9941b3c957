// Package cmd provides the command-line interface for the ingestion
// pipeline. It handles configuration loading, wiring of the shared
// transports and running the configured sources.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/adoptfeed/adoptfeed/internal/config"
	"github.com/adoptfeed/adoptfeed/internal/fetch"
	"github.com/adoptfeed/adoptfeed/internal/ingest"
	"github.com/adoptfeed/adoptfeed/internal/logging"
	"github.com/adoptfeed/adoptfeed/internal/sources"
	"github.com/adoptfeed/adoptfeed/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adoptfeed",
	Short: "Adoption-record ingestion pipeline",
	Long: `Adoptfeed crawls the listing pages of configured animal-welfare
organizations, extracts the individual adoption records and keeps a local
database in sync with them.

Every run is recorded in an audit trail that drives run classification,
failure alerts and trailing failure rates.`,
	RunE: runPipeline,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./adoptfeed.yml)")

	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")
	rootCmd.Flags().Bool("dry-run", false, "Discover and dedup only; fetch nothing, persist nothing")
	rootCmd.Flags().StringSlice("source", nil, "Run only the named sources (default: all configured)")

	rootCmd.Flags().StringP("database", "d", "./adoptfeed.db", "Path to SQLite database file")
	rootCmd.Flags().DurationP("timeout", "t", 30*time.Second, "Per-request and per-page timeout")
	rootCmd.Flags().StringP("user-agent", "u", "Adoptfeed/1.0", "HTTP User-Agent header")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-file", "", "Mirror logs into this file (with rotation)")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"database_path", "database"},
		{"request_timeout", "timeout"},
		{"user_agent", "user-agent"},
		{"log_level", "log-level"},
		{"log_file", "log-file"},
	}

	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("adoptfeed")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file, environment and flags.
func loadConfig() (*config.PipelineConfig, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func showCurrentConfig(cfg *config.PipelineConfig) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: configuration validation failed: %v\n\n", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Printf("# Current Adoptfeed Configuration\n")
	fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("# Configuration file search paths: ./adoptfeed.yml\n")
	fmt.Printf("# Environment variables prefix: AF_\n\n")
	fmt.Print(string(yamlData))
	return nil
}

// selectSources filters the configured sources down to the --source set.
func selectSources(cfg *config.PipelineConfig, names []string) ([]config.SourceConfig, error) {
	if len(names) == 0 {
		return cfg.Sources, nil
	}

	var selected []config.SourceConfig
	for _, name := range names {
		src, ok := cfg.Source(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q (configured: %s)", name, configuredIDs(cfg))
		}
		selected = append(selected, src)
	}
	return selected, nil
}

func configuredIDs(cfg *config.PipelineConfig) string {
	ids := make([]string, len(cfg.Sources))
	for i, src := range cfg.Sources {
		ids[i] = src.ID
	}
	return strings.Join(ids, ", ")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	sourceNames, _ := cmd.Flags().GetStringSlice("source")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if showConfig {
		return showCurrentConfig(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	selected, err := selectSources(cfg, sourceNames)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	// SIGINT/SIGTERM cancel in-flight work; completed items are still
	// persisted and the run summary is written before exit.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := sources.Deps{
		HTTP:       fetch.NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout),
		Heuristics: cfg.Heuristics,
	}

	if browserNeeded(selected) {
		browser, err := fetch.NewBrowser(ctx, cfg.UserAgent, cfg.RequestTimeout)
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer func() { _ = browser.Close() }()
		deps.Browser = browser
	}

	runner := ingest.NewRunner(store, ingest.NewRateLimiter(100*time.Millisecond), cfg.Thresholds, cfg.RequestTimeout)
	runner.DryRun = dryRun

	var failed int
	for _, srcCfg := range selected {
		if ctx.Err() != nil {
			logger.Warn("Shutdown requested, skipping remaining sources")
			break
		}

		src, err := sources.New(srcCfg, deps)
		if err != nil {
			logger.Error("Failed to build source", "source", srcCfg.ID, "error", err)
			failed++
			continue
		}

		summary, err := runner.RunSource(ctx, src, srcCfg)
		if err != nil {
			logger.Error("Run not recorded", "source", srcCfg.ID, "error", err)
			failed++
			continue
		}
		if summary.Status == ingest.StatusError {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources finished with errors", failed, len(selected))
	}
	return nil
}

func browserNeeded(selected []config.SourceConfig) bool {
	for _, src := range selected {
		if sources.NeedsBrowser(src.Extractor) {
			return true
		}
	}
	return false
}
