package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/sessionhold/internal/config"
	"github.com/sessionhold/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"

	configPath string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sessionhold",
	Short: "Lazy, swappable session holders for HTTP and gRPC endpoints",
	Long: `sessionhold keeps one lazily opened session per target and probes
targets through it. Sessions are opened on first use, reused while they
stay open and replaced transparently once closed.

Get started:
  sessionhold probe      Probe every target once, each in its own session
  sessionhold run        Probe targets continuously from a worker pool
  sessionhold watch      Live dashboard of target health`,
	SilenceUsage: true,
	Version:      versionString(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sessionhold.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log.format (auto, console, json)")
}

// SetVersion sets the version info
func SetVersion(v, bt, commit string) {
	version = v
	buildTime = bt
	gitCommit = commit
	rootCmd.Version = versionString()
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildTime)
}

// loadConfig reads the configuration file, applies flag overrides and
// installs the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Init(cfg.Log, os.Stderr)
	logger.Debug().Str("config", configPath).Int("targets", len(cfg.Targets)).Msg("configuration loaded")
	return cfg, logger, nil
}

// selectTargets narrows cfg.Targets to the named ones, keeping config order.
func selectTargets(cfg *config.Config, names []string) error {
	if len(names) == 0 {
		return nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var selected []config.Target
	for _, t := range cfg.Targets {
		if want[t.Name] {
			selected = append(selected, t)
			delete(want, t.Name)
		}
	}
	for n := range want {
		return fmt.Errorf("unknown target %q", n)
	}

	cfg.Targets = selected
	return nil
}
