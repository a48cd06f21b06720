package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sessionhold/internal/config"
	"github.com/sessionhold/internal/probe"
	"github.com/sessionhold/internal/tui"
	"github.com/sessionhold/pkg/session"
	"github.com/spf13/cobra"
)

var probeJSON bool

var probeCmd = &cobra.Command{
	Use:   "probe [target...]",
	Short: "Probe targets once, each in its own session",
	Long: `Probe every configured target (or only the named ones) exactly once.
Each probe opens a fresh session and closes it afterwards, whatever the
outcome. The command fails if any target fails its check.

Examples:
  sessionhold probe
  sessionhold probe api billing
  sessionhold probe --json`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := selectTargets(cfg, args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := probeAll(ctx, cfg, session.WithLogger(logger))
	if err != nil {
		return err
	}

	if probeJSON {
		if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderResults(results))
	}

	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(results))
	}
	return nil
}

// probeAll runs one scoped probe per target, in config order.
func probeAll(ctx context.Context, cfg *config.Config, opts ...session.Option) ([]probe.Result, error) {
	results := make([]probe.Result, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		p, err := probe.New(t, cfg.SessionConfig(t), opts...)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
		results = append(results, p.Once(ctx))
	}
	return results, nil
}

type probeOutput struct {
	Target      string  `json:"target"`
	Passed      bool    `json:"passed"`
	Status      int     `json:"status,omitempty"`
	DurationMS  float64 `json:"duration_ms"`
	ContentType string  `json:"content_type,omitempty"`
	Bytes       int     `json:"bytes"`
	Error       string  `json:"error,omitempty"`
}

func writeJSON(w io.Writer, results []probe.Result) error {
	out := make([]probeOutput, 0, len(results))
	for _, r := range results {
		o := probeOutput{
			Target:     r.Target,
			Passed:     r.Passed,
			Status:     r.StatusCode(),
			DurationMS: float64(r.Duration.Microseconds()) / 1000,
		}
		if r.Response != nil {
			o.ContentType = r.Response.ContentType()
			o.Bytes = r.Response.Len()
		}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		out = append(out, o)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
