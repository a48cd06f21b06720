package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/sessionhold/internal/health"
	"github.com/sessionhold/internal/logging"
	"github.com/sessionhold/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var watchHeadless bool

var watchCmd = &cobra.Command{
	Use:   "watch [target...]",
	Short: "Live dashboard of target health",
	Long: `Check every target each run.interval, reusing one session per target
between checks. On a terminal this opens a dashboard; otherwise, or with
--headless, health transitions are logged instead.

Examples:
  sessionhold watch
  sessionhold watch api --headless`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchHeadless, "headless", false, "Log health transitions instead of drawing a dashboard")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := selectTargets(cfg, args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !watchHeadless && term.IsTerminal(int(os.Stdout.Fd()))

	// The dashboard owns the screen, so checker logs are dropped there.
	logger := zerolog.Nop()
	if !interactive {
		logger = logging.Component("health")
	}

	checker, err := health.NewChecker(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer checker.Close(context.WithoutCancel(ctx))

	if !interactive {
		checker.Run(ctx)
		return nil
	}

	p := tea.NewProgram(tui.NewWatchModel(ctx, checker, cfg.Run.Interval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}
