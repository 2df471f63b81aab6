// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
	"github.com/xkilldash9x/marionette-cli/internal/capture"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/host"
	"github.com/xkilldash9x/marionette-cli/internal/llmclient"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
	"github.com/xkilldash9x/marionette-cli/internal/store"
	"github.com/xkilldash9x/marionette-cli/internal/synth"
)

var runCmd = &cobra.Command{
	Use:   "run [objective...]",
	Short: "Run one automation session against the configured surface.",
	Long: `Run starts the control loop with the given natural-language objective and
drives the surface until the model signals completion, the turn budget runs
out, a fault exhausts its retry budget, or the run is interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("max-turns", 0, "turn budget for the session")
	runCmd.Flags().String("start-url", "", "URL to load before the loop starts")
	runCmd.Flags().String("remote-url", "", "attach to an existing DevTools websocket instead of launching")
	runCmd.Flags().Bool("headful", false, "launch with a visible window")
	runCmd.Flags().Bool("record", false, "persist the session to the audit store")

	_ = viper.BindPFlag("session.max_turns", runCmd.Flags().Lookup("max-turns"))
	_ = viper.BindPFlag("host.start_url", runCmd.Flags().Lookup("start-url"))
	_ = viper.BindPFlag("host.remote_url", runCmd.Flags().Lookup("remote-url"))
	_ = viper.BindPFlag("store.enabled", runCmd.Flags().Lookup("record"))
}

func runSession(cmd *cobra.Command, args []string) error {
	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		return fmt.Errorf("objective must not be empty")
	}

	if headful, _ := cmd.Flags().GetBool("headful"); headful {
		viper.Set("host.headless", false)
	}

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return err
	}
	logger := observability.GetLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	planner, err := llmclient.New(cfg.Model, logger)
	if err != nil {
		return err
	}

	conn, err := host.Dial(ctx, cfg.Host, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(context.Background()); err != nil {
			logger.Warn("Host shutdown reported an error.", zap.Error(err))
		}
	}()

	grid := schemas.Size{Width: cfg.Capture.GridWidth, Height: cfg.Capture.GridHeight}
	synthesizer := synth.New(conn, cfg.Input, grid, logger)
	capturer := capture.New(conn, cfg.Capture, logger)
	executor := agent.NewExecutor(synthesizer, cfg.Input.RetryBudget, logger)

	session := agent.NewSession(objective, cfg.Session.MaxTurns)

	var sinks []schemas.TurnSink
	var audit *store.Store
	if cfg.Store.Enabled {
		audit, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			return err
		}
		defer audit.Close()
		if err := audit.BeginSession(ctx, session.ID(), objective, session.Snapshot().StartedAt); err != nil {
			return err
		}
		sinks = append(sinks, audit)
	}

	orch := agent.NewOrchestrator(cfg, planner, capturer, executor, logger, sinks...)

	// First interrupt asks the loop to stop at its next checkpoint; a second
	// one kills the process the usual way.
	var outcome schemas.Outcome
	var runErr error
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("Interrupt received, cancelling session.", zap.String("signal", sig.String()))
			session.Cancel()
		case <-done:
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer close(done)
		outcome, runErr = orch.Run(gctx, session)
		return nil
	})
	_ = g.Wait()

	if audit != nil {
		_, failure, reason := session.Outcome()
		if err := audit.FinishSession(context.Background(), session.ID(), outcome, failure, reason); err != nil {
			logger.Warn("Failed to record session verdict.", zap.Error(err))
		}
	}

	printVerdict(session, outcome)

	if outcome == schemas.OutcomeFailed {
		return runErr
	}
	return nil
}

func printVerdict(session *agent.Session, outcome schemas.Outcome) {
	_, failure, reason := session.Outcome()
	fmt.Printf("session %s: %s", session.ID(), outcome)
	if failure != schemas.FailureNone {
		fmt.Printf(" (%s)", failure)
	}
	if reason != "" {
		fmt.Printf(" - %s", reason)
	}
	fmt.Printf(" [%d turns]\n", session.TurnCount())
}
