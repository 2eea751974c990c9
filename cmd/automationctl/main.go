// automationctl is the admin CLI for the automation engine. It talks to the
// database directly, so it works while the API server is down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	apimonitor "crm-automation-api/internal/api/monitor"
	"crm-automation-api/internal/api/rule"
	"crm-automation-api/internal/app"
	"crm-automation-api/internal/config"
	"crm-automation-api/internal/database"
	"crm-automation-api/internal/logger"
	"crm-automation-api/internal/preset"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is what every subcommand works with.
type env struct {
	db       database.Querier
	presets  preset.Applier
	executor rule.Executor
	monitors apimonitor.Controller
	log      *zap.Logger
	close    func()
}

type bootstrapFunc func(ctx context.Context) (*env, error)

func main() {
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(bootstrap).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(boot bootstrapFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "automationctl",
		Short:         "Admin CLI for the CRM automation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newScanCmd(boot),
		newMonitorCmd(boot),
		newPresetsCmd(boot),
		newRulesCmd(boot),
		newMigrateCmd(boot),
		versionCmd,
	)
	return root
}

// bootstrap connects to the database and builds the engine. The monitor
// guard is created but nothing is armed: CLI commands run one-shot.
func bootstrap(ctx context.Context) (*env, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, log, pool, nil)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &env{
		db:       pool,
		presets:  a.Store,
		executor: a.Engine,
		monitors: a.Guard,
		log:      log,
		close: func() {
			_ = a.Close(context.Background())
			pool.Close()
			_ = log.Sync()
		},
	}, nil
}

// withEnv runs fn with a bootstrapped env and tears it down afterwards.
func withEnv(boot bootstrapFunc, fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		if e.close != nil {
			defer e.close()
		}
		return fn(cmd, args, e)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
