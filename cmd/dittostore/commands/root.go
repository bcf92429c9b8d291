// Package commands implements the dittostore command line.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/config"
	"github.com/marmos91/dittostore/pkg/executor"
	"github.com/marmos91/dittostore/pkg/metrics"
	"github.com/marmos91/dittostore/pkg/operator"
	"github.com/marmos91/dittostore/pkg/registry"
	"github.com/spf13/cobra"
)

const (
	configFlag  = "config"
	serviceFlag = "service"
)

// skipSetup marks commands that run without loading the configuration.
const skipSetup = "skip-setup"

// app holds what PersistentPreRunE builds for the storage commands.
type app struct {
	cfg      *config.Config
	reg      *registry.Registry
	metrics  *metrics.Server
	stopMetrics context.CancelFunc
	done     chan error
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dittostore",
		Short: "Unified access to object stores, filesystems and key-value databases",
		Long: `dittostore reads and writes paths on any configured storage service
through one set of commands. Services are declared in the configuration
file; run "dittostore init" to create one.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP(configFlag, "c", "", "path to the config file (default $XDG_CONFIG_HOME/dittostore/config.yaml)")
	rootCmd.PersistentFlags().StringP(serviceFlag, "s", "", "service to operate on (default: default_service)")

	rootCmd.AddCommand(
		newInitCmd(),
		newServicesCmd(a),
		newInfoCmd(a),
		newStatCmd(a),
		newCatCmd(a),
		newPutCmd(a),
		newLsCmd(a),
		newRmCmd(a),
		newCpCmd(a),
		newMvCmd(a),
		newMkdirCmd(a),
	)

	return rootCmd
}

// Execute runs the command line with ctx cancelled on interrupt.
func Execute(ctx context.Context) error {
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if terr := a.teardown(); terr != nil {
		logger.Warn("Shutdown: %v", terr)
	}
	return err
}

func (a *app) setup(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString(configFlag)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to set log output: %w", err)
	}

	if err := executor.Init(cfg.Executor); err != nil && !errors.Is(err, executor.ErrAlreadyInitialized) {
		return err
	}

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		ctx, cancel := context.WithCancel(cmd.Context())
		a.metrics, a.stopMetrics = m.Server, cancel
		a.done = make(chan error, 1)
		go func() { a.done <- m.Server.Start(ctx) }()
	}

	reg, err := config.InitializeRegistry(cmd.Context(), cfg, m.Recorder)
	if err != nil {
		_ = a.teardown()
		return err
	}
	a.reg = reg

	return nil
}

func (a *app) teardown() error {
	var errs []error
	if a.reg != nil {
		errs = append(errs, a.reg.Close())
		a.reg = nil
	}
	if a.metrics != nil {
		a.stopMetrics()
		errs = append(errs, <-a.done)
		a.metrics = nil
	}
	return errors.Join(errs...)
}

// operator resolves the service selected by --service.
func (a *app) operator(cmd *cobra.Command) (*operator.Operator, error) {
	name, _ := cmd.Flags().GetString(serviceFlag)
	return a.reg.Get(name)
}
