// Package cmd holds the retire-cli commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"retire/internal/backend"
	"retire/internal/cli"
	"retire/internal/config"
	"retire/internal/core"
	"retire/internal/services"
)

// ServiceFunc builds the estimate service for one invocation. The returned
// service is closed by the caller.
type ServiceFunc func(ctx context.Context, policy core.Policy, logger *slog.Logger) (*services.EstimateService, error)

// NewRootCmd wires every subcommand. newService defaults to the diagnostics
// backend named by the environment.
func NewRootCmd(newService ServiceFunc) *cobra.Command {
	if newService == nil {
		newService = serviceFromEnv
	}

	root := &cobra.Command{
		Use:   "retire-cli",
		Short: "Retirement savings estimator",
		Long: `retire-cli estimates the lump sum needed at retirement to cover
inflation-adjusted annual expenses from retirement age to life expectancy,
discounted at the real rate of return.

Each estimate is recorded through the diagnostics backend configured by
DIAGNOSTICS_BACKEND (file, sqlite, sheets or memory).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("policy", "", "Negative input policy: strict or clamp (default: INPUT_POLICY or strict)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log diagnostics to stderr")

	root.AddCommand(newEstimateCmd(newService))
	root.AddCommand(newScenarioCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd(nil).Execute()
}

// policyFrom resolves --policy, falling back to INPUT_POLICY.
func policyFrom(cmd *cobra.Command) (core.Policy, error) {
	value, _ := cmd.Flags().GetString("policy")
	if value == "" {
		value = os.Getenv("INPUT_POLICY")
	}
	return core.ParsePolicy(value)
}

// loggerFrom logs to stderr, at warn level unless --verbose is set.
func loggerFrom(cmd *cobra.Command) *slog.Logger {
	cfg := config.Load()
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		cfg.LogLevel = "warn"
	}
	return cli.SetupLogger(cfg, cmd.ErrOrStderr())
}

func serviceFromEnv(ctx context.Context, policy core.Policy, logger *slog.Logger) (*services.EstimateService, error) {
	backendCfg, err := backend.FromAppConfig(config.Load())
	if err != nil {
		return nil, err
	}
	diag, err := backend.NewFactory(logger).Create(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize diagnostics: %w", err)
	}
	return services.NewEstimateService(core.NewCalculator(policy), diag.Sink, diag.Reader, logger), nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
