// Command notifier receives scanner webhooks and forwards matching sightings.
//
// Usage:
//
//	notifier serve --config rules.jsonc
//	notifier check --config-dir ./conf.d
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/trew/PokemonGoMapNotifier/internal/app"
	"github.com/trew/PokemonGoMapNotifier/internal/clock"
	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/notify"
)

type sourceFlags struct {
	file string
	dir  string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.file, "config", "", "path to one rule document (.toml, .json or .jsonc)")
	cmd.PersistentFlags().StringVar(&f.dir, "config-dir", "", "path to directory with rule document fragments")
}

func (f *sourceFlags) source() (config.ConfigSource, error) {
	return config.FromCLI(f.file, f.dir)
}

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		if config.IsConfigurationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &sourceFlags{}
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Forward scanner sightings to chat and push channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	flags.register(root)
	root.AddCommand(serveCmd(flags))
	root.AddCommand(checkCmd(flags))
	return root
}

func serveCmd(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver and dispatch worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func checkCmd(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Resolve the rule document and print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, err := flags.source()
			if err != nil {
				return err
			}
			cfg, err := config.LoadSnapshot(source)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runServe(ctx context.Context, flags *sourceFlags) error {
	source, err := flags.source()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := app.NewService(ctx, source, clock.RealClock{})
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	if err := service.Run(ctx); err != nil {
		return fmt.Errorf("service run failed: %w", err)
	}
	return nil
}

// runCheck builds every endpoint sender so template errors surface, then prints the summary.
func runCheck(ctx context.Context, cfg config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := notify.NewDispatcher(ctx, &cfg, notify.Options{}, discard); err != nil {
		return fmt.Errorf("endpoints: %w", err)
	}
	writeSummary(out, cfg)
	return nil
}
