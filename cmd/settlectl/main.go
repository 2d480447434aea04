// Command settlectl is the operator CLI of the settlement node. It runs the
// same services as the API server directly against PostgreSQL and Redis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"wallet-settlement/config"
	"wallet-settlement/internal/app"
	"wallet-settlement/pkg/logger"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operate the wallet settlement node",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for diagnostics on stderr")

	rootCmd.AddCommand(qrCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(reconcileCmd())

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// withApp builds a connected node for the duration of one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, node *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, _ := cmd.Flags().GetString("log-level")
	log := logger.NewWithWriter(level, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer node.Close()

	return fn(ctx, node)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
