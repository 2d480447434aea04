package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"wallet-settlement/internal/app"
	"wallet-settlement/internal/service"
	"wallet-settlement/pkg/logger"

	"github.com/spf13/cobra"
)

func directoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Inspect the participant directory",
	}
	cmd.AddCommand(directoryListCmd())
	return cmd
}

// directoryListCmd reads the directory file only; it needs no database.
func directoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			dir := service.NewDirectory(service.FileParticipantLoader{Path: cfg.Directory.File}, logger.NewWithWriter(level, cmd.ErrOrStderr()))
			if err := dir.Refresh(cmd.Context()); err != nil {
				return err
			}
			participants, err := dir.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tCAPABILITIES\tCALLBACKS")
			for _, p := range participants {
				callbacks := "no"
				if p.CallbackSecret != "" {
					callbacks = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, orDash(p.Endpoint), orDash(strings.Join(p.Capabilities, ",")), callbacks)
			}
			return w.Flush()
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Query the final status of stale pending payments once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, node *app.App) error {
				resolved, err := node.Services.Reconciler.ReconcileOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resolved %d pending payment(s)\n", resolved)
				return nil
			})
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
