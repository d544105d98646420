package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-dump/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var versionCheck bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check for a newer release")
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dap-dump version %s\n", version.Version)
	if !versionCheck {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	info := version.NewChecker().CheckForUpdates(ctx)
	switch {
	case info.Error != "":
		fmt.Fprintf(out, "update check failed: %s\n", info.Error)
	case info.UpdateAvailable:
		fmt.Fprintln(out, info.UpdateMessage())
	default:
		fmt.Fprintln(out, "up to date")
	}
	return nil
}
