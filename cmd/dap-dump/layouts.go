package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-dump/internal/layout"
)

var layoutsCmd = &cobra.Command{
	Use:   "layouts [name-filter]",
	Short: "Print the private layout descriptor table",
	Long: `Print the layout descriptors used to decode library types, with the
override files from the configuration merged in.

With --format toml the output is a valid override file, a starting point
for describing a custom build:

  dap-dump layouts QDateTime --format toml > layouts.toml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLayouts,
}

var layoutsFormat string

func init() {
	rootCmd.AddCommand(layoutsCmd)
	layoutsCmd.Flags().StringVar(&layoutsFormat, "format", "text", "Output format: text or toml")
}

func runLayouts(cmd *cobra.Command, args []string) error {
	if err := checkFormat(layoutsFormat, "text", "toml"); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table, err := cfg.LayoutTable()
	if err != nil {
		return err
	}

	descs := table.Entries()
	if len(args) == 1 {
		descs = table.Filter(args[0])
	}

	if layoutsFormat == "toml" {
		return layout.WriteTOML(cmd.OutOrStdout(), descs)
	}
	return writeLayouts(cmd.OutOrStdout(), descs)
}

func writeLayouts(w io.Writer, descs []layout.Descriptor) error {
	for _, d := range descs {
		if _, err := fmt.Fprintln(w, d); err != nil {
			return err
		}
		for _, k := range d.Keys() {
			if _, err := fmt.Fprintf(w, "    %-20s %d\n", k, d.Off(k)); err != nil {
				return err
			}
		}
	}
	return nil
}
