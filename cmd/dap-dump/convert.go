package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/dap-dump/internal/output"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file|->",
	Short: "Convert a dump document to JSON or CBOR",
	Long: `Convert a protocol document, as printed by "dap-dump fetch", to JSON or
CBOR. With --input cbor a CBOR document, compressed or not, is read
and printed as JSON. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var convertFlags struct {
	format   string
	input    string
	compress bool
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertFlags.format, "format", "json", "Output format: json or cbor")
	convertCmd.Flags().StringVar(&convertFlags.input, "input", "text", "Input format: text or cbor")
	convertCmd.Flags().BoolVar(&convertFlags.compress, "compress", false, "zstd-compress CBOR output")
}

func runConvert(cmd *cobra.Command, args []string) error {
	if err := checkFormat(convertFlags.format, "json", "cbor"); err != nil {
		return err
	}
	if err := checkFormat(convertFlags.input, "text", "cbor"); err != nil {
		return err
	}

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if convertFlags.input == "text" {
		return writeDocument(out, string(data), convertFlags.format, convertFlags.compress)
	}

	doc, err := output.DecodeCBOR(data)
	if err != nil {
		return err
	}
	if convertFlags.format == "cbor" {
		if data, err = output.Decompress(data); err != nil {
			return err
		}
		if convertFlags.compress {
			if data, err = output.Compress(data); err != nil {
				return err
			}
		}
		_, err = out.Write(data)
		return err
	}
	encoded, err := output.EncodeJSON(doc)
	if err != nil {
		return err
	}
	_, err = out.Write(encoded)
	return err
}
