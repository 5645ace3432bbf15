package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ukaji3/tabstream-go/pkg/tabstream"
)

var (
	inlineStrings     bool
	maxRows           int
	noAutoSplit       bool
	compressionLevel  int
	delimiter         string
	encodingLabel     string
	addBOM            bool
	preserveEmptyRows bool
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a document; formats follow the file contents and extensions",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}

	cmd.Flags().BoolVar(&inlineStrings, "inline-strings", true, "Write XLSX text inline instead of a shared string table")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Rows per XLSX sheet before a new sheet starts (default: format limit)")
	cmd.Flags().BoolVar(&noAutoSplit, "no-auto-split", false, "Fail instead of starting a new sheet at the row limit")
	cmd.Flags().IntVar(&compressionLevel, "compression", 6, "Deflate level 0-9 of XLSX entries")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	cmd.Flags().StringVar(&encodingLabel, "encoding", "utf-8", "CSV text encoding")
	cmd.Flags().BoolVar(&addBOM, "bom", false, "Write a byte order mark before CSV output")
	cmd.Flags().BoolVar(&preserveEmptyRows, "preserve-empty-rows", false, "Keep blank CSV lines and missing XLSX rows")
	return cmd
}

// commandOptions applies the flags the user set on top of the configured
// defaults.
func commandOptions(cmd *cobra.Command) (tabstream.Options, error) {
	opts := cfg.Options()
	flags := cmd.Flags()

	if flags.Changed("inline-strings") {
		opts.InlineStrings = tabstream.Bool(inlineStrings)
	}
	if flags.Changed("max-rows") {
		opts.XLSX.MaxRowsPerSheet = maxRows
	}
	if flags.Changed("no-auto-split") {
		opts.AutoCreateNewSheets = tabstream.Bool(!noAutoSplit)
	}
	if flags.Changed("compression") {
		if compressionLevel < 0 || compressionLevel > 9 {
			return opts, fmt.Errorf("invalid compression level: %d (must be 0-9)", compressionLevel)
		}
		opts.XLSX.CompressionLevel = compressionLevel
	}
	if flags.Changed("delimiter") {
		r := []rune(delimiter)
		if len(r) != 1 {
			return opts, fmt.Errorf("invalid delimiter: %q (must be one character)", delimiter)
		}
		opts.CSV.Delimiter = r[0]
	}
	if flags.Changed("encoding") {
		opts.CSV.Encoding = encodingLabel
	}
	if flags.Changed("bom") {
		opts.CSV.AddBOM = addBOM
	}
	if flags.Changed("preserve-empty-rows") {
		opts.PreserveEmptyRows = tabstream.Bool(preserveEmptyRows)
	}
	return opts, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	opts, err := commandOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	info, err := tabstream.Convert(ctx, args[0], args[1], opts)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	for _, s := range info.Sheets {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\n", s.Name, s.RowCount)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d rows)\n", args[1], info.Format, info.TotalRows())
	return nil
}
