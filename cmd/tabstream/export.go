package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ukaji3/tabstream-go/internal/pgexport"
	"github.com/ukaji3/tabstream-go/pkg/tabstream"
)

var noHeader bool

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <query> <output>",
		Short: "Write the result of a PostgreSQL query to a CSV or XLSX file",
		Long: `export runs a query against DATABASE_URL and streams the result rows into
the output document, whose format follows its extension.`,
		Args: cobra.ExactArgs(2),
		RunE: runExport,
	}
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Omit the row of column names")
	cmd.Flags().BoolVar(&inlineStrings, "inline-strings", true, "Write XLSX text inline instead of a shared string table")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Rows per XLSX sheet before a new sheet starts (default: format limit)")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	cmd.Flags().StringVar(&encodingLabel, "encoding", "utf-8", "CSV text encoding")
	cmd.Flags().BoolVar(&addBOM, "bom", false, "Write a byte order mark before CSV output")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	opts, err := commandOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w, format, err := tabstream.CreateFile(args[1], opts)
	if err != nil {
		return err
	}
	n, err := pgexport.Export(ctx, pool, args[0], w, !noHeader)
	if err != nil {
		return errors.Join(fmt.Errorf("export failed: %w", err), w.Abort())
	}
	if err := w.Close(); err != nil {
		return err
	}

	slog.Info("export finished", "output", args[1], "format", string(format), "rows", n)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d rows)\n", args[1], format, n)
	return nil
}
