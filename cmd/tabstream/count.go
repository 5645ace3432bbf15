package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ukaji3/tabstream-go/pkg/tabstream"
)

// heapSampleInterval is the number of rows between heap samples.
const heapSampleInterval = 10000

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <input>",
		Short: "Count rows per sheet and report elapsed time and peak heap",
		Args:  cobra.ExactArgs(1),
		RunE:  runCount,
	}
}

func runCount(cmd *cobra.Command, args []string) error {
	start := time.Now()
	var peak uint64
	sample := func() {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		peak = max(peak, m.HeapAlloc)
	}

	r, format, err := tabstream.OpenFile(args[0], cfg.Options())
	if err != nil {
		return err
	}
	defer r.Close()

	out := cmd.OutOrStdout()
	total := 0
	for r.HasNextSheet() {
		sheet, err := r.NextSheet()
		if err != nil {
			return err
		}
		n := 0
		for _, err := range r.Rows() {
			if err != nil {
				return fmt.Errorf("sheet %q: %w", sheet.Name, err)
			}
			n++
			if n%heapSampleInterval == 0 {
				sample()
			}
		}
		sample()
		total += n
		fmt.Fprintf(out, "%s\t%d\n", sheet.Name, n)
	}

	fmt.Fprintf(out, "format: %s\n", format)
	fmt.Fprintf(out, "rows: %d\n", total)
	fmt.Fprintf(out, "elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "peak heap: %.1f MiB\n", float64(peak)/(1<<20))
	return nil
}
