package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ukaji3/tabstream-go/pkg/tabstream"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/sniff"
)

var pretty bool

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <input>",
		Short: "Describe a document as JSON: sheets and entries, or compound file streams",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	return cmd
}

// compoundReport describes an OLE2 file the engine does not read.
type compoundReport struct {
	BookName   string           `json:"book_name"`
	Format     string           `json:"format"`
	Reason     string           `json:"reason"`
	Streams    []sniff.Stream   `json:"streams"`
	Properties []sniff.Property `json:"properties,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	kind, err := sniff.File(path)
	if err != nil {
		return err
	}

	var report any
	if kind == sniff.KindOLE {
		c, err := sniff.InspectCompound(path)
		if err != nil {
			return err
		}
		report = compoundReport{
			BookName:   filepath.Base(path),
			Format:     kind.String(),
			Reason:     c.Reason(),
			Streams:    c.Streams,
			Properties: c.Properties,
		}
	} else {
		info, err := tabstream.Inspect(context.Background(), path, cfg.Options())
		if err != nil {
			return err
		}
		report = info
	}

	var data []byte
	if pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("serialization failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
