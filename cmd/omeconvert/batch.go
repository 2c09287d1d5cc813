package main

import (
	"io"
	"os"

	"github.com/carbocation/omeconvert/convert"
	"github.com/carbocation/pfx"
	"github.com/spf13/cobra"
)

func (a *app) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch INPUT_DIR",
		Short: "Convert every image pair under INPUT_DIR/expr and INPUT_DIR/mask",
		Long: `Pairs INPUT_DIR/expr/<name>.ome.tiff with INPUT_DIR/mask/<name>.ome.tiff,
converts each pair into OUTPUT_DIR/<name>, then writes OUTPUT_DIR/manifest.json.
The first failure stops the batch and no manifest is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := convert.FindPairs(args[0])
			if err != nil {
				return err
			}

			c, done, err := a.converter(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
				return pfx.Err(err)
			}

			var progress io.Writer
			if a.cfg.Progress {
				progress = os.Stderr
			}

			_, err = c.ConvertBatch(cmd.Context(), pairs, a.cfg.OutputDir, convert.BatchOptions{
				Workers:  a.cfg.Workers,
				Progress: progress,
			})
			return err
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().Int("workers", 0, "Pairs to convert at once. 0 means one per CPU.")
	cmd.Flags().Bool("progress", false, "Show a progress bar on stderr")

	return cmd
}
