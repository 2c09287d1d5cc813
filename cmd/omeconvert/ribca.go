package main

import (
	"github.com/carbocation/omeconvert/ribca"
	"github.com/spf13/cobra"
)

func (a *app) ribcaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ribca RESULTS_DIR",
		Short: "Convert RIBCA classifier output into <image>.sqlite",
		Long: `Joins headless_annotation_0.txt, headless_confidence_0.txt and
headless_confidence_thresholds_0.txt on cell id, parses headless_votes_0.txt,
and writes both tables to OUTPUT_DIR/<image>.sqlite, where <image> is read
from image_name.txt. The raw annotation file is archived as
ARCHIVE_DIR/<image>.csv, by default under OUTPUT_DIR/archive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ribca.ConvertOutput(args[0], a.cfg.OutputDir, a.cfg.ArchiveDir, ribca.Options{
				Strict: a.cfg.Strict,
				CSV:    a.cfg.CSV,
			})
			return err
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().String("archive-dir", "", "Archive the raw annotation file as ARCHIVE_DIR/<image>.csv (default OUTPUT_DIR/archive)")
	cmd.Flags().Bool("csv", false, "Also write <image>_annotations.csv and <image>_votes.csv")
	cmd.Flags().Bool("strict", false, "Fail unless every result file lists the same cells")

	return cmd
}
