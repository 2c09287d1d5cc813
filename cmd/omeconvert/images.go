package main

import (
	"os"

	"github.com/carbocation/pfx"
	"github.com/spf13/cobra"
)

func (a *app) imagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images EXPR_IMAGE MASK_IMAGE",
		Short: "Convert an expression image and its mask",
		Long: `Writes expr.tiff, markers.txt and mask.tiff into the output directory.
Either image may be a local path or a gs:// URL.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := a.converter(cmd.Context(), args...)
			if err != nil {
				return err
			}
			defer done()

			if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
				return pfx.Err(err)
			}
			if _, err := c.ConvertExprImage(cmd.Context(), args[0], a.cfg.OutputDir); err != nil {
				return err
			}
			_, err = c.ConvertMaskImage(cmd.Context(), args[1], a.cfg.OutputDir)
			return err
		},
	}
	addOutputFlag(cmd)

	return cmd
}

func (a *app) exprCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expr IMAGE",
		Short: "Convert an expression image into expr.tiff and markers.txt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := a.converter(cmd.Context(), args...)
			if err != nil {
				return err
			}
			defer done()

			if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
				return pfx.Err(err)
			}
			_, err = c.ConvertExprImage(cmd.Context(), args[0], a.cfg.OutputDir)
			return err
		},
	}
	addOutputFlag(cmd)

	return cmd
}

func (a *app) maskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mask IMAGE",
		Short: "Extract the cell plane of a mask image into mask.tiff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := a.converter(cmd.Context(), args...)
			if err != nil {
				return err
			}
			defer done()

			if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
				return pfx.Err(err)
			}
			_, err = c.ConvertMaskImage(cmd.Context(), args[0], a.cfg.OutputDir)
			return err
		},
	}
	addOutputFlag(cmd)

	return cmd
}
