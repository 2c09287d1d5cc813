// omeconvert converts OME-TIFF expression and mask images into the files the
// downstream pipeline consumes, and converts RIBCA classifier output into
// SQLite tables.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbocation/omeconvert/config"
	"github.com/spf13/cobra"

	_ "github.com/carbocation/omeconvert/compileinfoprint"
)

// app carries state shared by the subcommands once flags are parsed.
type app struct {
	configPath string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "omeconvert",
		Short: "Convert OME-TIFF images and RIBCA output for the analysis pipeline",
		Long: `omeconvert prepares microscopy data for the analysis pipeline.

Expression images are squeezed to CYX and written with a list of canonical
channel names; mask images have their cell plane extracted; RIBCA classifier
output is joined and written to a SQLite store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			if cfg.ConfigPath != "" {
				log.Printf("Using config file %s\n", cfg.ConfigPath)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ~/.config/omeconvert/omeconvert.yaml or ./omeconvert.yaml)")
	root.PersistentFlags().StringSlice("data-dir", nil, "Directory holding channel_name_mapping.csv and known_channels.txt. Searched before the default locations. May be repeated.")
	root.PersistentFlags().Bool("gcs-anonymous", false, "Read gs:// inputs without credentials")

	root.AddCommand(
		a.imagesCmd(),
		a.exprCmd(),
		a.maskCmd(),
		a.batchCmd(),
		a.channelsCmd(),
		a.ribcaCmd(),
		versionCmd(),
	)

	return root
}

func main() {
	start := time.Now()
	log.Println("omeconvert start")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		log.Println(err)
	}
	log.Printf("omeconvert end. Took %.2f seconds\n", time.Since(start).Seconds())

	if err != nil {
		os.Exit(1)
	}
}
