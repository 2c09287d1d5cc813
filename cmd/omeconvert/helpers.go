package main

import (
	"context"
	"log"

	"cloud.google.com/go/storage"
	"github.com/carbocation/omeconvert"
	"github.com/carbocation/omeconvert/channelmap"
	"github.com/carbocation/omeconvert/convert"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

func (a *app) loadMapper() (*channelmap.Mapper, error) {
	candidates := append(append([]string{}, a.cfg.DataDirs...), channelmap.DefaultCandidates()...)

	mapper, err := channelmap.Load(afero.NewOsFs(), candidates)
	if err != nil {
		return nil, err
	}
	log.Printf("Using channel data from %s (%d known channels)\n", mapper.Dir(), len(mapper.Known()))

	return mapper, nil
}

// storageClient returns a client only if one of the paths is on Google
// Storage. The caller closes a non-nil client.
func (a *app) storageClient(ctx context.Context, paths ...string) (*storage.Client, error) {
	for _, path := range paths {
		if !omeconvert.IsGoogleStoragePath(path) {
			continue
		}
		var opts []option.ClientOption
		if a.cfg.GCSAnonymous {
			opts = append(opts, option.WithoutAuthentication())
		}
		return storage.NewClient(ctx, opts...)
	}
	return nil, nil
}

// converter builds a Converter for the given inputs and returns a function
// that releases it.
func (a *app) converter(ctx context.Context, paths ...string) (*convert.Converter, func(), error) {
	mapper, err := a.loadMapper()
	if err != nil {
		return nil, nil, err
	}

	client, err := a.storageClient(ctx, paths...)
	if err != nil {
		return nil, nil, err
	}

	done := func() {
		if client != nil {
			client.Close()
		}
	}

	return convert.New(mapper, client), done, nil
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output-dir", "o", ".", "Directory to write into. Created if missing.")
}
