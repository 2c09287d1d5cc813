package main

import (
	"fmt"

	"github.com/carbocation/omeconvert/channelmap"
	"github.com/spf13/cobra"
)

func (a *app) channelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels NAME...",
		Short: "Map raw channel names and report how they compare to the known panel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapper, err := a.loadMapper()
			if err != nil {
				return err
			}

			res := mapper.MapChannelNames(args)

			out := cmd.OutOrStdout()
			for _, name := range res.NewChannels {
				if _, err := fmt.Fprintln(out, name); err != nil {
					return err
				}
			}
			fmt.Fprintln(out)

			return channelmap.WriteReport(out, res)
		},
	}
}
