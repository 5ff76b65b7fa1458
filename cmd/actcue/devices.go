package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/audio"
)

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.ListDevices(cmd.Context())
			if err != nil {
				return err
			}

			for _, device := range devices {
				marker := " "
				if device.Default {
					marker = "*"
				}
				state := device.State
				if device.Muted {
					state += ", muted"
				}
				fmt.Printf("%s %s (%s)\n", marker, audio.DescribeDevice(device), state)
			}
			return nil
		},
	}
}
