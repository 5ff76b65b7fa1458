package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Println(version.String())
		},
	}
}
