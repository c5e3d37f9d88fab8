package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/listeria.report/internal/version"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Annotations: map[string]string{skipConfig: ""},
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
