package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/savedobjects/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "savedobjects %s %s/%s %s\n",
				version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
