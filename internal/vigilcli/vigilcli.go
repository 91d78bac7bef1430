// Package vigilcli is the entrypoint for Vigil.
package vigilcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigil-obs/vigil/internal/build"
)

func Command() *cobra.Command {
	var cmd = &cobra.Command{
		Use:     fmt.Sprintf("%s [global options] <subcommand>", os.Args[0]),
		Short:   "Vigil",
		Version: build.Print("vigil"),

		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}
	cmd.SetVersionTemplate("{{ .Version }}\n")

	cmd.AddCommand(
		runCommand(),
		validateCommand(),
	)

	return cmd
}

// Run executes the root command and exits the process on failure.
func Run() {
	if err := Command().Execute(); err != nil {
		os.Exit(1)
	}
}
