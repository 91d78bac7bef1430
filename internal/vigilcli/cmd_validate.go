package vigilcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigil-obs/vigil/internal/config"
)

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "validate [flags] file",
		Short:        "Validate a configuration file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return fmt.Errorf("validation failed")
			}
			fmt.Printf("%s is valid\n", args[0])
			return nil
		},
	}
}
