package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/NPRA/geofence-converter/version"
)

func NewCmdConfig(out io.Writer, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration, secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doConfig(out, config)
		},
	}
}

func doConfig(out io.Writer, config *Config) error {
	fmt.Fprintf(out, "# %s\n", version.AppVersion())
	if configFile != "" {
		fmt.Fprintf(out, "# merged with %s\n", configFile)
	}
	_, err := fmt.Fprintf(out, "\n%s", config)
	return err
}
