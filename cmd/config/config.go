package config

import (
	"fmt"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/mirrorpush/mirrorpush/cmd/util"
	"github.com/mirrorpush/mirrorpush/pkg/config"
	"github.com/mirrorpush/mirrorpush/pkg/errors"
)

// New creates a new `config` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the parsed replication configuration",
		Long: "Parse and validate the replication configuration, and print the\n" +
			"result with all defaults applied. Useful for checking a config\n" +
			"before running `mirrorpush push`.",
		Run: func(_ *cobra.Command, _ []string) {
			parsed, err := config.ParseMirror(configPath)
			if err != nil {
				util.HandleFatalError(err)
			}

			out, err := yaml.Marshal(parsed)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "marshal config"))
			}
			fmt.Print(string(out))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "mirrorpush.yaml",
		"Path to the replication configuration file.")
	return cmd
}
