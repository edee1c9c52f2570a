package main

import (
	"fmt"

	"github.com/danielpatrickdp/continuity-arbiter/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	var env bool
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if env {
				for _, key := range config.Keys() {
					fmt.Fprintln(out, config.EnvName(key))
				}
				return nil
			}
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	dump.Flags().BoolVar(&env, "env", false, "list the recognized environment variables instead")
	cmd.AddCommand(dump)
	return cmd
}
