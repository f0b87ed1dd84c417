package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"photodate/internal"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the photodate config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFlag
		if path == "" {
			var err error
			path, err = internal.DefaultConfigPath()
			if err != nil {
				return err
			}
		}
		if err := internal.InitConfig(path, internal.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
