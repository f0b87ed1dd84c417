package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"photodate/internal"
)

// Version is overwritten from the embedded VERSION file at startup.
var Version = "dev"

var (
	configFlag  string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "photodate",
	Short: "Date, rename and flatten takeout photo archives",
	Long: `photodate finds the creation time of every photo and video in a takeout
export, from a date prefix already in the file name, the JSON sidecar the
export wrote next to it, or the metadata embedded in the file, and renames
files so an alphabetical sort is chronological.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ApplyVersion copies Version onto the root command.
func ApplyVersion() {
	rootCmd.Version = Version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default is $XDG_CONFIG_HOME/photodate/photodate.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log every file")
	ApplyVersion()
}

// loadConfig reads the config file and lets every flag of cmd that names a
// config key override it.
func loadConfig(cmd *cobra.Command) (*internal.Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return internal.LoadConfig(v, configFlag)
}
