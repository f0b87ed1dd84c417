package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"photodate/internal"
)

var validateCmd = &cobra.Command{
	Use:   "validate [folder]",
	Short: "Check that every JSON sidecar has a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := args[0]
		info, err := os.Stat(folder)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("folder does not exist or is not a directory: %s", folder)
		}

		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		index, err := internal.ScanArchive(folder, conf.Ignore)
		if err != nil {
			return err
		}

		v := internal.ValidateMetadata(index)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d media files, %d sidecars\n", v.Media, v.Sidecars)
		if verboseFlag {
			for _, m := range v.Undocumented {
				fmt.Fprintf(out, "no sidecar: %s\n", m)
			}
		}
		if len(v.Orphans) == 0 {
			color.New(color.FgGreen).Fprintln(out, "Every sidecar has a media file")
			return nil
		}
		warn := color.New(color.FgYellow)
		for _, s := range v.Orphans {
			warn.Fprintf(out, "Media file not found for json metadata %s\n", s)
		}
		return fmt.Errorf("%d sidecars without media", len(v.Orphans))
	},
}

func init() {
	validateCmd.Flags().StringSlice("ignore", nil, "Basename globs to skip")
	rootCmd.AddCommand(validateCmd)
}
