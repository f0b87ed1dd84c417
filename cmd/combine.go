package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"photodate/internal"
)

var (
	outputFlag string
	moveFlag   bool
	verifyFlag bool
)

var combineCmd = &cobra.Command{
	Use:   "combine [folder]",
	Short: "Flatten \"Photos from <year>\" folders into one folder per year",
	Long: `Collect every "Photos from <year>" folder under folder, across all takeout
parts, into <folder>_out/<year>/ (or --output). Files are copied unless
--move is given. The result is recounted afterwards and any missing or
duplicated file name fails the command.`,
	Args: cobra.ExactArgs(1),
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
		logger, err := internal.NewLogger(conf.LogFile, verboseFlag)
		if err != nil {
			return err
		}
		defer logger.Close()

		bar := internal.NewProgressBar(-1, conf.ProgressReport, "Combining")
		result, err := internal.CombineYearFolders(folder, internal.CombineOptions{
			Output:   outputFlag,
			Move:     moveFlag,
			Verify:   verifyFlag,
			Progress: bar,
		}, logger.Logger)
		bar.Finish()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		verb := "Copied"
		if result.Moved {
			verb = "Moved"
		}
		fmt.Fprintf(out, "%s %s files from %d year folders into %s\n",
			verb, humanize.Comma(int64(result.Files)), len(result.Years), result.Output)

		if err := internal.ValidateCombined(result); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(out, "All files accounted for")
		return nil
	},
}

func init() {
	combineCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination folder (default <folder>_out)")
	combineCmd.Flags().BoolVar(&moveFlag, "move", false, "Move files instead of copying them")
	combineCmd.Flags().BoolVar(&verifyFlag, "verify", false, "Compare content hashes after each copy")
	combineCmd.Flags().Bool("progress-report", false, "Show a progress bar")
	combineCmd.Flags().String("log-file", "photodate.log", "Log file")

	rootCmd.AddCommand(combineCmd)
}
