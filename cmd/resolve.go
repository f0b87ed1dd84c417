package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"photodate/internal"
)

var (
	formatFlag string
	dryRunFlag bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [folder]",
	Short: "Find the creation time of every media file",
	Long: `Resolve a timestamp for every media file under folder, trying a date prefix
in the file name, then the matching JSON sidecar, then embedded metadata.
Prints a report. With --rename the files are renamed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runResolve(cmd, args[0], conf, cmd.OutOrStdout())
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename [folder]",
	Short: "Resolve timestamps and prefix file names with them",
	Long: `Same as resolve --rename: media files get the date prefix in place and their
sidecars move into a meta/ folder next to them. Use --dry-run to print the
planned moves without touching anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		conf.Rename = !dryRunFlag
		return runResolve(cmd, args[0], conf, cmd.OutOrStdout())
	},
}

func runResolve(cmd *cobra.Command, folder string, conf *internal.Config, out io.Writer) error {
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("folder does not exist or is not a directory: %s", folder)
	}

	logger, err := internal.NewLogger(conf.LogFile, verboseFlag)
	if err != nil {
		return err
	}
	defer logger.Close()

	index, err := internal.ScanArchive(folder, conf.Ignore)
	if err != nil {
		return err
	}
	logger.Info().Int("media", len(index.Media())).Int("sidecars", len(index.Sidecars())).Msg("scanned archive")

	var extractor internal.TagExtractor
	if conf.UseExifTool {
		extractor = internal.NewExiftoolExtractor(conf.ExifToolPath)
	} else {
		extractor = internal.NewNativeExtractor()
	}
	defer extractor.Close()

	filenames := internal.NewFilenameDateParser(conf.DateFormat)
	embedded := internal.NewEmbeddedReader(extractor, conf.Tags, conf.ExifToolTimeout, logger.Logger)
	resolver := internal.NewResolver(index, filenames, embedded, internal.ResolverOptions{
		SkipSidecars: conf.SkipJSONMetadata,
		Workers:      conf.Workers,
	}, logger.Logger)

	bar := internal.NewProgressBar(len(index.Media()), conf.ProgressReport, "Resolving")
	report, runErr := resolver.WithProgress(bar).Run(cmd.Context())
	bar.Finish()

	if err := internal.DisplayReport(out, report, formatFlag); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	plan, err := internal.PlanRenames(report, filenames)
	if err != nil {
		return err
	}
	if !conf.Rename {
		if dryRunFlag {
			plan.Describe(out)
		}
		return nil
	}

	var session *internal.Session
	if conf.Manifest {
		session, err = internal.NewSession(folder)
		if err != nil {
			return err
		}
		defer session.Close()
	}
	if err := plan.Apply(session, logger.Logger); err != nil {
		return err
	}
	if session != nil {
		stats := session.GetStats()
		fmt.Fprintf(out, "Renamed %d media files and %d sidecars. Manifest: %s\n",
			stats.RenamedMedia, stats.RenamedSidecars, session.SessionDir)
	}
	return nil
}

func addResolveFlags(fs *pflag.FlagSet) {
	fs.Bool("progress-report", false, "Show a progress bar")
	fs.Bool("skip-json-metadata", false, "Do not use JSON sidecars")
	fs.String("date-format", internal.DefaultDateFormat, "strftime pattern of the file name prefix")
	fs.Bool("exiftool", true, "Read embedded metadata with exiftool (false uses the built-in EXIF decoder)")
	fs.String("exiftool-path", "", "Path to the exiftool binary")
	fs.Duration("exiftool-timeout", 30*time.Second, "Timeout per exiftool call")
	fs.Int("workers", 1, "Files resolved in parallel")
	fs.StringSlice("ignore", nil, "Basename globs to skip")
	fs.String("log-file", "photodate.log", "Log file")
	fs.Bool("manifest", true, "Write a JSONL manifest of applied renames")
	fs.StringVar(&formatFlag, "format", "table", "Report format: table, json")
	fs.BoolVar(&dryRunFlag, "dry-run", false, "Print planned renames without applying them")
}

func init() {
	addResolveFlags(resolveCmd.Flags())
	resolveCmd.Flags().Bool("rename", false, "Rename resolved files")
	addResolveFlags(renameCmd.Flags())

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(renameCmd)
}
