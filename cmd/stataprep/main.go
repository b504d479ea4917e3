// Command stataprep prepares survey datasets held in binary
// statistical formats for downstream analysis.  It converts Stata
// dta and SAS7BDAT files to csv or parquet form, writes column name
// manifests for csv files, and strips csv columns that carry no
// data.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensurvey/stataprep/internal/convert"
	"github.com/opensurvey/stataprep/internal/extract"
	"github.com/opensurvey/stataprep/internal/prune"
)

const (
	// defaultDir is searched when no folder argument is given.
	defaultDir = "."

	// defaultExtractInput is the csv file whose header is read when
	// the extract command is run with no arguments.
	defaultExtractInput = "Individual Recode/BDIR61FL.csv"
)

// banner prints the given lines followed by a rule and a blank line.
func banner(lines ...string) {
	for _, line := range lines {
		fmt.Println(line)
	}
	fmt.Printf("%s\n\n", strings.Repeat("=", 60))
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "stataprep",
		Short:        "Prepare binary survey data files for analysis",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	convertCmd := &cobra.Command{
		Use:   "convert [folder] [output-folder]",
		Short: "Convert the .dta and .sas7bdat files under a folder to csv",
		Example: `  stataprep convert surveys
  stataprep convert surveys converted`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, outDir := defaultDir, ""
			if len(args) > 0 {
				dir = args[0]
			}
			if len(args) > 1 {
				outDir = args[1]
			}
			lines := []string{fmt.Sprintf("Converting .dta files in: %s", dir)}
			if outDir != "" {
				lines = append(lines, fmt.Sprintf("Output folder: %s", outDir))
			}
			banner(lines...)
			_, err := convert.Run(dir, outDir, os.Stdout)
			return err
		},
	}
	rootCmd.AddCommand(convertCmd)

	extractCmd := &cobra.Command{
		Use:     "extract [csv-file] [output-file]",
		Short:   "Write the column names of a csv file to a text manifest",
		Example: `  stataprep extract "Individual Recode/BDIR61FL.csv"`,
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			csvPath, outPath := defaultExtractInput, ""
			if len(args) > 0 {
				csvPath = args[0]
			}
			if len(args) > 1 {
				outPath = args[1]
			}
			_, err := extract.Run(csvPath, outPath, os.Stdout)
			if errors.Is(err, extract.ErrMissingInput) {
				// A missing input is reported, not fatal.
				return nil
			}
			return err
		},
	}
	rootCmd.AddCommand(extractCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune [folder] [recursive]",
		Short: "Remove null and empty columns from the csv files under a folder",
		Example: `  stataprep prune surveys
  stataprep prune surveys false`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := defaultDir
			if len(args) > 0 {
				dir = args[0]
			}
			recursive := true
			if len(args) > 1 && strings.EqualFold(args[1], "false") {
				recursive = false
			}
			lines := []string{fmt.Sprintf("Removing null columns from CSV files in: %s", dir)}
			if recursive {
				lines = append(lines, "Processing all subfolders recursively...")
			}
			banner(lines...)
			_, err := prune.Folder(dir, recursive, os.Stdout)
			return err
		},
	}
	rootCmd.AddCommand(pruneCmd)

	parquetCmd := &cobra.Command{
		Use:     "parquet [folder] [output-folder]",
		Short:   "Convert the .dta and .sas7bdat files under a folder to parquet",
		Example: `  stataprep parquet surveys converted`,
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, outDir := defaultDir, ""
			if len(args) > 0 {
				dir = args[0]
			}
			if len(args) > 1 {
				outDir = args[1]
			}
			lines := []string{fmt.Sprintf("Converting .dta files in: %s", dir)}
			if outDir != "" {
				lines = append(lines, fmt.Sprintf("Output folder: %s", outDir))
			}
			banner(lines...)
			_, err := convert.RunParquet(dir, outDir, os.Stdout)
			return err
		},
	}
	rootCmd.AddCommand(parquetCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
