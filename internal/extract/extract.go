// Package extract writes the column names of a csv file to a text
// manifest, reading only the header row.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensurvey/stataprep"
)

// ErrMissingInput reports that the input file does not exist.  It is
// a reported condition rather than a failure: callers print the
// report and exit normally.
var ErrMissingInput = errors.New("input file not found")

// A Result records the outcome of one extraction.
type Result struct {
	Columns int
	OutPath string
}

// Run writes the column names of the csv file at csvPath to a text
// file, one "{index}. {name}" line per column, 1-based.  Duplicate
// or empty names are written as they appear.  With an empty outPath
// the manifest lands next to the input as "<stem>_columns.txt".
func Run(csvPath, outPath string, w io.Writer) (*Result, error) {

	if _, err := os.Stat(csvPath); err != nil {
		fmt.Fprintf(w, "File not found: %s\n", csvPath)
		return nil, ErrMissingInput
	}

	fmt.Fprintf(w, "Reading column names from: %s\n", filepath.Base(csvPath))

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := stataprep.ReadColumnNames(f)
	if err != nil {
		return nil, err
	}

	if outPath == "" {
		stem := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
		outPath = filepath.Join(filepath.Dir(csvPath), stem+"_columns.txt")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		if _, err := fmt.Fprintf(out, "%d. %s\n", i+1, name); err != nil {
			out.Close()
			return nil, err
		}
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "  Extracted %d column names\n", len(names))
	fmt.Fprintf(w, "  Saved to: %s\n", filepath.Base(outPath))
	fmt.Fprintf(w, "  Full path: %s\n", outPath)

	return &Result{Columns: len(names), OutPath: outPath}, nil
}
