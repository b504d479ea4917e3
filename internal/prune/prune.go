// Package prune removes columns that carry no data from csv files.
// A column is dropped when every data cell is a missing-value marker,
// or when every data cell is the empty string.
package prune

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrMissingInput reports that the input file does not exist.  It is
// a reported condition rather than a failure: callers print the
// report and move on.
var ErrMissingInput = errors.New("input file not found")

// naMarkers are the cell texts treated as missing values.  Matching
// is exact, with no trimming, so a whitespace-only cell counts as
// data.
var naMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

const mb = 1024 * 1024

var npr = message.NewPrinter(language.English)

// A Result records the outcome of cleaning one file.
type Result struct {
	Original  int
	Remaining int
	Removed   int
	Rows      int
	OutPath   string
	Diverted  bool
}

// A Summary aggregates the results of a folder pass.
type Summary struct {
	Found         int
	Successful    int
	Failed        int
	TotalRemoved  int
	TotalOriginal int
}

// CleanFile removes the null and empty columns of the csv file at
// path, preserving the order of the surviving columns.  When inPlace
// is true the file is rewritten where it stands; if that open is
// denied the reduced copy is diverted to "<stem>_cleaned<ext>"
// beside the original.  When inPlace is false the original is first
// renamed to "<path>.backup" and the reduced file written under the
// original name.  A file with nothing to remove is left untouched.
// Progress is reported to w.
func CleanFile(path string, inPlace bool, w io.Writer) (*Result, error) {

	fi, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(w, "File not found: %s\n", path)
		return nil, ErrMissingInput
	}
	origSize := float64(fi.Size()) / mb

	fmt.Fprintf(w, "Processing: %s (%.2f MB)\n", filepath.Base(path), origSize)

	readStart := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		return nil, err
	}
	readTime := time.Since(readStart)

	if len(records) == 0 {
		return nil, fmt.Errorf("file appears to be empty")
	}

	header := records[0]
	rows := records[1:]

	fmt.Fprintf(w, "  Original: %s rows, %d columns\n",
		npr.Sprintf("%d", len(rows)), len(header))

	// A column is removable when it is all missing markers or all
	// empty.  With no data rows neither test can pass.
	drop := make([]bool, len(header))
	for j := range header {
		allNA := len(rows) > 0
		allEmpty := len(rows) > 0
		for _, row := range rows {
			if !naMarkers[row[j]] {
				allNA = false
			}
			if row[j] != "" {
				allEmpty = false
			}
			if !allNA && !allEmpty {
				break
			}
		}
		drop[j] = allNA || allEmpty
	}

	removed := 0
	for _, d := range drop {
		if d {
			removed++
		}
	}

	if removed == 0 {
		fmt.Fprintf(w, "  No null columns found. File unchanged.\n\n")
		return &Result{
			Original:  len(header),
			Remaining: len(header),
			Rows:      len(rows),
			OutPath:   path,
		}, nil
	}

	fmt.Fprintf(w, "  Removing %d null/empty columns...\n", removed)

	keep := make([]int, 0, len(header)-removed)
	for j := range header {
		if !drop[j] {
			keep = append(keep, j)
		}
	}
	reduced := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(keep))
		for i, j := range keep {
			row[i] = rec[j]
		}
		reduced = append(reduced, row)
	}

	writeStart := time.Now()
	outPath := path
	diverted := false
	var out *os.File
	if inPlace {
		out, err = os.Create(path)
		if errors.Is(err, fs.ErrPermission) {
			ext := filepath.Ext(path)
			stem := strings.TrimSuffix(filepath.Base(path), ext)
			outPath = filepath.Join(filepath.Dir(path), stem+"_cleaned"+ext)
			out, err = os.Create(outPath)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(w, "  Note: Original file is locked. Saved as: %s\n", filepath.Base(outPath))
			diverted = true
		} else if err != nil {
			return nil, err
		}
	} else {
		if err := os.Rename(path, path+".backup"); err != nil {
			return nil, err
		}
		out, err = os.Create(path)
		if err != nil {
			return nil, err
		}
	}
	cw := csv.NewWriter(out)
	if err := cw.WriteAll(reduced); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	writeTime := time.Since(writeStart)

	var newSize float64
	if fi, err := os.Stat(outPath); err == nil {
		newSize = float64(fi.Size()) / mb
	}

	fmt.Fprintf(w, "  [SUCCESS] Removed %d columns\n", removed)
	fmt.Fprintf(w, "    Remaining: %d columns\n", len(keep))
	fmt.Fprintf(w, "    Size reduction: %.2f MB (%.1f%%)\n",
		origSize-newSize, (origSize-newSize)/origSize*100)
	fmt.Fprintf(w, "    Read time: %.2fs, Write time: %.2fs\n\n",
		readTime.Seconds(), writeTime.Seconds())

	return &Result{
		Original:  len(header),
		Remaining: len(keep),
		Removed:   removed,
		Rows:      len(rows),
		OutPath:   outPath,
		Diverted:  diverted,
	}, nil
}

// Folder cleans every csv file under dir in place.  With recursive
// set the whole tree is walked, otherwise only the top level.  Files
// that fail are reported and skipped, and the pass continues.
func Folder(dir string, recursive bool, w io.Writer) (*Summary, error) {

	files, err := discover(dir, recursive)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Found: len(files)}
	if len(files) == 0 {
		fmt.Fprintf(w, "No CSV files found in %s\n", dir)
		return sum, nil
	}

	fmt.Fprintf(w, "Found %d CSV file(s) to process.\n\n", len(files))
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 60))

	for _, path := range files {
		res, err := CleanFile(path, true, w)
		switch {
		case errors.Is(err, ErrMissingInput):
			// Vanished between discovery and processing; counts
			// neither as a success nor as a failure.
		case err != nil:
			fmt.Fprintf(w, "  [FAILED] Error processing %s\n", filepath.Base(path))
			fmt.Fprintf(w, "    Error: %v\n\n", err)
			sum.Failed++
		default:
			sum.Successful++
			sum.TotalRemoved += res.Removed
			sum.TotalOriginal += res.Original
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "Processing complete!")
	fmt.Fprintf(w, "  Successful: %d\n", sum.Successful)
	fmt.Fprintf(w, "  Failed: %d\n", sum.Failed)
	fmt.Fprintf(w, "  Total columns removed: %d\n", sum.TotalRemoved)
	avg := 0.0
	if sum.Successful > 0 {
		avg = float64(sum.TotalOriginal) / float64(sum.Successful)
	}
	fmt.Fprintf(w, "  Average columns per file: %.1f\n", avg)

	return sum, nil
}

func discover(dir string, recursive bool) ([]string, error) {
	var files []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return files, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
