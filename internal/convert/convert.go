// Package convert turns directory trees of binary statistical data
// files into csv or parquet form.
package convert

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/opensurvey/stataprep"
)

// A Result records the outcome of converting one file.
type Result struct {
	Path      string
	OutPath   string
	Rows      int
	Columns   int
	ReadTime  time.Duration
	WriteTime time.Duration
	InSize    int64
	OutSize   int64
}

// A Summary aggregates one directory conversion pass.
type Summary struct {
	Found      int
	Successful int
	Failed     int
	Results    []*Result
}

const mb = 1024 * 1024

// npr renders row counts with thousands separators.
var npr = message.NewPrinter(language.English)

// discover returns the files under dir whose extension matches one
// of exts, case-insensitively.  The walk order is lexical, so the
// result is deterministic.
func discover(dir string, exts ...string) ([]string, error) {

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		for _, e := range exts {
			if strings.EqualFold(ext, e) {
				files = append(files, path)
				break
			}
		}
		return nil
	})

	return files, err
}

// newReader returns a reader for path with the conversion settings
// applied: categorical codes stay raw, strls are materialized, dates
// become time values.
func newReader(path string, f io.ReadSeeker) (stataprep.StatFileReader, error) {

	ext := filepath.Ext(path)
	switch {
	case strings.EqualFold(ext, ".dta"):
		rdr, err := stataprep.NewStataReader(f)
		if err != nil {
			return nil, err
		}
		rdr.InsertCategoryLabels = false
		return rdr, nil
	case strings.EqualFold(ext, ".sas7bdat"):
		rdr, err := stataprep.NewSAS7BDATReader(f)
		if err != nil {
			return nil, err
		}
		rdr.TrimStrings = true
		rdr.ConvertDates = true
		return rdr, nil
	}

	return nil, fmt.Errorf("unsupported file type %q", ext)
}

// outPath returns the destination for one converted file.  With an
// output directory, the path relative to the input root is mirrored
// under it and any missing parents are created.  Otherwise the
// output lands next to the source.  Only the final extension is
// replaced.
func outPath(dir, outDir, path, newExt string) (string, error) {

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if outDir == "" {
		return filepath.Join(filepath.Dir(path), stem+newExt), nil
	}

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(outDir, filepath.Dir(rel), stem+newExt)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	return dest, nil
}

// writeCSV writes the columns as utf-8 comma separated values with a
// header row and no index column.  Missing values become empty
// fields, numeric values are upcast to float64, and times use the
// layout 2006-01-02 15:04:05.
func writeCSV(w io.Writer, names []string, data []*stataprep.Series) error {

	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return err
	}

	if len(data) == 0 {
		cw.Flush()
		return cw.Error()
	}

	cols := make([][]string, len(data))
	for j, col := range data {
		s, _, err := col.UpcastNumeric().ToString().AsStringSlice()
		if err != nil {
			return err
		}
		cols[j] = s
	}

	rec := make([]string, len(cols))
	for i := 0; i < data[0].Length(); i++ {
		for j := range cols {
			rec[j] = cols[j][i]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// convertFile converts one data file to csv, loading it fully into
// memory, and prints the per-file progress report.
func convertFile(dir, outDir, path string, w io.Writer) (*Result, error) {

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "Processing: %s (%.2f MB)\n", filepath.Base(path), float64(info.Size())/mb)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rdr, err := newReader(path, f)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := rdr.Read(-1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	readTime := time.Since(start)

	dest, err := outPath(dir, outDir, path, ".csv")
	if err != nil {
		return nil, err
	}

	out, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	if err := writeCSV(out, rdr.ColumnNames(), data); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	writeTime := time.Since(start)

	outInfo, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}

	rows := 0
	if len(data) > 0 {
		rows = data[0].Length()
	}

	res := &Result{
		Path:      path,
		OutPath:   dest,
		Rows:      rows,
		Columns:   len(rdr.ColumnNames()),
		ReadTime:  readTime,
		WriteTime: writeTime,
		InSize:    info.Size(),
		OutSize:   outInfo.Size(),
	}

	fmt.Fprintf(w, "  [SUCCESS] Converted to: %s\n", filepath.Base(dest))
	fmt.Fprintf(w, "    Rows: %s, Columns: %d\n", npr.Sprintf("%d", res.Rows), res.Columns)
	fmt.Fprintf(w, "    CSV size: %.2f MB\n", float64(res.OutSize)/mb)
	fmt.Fprintf(w, "    Read time: %.2fs, Write time: %.2fs\n\n", res.ReadTime.Seconds(), res.WriteTime.Seconds())

	return res, nil
}

// Run converts every statistical data file under dir to csv form,
// writing progress to w.  A file that cannot be converted is
// reported and skipped; only a failure of the directory walk itself
// returns an error.
func Run(dir, outDir string, w io.Writer) (*Summary, error) {

	files, err := discover(dir, ".dta", ".sas7bdat")
	if err != nil {
		return nil, err
	}

	sum := &Summary{Found: len(files)}
	if len(files) == 0 {
		fmt.Fprintf(w, "No .dta files found in %s\n", dir)
		return sum, nil
	}
	fmt.Fprintf(w, "Found %d .dta file(s) to convert.\n\n", len(files))

	for _, path := range files {
		res, err := convertFile(dir, outDir, path, w)
		if err != nil {
			fmt.Fprintf(w, "  [FAILED] Could not convert %s\n", filepath.Base(path))
			fmt.Fprintf(w, "    Error: %v\n\n", err)
			sum.Failed++
			continue
		}
		sum.Successful++
		sum.Results = append(sum.Results, res)
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "Conversion complete!")
	fmt.Fprintf(w, "  Successful: %d\n", sum.Successful)
	fmt.Fprintf(w, "  Failed: %d\n", sum.Failed)
	fmt.Fprintf(w, "  Total: %d\n", sum.Found)

	return sum, nil
}
