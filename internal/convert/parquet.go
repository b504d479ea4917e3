package convert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/opensurvey/stataprep"
)

// Rows per chunk when streaming a file into the parquet writer.
const parquetChunkRows = 64 * 1024

// newParquetReader opens path with settings that keep the column
// types aligned with the parquet schema: no date conversion and no
// category labels, so every column reads back as either numeric or
// string.
func newParquetReader(path string, f io.ReadSeeker) (stataprep.StatFileReader, error) {

	ext := filepath.Ext(path)
	switch {
	case strings.EqualFold(ext, ".dta"):
		rdr, err := stataprep.NewStataReader(f)
		if err != nil {
			return nil, err
		}
		rdr.InsertCategoryLabels = false
		rdr.ConvertDates = false
		return rdr, nil
	case strings.EqualFold(ext, ".sas7bdat"):
		rdr, err := stataprep.NewSAS7BDATReader(f)
		if err != nil {
			return nil, err
		}
		rdr.TrimStrings = true
		return rdr, nil
	}

	return nil, fmt.Errorf("unsupported file type %q", ext)
}

// parquetMetadata returns the runtime schema for the parquet writer.
func parquetMetadata(names []string, types []stataprep.ColumnType) []string {

	md := make([]string, len(names))
	for j := range names {
		if types[j] == stataprep.ColumnNumeric {
			md[j] = fmt.Sprintf("name=%s, type=DOUBLE", names[j])
		} else {
			md[j] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8", names[j])
		}
	}
	return md
}

// writeParquetChunk appends one chunk of rows to the parquet file.
// Missing values are written as nulls.
func writeParquetChunk(pw *writer.CSVWriter, types []stataprep.ColumnType, chunk []*stataprep.Series) error {

	n := chunk[0].Length()
	cols := make([][]string, len(chunk))
	miss := make([][]bool, len(chunk))
	for j, col := range chunk {
		if types[j] == stataprep.ColumnNumeric {
			v, m, err := col.UpcastNumeric().AsFloat64Slice()
			if err != nil {
				return err
			}
			s := make([]string, n)
			for i, x := range v {
				if m == nil || !m[i] {
					s[i] = strconv.FormatFloat(x, 'g', -1, 64)
				}
			}
			cols[j], miss[j] = s, m
		} else {
			v, m, err := col.AsStringSlice()
			if err != nil {
				return err
			}
			cols[j], miss[j] = v, m
		}
	}

	rec := make([]*string, len(chunk))
	for i := 0; i < n; i++ {
		for j := range cols {
			if miss[j] != nil && miss[j][i] {
				rec[j] = nil
			} else {
				rec[j] = &cols[j][i]
			}
		}
		if err := pw.WriteString(rec); err != nil {
			return err
		}
	}

	return nil
}

// parquetFile converts one data file to parquet, reading it in
// chunks, and prints the per-file progress report.
func parquetFile(dir, outDir, path string, w io.Writer) (*Result, error) {

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

	rdr, err := newParquetReader(path, f)
	if err != nil {
		return nil, err
	}

	dest, err := outPath(dir, outDir, path, ".parquet")
	if err != nil {
		return nil, err
	}

	fw, err := local.NewLocalFileWriter(dest)
	if err != nil {
		return nil, err
	}

	pw, err := writer.NewCSVWriter(parquetMetadata(rdr.ColumnNames(), rdr.ColumnTypes()), fw, 4)
	if err != nil {
		fw.Close()
		return nil, err
	}
	pw.RowGroupSize = 128 * 1024 * 1024 // 128M
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var rows int
	var readTime, writeTime time.Duration
	types := rdr.ColumnTypes()
	for {
		start := time.Now()
		chunk, err := rdr.Read(parquetChunkRows)
		if err == io.EOF {
			break
		}
		if err != nil {
			fw.Close()
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		readTime += time.Since(start)

		start = time.Now()
		if err := writeParquetChunk(pw, types, chunk); err != nil {
			fw.Close()
			return nil, err
		}
		writeTime += time.Since(start)
		rows += chunk[0].Length()
	}

	start := time.Now()
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	writeTime += time.Since(start)

	outInfo, err := os.Stat(dest)
	if err != nil {
		return nil, err
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
	fmt.Fprintf(w, "    Parquet size: %.2f MB\n", float64(res.OutSize)/mb)
	fmt.Fprintf(w, "    Read time: %.2fs, Write time: %.2fs\n\n", res.ReadTime.Seconds(), res.WriteTime.Seconds())

	return res, nil
}

// RunParquet converts every statistical data file under dir to
// parquet form, mirroring the csv conversion pass.
func RunParquet(dir, outDir string, w io.Writer) (*Summary, error) {

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
		res, err := parquetFile(dir, outDir, path, w)
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
