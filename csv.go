package stataprep

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A CSVReader reads a data set in CSV format with type inference and
// chunking.
type CSVReader struct {

	// Skip this number of rows before reading the header.
	SkipRows int

	// If true, there is a header to read, otherwise default
	// column names are used.
	HasHeader bool

	// The column names, in the order that they appear in the
	// file.  Can be set by the caller to override the header.
	ColumnNames []string

	// User-specified data types (maps column name to type name).
	TypeHintsName map[string]string

	// User-specified data types (indexed by column number).
	TypeHintsPos []string

	// The data type for each column, either "float64" or
	// "string".  Inferred from the file unless set by the caller.
	DataTypes []string

	initRun   bool
	exhausted bool

	// Rows read ahead for type inference.
	cache [][]string

	csvr *csv.Reader

	numRows int
}

// NewCSVReader returns a CSVReader that reads CSV data from r.
func NewCSVReader(r io.Reader) *CSVReader {

	c := csv.NewReader(r)
	c.FieldsPerRecord = -1

	return &CSVReader{
		HasHeader: true,
		csvr:      c,
	}
}

// ReadColumnNames returns the column names from the first record of
// the CSV data in r, without reading any data rows.
func ReadColumnNames(r io.Reader) ([]string, error) {

	c := csv.NewReader(r)
	c.FieldsPerRecord = -1

	rec, err := c.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file appears to be empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	return rec, nil
}

// ColumnTypes returns the type of each column.  The types are not
// known until the first call to Read.
func (rdr *CSVReader) ColumnTypes() []ColumnType {

	types := make([]ColumnType, len(rdr.DataTypes))
	for j, t := range rdr.DataTypes {
		if t == "float64" {
			types[j] = ColumnNumeric
		} else {
			types[j] = ColumnString
		}
	}
	return types
}

func (rdr *CSVReader) setColumnNames() {

	if rdr.HasHeader {
		rdr.ColumnNames = rdr.cache[0]
		rdr.cache = rdr.cache[1:]
		return
	}

	m := len(rdr.cache[0])
	rdr.ColumnNames = make([]string, m)
	for k := range rdr.ColumnNames {
		rdr.ColumnNames[k] = fmt.Sprintf("Column %d", k+1)
	}
}

// sniffTypes infers a type for each column from the cached rows.  A
// column in which every non-blank value parses as a number is typed
// float64, everything else is typed string.
func (rdr *CSVReader) sniffTypes() {

	nFloats, nObs := rdr.countFloats()

	rdr.DataTypes = make([]string, len(rdr.ColumnNames))
	for j, col := range rdr.ColumnNames {

		t := "infer"
		if tm, ok := rdr.TypeHintsName[col]; ok {
			t = tm
		} else if j < len(rdr.TypeHintsPos) && rdr.TypeHintsPos[j] != "" {
			t = rdr.TypeHintsPos[j]
		}

		switch {
		case t != "infer":
			rdr.DataTypes[j] = t
		case j < len(nObs) && nFloats[j] == nObs[j] && nObs[j] > 0:
			rdr.DataTypes[j] = "float64"
		default:
			rdr.DataTypes[j] = "string"
		}
	}
}

// rectifyCache pads short rows in the cache so that every cached row
// has the same number of fields.
func (rdr *CSVReader) rectifyCache() {

	mx := 0
	for _, line := range rdr.cache {
		if len(line) > mx {
			mx = len(line)
		}
	}

	for i, line := range rdr.cache {
		for len(line) < mx {
			line = append(line, "")
		}
		rdr.cache[i] = line
	}
}

// init reads up to 100 rows ahead so that column types can be
// inferred before any data is returned.
func (rdr *CSVReader) init() error {

	rdr.cache = make([][]string, 0, 100)
	for k := 0; k < 100+rdr.SkipRows; k++ {
		v, err := rdr.csvr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if k >= rdr.SkipRows {
			rdr.cache = append(rdr.cache, v)
		}
	}

	rdr.rectifyCache()

	if len(rdr.cache) == 0 {
		return fmt.Errorf("file appears to be empty")
	}

	if rdr.ColumnNames == nil {
		rdr.setColumnNames()
	}

	if rdr.DataTypes == nil {
		rdr.sniffTypes()
	}

	rdr.initRun = true

	return nil
}

// ensureWidth extends the column metadata and the partially read
// chunk when a row is wider than any row seen before it.  Rows above
// the new columns are treated as missing.
func (rdr *CSVReader) ensureWidth(data []interface{}, miss [][]bool, nread, w int) ([]interface{}, [][]bool) {

	for k := len(rdr.ColumnNames); k < w; k++ {
		rdr.ColumnNames = append(rdr.ColumnNames, fmt.Sprintf("Column %d", k+1))
		rdr.DataTypes = append(rdr.DataTypes, "string")
	}

	for j := len(data); j < w; j++ {
		data = append(data, make([]string, nread))
		m := make([]bool, nread)
		for i := range m {
			m[i] = true
		}
		miss = append(miss, m)
	}

	return data, miss
}

// Read reads up to lines rows and returns them as an array of Series
// objects.  If lines is negative the remainder of the file is read.
// Data types are inferred from the file; use the type hint fields of
// the CSVReader struct to control the types directly.  Returns
// (nil, io.EOF) when no rows remain.
func (rdr *CSVReader) Read(lines int) ([]*Series, error) {

	if !rdr.initRun {
		if err := rdr.init(); err != nil {
			return nil, err
		}
	}

	if rdr.exhausted && len(rdr.cache) == 0 && rdr.numRows > 0 {
		return nil, io.EOF
	}

	data := make([]interface{}, len(rdr.ColumnNames))
	miss := make([][]bool, len(rdr.ColumnNames))
	for j := range rdr.ColumnNames {
		switch rdr.DataTypes[j] {
		case "float64":
			data[j] = make([]float64, 0, 100)
		case "string":
			data[j] = make([]string, 0, 100)
		}
		miss[j] = make([]bool, 0, 100)
	}

	nread := 0
	for lines < 0 || nread < lines {

		var line []string
		if len(rdr.cache) > 0 {
			line = rdr.cache[0]
			rdr.cache = rdr.cache[1:]
		} else {
			var err error
			line, err = rdr.csvr.Read()
			if err == io.EOF {
				rdr.exhausted = true
				break
			} else if err != nil {
				return nil, err
			}
			data, miss = rdr.ensureWidth(data, miss, nread, len(line))
		}

		for j := range rdr.ColumnNames {
			switch rdr.DataTypes[j] {
			case "float64":
				if j >= len(line) {
					data[j] = append(data[j].([]float64), 0)
					miss[j] = append(miss[j], true)
					continue
				}
				x, err := strconv.ParseFloat(line[j], 64)
				miss[j] = append(miss[j], err != nil)
				data[j] = append(data[j].([]float64), x)
			case "string":
				if j >= len(line) {
					data[j] = append(data[j].([]string), "")
					miss[j] = append(miss[j], true)
					continue
				}
				miss[j] = append(miss[j], false)
				data[j] = append(data[j].([]string), line[j])
			}
		}

		nread++
	}
	rdr.numRows += nread

	rslt := make([]*Series, len(data))
	for j := range data {
		name := fmt.Sprintf("Column %d", j+1)
		if j < len(rdr.ColumnNames) {
			name = rdr.ColumnNames[j]
		}
		var err error
		if rslt[j], err = NewSeries(name, data[j], miss[j]); err != nil {
			return nil, err
		}
	}

	return rslt, nil
}

// countFloats returns the number of values in each cached column
// that can be parsed as float64, along with the number of non-blank
// values.
func (rdr *CSVReader) countFloats() ([]int, []int) {

	m := 0
	for _, v := range rdr.cache {
		if len(v) > m {
			m = len(v)
		}
	}

	nFloats := make([]int, m)
	nObs := make([]int, m)

	for _, line := range rdr.cache {
		for j, y := range line {
			y = strings.TrimSpace(y)
			if len(y) == 0 {
				continue
			}
			nObs[j]++
			if _, err := strconv.ParseFloat(y, 64); err == nil {
				nFloats[j]++
			}
		}
	}

	return nFloats, nObs
}
