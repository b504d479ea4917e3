// Package dtagen writes small Stata dta files in format 115.  It
// exists so that tests of the dta reader and the conversion pipeline
// can build their inputs on the fly instead of shipping binary
// fixtures.
package dtagen

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// Missing value sentinels, one per numeric storage type.  Each is
// the code Stata uses for the system missing value ".".
const (
	missingI8  = int8(101)
	missingI16 = int16(32741)
	missingI32 = int32(2147483621)
)

var (
	missingF32 = float32(math.Pow(2, 127))
	missingF64 = math.Pow(2, 1023)
)

// A Column describes one variable of a generated file.  Data must be
// one of []int8, []int16, []int32, []float32, []float64, or
// []string, and all columns of a file must have the same length.
// Missing, when non-nil, marks the cells to be written as Stata
// missing values; it is ignored for string columns, which have no
// missing code.  Format defaults to %9.0g for numeric columns and
// %<w>s for string columns, and Label names the value label
// associated with the column, with no label table written.
type Column struct {
	Name    string
	Format  string
	Label   string
	Data    interface{}
	Missing []bool
}

type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) raw(b []byte) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.Write(b)
}

func (s *stickyWriter) bin(v interface{}) {
	if s.err != nil {
		return
	}
	s.err = binary.Write(s.w, binary.LittleEndian, v)
}

// str writes v null-padded to exactly n bytes.
func (s *stickyWriter) str(v string, n int) {
	b := make([]byte, n)
	copy(b, v)
	s.raw(b)
}

// typeByte returns the typlist code for a column: 251 through 255
// for the numeric storage types, or the fixed string width.
func typeByte(c *Column) (byte, error) {
	switch v := c.Data.(type) {
	case []int8:
		return 251, nil
	case []int16:
		return 252, nil
	case []int32:
		return 253, nil
	case []float32:
		return 254, nil
	case []float64:
		return 255, nil
	case []string:
		w := 1
		for _, x := range v {
			if len(x) > w {
				w = len(x)
			}
		}
		if w > 244 {
			return 0, fmt.Errorf("string column %s exceeds 244 bytes", c.Name)
		}
		return byte(w), nil
	}
	return 0, fmt.Errorf("column %s has unsupported data type %T", c.Name, c.Data)
}

func colLength(c *Column) int {
	switch v := c.Data.(type) {
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []string:
		return len(v)
	}
	return 0
}

func colFormat(c *Column, tb byte) string {
	if c.Format != "" {
		return c.Format
	}
	if tb <= 244 {
		return fmt.Sprintf("%%%ds", tb)
	}
	return "%9.0g"
}

func writeCell(s *stickyWriter, c *Column, tb byte, i int) {
	miss := c.Missing != nil && c.Missing[i]
	switch v := c.Data.(type) {
	case []int8:
		x := v[i]
		if miss {
			x = missingI8
		}
		s.bin(x)
	case []int16:
		x := v[i]
		if miss {
			x = missingI16
		}
		s.bin(x)
	case []int32:
		x := v[i]
		if miss {
			x = missingI32
		}
		s.bin(x)
	case []float32:
		x := v[i]
		if miss {
			x = missingF32
		}
		s.bin(x)
	case []float64:
		x := v[i]
		if miss {
			x = missingF64
		}
		s.bin(x)
	case []string:
		s.str(v[i], int(tb))
	}
}

// Write writes a format 115 dta file holding the given columns to w.
// The file is little endian and carries no value label tables or
// expansion fields.
func Write(w io.Writer, datasetLabel string, cols []Column) error {

	if len(cols) == 0 {
		return fmt.Errorf("a dta file needs at least one column")
	}
	nobs := colLength(&cols[0])
	for i := range cols {
		if n := colLength(&cols[i]); n != nobs {
			return fmt.Errorf("column %s has length %d, want %d", cols[i].Name, n, nobs)
		}
		if len(cols[i].Name) > 32 {
			return fmt.Errorf("column name %s exceeds 32 bytes", cols[i].Name)
		}
	}

	types := make([]byte, len(cols))
	for i := range cols {
		tb, err := typeByte(&cols[i])
		if err != nil {
			return err
		}
		types[i] = tb
	}

	s := &stickyWriter{w: w}

	// Version 115, little endian, dataset filetype, one unused byte.
	s.raw([]byte{115, 2, 1, 0})
	s.bin(int16(len(cols)))
	s.bin(int32(nobs))
	s.str(datasetLabel, 81)
	s.str(time.Now().Format("02 Jan 2006 15:04"), 18)

	s.raw(types)
	for i := range cols {
		s.str(cols[i].Name, 33)
	}

	// Sort order list, unused.
	s.raw(make([]byte, 2*(len(cols)+1)))

	for i := range cols {
		s.str(colFormat(&cols[i], types[i]), 49)
	}
	for i := range cols {
		s.str(cols[i].Label, 33)
	}

	// Variable labels, left blank.
	s.raw(make([]byte, 81*len(cols)))

	// Expansion field terminator.
	s.raw(make([]byte, 5))

	for i := 0; i < nobs; i++ {
		for j := range cols {
			writeCell(s, &cols[j], types[j], i)
		}
	}

	return s.err
}

// WriteFile writes a format 115 dta file to path.
func WriteFile(path, datasetLabel string, cols []Column) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, datasetLabel, cols); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
