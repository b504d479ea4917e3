package stataprep

import "errors"

// ErrFormat reports that a file is not in a layout the reader
// understands, for example a dta file written by an unsupported
// Stata release.
var ErrFormat = errors.New("unrecognized file format")

// ColumnType classifies the data stored in one column of a
// statistical data file.
type ColumnType uint8

const (
	ColumnNumeric ColumnType = iota
	ColumnString
)

// A StatFileReader can read a binary statistical data file
// column-by-column.  Both the Stata and SAS readers satisfy this
// interface.
//
// Read returns up to the given number of rows as an array of Series
// objects, reading the remainder of the file when the argument is
// negative.  Successive calls return consecutive chunks, so very
// large files can be processed without holding all rows at once.
type StatFileReader interface {
	ColumnNames() []string
	ColumnTypes() []ColumnType
	Read(int) ([]*Series, error)
}
