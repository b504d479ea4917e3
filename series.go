package stataprep

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"
)

// A Series is a named, fixed-type one-dimensional column of data with
// an optional mask marking missing values.  The mask is kept separate
// from the data so that an empty string and a missing value remain
// distinct states.
type Series struct {

	// A name describing what is in this series.
	Name string

	length int

	// The data, always a slice of primitives, e.g. []float64.
	data interface{}

	// missing[i] is true when position i holds no value.  A nil
	// mask means nothing is missing.
	missing []bool
}

// sliceLength returns the length of a supported data slice held in an
// interface value.
func sliceLength(data interface{}) (int, error) {
	switch v := data.(type) {
	case []float64:
		return len(v), nil
	case []float32:
		return len(v), nil
	case []int64:
		return len(v), nil
	case []int32:
		return len(v), nil
	case []int16:
		return len(v), nil
	case []int8:
		return len(v), nil
	case []uint64:
		return len(v), nil
	case []string:
		return len(v), nil
	case []time.Time:
		return len(v), nil
	default:
		return 0, fmt.Errorf("unsupported data type %T", data)
	}
}

// NewSeries returns a Series with the given name, data and missing
// value mask.  Neither slice is copied.  The mask may be nil.
func NewSeries(name string, data interface{}, missing []bool) (*Series, error) {

	length, err := sliceLength(data)
	if err != nil {
		return nil, err
	}

	return &Series{
		Name:    name,
		length:  length,
		data:    data,
		missing: missing,
	}, nil
}

// Data returns the data slice of the Series.
func (ser *Series) Data() interface{} {
	return ser.data
}

// Missing returns the missing value mask, which may be nil.
func (ser *Series) Missing() []bool {
	return ser.missing
}

// Length returns the number of elements in the Series.
func (ser *Series) Length() int {
	return ser.length
}

// isMissing reports whether position j holds no value.
func (ser *Series) isMissing(j int) bool {
	return ser.missing != nil && ser.missing[j]
}

// valueString renders the value at position j as text.
func (ser *Series) valueString(j int) string {
	switch v := ser.data.(type) {
	case []float64:
		return fmt.Sprintf("%f", v[j])
	case []float32:
		return fmt.Sprintf("%f", v[j])
	case []int64:
		return fmt.Sprintf("%d", v[j])
	case []int32:
		return fmt.Sprintf("%d", v[j])
	case []int16:
		return fmt.Sprintf("%d", v[j])
	case []int8:
		return fmt.Sprintf("%d", v[j])
	case []uint64:
		return fmt.Sprintf("%d", v[j])
	case []string:
		return v[j]
	case []time.Time:
		return fmt.Sprintf("%v", v[j])
	default:
		panic(fmt.Sprintf("unsupported data type %T", ser.data))
	}
}

// Write writes the entire Series to the given writer.
func (ser *Series) Write(w io.Writer) error {
	return ser.WriteRange(w, 0, ser.length)
}

// WriteRange writes positions first through last-1 of the Series to
// the given writer.
func (ser *Series) WriteRange(w io.Writer, first, last int) error {

	if _, err := fmt.Fprintf(w, "Name: %s\n", ser.Name); err != nil {
		return err
	}
	ty := fmt.Sprintf("%T", ser.data)
	if _, err := fmt.Fprintf(w, "Type: %s\n", ty[2:]); err != nil {
		return err
	}

	for j := first; j < last; j++ {
		if ser.isMissing(j) {
			if _, err := fmt.Fprintf(w, "%d:\n", j); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%d:  %s\n", j, ser.valueString(j)); err != nil {
			return err
		}
	}

	return nil
}

// Print prints the entire Series to standard output.
func (ser *Series) Print() {
	_ = ser.Write(os.Stdout)
}

// PrintRange prints a range of the Series to standard output.
func (ser *Series) PrintRange(first, last int) {
	_ = ser.WriteRange(os.Stdout, first, last)
}

// maskState classifies position j of two masks: 0 when one side is
// missing and the other is not, 1 when both are present, 2 when both
// are missing.
func maskState(a, b *Series, j int) int {
	f1 := !a.isMissing(j)
	f2 := !b.isMissing(j)
	switch {
	case f1 != f2:
		return 0
	case f1:
		return 1
	default:
		return 2
	}
}

// compareValues checks the non-missing positions of two equal-length
// slices with the given comparison, returning the first position
// where they disagree.
func compareValues[T any](n int, state func(int) int, u, v []T, same func(a, b T) bool) (bool, int) {
	for j := 0; j < n; j++ {
		switch state(j) {
		case 0:
			return false, j
		case 1:
			if !same(u[j], v[j]) {
				return false, j
			}
		}
	}
	return true, 0
}

// AllClose returns (true, 0) if the Series is elementwise within tol
// of the other Series, with identical missing masks.  On a length
// mismatch it returns (false, -1), on a type mismatch (false, -2),
// and otherwise (false, j) where j is the first differing position.
func (ser *Series) AllClose(other *Series, tol float64) (bool, int) {

	if ser.length != other.length {
		return false, -1
	}

	state := func(j int) int { return maskState(ser, other, j) }
	near := func(a, b float64) bool { return math.Abs(a-b) <= tol }

	switch u := ser.data.(type) {
	case []float64:
		v, ok := other.data.([]float64)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, near)
	case []float32:
		v, ok := other.data.([]float32)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v,
			func(a, b float32) bool { return near(float64(a), float64(b)) })
	case []int64:
		v, ok := other.data.([]int64)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b int64) bool { return a == b })
	case []int32:
		v, ok := other.data.([]int32)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b int32) bool { return a == b })
	case []int16:
		v, ok := other.data.([]int16)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b int16) bool { return a == b })
	case []int8:
		v, ok := other.data.([]int8)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b int8) bool { return a == b })
	case []uint64:
		v, ok := other.data.([]uint64)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b uint64) bool { return a == b })
	case []string:
		v, ok := other.data.([]string)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b string) bool { return a == b })
	case []time.Time:
		v, ok := other.data.([]time.Time)
		if !ok {
			return false, -2
		}
		return compareValues(ser.length, state, u, v, func(a, b time.Time) bool { return a.Equal(b) })
	default:
		panic(fmt.Sprintf("unsupported data type %T in AllClose", ser.data))
	}
}

// AllEqual is AllClose with a tolerance of zero.
func (ser *Series) AllEqual(other *Series) (bool, int) {
	return ser.AllClose(other, 0)
}

// cloneMask returns a copy of a missing value mask, or nil for a nil
// mask.
func cloneMask(m []bool) []bool {
	if m == nil {
		return nil
	}
	c := make([]bool, len(m))
	copy(c, m)
	return c
}

func toFloat64[T int8 | int16 | int32 | int64 | float32](d []T) []float64 {
	a := make([]float64, len(d))
	for i, v := range d {
		a[i] = float64(v)
	}
	return a
}

// UpcastNumeric returns a Series in which all signed integer and
// float32 data is converted to float64.  Other series are returned
// unchanged.
func (ser *Series) UpcastNumeric() *Series {

	var a []float64
	switch d := ser.data.(type) {
	case []float32:
		a = toFloat64(d)
	case []int64:
		a = toFloat64(d)
	case []int32:
		a = toFloat64(d)
	case []int16:
		a = toFloat64(d)
	case []int8:
		a = toFloat64(d)
	default:
		return ser
	}

	s, _ := NewSeries(ser.Name, a, cloneMask(ser.missing))
	return s
}

// ForceNumeric converts a string Series to float64 values, marking
// values that do not parse as missing.  Non-string series are
// returned unchanged.
func (ser *Series) ForceNumeric() *Series {

	y, ok := ser.data.([]string)
	if !ok {
		return ser
	}

	n := ser.length
	miss := make([]bool, n)
	if ser.missing != nil {
		copy(miss, ser.missing)
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		if miss[i] {
			continue
		}
		v, err := strconv.ParseFloat(y[i], 64)
		if err != nil {
			miss[i] = true
		} else {
			x[i] = v
		}
	}

	s, _ := NewSeries(ser.Name, x, miss)
	return s
}

// CountMissing returns the number of missing values in the Series.
func (ser *Series) CountMissing() int {

	m := 0
	for i := 0; i < ser.length; i++ {
		if ser.isMissing(i) {
			m++
		}
	}

	return m
}

// StringFunc applies f to every value of a string Series.  Non-string
// series are returned unchanged.
func (ser *Series) StringFunc(f func(string) string) *Series {

	x, ok := ser.data.([]string)
	if !ok {
		return ser
	}

	y := make([]string, ser.length)
	for i, v := range x {
		y[i] = f(v)
	}

	s, _ := NewSeries(ser.Name, y, cloneMask(ser.missing))
	return s
}

// ToString returns a Series holding the text rendering of the given
// Series.  Missing positions render as empty strings and stay masked.
// Times render in UTC as "2006-01-02 15:04:05" and floats with their
// natural formatting.
func (ser *Series) ToString() *Series {

	n := ser.length
	miss := make([]bool, n)
	if ser.missing != nil {
		copy(miss, ser.missing)
	}

	switch y := ser.data.(type) {
	case []string:
		return ser
	case []float64:
		x := make([]string, n)
		for i := 0; i < n; i++ {
			if !miss[i] {
				x[i] = fmt.Sprintf("%v", y[i])
			}
		}
		s, _ := NewSeries(ser.Name, x, miss)
		return s
	case []time.Time:
		x := make([]string, n)
		for i := 0; i < n; i++ {
			if !miss[i] {
				x[i] = y[i].UTC().Format("2006-01-02 15:04:05")
			}
		}
		s, _ := NewSeries(ser.Name, x, miss)
		return s
	default:
		panic(fmt.Sprintf("unsupported data type %T in ToString", ser.data))
	}
}

// NullStringMissing returns a copy of a string Series in which
// zero-length strings are marked missing.  Non-string series are
// returned unchanged.
func (ser *Series) NullStringMissing() *Series {

	y, ok := ser.data.([]string)
	if !ok {
		return ser
	}

	n := ser.length
	miss := make([]bool, n)
	if ser.missing != nil {
		copy(miss, ser.missing)
	}

	x := make([]string, n)
	copy(x, y)
	for i := 0; i < n; i++ {
		if len(x[i]) == 0 {
			miss[i] = true
		}
	}

	s, _ := NewSeries(ser.Name, x, miss)
	return s
}

// DateFromDuration returns a Series of dates obtained by adding the
// numeric values of the given Series, interpreted in the given units,
// to a base time.  Currently units must be "days".
func (ser *Series) DateFromDuration(base time.Time, units string) (*Series, error) {

	if units != "days" {
		return nil, fmt.Errorf("unsupported duration unit %q", units)
	}

	td, err := upcastNumeric(ser.data)
	if err != nil {
		return nil, err
	}

	n := ser.length
	miss := cloneMask(ser.missing)

	dates := make([]time.Time, n)
	for i := 0; i < n; i++ {
		if miss == nil || !miss[i] {
			dates[i] = base.Add(time.Hour * time.Duration(24*td[i]))
		}
	}

	return NewSeries(ser.Name, dates, miss)
}

// AsFloat64Slice returns the data and missing mask of a float64
// Series.
func (ser *Series) AsFloat64Slice() ([]float64, []bool, error) {

	v, ok := ser.data.([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("cannot convert %T to []float64", ser.data)
	}

	return v, ser.missing, nil
}

// AsStringSlice returns the data and missing mask of a string Series.
func (ser *Series) AsStringSlice() ([]string, []bool, error) {

	v, ok := ser.data.([]string)
	if !ok {
		return nil, nil, fmt.Errorf("cannot convert %T to []string", ser.data)
	}

	return v, ser.missing, nil
}

// AsUint64Slice returns the data and missing mask of a uint64 Series,
// as produced by the SAS reader when FactorizeStrings is set.
func (ser *Series) AsUint64Slice() ([]uint64, []bool, error) {

	v, ok := ser.data.([]uint64)
	if !ok {
		return nil, nil, fmt.Errorf("cannot convert %T to []uint64", ser.data)
	}

	return v, ser.missing, nil
}

// upcastNumeric converts a numeric slice held in an interface value
// to []float64.
func upcastNumeric(data interface{}) ([]float64, error) {
	switch d := data.(type) {
	case []float64:
		return d, nil
	case []float32:
		return toFloat64(d), nil
	case []int64:
		return toFloat64(d), nil
	case []int32:
		return toFloat64(d), nil
	case []int16:
		return toFloat64(d), nil
	case []int8:
		return toFloat64(d), nil
	default:
		return nil, fmt.Errorf("cannot upcast %T to []float64", data)
	}
}

// A SeriesArray is an ordered collection of Series that together form
// a data set.
type SeriesArray []*Series

// AllClose returns (true, 0, 0) when corresponding columns of the two
// arrays are within tol of each other.  A column count mismatch
// returns (false, -1, -1); otherwise the result identifies the first
// column j and position i that differ, with i taking the same
// sentinel values as Series.AllClose.
func (ser SeriesArray) AllClose(other []*Series, tol float64) (bool, int, int) {

	if len(ser) != len(other) {
		return false, -1, -1
	}

	for j := range ser {
		if f, i := ser[j].AllClose(other[j], tol); !f {
			return false, j, i
		}
	}

	return true, 0, 0
}

// AllEqual is AllClose with a tolerance of zero.
func (ser SeriesArray) AllEqual(other []*Series) (bool, int, int) {
	return ser.AllClose(other, 0)
}
