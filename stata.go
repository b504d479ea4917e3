package stataprep

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Variable type codes used internally for all dta versions.  Older
// files use a different encoding that is translated to these codes
// when the header is read.
const (
	dtaMaxStrf  = 2045
	dtaTypeStrl = 32768
	dtaTypeF64  = 65526
	dtaTypeF32  = 65527
	dtaTypeI32  = 65528
	dtaTypeI16  = 65529
	dtaTypeI8   = 65530
)

// Thresholds beyond which a stored value is one of Stata's missing
// value codes.
const (
	dtaMissingF64 = 8.988e307
	dtaMissingF32 = 1.701e38
)

// StataReader reads Stata dta data files.  Currently dta format
// versions 114, 115, 117 and 118 can be read.
//
// The Read method reads and returns the data.  Several fields of the
// StataReader struct may also be of interest.
//
// Technical information about the file format can be found here:
// http://www.stata.com/help.cgi?dta
type StataReader struct {

	// If true, the strl numeric codes are replaced with their
	// string values when available.
	InsertStrls bool

	// If true, the categorial numeric codes are replaced with
	// their string labels when available.  Value labels are
	// stored after the data, so this is only supported for dta
	// versions 117 and higher.
	InsertCategoryLabels bool

	// If true, dates are converted to Go date format.
	ConvertDates bool

	// A short text label for the data set.
	DatasetLabel string

	// The time at which the data set was created.
	TimeStamp string

	// The dta format version of the file.
	FormatVersion int

	// The byte order of the file.
	ByteOrder binary.ByteOrder

	// The display formats of the variables, in the order that the
	// variables appear in the file.
	Formats []string

	// Descriptive labels of the variables, in the order that the
	// variables appear in the file.
	VariableLabels []string

	// Value label tables, keyed by table name.  Each table maps
	// numeric codes to string labels.
	ValueLabels map[string]map[int32]string

	// The name of the value label table attached to each
	// variable, or an empty string for variables with no labels.
	ValueLabelNames []string

	// String values referenced from the data by strl codes.
	Strls map[uint64]string

	// Binary values referenced from the data by strl codes.
	StrlsBytes map[uint64][]byte

	nvar     int
	rowCount int
	rowsRead int

	// Variable types, using the internal codes above.
	varTypes []int

	names  []string
	isDate []bool

	// Section offsets from the file map, tagged format only.
	seekVarTypes        int64
	seekVarNames        int64
	seekSortList        int64
	seekFormats         int64
	seekValueLabelNames int64
	seekVariableLabels  int64
	seekCharacteristics int64
	seekData            int64
	seekStrls           int64
	seekValueLabels     int64

	r io.ReadSeeker
}

// NewStataReader returns a StataReader for reading from the given
// dta file.  The file header is read immediately.
func NewStataReader(r io.ReadSeeker) (*StataReader, error) {
	rdr := &StataReader{
		InsertStrls:          true,
		InsertCategoryLabels: true,
		ConvertDates:         true,
		r:                    r,
	}
	if err := rdr.init(); err != nil {
		return nil, err
	}
	return rdr, nil
}

// RowCount returns the number of rows in the data set.
func (rdr *StataReader) RowCount() int {
	return rdr.rowCount
}

// ColumnNames returns the names of the variables in the data file.
func (rdr *StataReader) ColumnNames() []string {
	return rdr.names
}

// ColumnTypes returns the type of each variable as it will be
// returned by Read, before any date conversion or label insertion.
func (rdr *StataReader) ColumnTypes() []ColumnType {
	types := make([]ColumnType, rdr.nvar)
	for j, t := range rdr.varTypes {
		if t <= dtaMaxStrf || (t == dtaTypeStrl && rdr.InsertStrls) {
			types[j] = ColumnString
		} else {
			types[j] = ColumnNumeric
		}
	}
	return types
}

func (rdr *StataReader) init() error {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(rdr.r, buf); err != nil {
		return fmt.Errorf("reading dta header: %w", err)
	}

	// Tagged files open with an XML-like tag, older files open
	// with a single version byte.
	if buf[0] == '<' {
		if _, err := rdr.r.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := rdr.readTaggedHeader(); err != nil {
			return err
		}
	} else {
		rdr.FormatVersion = int(buf[0])
		if !supportedDTAVersion(rdr.FormatVersion) {
			return fmt.Errorf("dta version %d: %w", rdr.FormatVersion, ErrFormat)
		}
		if err := rdr.readOldHeader(); err != nil {
			return err
		}
	}

	if err := rdr.readVarTypes(); err != nil {
		return err
	}
	if rdr.FormatVersion < 117 {
		rdr.translateVarTypes()
	}
	if err := rdr.readVarNames(); err != nil {
		return err
	}
	if rdr.FormatVersion < 117 {
		// The sort order is not used.
		if _, err := rdr.r.Seek(int64(2*(rdr.nvar+1)), io.SeekCurrent); err != nil {
			return err
		}
	}
	if err := rdr.readFormats(); err != nil {
		return err
	}
	if err := rdr.readValueLabelNames(); err != nil {
		return err
	}
	if err := rdr.readVariableLabels(); err != nil {
		return err
	}
	if rdr.FormatVersion < 117 {
		if err := rdr.skipExpansionFields(); err != nil {
			return err
		}
	}
	if rdr.FormatVersion >= 117 {
		if err := rdr.readStrls(); err != nil {
			return err
		}
		if err := rdr.readValueLabels(); err != nil {
			return err
		}
	}

	return nil
}

func supportedDTAVersion(v int) bool {
	switch v {
	case 114, 115, 117, 118:
		return true
	}
	return false
}

// rowCountWidth returns the byte width of the observation count in
// the file header.
func (rdr *StataReader) rowCountWidth() int {
	if rdr.FormatVersion == 118 {
		return 8
	}
	return 4
}

// varNameWidth returns the byte width of one variable name record.
func (rdr *StataReader) varNameWidth() int {
	if rdr.FormatVersion == 118 {
		return 129
	}
	return 33
}

// formatWidth returns the byte width of one display format record.
func (rdr *StataReader) formatWidth() int {
	if rdr.FormatVersion == 118 {
		return 57
	}
	return 49
}

// labelNameWidth returns the byte width of one value label table
// name.
func (rdr *StataReader) labelNameWidth() int {
	if rdr.FormatVersion == 118 {
		return 129
	}
	return 33
}

func (rdr *StataReader) readUint(width int) (int, error) {
	switch width {
	case 1:
		var x uint8
		if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	case 2:
		var x uint16
		if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	case 4:
		var x uint32
		if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	case 8:
		var x uint64
		if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	}
	panic("unsupported width")
}

// cstring returns the string ending at the first null byte of the
// buffer, or the whole buffer when there is none.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// readOldHeader reads the header of a dta file in format 115 or
// earlier.  The version byte has already been consumed.
func (rdr *StataReader) readOldHeader() error {
	buf := make([]byte, 3)
	if _, err := io.ReadFull(rdr.r, buf); err != nil {
		return fmt.Errorf("reading dta header: %w", err)
	}
	if buf[0] == 1 {
		rdr.ByteOrder = binary.BigEndian
	} else {
		rdr.ByteOrder = binary.LittleEndian
	}

	var err error
	if rdr.nvar, err = rdr.readUint(2); err != nil {
		return err
	}
	if rdr.rowCount, err = rdr.readUint(rdr.rowCountWidth()); err != nil {
		return err
	}

	lbl := make([]byte, 81)
	if _, err := io.ReadFull(rdr.r, lbl); err != nil {
		return err
	}
	rdr.DatasetLabel = cstring(lbl)

	ts := make([]byte, 18)
	if _, err := io.ReadFull(rdr.r, ts); err != nil {
		return err
	}
	rdr.TimeStamp = cstring(ts)

	return nil
}

// readTaggedHeader reads the header of a dta file in format 117 or
// higher, including the map of section offsets.
func (rdr *StataReader) readTaggedHeader() error {
	buf := make([]byte, 28)
	if _, err := io.ReadFull(rdr.r, buf); err != nil {
		return fmt.Errorf("reading dta header: %w", err)
	}
	if string(buf[:11]) != "<stata_dta>" {
		return fmt.Errorf("not a dta file: %w", ErrFormat)
	}

	ver := make([]byte, 3)
	if _, err := io.ReadFull(rdr.r, ver); err != nil {
		return err
	}
	v, err := strconv.Atoi(string(ver))
	if err != nil {
		return fmt.Errorf("malformed dta release tag: %w", ErrFormat)
	}
	rdr.FormatVersion = v
	if !supportedDTAVersion(v) {
		return fmt.Errorf("dta version %d: %w", v, ErrFormat)
	}

	// </release><byteorder>
	if _, err := rdr.r.Seek(21, io.SeekCurrent); err != nil {
		return err
	}
	bo := make([]byte, 3)
	if _, err := io.ReadFull(rdr.r, bo); err != nil {
		return err
	}
	if string(bo) == "MSF" {
		rdr.ByteOrder = binary.BigEndian
	} else {
		rdr.ByteOrder = binary.LittleEndian
	}

	// </byteorder><K>
	if _, err := rdr.r.Seek(15, io.SeekCurrent); err != nil {
		return err
	}
	if rdr.nvar, err = rdr.readUint(2); err != nil {
		return err
	}

	// </K><N>
	if _, err := rdr.r.Seek(7, io.SeekCurrent); err != nil {
		return err
	}
	if rdr.rowCount, err = rdr.readUint(rdr.rowCountWidth()); err != nil {
		return err
	}

	// </N><label>
	if _, err := rdr.r.Seek(11, io.SeekCurrent); err != nil {
		return err
	}
	lw := 1
	if rdr.FormatVersion == 118 {
		lw = 2
	}
	n, err := rdr.readUint(lw)
	if err != nil {
		return err
	}
	lbl := make([]byte, n)
	if _, err := io.ReadFull(rdr.r, lbl); err != nil {
		return err
	}
	rdr.DatasetLabel = string(lbl)

	// </label><timestamp>
	if _, err := rdr.r.Seek(19, io.SeekCurrent); err != nil {
		return err
	}
	if n, err = rdr.readUint(1); err != nil {
		return err
	}
	ts := make([]byte, n)
	if _, err := io.ReadFull(rdr.r, ts); err != nil {
		return err
	}
	rdr.TimeStamp = string(ts)

	// </timestamp></header><map> and the first two map entries,
	// which point at the beginning of the file and at the map
	// itself.
	if _, err := rdr.r.Seek(42, io.SeekCurrent); err != nil {
		return err
	}
	for _, p := range []*int64{
		&rdr.seekVarTypes, &rdr.seekVarNames, &rdr.seekSortList,
		&rdr.seekFormats, &rdr.seekValueLabelNames, &rdr.seekVariableLabels,
		&rdr.seekCharacteristics, &rdr.seekData, &rdr.seekStrls,
		&rdr.seekValueLabels,
	} {
		if err := binary.Read(rdr.r, rdr.ByteOrder, p); err != nil {
			return err
		}
	}

	return nil
}

func (rdr *StataReader) readVarTypes() error {
	rdr.varTypes = make([]int, rdr.nvar)

	switch {
	case rdr.FormatVersion >= 117:
		// <variable_types>
		if _, err := rdr.r.Seek(rdr.seekVarTypes+16, io.SeekStart); err != nil {
			return err
		}
		for k := range rdr.varTypes {
			t, err := rdr.readUint(2)
			if err != nil {
				return err
			}
			rdr.varTypes[k] = t
		}
	default:
		for k := range rdr.varTypes {
			t, err := rdr.readUint(1)
			if err != nil {
				return err
			}
			rdr.varTypes[k] = t
		}
	}

	return nil
}

// translateVarTypes converts the variable type codes of dta versions
// 115 and earlier to the codes used by later versions.
func (rdr *StataReader) translateVarTypes() {
	for k, t := range rdr.varTypes {
		switch {
		case t <= 244:
			// Fixed width string, nothing to do.
		case t == 251:
			rdr.varTypes[k] = dtaTypeI8
		case t == 252:
			rdr.varTypes[k] = dtaTypeI16
		case t == 253:
			rdr.varTypes[k] = dtaTypeI32
		case t == 254:
			rdr.varTypes[k] = dtaTypeF32
		case t == 255:
			rdr.varTypes[k] = dtaTypeF64
		}
	}
}

func (rdr *StataReader) readVarNames() error {
	if rdr.FormatVersion >= 117 {
		// <varnames>
		if _, err := rdr.r.Seek(rdr.seekVarNames+10, io.SeekStart); err != nil {
			return err
		}
	}

	w := rdr.varNameWidth()
	buf := make([]byte, w)
	rdr.names = make([]string, rdr.nvar)
	for k := range rdr.names {
		if _, err := io.ReadFull(rdr.r, buf); err != nil {
			return err
		}
		rdr.names[k] = cstring(buf)
	}

	return nil
}

func (rdr *StataReader) readFormats() error {
	if rdr.FormatVersion >= 117 {
		// <formats>
		if _, err := rdr.r.Seek(rdr.seekFormats+9, io.SeekStart); err != nil {
			return err
		}
	}

	w := rdr.formatWidth()
	buf := make([]byte, w)
	rdr.Formats = make([]string, rdr.nvar)
	rdr.isDate = make([]bool, rdr.nvar)
	for k := range rdr.Formats {
		if _, err := io.ReadFull(rdr.r, buf); err != nil {
			return err
		}
		f := cstring(buf)
		rdr.Formats[k] = f
		if strings.HasPrefix(f, "%td") || strings.HasPrefix(f, "%tc") {
			rdr.isDate[k] = true
		}
	}

	return nil
}

func (rdr *StataReader) readValueLabelNames() error {
	if rdr.FormatVersion >= 117 {
		// <value_label_names>
		if _, err := rdr.r.Seek(rdr.seekValueLabelNames+19, io.SeekStart); err != nil {
			return err
		}
	}

	w := rdr.labelNameWidth()
	buf := make([]byte, w)
	rdr.ValueLabelNames = make([]string, rdr.nvar)
	for k := range rdr.ValueLabelNames {
		if _, err := io.ReadFull(rdr.r, buf); err != nil {
			return err
		}
		rdr.ValueLabelNames[k] = cstring(buf)
	}

	return nil
}

func (rdr *StataReader) readVariableLabels() error {
	w := 81
	if rdr.FormatVersion >= 117 {
		// <variable_labels>
		if _, err := rdr.r.Seek(rdr.seekVariableLabels+17, io.SeekStart); err != nil {
			return err
		}
		w = 321
	}

	buf := make([]byte, w)
	rdr.VariableLabels = make([]string, rdr.nvar)
	for k := range rdr.VariableLabels {
		if _, err := io.ReadFull(rdr.r, buf); err != nil {
			return err
		}
		rdr.VariableLabels[k] = cstring(buf)
	}

	return nil
}

// skipExpansionFields advances the reader past the expansion fields
// of a dta file in format 115 or earlier, leaving it positioned at
// the start of the data.
func (rdr *StataReader) skipExpansionFields() error {
	for {
		b, err := rdr.readUint(1)
		if err != nil {
			return err
		}
		n, err := rdr.readUint(4)
		if err != nil {
			return err
		}
		if b == 0 && n == 0 {
			break
		}
		if _, err := rdr.r.Seek(int64(n), io.SeekCurrent); err != nil {
			return err
		}
	}
	return nil
}

func (rdr *StataReader) readStrls() error {
	// <strls>
	if _, err := rdr.r.Seek(rdr.seekStrls+7, io.SeekStart); err != nil {
		return err
	}

	voWidth := 8
	if rdr.FormatVersion == 118 {
		voWidth = 12
	}

	rdr.Strls = make(map[uint64]string)
	rdr.StrlsBytes = make(map[uint64][]byte)
	rdr.Strls[0] = ""

	tag := make([]byte, 3)
	vo := make([]byte, voWidth)
	vo8 := make([]byte, 8)
	for {
		if _, err := io.ReadFull(rdr.r, tag); err != nil {
			return err
		}
		if string(tag) != "GSO" {
			break
		}

		if _, err := io.ReadFull(rdr.r, vo); err != nil {
			return err
		}
		if voWidth == 12 {
			// The (v, o) pair is stored here as two 32 and
			// 64 bit values, but is referenced from the
			// data as packed 16 and 48 bit values.
			copy(vo8[0:2], vo[0:2])
			copy(vo8[2:8], vo[4:10])
		} else {
			copy(vo8, vo)
		}
		ptr := rdr.ByteOrder.Uint64(vo8)

		t, err := rdr.readUint(1)
		if err != nil {
			return err
		}
		n, err := rdr.readUint(4)
		if err != nil {
			return err
		}
		val := make([]byte, n)
		if _, err := io.ReadFull(rdr.r, val); err != nil {
			return err
		}

		switch t {
		case 130:
			rdr.Strls[ptr] = cstring(val)
		case 129:
			rdr.StrlsBytes[ptr] = val
		}
	}

	return nil
}

func (rdr *StataReader) readValueLabels() error {
	// <value_labels>
	if _, err := rdr.r.Seek(rdr.seekValueLabels+14, io.SeekStart); err != nil {
		return err
	}

	w := 33
	if rdr.FormatVersion == 118 {
		w = 129
	}

	rdr.ValueLabels = make(map[string]map[int32]string)

	tag := make([]byte, 5)
	name := make([]byte, w)
	for {
		if n, err := rdr.r.Read(tag); err != nil || string(tag[:n]) != "<lbl>" {
			break
		}

		// Table length, not needed.
		if _, err := rdr.r.Seek(4, io.SeekCurrent); err != nil {
			return err
		}
		if _, err := io.ReadFull(rdr.r, name); err != nil {
			return err
		}
		labname := cstring(name)

		// Padding.
		if _, err := rdr.r.Seek(3, io.SeekCurrent); err != nil {
			return err
		}

		n, err := rdr.readUint(4)
		if err != nil {
			return err
		}
		textlen, err := rdr.readUint(4)
		if err != nil {
			return err
		}

		off := make([]int32, n)
		if err := binary.Read(rdr.r, rdr.ByteOrder, off); err != nil {
			return err
		}
		val := make([]int32, n)
		if err := binary.Read(rdr.r, rdr.ByteOrder, val); err != nil {
			return err
		}
		text := make([]byte, textlen)
		if _, err := io.ReadFull(rdr.r, text); err != nil {
			return err
		}

		mp := make(map[int32]string)
		for j := 0; j < n; j++ {
			mp[val[j]] = cstring(text[off[j]:])
		}
		rdr.ValueLabels[labname] = mp

		// </lbl>
		if _, err := rdr.r.Seek(6, io.SeekCurrent); err != nil {
			return err
		}
	}

	return nil
}

// castToInt returns the values of a numeric data slice as integers,
// so that they can be looked up in a value label table.
func castToInt(data interface{}) ([]int64, error) {
	switch v := data.(type) {
	case []int8:
		r := make([]int64, len(v))
		for i, x := range v {
			r[i] = int64(x)
		}
		return r, nil
	case []int16:
		r := make([]int64, len(v))
		for i, x := range v {
			r[i] = int64(x)
		}
		return r, nil
	case []int32:
		r := make([]int64, len(v))
		for i, x := range v {
			r[i] = int64(x)
		}
		return r, nil
	case []int64:
		r := make([]int64, len(v))
		copy(r, v)
		return r, nil
	case []float32:
		r := make([]int64, len(v))
		for i, x := range v {
			r[i] = int64(x)
		}
		return r, nil
	case []float64:
		r := make([]int64, len(v))
		for i, x := range v {
			r[i] = int64(x)
		}
		return r, nil
	}
	return nil, fmt.Errorf("cannot cast %T to integer", data)
}

// stataDates converts elapsed times in a numeric data slice to
// time.Time values, using the time unit given by a Stata display
// format.  Stata counts from the beginning of 1960.
func stataDates(data interface{}, format string) (interface{}, error) {
	vec, err := upcastNumeric(data)
	if err != nil {
		return nil, fmt.Errorf("converting dates with format %s: %w", format, err)
	}

	var unit time.Duration
	switch {
	case strings.HasPrefix(format, "%td"):
		unit = 24 * time.Hour
	case strings.HasPrefix(format, "%tc"):
		unit = time.Millisecond
	default:
		return nil, fmt.Errorf("unsupported date format %s", format)
	}

	base := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	rv := make([]time.Time, len(vec))
	for j, x := range vec {
		rv[j] = base.Add(time.Duration(x) * unit)
	}

	return rv, nil
}

// Read returns the given number of rows of data from the file, or
// all remaining rows when the argument is negative.  The data are
// returned as an array of Series objects, one per variable.  Read
// returns io.EOF when no rows remain.
func (rdr *StataReader) Read(rows int) ([]*Series, error) {
	nval := rdr.rowCount - rdr.rowsRead
	if nval <= 0 {
		return nil, io.EOF
	}
	if rows >= 0 && rows < nval {
		nval = rows
	}

	data := make([]interface{}, rdr.nvar)
	missing := make([][]bool, rdr.nvar)
	for j := range missing {
		missing[j] = make([]bool, nval)
	}

	for j, t := range rdr.varTypes {
		switch {
		case t <= dtaMaxStrf:
			data[j] = make([]string, nval)
		case t == dtaTypeStrl:
			if rdr.InsertStrls {
				data[j] = make([]string, nval)
			} else {
				data[j] = make([]uint64, nval)
			}
		case t == dtaTypeF64:
			data[j] = make([]float64, nval)
		case t == dtaTypeF32:
			data[j] = make([]float32, nval)
		case t == dtaTypeI32:
			data[j] = make([]int32, nval)
		case t == dtaTypeI16:
			data[j] = make([]int16, nval)
		case t == dtaTypeI8:
			data[j] = make([]int8, nval)
		default:
			return nil, fmt.Errorf("unknown variable type %d: %w", t, ErrFormat)
		}
	}

	if rdr.FormatVersion >= 117 && rdr.rowsRead == 0 {
		// <data>
		if _, err := rdr.r.Seek(rdr.seekData+6, io.SeekStart); err != nil {
			return nil, err
		}
	}

	strbuf := make([]byte, dtaMaxStrf)
	vo8 := make([]byte, 8)
	for i := 0; i < nval; i++ {
		for j := 0; j < rdr.nvar; j++ {
			t := rdr.varTypes[j]
			switch {
			case t <= dtaMaxStrf:
				b := strbuf[:t]
				if _, err := io.ReadFull(rdr.r, b); err != nil {
					return nil, err
				}
				data[j].([]string)[i] = cstring(b)
			case t == dtaTypeStrl:
				if _, err := io.ReadFull(rdr.r, vo8); err != nil {
					return nil, err
				}
				ptr := rdr.ByteOrder.Uint64(vo8)
				if rdr.InsertStrls {
					data[j].([]string)[i] = rdr.Strls[ptr]
				} else {
					data[j].([]uint64)[i] = ptr
				}
			case t == dtaTypeF64:
				var x float64
				if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
					return nil, err
				}
				data[j].([]float64)[i] = x
				if x > dtaMissingF64 || x < -dtaMissingF64 {
					missing[j][i] = true
				}
			case t == dtaTypeF32:
				var x float32
				if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
					return nil, err
				}
				data[j].([]float32)[i] = x
				if x > dtaMissingF32 || x < -dtaMissingF32 {
					missing[j][i] = true
				}
			case t == dtaTypeI32:
				var x int32
				if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
					return nil, err
				}
				data[j].([]int32)[i] = x
				if x > 2147483620 || x < -2147483647 {
					missing[j][i] = true
				}
			case t == dtaTypeI16:
				var x int16
				if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
					return nil, err
				}
				data[j].([]int16)[i] = x
				if x > 32740 || x < -32767 {
					missing[j][i] = true
				}
			case t == dtaTypeI8:
				var x int8
				if err := binary.Read(rdr.r, rdr.ByteOrder, &x); err != nil {
					return nil, err
				}
				data[j].([]int8)[i] = x
				if x > 100 || x < -127 {
					missing[j][i] = true
				}
			}
		}
	}
	rdr.rowsRead += nval

	if rdr.InsertCategoryLabels {
		for j := 0; j < rdr.nvar; j++ {
			mp, ok := rdr.ValueLabels[rdr.ValueLabelNames[j]]
			if !ok {
				continue
			}
			idat, err := castToInt(data[j])
			if err != nil {
				continue
			}
			labeled := make([]string, nval)
			for i, x := range idat {
				if missing[j][i] {
					continue
				}
				if lab, ok := mp[int32(x)]; ok {
					labeled[i] = lab
				} else {
					labeled[i] = fmt.Sprintf("%v", x)
				}
			}
			data[j] = labeled
		}
	}

	if rdr.ConvertDates {
		for j := 0; j < rdr.nvar; j++ {
			if !rdr.isDate[j] {
				continue
			}
			var err error
			if data[j], err = stataDates(data[j], rdr.Formats[j]); err != nil {
				return nil, err
			}
		}
	}

	rv := make([]*Series, rdr.nvar)
	for j := range rv {
		var err error
		if rv[j], err = NewSeries(rdr.names[j], data[j], missing[j]); err != nil {
			return nil, err
		}
	}

	return rv, nil
}
