package stataprep

// Reader for SAS7BDAT binary data files.
//
// The file layout is not documented by SAS.  Descriptions of the
// format worked out by others can be found here:
//
// https://cran.r-project.org/web/packages/sas7bdat/vignettes/sas7bdat.pdf
//
// Binary data compression:
// http://collaboration.cmc.ec.gc.ca/science/rpn/biblio/ddj/Website/articles/CUJ/1992/9210/ross/ross.htm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// SAS7BDAT reads a SAS data file in SAS7BDAT format.
type SAS7BDAT struct {

	// Formats for the columns
	ColumnFormats []string

	// If true, trim whitespace from the right of each string
	// variable (SAS7BDAT strings are fixed width).
	TrimStrings bool

	// If true, converts some date formats to Go date values (does
	// not work for all SAS date formats).
	ConvertDates bool

	// If true, strings are represented as uint64 values.  Call
	// the StringFactorMap method to obtain the mapping from these
	// coded values to the actual strings that they represent.
	FactorizeStrings bool

	// If true, turns off alignment correction when reading
	// mix-type pages.  Most files need this set to false, but
	// some files are written with no alignment correction and
	// read incorrectly without this flag.  There is no known way
	// to detect the right setting, so it is configurable.
	NoAlignCorrection bool

	// The creation date of the file
	DateCreated time.Time

	// The modification date of the file
	DateModified time.Time

	// The name of the data set
	Name string

	// The platform used to create the file
	Platform string

	// The SAS release used to create the file
	SASRelease string

	// The server type used to create the file
	ServerType string

	// The operating system type used to create the file
	OSType string

	// The operating system name used to create the file
	OSName string

	// The SAS file type
	FileType string

	// The encoding name
	FileEncoding string

	// True if the file was created on a 64 bit architecture
	U64 bool

	// The byte order of the file
	ByteOrder binary.ByteOrder

	// The compression mode of the file
	Compression string

	// Decodes column text to utf-8.  It is set automatically
	// from the encoding recorded in the file header and can be
	// replaced before the first call to Read.
	TextDecoder *xencoding.Decoder

	rowCount int
	rowsRead int

	columnTypes       []ColumnType
	columnLabels      []string
	columnNames       []string
	columnDataOffsets []int
	columnDataLengths []int

	// Text block strings referenced by the name, format and
	// label subheaders.
	textBlocks []string

	buf        []byte
	file       io.ReadSeeker
	cachedPage []byte

	pageType           int
	pageBlockCount     int
	pageSubheaderCount int
	pageRow            int
	dataSubheaders     []*subheaderPointer

	numericBuf [][]byte
	stringBuf  [][]uint64
	chunkRow   int

	props       *sasProps
	stringPool  map[uint64]string
	stringPoolR map[string]uint64
}

// These values don't change after the header is read.
type sasProps struct {
	intLength              int
	pageBitOffset          int
	subheaderPointerLength int
	headerLength           int
	pageLength             int
	pageCount              int
	rowLength              int
	colCountP1             int
	colCountP2             int
	mixPageRowCount        int
	lcs                    int
	lcp                    int
	creatorProc            string
	columnCount            int
}

type subheaderPointer struct {
	offset      int
	length      int
	compression int
	ptype       int
}

const (
	rowSizeIndex = iota
	columnSizeIndex
	subheaderCountsIndex
	columnTextIndex
	columnNameIndex
	columnAttributesIndex
	formatAndLabelIndex
	columnListIndex
	dataSubheaderIndex
)

// Subheader signatures, 32 and 64 bit, little and big endian.
var sasSubheaderIndex = map[string]int{
	"\xF7\xF7\xF7\xF7":                 rowSizeIndex,
	"\x00\x00\x00\x00\xF7\xF7\xF7\xF7": rowSizeIndex,
	"\xF7\xF7\xF7\xF7\x00\x00\x00\x00": rowSizeIndex,
	"\xF7\xF7\xF7\xF7\xFF\xFF\xFB\xFE": rowSizeIndex,
	"\xF6\xF6\xF6\xF6":                 columnSizeIndex,
	"\x00\x00\x00\x00\xF6\xF6\xF6\xF6": columnSizeIndex,
	"\xF6\xF6\xF6\xF6\x00\x00\x00\x00": columnSizeIndex,
	"\xF6\xF6\xF6\xF6\xFF\xFF\xFB\xFE": columnSizeIndex,
	"\x00\xFC\xFF\xFF":                 subheaderCountsIndex,
	"\xFF\xFF\xFC\x00":                 subheaderCountsIndex,
	"\x00\xFC\xFF\xFF\xFF\xFF\xFF\xFF": subheaderCountsIndex,
	"\xFF\xFF\xFF\xFF\xFF\xFF\xFC\x00": subheaderCountsIndex,
	"\xFD\xFF\xFF\xFF":                 columnTextIndex,
	"\xFF\xFF\xFF\xFD":                 columnTextIndex,
	"\xFD\xFF\xFF\xFF\xFF\xFF\xFF\xFF": columnTextIndex,
	"\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFD": columnTextIndex,
	"\xFF\xFF\xFF\xFF":                 columnNameIndex,
	"\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFF": columnNameIndex,
	"\xFC\xFF\xFF\xFF":                 columnAttributesIndex,
	"\xFF\xFF\xFF\xFC":                 columnAttributesIndex,
	"\xFC\xFF\xFF\xFF\xFF\xFF\xFF\xFF": columnAttributesIndex,
	"\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFC": columnAttributesIndex,
	"\xFE\xFB\xFF\xFF":                 formatAndLabelIndex,
	"\xFF\xFF\xFB\xFE":                 formatAndLabelIndex,
	"\xFE\xFB\xFF\xFF\xFF\xFF\xFF\xFF": formatAndLabelIndex,
	"\xFF\xFF\xFF\xFF\xFF\xFF\xFB\xFE": formatAndLabelIndex,
	"\xFE\xFF\xFF\xFF":                 columnListIndex,
	"\xFF\xFF\xFF\xFE":                 columnListIndex,
	"\xFE\xFF\xFF\xFF\xFF\xFF\xFF\xFF": columnListIndex,
	"\xFF\xFF\xFF\xFF\xFF\xFF\xFF\xFE": columnListIndex,
}

const sasMagic = "\x00\x00\x00\x00\x00\x00\x00\x00" +
	"\x00\x00\x00\x00\xc2\xea\x81\x60" +
	"\xb3\x14\x11\xcf\xbd\x92\x08\x00" +
	"\x09\xc7\x31\x8c\x18\x1f\x10\x11"

// Header field positions.  The date, size and release fields shift
// by the alignment paddings read from the header itself.
const (
	sasAlignChecker       = '3'
	sasAlign1Offset       = 32
	sasAlign2Offset       = 35
	sasAlignValue         = 4
	sasEndianOffset       = 37
	sasPlatformOffset     = 39
	sasEncodingOffset     = 70
	sasDatasetOffset      = 92
	sasDatasetLength      = 64
	sasFileTypeOffset     = 156
	sasFileTypeLength     = 8
	sasDateCreatedOffset  = 164
	sasDateModifiedOffset = 172
	sasHeaderSizeOffset   = 196
	sasPageSizeOffset     = 200
	sasPageCountOffset    = 204
	sasReleaseOffset      = 216
	sasReleaseLength      = 8
	sasServerTypeOffset   = 224
	sasServerTypeLength   = 16
	sasOSVersionOffset    = 240
	sasOSVersionLength    = 16
	sasOSMakerOffset      = 256
	sasOSMakerLength      = 16
	sasOSNameOffset       = 272
	sasOSNameLength       = 16
)

// Page layout.
const (
	pageBitOffset32          = 16
	pageBitOffset64          = 32
	subheaderPointerLength32 = 12
	subheaderPointerLength64 = 24
	pageMetaType             = 0
	pageDataType             = 256
	pageAmdType              = 1024
	subheaderPointersOffset  = 8
	truncatedSubheaderID     = 1
	compressedSubheaderID    = 4
	compressedSubheaderType  = 1
)

// Positions within the row size subheader, as multiples of the
// integer width.
const (
	rowLengthMultiplier       = 5
	rowCountMultiplier        = 6
	colCountP1Multiplier      = 9
	colCountP2Multiplier      = 10
	mixPageRowCountMultiplier = 15
)

// Positions within the column name pointers and the format and
// label subheader.
const (
	colNamePointerLength  = 8
	colNameIndexOffset    = 0
	colNameOffsetOffset   = 2
	colNameLengthOffset   = 4
	colDataOffsetOffset   = 8
	colDataLengthOffset   = 8
	colDataLengthLength   = 4
	colTypeOffset         = 14
	colFormatIndexOffset  = 22
	colFormatOffsetOffset = 24
	colFormatLengthOffset = 26
	colLabelIndexOffset   = 28
	colLabelOffsetOffset  = 30
	colLabelLengthOffset  = 32
)

const (
	rleCompression = "SASYZCRL"
	rdcCompression = "SASYZCR2"
)

var sasCompressionLiterals = []string{rleCompression, rdcCompression}

// Incomplete list of encodings.
var sasEncodingNames = map[int]string{
	29: "latin1",
	20: "utf-8",
	33: "cyrillic",
	60: "wlatin2",
	61: "wcyrillic",
	62: "wlatin1",
	90: "ebcdic870",
}

// sasDecoder returns a decoder to utf-8 for an encoding name that
// can appear in a SAS file header, or nil when the text can be used
// as it is.
func sasDecoder(name string) *xencoding.Decoder {
	switch name {
	case "latin1":
		return charmap.ISO8859_1.NewDecoder()
	case "cyrillic":
		return charmap.ISO8859_5.NewDecoder()
	case "wlatin2":
		return charmap.Windows1250.NewDecoder()
	case "wcyrillic":
		return charmap.Windows1251.NewDecoder()
	case "wlatin1":
		return charmap.Windows1252.NewDecoder()
	}
	return nil
}

// NewSAS7BDATReader returns a new reader object for SAS7BDAT files.
// Call the Read method to obtain the data.
func NewSAS7BDATReader(r io.ReadSeeker) (*SAS7BDAT, error) {
	sas := &SAS7BDAT{file: r}
	if err := sas.readHeader(); err != nil {
		return nil, err
	}

	sas.cachedPage = make([]byte, sas.props.pageLength)
	if err := sas.readMetadata(); err != nil {
		return nil, err
	}

	sas.TextDecoder = sasDecoder(sas.FileEncoding)

	return sas, nil
}

// StringFactorMap returns a map that associates integer codes with
// the string value that each code represents.  This is only relevant
// if FactorizeStrings is set to true.
func (sas *SAS7BDAT) StringFactorMap() map[uint64]string {
	return sas.stringPool
}

// RowCount returns the number of rows in the data set.
func (sas *SAS7BDAT) RowCount() int {
	return sas.rowCount
}

// ColumnNames returns the names of the columns.
func (sas *SAS7BDAT) ColumnNames() []string {
	return sas.columnNames
}

// ColumnLabels returns the column labels.
func (sas *SAS7BDAT) ColumnLabels() []string {
	return sas.columnLabels
}

// ColumnTypes returns the data type of each column.
func (sas *SAS7BDAT) ColumnTypes() []ColumnType {
	return sas.columnTypes
}

// ensureBufSize enlarges the data buffer if needed to accommodate
// at least m bytes of data.
func (sas *SAS7BDAT) ensureBufSize(m int) {
	if cap(sas.buf) < m {
		sas.buf = make([]byte, 2*m)
	}
}

// rleDecompress decompresses data compressed with the Run Length
// Encoding algorithm.  It is partially documented here:
//
// https://cran.r-project.org/web/packages/sas7bdat/vignettes/sas7bdat.pdf
func rleDecompress(resultLength int, inbuff []byte) ([]byte, error) {

	result := make([]byte, 0, resultLength)
	for len(inbuff) > 0 {
		control := inbuff[0] & 0xF0
		nib := int(inbuff[0] & 0x0F)
		inbuff = inbuff[1:]

		switch control {
		case 0x00:
			if nib != 0 {
				os.Stderr.WriteString("unexpected non-zero control nibble\n")
			}
			nbytes := int(inbuff[0]) + 64
			inbuff = inbuff[1:]
			result = append(result, inbuff[0:nbytes]...)
			inbuff = inbuff[nbytes:]
		case 0x40:
			// not documented
			nbytes := nib*16 + int(inbuff[0])
			inbuff = inbuff[1:]
			for k := 0; k < nbytes; k++ {
				result = append(result, inbuff[0])
			}
			inbuff = inbuff[1:]
		case 0x60:
			nbytes := nib*256 + int(inbuff[0]) + 17
			inbuff = inbuff[1:]
			for k := 0; k < nbytes; k++ {
				result = append(result, 0x20)
			}
		case 0x70:
			nbytes := nib*256 + int(inbuff[0]) + 17
			inbuff = inbuff[1:]
			for k := 0; k < nbytes; k++ {
				result = append(result, 0x00)
			}
		case 0x80:
			nbytes := nib + 1
			result = append(result, inbuff[0:nbytes]...)
			inbuff = inbuff[nbytes:]
		case 0x90:
			nbytes := nib + 17
			result = append(result, inbuff[0:nbytes]...)
			inbuff = inbuff[nbytes:]
		case 0xA0:
			nbytes := nib + 33
			result = append(result, inbuff[0:nbytes]...)
			inbuff = inbuff[nbytes:]
		case 0xB0:
			nbytes := nib + 49
			result = append(result, inbuff[0:nbytes]...)
			inbuff = inbuff[nbytes:]
		case 0xC0:
			nbytes := nib + 3
			x := inbuff[0]
			inbuff = inbuff[1:]
			for k := 0; k < nbytes; k++ {
				result = append(result, x)
			}
		case 0xD0:
			nbytes := nib + 2
			for k := 0; k < nbytes; k++ {
				result = append(result, 0x40)
			}
		case 0xE0:
			nbytes := nib + 2
			for k := 0; k < nbytes; k++ {
				result = append(result, 0x20)
			}
		case 0xF0:
			nbytes := nib + 2
			for k := 0; k < nbytes; k++ {
				result = append(result, 0x00)
			}
		default:
			return nil, fmt.Errorf("unknown control byte: %v", control)
		}
	}

	if len(result) != resultLength {
		os.Stderr.WriteString(fmt.Sprintf("RLE: %v != %v\n", len(result), resultLength))
	}

	return result, nil
}

// rdcDecompress decompresses data compressed with the Ross Data
// Compression algorithm:
//
// http://collaboration.cmc.ec.gc.ca/science/rpn/biblio/ddj/Website/articles/CUJ/1992/9210/ross/ross.htm
func rdcDecompress(resultLength int, inbuff []byte) ([]byte, error) {

	var ctrlBits, ctrlMask uint16
	var pos int
	outbuff := make([]byte, 0, resultLength)

	for pos < len(inbuff) {
		ctrlMask = ctrlMask >> 1
		if ctrlMask == 0 {
			ctrlBits = uint16(inbuff[pos])<<8 + uint16(inbuff[pos+1])
			pos += 2
			ctrlMask = 0x8000
		}

		if ctrlBits&ctrlMask == 0 {
			outbuff = append(outbuff, inbuff[pos])
			pos++
			continue
		}

		cmd := (inbuff[pos] >> 4) & 0x0F
		cnt := uint16(inbuff[pos] & 0x0F)
		pos++

		switch {
		case cmd == 0:
			// short rle
			cnt += 3
			for k := 0; k < int(cnt); k++ {
				outbuff = append(outbuff, inbuff[pos])
			}
			pos++
		case cmd == 1:
			// long rle
			cnt += uint16(inbuff[pos]) << 4
			cnt += 19
			pos++
			for k := 0; k < int(cnt); k++ {
				outbuff = append(outbuff, inbuff[pos])
			}
			pos++
		case cmd == 2:
			// long pattern
			ofs := cnt + 3
			ofs += uint16(inbuff[pos]) << 4
			pos++
			cnt = uint16(inbuff[pos])
			pos++
			cnt += 16
			tmp := outbuff[len(outbuff)-int(ofs) : len(outbuff)-int(ofs)+int(cnt)]
			outbuff = append(outbuff, tmp...)
		case cmd >= 3 && cmd <= 15:
			// short pattern
			ofs := cnt + 3
			ofs += uint16(inbuff[pos]) << 4
			pos++
			tmp := outbuff[len(outbuff)-int(ofs) : len(outbuff)-int(ofs)+int(cmd)]
			outbuff = append(outbuff, tmp...)
		default:
			return nil, fmt.Errorf("unknown RDC command")
		}
	}

	if len(outbuff) != resultLength {
		os.Stderr.WriteString(fmt.Sprintf("RDC: %v != %v\n", len(outbuff), resultLength))
	}

	return outbuff, nil
}

func (sas *SAS7BDAT) getDecompressor() func(int, []byte) ([]byte, error) {
	switch sas.Compression {
	case rleCompression:
		return rleDecompress
	case rdcCompression:
		return rdcDecompress
	}
	return nil
}

// readBytes reads length bytes from the given offset in the current
// page (or from the beginning of the file if no page has yet been
// read).
func (sas *SAS7BDAT) readBytes(offset, length int) error {

	sas.ensureBufSize(length)

	if sas.cachedPage == nil {
		if _, err := sas.file.Seek(int64(offset), io.SeekStart); err != nil {
			return err
		}
		if _, err := io.ReadFull(sas.file, sas.buf[0:length]); err != nil {
			return fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, err)
		}
		return nil
	}

	if offset+length > len(sas.cachedPage) {
		return fmt.Errorf("read past end of cached page")
	}
	copy(sas.buf, sas.cachedPage[offset:offset+length])
	return nil
}

func (sas *SAS7BDAT) readFloat(offset, width int) (float64, error) {
	if width != 8 {
		return 0, fmt.Errorf("unknown float width %d", width)
	}
	r := bytes.NewReader(sas.buf[offset : offset+width])
	var x float64
	if err := binary.Read(r, sas.ByteOrder, &x); err != nil {
		return 0, err
	}
	return x, nil
}

// intFromBuffer reads an integer of 1, 2, 4 or 8 byte width from the
// supplied bytes.
func (sas *SAS7BDAT) intFromBuffer(buf []byte, width int) (int, error) {

	r := bytes.NewReader(buf[0:width])
	switch width {
	case 1:
		var x int8
		if err := binary.Read(r, sas.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	case 2:
		var x int16
		if err := binary.Read(r, sas.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	case 4:
		var x int32
		if err := binary.Read(r, sas.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	case 8:
		var x int64
		if err := binary.Read(r, sas.ByteOrder, &x); err != nil {
			return 0, err
		}
		return int(x), nil
	}
	return 0, fmt.Errorf("invalid integer width %d", width)
}

// readInt reads an integer of 1, 2, 4 or 8 byte width from a given
// offset in the current page (or from the beginning of the file if
// no page has yet been read).
func (sas *SAS7BDAT) readInt(offset, width int) (int, error) {

	if err := sas.readBytes(offset, width); err != nil {
		return 0, err
	}
	return sas.intFromBuffer(sas.buf[0:width], width)
}

// Read returns up to rows rows of data from the SAS7BDAT file, as an
// array of Series objects.  The Series data types are either float64
// or string.  If rows is negative, the remainder of the file is
// read.  Returns (nil, io.EOF) when no rows remain.
//
// SAS string variables have a fixed width and are right-padded with
// whitespace.  The TrimStrings field of the SAS7BDAT struct can be
// set to true to automatically trim this whitespace.
func (sas *SAS7BDAT) Read(rows int) ([]*Series, error) {

	if rows < 0 {
		rows = sas.rowCount - sas.rowsRead
	}

	if sas.rowsRead >= sas.rowCount {
		return nil, io.EOF
	}

	sas.stringPool = make(map[uint64]string)
	sas.stringPoolR = make(map[string]uint64)

	// Allocate fresh buffers on each call so that the returned
	// Series are backed by independent memory and can be used
	// while reading continues.
	sas.numericBuf = make([][]byte, sas.props.columnCount)
	sas.stringBuf = make([][]uint64, sas.props.columnCount)
	for j := 0; j < sas.props.columnCount; j++ {
		switch sas.columnTypes[j] {
		case ColumnNumeric:
			sas.numericBuf[j] = make([]byte, 8*rows)
		case ColumnString:
			sas.stringBuf[j] = make([]uint64, rows)
		default:
			return nil, fmt.Errorf("unknown column type")
		}
	}

	sas.chunkRow = 0
	for i := 0; i < rows; i++ {
		done, err := sas.readRow()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	return sas.chunkToSeries()
}

func (sas *SAS7BDAT) chunkToSeries() ([]*Series, error) {

	rslt := make([]*Series, sas.props.columnCount)
	n := sas.chunkRow

	for j := 0; j < sas.props.columnCount; j++ {

		name := sas.columnNames[j]
		miss := make([]bool, n)
		var err error

		switch sas.columnTypes[j] {
		case ColumnNumeric:
			vec := make([]float64, n)
			buf := bytes.NewReader(sas.numericBuf[j][0 : 8*n])
			if err := binary.Read(buf, sas.ByteOrder, &vec); err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				if math.IsNaN(vec[i]) {
					miss[i] = true
				}
			}
			format := sas.ColumnFormats[j]
			switch {
			case sas.ConvertDates && (format == "MMDDYY" || format == "DATE"):
				rslt[j], err = NewSeries(name, sasDates(vec), miss)
			case sas.ConvertDates && format == "DATETIME":
				rslt[j], err = NewSeries(name, sasDateTimes(vec), miss)
			default:
				rslt[j], err = NewSeries(name, vec, miss)
			}
		case ColumnString:
			if sas.FactorizeStrings {
				rslt[j], err = NewSeries(name, sas.stringBuf[j], miss)
			} else {
				s := make([]string, n)
				for i := 0; i < n; i++ {
					s[i] = sas.stringPool[sas.stringBuf[j][i]]
				}
				rslt[j], err = NewSeries(name, s, miss)
			}
		default:
			return nil, fmt.Errorf("unknown column type")
		}
		if err != nil {
			return nil, err
		}
	}

	return rslt, nil
}

// sasDateTime converts elapsed seconds since the start of 1960 to a
// time value.
func sasDateTime(x float64) time.Time {
	base := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(x) * time.Second)
}

// sasDates converts elapsed days since the start of 1960 to time
// values.
func sasDates(x []float64) []time.Time {
	rslt := make([]time.Time, len(x))
	base := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	for j, v := range x {
		rslt[j] = base.Add(time.Hour * time.Duration(24*v))
	}
	return rslt
}

func sasDateTimes(x []float64) []time.Time {
	rslt := make([]time.Time, len(x))
	for j, v := range x {
		rslt[j] = sasDateTime(v)
	}
	return rslt
}

// readRow reads the next data row into the current chunk, returning
// true when the file is exhausted.
func (sas *SAS7BDAT) readRow() (bool, error) {

	bitOffset := sas.props.pageBitOffset
	ptrLength := sas.props.subheaderPointerLength

	// If there is no page, go to the end of the header and read a
	// page.
	if sas.cachedPage == nil {
		if _, err := sas.file.Seek(int64(sas.props.headerLength), io.SeekStart); err != nil {
			return false, err
		}
		done, err := sas.readNextPage()
		if err != nil || done {
			return done, err
		}
	}

	// Loop until a data row is read.
	for {
		switch {
		case sas.pageType == pageMetaType:
			if sas.pageRow >= len(sas.dataSubheaders) {
				done, err := sas.readNextPage()
				if err != nil || done {
					return done, err
				}
				sas.pageRow = 0
				continue
			}
			ptr := sas.dataSubheaders[sas.pageRow]
			if err := sas.processRowData(ptr.offset, ptr.length); err != nil {
				return false, err
			}
			return false, nil
		case isMixPage(sas.pageType):
			align := (bitOffset + subheaderPointersOffset + sas.pageSubheaderCount*ptrLength) % 8
			if sas.NoAlignCorrection {
				align = 0
			}
			offset := bitOffset + subheaderPointersOffset +
				sas.pageSubheaderCount*ptrLength +
				sas.pageRow*sas.props.rowLength + align
			if err := sas.processRowData(offset, sas.props.rowLength); err != nil {
				return false, err
			}
			if sas.pageRow == min(sas.rowCount, sas.props.mixPageRowCount) {
				done, err := sas.readNextPage()
				if err != nil || done {
					return done, err
				}
				sas.pageRow = 0
			}
			return false, nil
		case sas.pageType == pageDataType:
			offset := bitOffset + subheaderPointersOffset + sas.pageRow*sas.props.rowLength
			if err := sas.processRowData(offset, sas.props.rowLength); err != nil {
				return false, err
			}
			if sas.pageRow == sas.pageBlockCount {
				done, err := sas.readNextPage()
				if err != nil || done {
					return done, err
				}
				sas.pageRow = 0
			}
			return false, nil
		default:
			return false, fmt.Errorf("unknown page type: %d", sas.pageType)
		}
	}
}

// readNextPage reads the next full page from the file, returning
// true when there are no pages left.
func (sas *SAS7BDAT) readNextPage() (bool, error) {

	sas.dataSubheaders = make([]*subheaderPointer, 0, 10)
	sas.cachedPage = make([]byte, sas.props.pageLength)

	n, err := io.ReadFull(sas.file, sas.cachedPage)
	if n <= 0 || err == io.EOF {
		return true, nil
	}
	if err == io.ErrUnexpectedEOF {
		return false, fmt.Errorf("truncated page (read %d of %d bytes)", n, sas.props.pageLength)
	}
	if err != nil {
		return false, err
	}

	if err := sas.readPageHeader(); err != nil {
		return false, err
	}

	if sas.pageType == pageMetaType {
		if err := sas.processPageMetadata(); err != nil {
			return false, err
		}
	}

	if !isKnownPageType(sas.pageType) {
		return sas.readNextPage()
	}

	return false, nil
}

// readHeader reads the file header, which precedes the first page.
func (sas *SAS7BDAT) readHeader() error {

	prop := new(sasProps)
	sas.props = prop

	if err := sas.readBytes(0, 288); err != nil {
		return err
	}
	sas.cachedPage = make([]byte, 288)
	copy(sas.cachedPage, sas.buf[0:288])
	if !bytes.Equal(sas.cachedPage[0:len(sasMagic)], []byte(sasMagic)) {
		return fmt.Errorf("not a sas7bdat file: %w", ErrFormat)
	}

	// Alignment paddings, which also identify 64 bit files.
	var align1, align2 int
	if err := sas.readBytes(sasAlign1Offset, 1); err != nil {
		return err
	}
	prop.pageBitOffset = pageBitOffset32
	prop.subheaderPointerLength = subheaderPointerLength32
	prop.intLength = 4
	if sas.buf[0] == sasAlignChecker {
		align2 = sasAlignValue
		sas.U64 = true
		prop.intLength = 8
		prop.pageBitOffset = pageBitOffset64
		prop.subheaderPointerLength = subheaderPointerLength64
	}
	if err := sas.readBytes(sasAlign2Offset, 1); err != nil {
		return err
	}
	if sas.buf[0] == sasAlignChecker {
		align1 = sasAlignValue
	}
	totalAlign := align1 + align2

	if err := sas.readBytes(sasEndianOffset, 1); err != nil {
		return err
	}
	if sas.buf[0] == 1 {
		sas.ByteOrder = binary.LittleEndian
	} else {
		sas.ByteOrder = binary.BigEndian
	}

	if err := sas.readBytes(sasPlatformOffset, 1); err != nil {
		return err
	}
	switch sas.buf[0] {
	case '1':
		sas.Platform = "unix"
	case '2':
		sas.Platform = "windows"
	default:
		sas.Platform = "unknown"
	}

	if err := sas.readBytes(sasEncodingOffset, 1); err != nil {
		return err
	}
	if name, ok := sasEncodingNames[int(sas.buf[0])]; ok {
		sas.FileEncoding = name
	} else {
		sas.FileEncoding = fmt.Sprintf("encoding code=%d", sas.buf[0])
	}

	if err := sas.readBytes(sasDatasetOffset, sasDatasetLength); err != nil {
		return err
	}
	sas.Name = string(bytes.TrimRight(sas.buf[0:sasDatasetLength], " \000"))

	if err := sas.readBytes(sasFileTypeOffset, sasFileTypeLength); err != nil {
		return err
	}
	sas.FileType = string(bytes.TrimRight(sas.buf[0:sasFileTypeLength], " \000"))

	x, err := sas.readFloat(sasDateCreatedOffset+align1, 8)
	if err != nil {
		return fmt.Errorf("reading creation date: %w", err)
	}
	sas.DateCreated = sasDateTime(x)

	x, err = sas.readFloat(sasDateModifiedOffset+align1, 8)
	if err != nil {
		return fmt.Errorf("reading modification date: %w", err)
	}
	sas.DateModified = sasDateTime(x)

	prop.headerLength, err = sas.readInt(sasHeaderSizeOffset+align1, 4)
	if err != nil {
		return fmt.Errorf("reading header size: %w", err)
	}
	if sas.U64 && prop.headerLength != 8192 {
		os.Stderr.WriteString(fmt.Sprintf("header length %d != 8192\n", prop.headerLength))
	}

	// Read the rest of the header so that the offset reads below
	// can be served from memory.
	v := make([]byte, prop.headerLength-288)
	if _, err := io.ReadFull(sas.file, v); err != nil {
		return fmt.Errorf("file appears to be truncated: %w", err)
	}
	sas.cachedPage = append(sas.cachedPage, v...)

	prop.pageLength, err = sas.readInt(sasPageSizeOffset+align1, 4)
	if err != nil {
		return fmt.Errorf("reading page size: %w", err)
	}
	prop.pageCount, err = sas.readInt(sasPageCountOffset+align1, 4)
	if err != nil {
		return fmt.Errorf("reading page count: %w", err)
	}

	if err := sas.readBytes(sasReleaseOffset+totalAlign, sasReleaseLength); err != nil {
		return fmt.Errorf("reading SAS release: %w", err)
	}
	sas.SASRelease = string(bytes.TrimRight(sas.buf[0:sasReleaseLength], " \000"))

	if err := sas.readBytes(sasServerTypeOffset+totalAlign, sasServerTypeLength); err != nil {
		return fmt.Errorf("reading server type: %w", err)
	}
	sas.ServerType = string(bytes.TrimRight(sas.buf[0:sasServerTypeLength], " \000"))

	if err := sas.readBytes(sasOSVersionOffset+totalAlign, sasOSVersionLength); err != nil {
		return fmt.Errorf("reading OS version: %w", err)
	}
	sas.OSType = string(bytes.TrimRight(sas.buf[0:sasOSVersionLength], "\000"))

	if err := sas.readBytes(sasOSNameOffset+totalAlign, sasOSNameLength); err != nil {
		return fmt.Errorf("reading OS name: %w", err)
	}
	if sas.buf[0] != 0 {
		sas.OSName = string(bytes.TrimRight(sas.buf[0:sasOSNameLength], " \000"))
	} else {
		if err := sas.readBytes(sasOSMakerOffset+totalAlign, sasOSMakerLength); err != nil {
			return fmt.Errorf("reading OS maker: %w", err)
		}
		sas.OSName = string(bytes.TrimRight(sas.buf[0:sasOSMakerLength], " \000"))
	}

	return nil
}

func (sas *SAS7BDAT) readPageHeader() error {

	bitOffset := sas.props.pageBitOffset
	var err error
	sas.pageType, err = sas.readInt(bitOffset, 2)
	if err != nil {
		return fmt.Errorf("reading page type: %w", err)
	}
	sas.pageBlockCount, err = sas.readInt(bitOffset+2, 2)
	if err != nil {
		return fmt.Errorf("reading block count: %w", err)
	}
	sas.pageSubheaderCount, err = sas.readInt(bitOffset+4, 2)
	if err != nil {
		return fmt.Errorf("reading subheader count: %w", err)
	}

	return nil
}

func (sas *SAS7BDAT) processPageMetadata() error {

	bitOffset := sas.props.pageBitOffset

	for i := 0; i < sas.pageSubheaderCount; i++ {
		pointer, err := sas.readSubheaderPointer(subheaderPointersOffset+bitOffset, i)
		if err != nil {
			return err
		}
		if pointer.length == 0 || pointer.compression == truncatedSubheaderID {
			continue
		}
		signature, err := sas.subheaderSignature(pointer.offset)
		if err != nil {
			return err
		}
		index, err := sas.subheaderIndex(signature, pointer.compression, pointer.ptype)
		if err != nil {
			return fmt.Errorf("unknown subheader signature %v", signature)
		}
		if err := sas.processSubheader(index, pointer); err != nil {
			return err
		}
	}

	return nil
}

func (sas *SAS7BDAT) processSubheader(index int, pointer *subheaderPointer) error {

	var processor func(int, int) error

	switch index {
	case rowSizeIndex:
		processor = sas.processRowSizeSubheader
	case columnSizeIndex:
		processor = sas.processColumnSizeSubheader
	case columnTextIndex:
		processor = sas.processColumnTextSubheader
	case columnNameIndex:
		processor = sas.processColumnNameSubheader
	case columnAttributesIndex:
		processor = sas.processColumnAttributesSubheader
	case formatAndLabelIndex:
		processor = sas.processFormatSubheader
	case columnListIndex, subheaderCountsIndex:
		// Not used.
		return nil
	case dataSubheaderIndex:
		sas.dataSubheaders = append(sas.dataSubheaders, pointer)
		return nil
	default:
		return fmt.Errorf("unknown subheader index %d", index)
	}

	return processor(pointer.offset, pointer.length)
}

func (sas *SAS7BDAT) subheaderSignature(offset int) ([]byte, error) {

	length := sas.props.intLength
	if err := sas.readBytes(offset, length); err != nil {
		return nil, err
	}
	signature := make([]byte, length)
	copy(signature, sas.buf[0:length])
	return signature, nil
}

func (sas *SAS7BDAT) readSubheaderPointer(offset, index int) (*subheaderPointer, error) {

	intLen := sas.props.intLength
	totalOffset := offset + sas.props.subheaderPointerLength*index

	subheaderOffset, err := sas.readInt(totalOffset, intLen)
	if err != nil {
		return nil, fmt.Errorf("reading subheader offset: %w", err)
	}
	totalOffset += intLen

	subheaderLength, err := sas.readInt(totalOffset, intLen)
	if err != nil {
		return nil, fmt.Errorf("reading subheader length: %w", err)
	}
	totalOffset += intLen

	compression, err := sas.readInt(totalOffset, 1)
	if err != nil {
		return nil, fmt.Errorf("reading subheader compression: %w", err)
	}
	totalOffset++

	ptype, err := sas.readInt(totalOffset, 1)
	if err != nil {
		return nil, fmt.Errorf("reading subheader type: %w", err)
	}

	return &subheaderPointer{subheaderOffset, subheaderLength, compression, ptype}, nil
}

func (sas *SAS7BDAT) subheaderIndex(signature []byte, compression, ptype int) (int, error) {

	index, ok := sasSubheaderIndex[string(signature)]
	if !ok {
		f := compression == compressedSubheaderID || compression == 0
		if sas.Compression != "" && f && ptype == compressedSubheaderType {
			index = dataSubheaderIndex
		} else {
			return 0, fmt.Errorf("unknown subheader signature")
		}
	}
	return index, nil
}

// processRowData decodes one row of data, decompressing it first
// when the file is compressed.
func (sas *SAS7BDAT) processRowData(offset, length int) error {

	var source []byte
	if sas.Compression != "" && length < sas.props.rowLength {
		decompressor := sas.getDecompressor()
		var err error
		source, err = decompressor(sas.props.rowLength, sas.cachedPage[offset:offset+length])
		if err != nil {
			return err
		}
	} else {
		if offset+length > len(sas.cachedPage) {
			// The row continues on the next page.
			oldPage := sas.cachedPage
			done, err := sas.readNextPage()
			if err != nil {
				return fmt.Errorf("reading row continuation page: %w", err)
			}
			if done {
				return fmt.Errorf("row extends past the end of the file")
			}
			sas.cachedPage = append(oldPage, sas.cachedPage...)
		}
		source = sas.cachedPage[offset : offset+length]
	}

	for j := 0; j < sas.props.columnCount; j++ {
		length := sas.columnDataLengths[j]
		if length == 0 {
			break
		}
		start := sas.columnDataOffsets[j]
		temp := source[start : start+length]
		if sas.columnTypes[j] == ColumnNumeric {
			s := 8 * sas.chunkRow
			if sas.ByteOrder == binary.LittleEndian {
				m := 8 - length
				copy(sas.numericBuf[j][s+m:s+8], temp)
			} else {
				copy(sas.numericBuf[j][s:s+length], temp)
			}
		} else {
			if sas.TrimStrings {
				temp = bytes.TrimRight(temp, "\x00 ")
			}
			if sas.TextDecoder != nil {
				var err error
				temp, err = sas.TextDecoder.Bytes(temp)
				if err != nil {
					return fmt.Errorf("decoding %s text: %w", sas.FileEncoding, err)
				}
			}

			k, ok := sas.stringPoolR[string(temp)]
			if !ok {
				k = uint64(len(sas.stringPool))
				sas.stringPool[k] = string(temp)
				sas.stringPoolR[string(temp)] = k
			}
			sas.stringBuf[j][sas.chunkRow] = k
		}
	}

	sas.pageRow++
	sas.chunkRow++
	sas.rowsRead++
	return nil
}

func (sas *SAS7BDAT) processRowSizeSubheader(offset, length int) error {

	intLen := sas.props.intLength
	lcsOffset := offset
	lcpOffset := offset
	if sas.U64 {
		lcsOffset += 682
		lcpOffset += 706
	} else {
		lcsOffset += 354
		lcpOffset += 378
	}

	var err error
	sas.props.rowLength, err = sas.readInt(offset+rowLengthMultiplier*intLen, intLen)
	if err != nil {
		return err
	}
	sas.rowCount, err = sas.readInt(offset+rowCountMultiplier*intLen, intLen)
	if err != nil {
		return err
	}
	sas.props.colCountP1, err = sas.readInt(offset+colCountP1Multiplier*intLen, intLen)
	if err != nil {
		return err
	}
	sas.props.colCountP2, err = sas.readInt(offset+colCountP2Multiplier*intLen, intLen)
	if err != nil {
		return err
	}
	sas.props.mixPageRowCount, err = sas.readInt(offset+mixPageRowCountMultiplier*intLen, intLen)
	if err != nil {
		return err
	}
	sas.props.lcs, err = sas.readInt(lcsOffset, 2)
	if err != nil {
		return err
	}
	sas.props.lcp, err = sas.readInt(lcpOffset, 2)
	if err != nil {
		return err
	}

	return nil
}

func (sas *SAS7BDAT) processColumnSizeSubheader(offset, length int) error {

	intLen := sas.props.intLength
	offset += intLen
	var err error
	sas.props.columnCount, err = sas.readInt(offset, intLen)
	if err != nil {
		return err
	}
	if sas.props.colCountP1+sas.props.colCountP2 != sas.props.columnCount {
		os.Stderr.WriteString(fmt.Sprintf("warning: column count mismatch (%d + %d != %d)\n",
			sas.props.colCountP1, sas.props.colCountP2, sas.props.columnCount))
	}

	return nil
}

func (sas *SAS7BDAT) processColumnTextSubheader(offset, length int) error {

	offset += sas.props.intLength
	textBlockSize := length - sas.props.intLength

	if err := sas.readBytes(offset, textBlockSize); err != nil {
		return fmt.Errorf("reading column text block: %w", err)
	}
	sas.textBlocks = append(sas.textBlocks, string(sas.buf[0:textBlockSize]))

	if len(sas.textBlocks) != 1 {
		return nil
	}

	// The first text block holds the compression literal and the
	// name of the procedure that created the file.
	var literal string
	for _, cl := range sasCompressionLiterals {
		if strings.Contains(sas.textBlocks[0], cl) {
			literal = cl
			break
		}
	}
	sas.Compression = literal
	offset -= sas.props.intLength

	offset1 := offset + 16
	if sas.U64 {
		offset1 += 4
	}
	if err := sas.readBytes(offset1, sas.props.lcp); err != nil {
		return err
	}
	literal = strings.Trim(string(sas.buf[0:8]), "\x00")

	switch {
	case literal == "":
		sas.props.lcs = 0
		offset1 = offset + 32
		if sas.U64 {
			offset1 += 4
		}
		if err := sas.readBytes(offset1, sas.props.lcp); err != nil {
			return err
		}
		sas.props.creatorProc = string(sas.buf[0:sas.props.lcp])
	case literal == rleCompression:
		offset1 = offset + 40
		if sas.U64 {
			offset1 += 4
		}
		if err := sas.readBytes(offset1, sas.props.lcp); err != nil {
			return err
		}
		sas.props.creatorProc = string(sas.buf[0:sas.props.lcp])
	case sas.props.lcs > 0:
		sas.props.lcp = 0
		offset1 = offset + 16
		if sas.U64 {
			offset1 += 4
		}
		if err := sas.readBytes(offset1, sas.props.lcs); err != nil {
			return err
		}
		sas.props.creatorProc = string(sas.buf[0:sas.props.lcp])
	}

	return nil
}

func (sas *SAS7BDAT) processColumnNameSubheader(offset, length int) error {

	intLen := sas.props.intLength
	offset += intLen
	count := (length - 2*intLen - 12) / 8
	for i := 0; i < count; i++ {
		base := offset + colNamePointerLength*(i+1)

		idx, err := sas.readInt(base+colNameIndexOffset, 2)
		if err != nil {
			return fmt.Errorf("reading column name text index: %w", err)
		}
		nameOffset, err := sas.readInt(base+colNameOffsetOffset, 2)
		if err != nil {
			return fmt.Errorf("reading column name offset: %w", err)
		}
		nameLength, err := sas.readInt(base+colNameLengthOffset, 2)
		if err != nil {
			return fmt.Errorf("reading column name length: %w", err)
		}

		text := sas.textBlocks[idx]
		sas.columnNames = append(sas.columnNames, text[nameOffset:nameOffset+nameLength])
	}

	return nil
}

func (sas *SAS7BDAT) processColumnAttributesSubheader(offset, length int) error {

	intLen := sas.props.intLength
	count := (length - 2*intLen - 12) / (intLen + 8)
	for i := 0; i < count; i++ {

		dataOffset := offset + intLen + colDataOffsetOffset + i*(intLen+8)
		dataLen := offset + 2*intLen + colDataLengthOffset + i*(intLen+8)
		colType := offset + 2*intLen + colTypeOffset + i*(intLen+8)

		x, err := sas.readInt(dataOffset, intLen)
		if err != nil {
			return err
		}
		sas.columnDataOffsets = append(sas.columnDataOffsets, x)

		x, err = sas.readInt(dataLen, colDataLengthLength)
		if err != nil {
			return err
		}
		sas.columnDataLengths = append(sas.columnDataLengths, x)

		x, err = sas.readInt(colType, 1)
		if err != nil {
			return err
		}
		if x == 1 {
			sas.columnTypes = append(sas.columnTypes, ColumnNumeric)
		} else {
			sas.columnTypes = append(sas.columnTypes, ColumnString)
		}
	}

	return nil
}

func (sas *SAS7BDAT) processFormatSubheader(offset, length int) error {

	intLen := sas.props.intLength

	formatIdx, _ := sas.readInt(offset+colFormatIndexOffset+3*intLen, 2)
	formatIdx = min(formatIdx, len(sas.textBlocks)-1)
	formatStart, _ := sas.readInt(offset+colFormatOffsetOffset+3*intLen, 2)
	formatLen, _ := sas.readInt(offset+colFormatLengthOffset+3*intLen, 2)

	labelIdx, _ := sas.readInt(offset+colLabelIndexOffset+3*intLen, 2)
	labelIdx = min(labelIdx, len(sas.textBlocks)-1)
	labelStart, _ := sas.readInt(offset+colLabelOffsetOffset+3*intLen, 2)
	labelLen, _ := sas.readInt(offset+colLabelLengthOffset+3*intLen, 2)

	label := sas.textBlocks[labelIdx][labelStart : labelStart+labelLen]
	format := sas.textBlocks[formatIdx][formatStart : formatStart+formatLen]

	sas.columnLabels = append(sas.columnLabels, label)
	sas.ColumnFormats = append(sas.ColumnFormats, format)

	return nil
}

// readMetadata reads pages from the file until all of the metadata
// subheaders have been processed and the first page holding data has
// been cached.
func (sas *SAS7BDAT) readMetadata() error {

	for {
		n, err := io.ReadFull(sas.file, sas.cachedPage)
		if n <= 0 || err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("truncated metadata page (read %d of %d bytes)", n, sas.props.pageLength)
		}
		if err != nil {
			return err
		}
		done, err := sas.processMetadataPage()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	return nil
}

func (sas *SAS7BDAT) processMetadataPage() (bool, error) {

	if err := sas.readPageHeader(); err != nil {
		return false, err
	}

	if isMetadataCarrier(sas.pageType) {
		if err := sas.processPageMetadata(); err != nil {
			return false, err
		}
	}

	return carriesData(sas.pageType) || sas.dataSubheaders != nil, nil
}

func isMetadataCarrier(t int) bool {
	switch t {
	case pageMetaType, 512, 640, pageAmdType:
		return true
	}
	return false
}

func isMixPage(t int) bool {
	switch t {
	case 512, 640:
		return true
	}
	return false
}

func carriesData(t int) bool {
	switch t {
	case 512, 640, pageDataType:
		return true
	}
	return false
}

func isKnownPageType(t int) bool {
	switch t {
	case pageMetaType, pageDataType, 512, 640:
		return true
	}
	return false
}
