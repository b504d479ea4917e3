package stataprep

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/opensurvey/stataprep/internal/dtagen"
)

// buildDTA writes a format 115 dta file to a byte slice.
func buildDTA(t *testing.T, label string, cols []dtagen.Column) *bytes.Reader {

	var buf bytes.Buffer
	if err := dtagen.Write(&buf, label, cols); err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestStata1(t *testing.T) {

	r := buildDTA(t, "test data", []dtagen.Column{
		{Name: "a", Data: []int8{1, 2, 3}, Missing: []bool{false, true, false}},
		{Name: "b", Data: []int16{100, -200, 300}},
		{Name: "c", Data: []int32{1, 0, 2}, Missing: []bool{false, false, true}},
		{Name: "d", Data: []float32{1.5, 2.5, 3.5}},
		{Name: "e", Data: []float64{1.25, -2.5, 9.75}, Missing: []bool{true, false, false}},
	})

	stata, err := NewStataReader(r)
	if err != nil {
		t.Fatal(err)
	}
	if stata.FormatVersion != 115 || stata.RowCount() != 3 {
		t.Fail()
	}
	if stata.DatasetLabel != "test data" {
		t.Fail()
	}
	names := stata.ColumnNames()
	if len(names) != 5 || names[0] != "a" || names[4] != "e" {
		t.Fail()
	}
	for _, ty := range stata.ColumnTypes() {
		if ty != ColumnNumeric {
			t.Fail()
		}
	}

	ds, err := stata.Read(-1)
	if err != nil {
		t.Fatal(err)
	}
	for j := range ds {
		ds[j] = ds[j].UpcastNumeric()
	}

	expected := make([]*Series, 5)
	expected[0], _ = NewSeries("a", []float64{1, 0, 3}, []bool{false, true, false})
	expected[1], _ = NewSeries("b", []float64{100, -200, 300}, nil)
	expected[2], _ = NewSeries("c", []float64{1, 0, 0}, []bool{false, false, true})
	expected[3], _ = NewSeries("d", []float64{1.5, 2.5, 3.5}, nil)
	expected[4], _ = NewSeries("e", []float64{0, -2.5, 9.75}, []bool{true, false, false})

	fl, jx, ix := SeriesArray(ds).AllClose(expected, 1e-6)
	if !fl {
		t.Errorf("mismatch at column %d row %d", jx, ix)
	}
}

func TestStata2(t *testing.T) {

	r := buildDTA(t, "", []dtagen.Column{
		{Name: "name", Data: []string{"alpha", "bm", "c"}},
		{Name: "score", Data: []float64{1, 2, 3}},
	})

	stata, err := NewStataReader(r)
	if err != nil {
		t.Fatal(err)
	}
	types := stata.ColumnTypes()
	if types[0] != ColumnString || types[1] != ColumnNumeric {
		t.Fail()
	}

	ds, err := stata.Read(-1)
	if err != nil {
		t.Fatal(err)
	}
	v, _, err := ds[0].AsStringSlice()
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != "alpha" || v[1] != "bm" || v[2] != "c" {
		t.Fail()
	}
}

func TestStata3(t *testing.T) {

	r := buildDTA(t, "", []dtagen.Column{
		{Name: "bdate", Format: "%td", Data: []int32{0, 366}},
		{Name: "tstamp", Format: "%tc", Data: []float64{0, 86400000}},
	})

	stata, err := NewStataReader(r)
	if err != nil {
		t.Fatal(err)
	}

	ds, err := stata.Read(-1)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	expected := make([]*Series, 2)
	expected[0], _ = NewSeries("bdate", []time.Time{
		base,
		time.Date(1961, 1, 1, 0, 0, 0, 0, time.UTC),
	}, []bool{false, false})
	expected[1], _ = NewSeries("tstamp", []time.Time{
		base,
		time.Date(1960, 1, 2, 0, 0, 0, 0, time.UTC),
	}, []bool{false, false})

	if ok, jx, ix := SeriesArray(ds).AllClose(expected, 0); !ok {
		t.Errorf("mismatch at column %d row %d", jx, ix)
	}
}

func TestStata4(t *testing.T) {

	r := buildDTA(t, "", []dtagen.Column{
		{Name: "x", Data: []float64{1, 2, 3, 4, 5}},
	})

	stata, err := NewStataReader(r)
	if err != nil {
		t.Fatal(err)
	}

	var total int
	for {
		ds, err := stata.Read(2)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		total += ds[0].Length()
	}
	if total != 5 {
		t.Fail()
	}
}

func TestStata5(t *testing.T) {

	r := buildDTA(t, "", []dtagen.Column{
		{Name: "sex", Label: "sexlbl", Data: []int8{0, 1, 2}},
	})

	stata, err := NewStataReader(r)
	if err != nil {
		t.Fatal(err)
	}
	if stata.ValueLabelNames[0] != "sexlbl" {
		t.Fail()
	}

	// Old format files keep the label tables after the data, which
	// the reader does not load; supply the table directly.
	stata.ValueLabels = map[string]map[int32]string{
		"sexlbl": {0: "male", 1: "female"},
	}

	ds, err := stata.Read(-1)
	if err != nil {
		t.Fatal(err)
	}
	v, _, err := ds[0].AsStringSlice()
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != "male" || v[1] != "female" || v[2] != "2" {
		t.Fail()
	}
}

func TestStata6(t *testing.T) {

	_, err := NewStataReader(bytes.NewReader([]byte("not a dta file at all")))
	if !errors.Is(err, ErrFormat) {
		t.Fail()
	}
}
