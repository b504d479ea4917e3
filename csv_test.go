package stataprep

import (
	"io"
	"strings"
	"testing"
)

func TestCSV1(t *testing.T) {

	rdr := NewCSVReader(strings.NewReader("Var1,Var2,Var3\n1,2,3\n4,5,6\n7,8,9\n"))
	data, err := rdr.Read(-1)
	if err != nil {
		t.Fatal(err)
	}

	expected := make([]*Series, 3)
	expected[0], _ = NewSeries("Var1", []float64{1, 4, 7}, nil)
	expected[1], _ = NewSeries("Var2", []float64{2, 5, 8}, nil)
	expected[2], _ = NewSeries("Var3", []float64{3, 6, 9}, nil)

	if ok, _, _ := SeriesArray(data).AllEqual(expected); !ok {
		t.Fail()
	}
	if rdr.ColumnNames[0] != "Var1" || rdr.ColumnNames[2] != "Var3" {
		t.Fail()
	}
}

func TestCSV2(t *testing.T) {

	rdr := NewCSVReader(strings.NewReader("a,b,c\n1,2,3\n4,5,6\n7,8,9\n"))
	rdr.HasHeader = false
	data, err := rdr.Read(-1)
	if err != nil {
		t.Fatal(err)
	}

	expected := make([]*Series, 3)
	expected[0], _ = NewSeries("", []string{"a", "1", "4", "7"}, nil)
	expected[1], _ = NewSeries("", []string{"b", "2", "5", "8"}, nil)
	expected[2], _ = NewSeries("", []string{"c", "3", "6", "9"}, nil)

	if ok, _, _ := SeriesArray(data).AllEqual(expected); !ok {
		t.Fail()
	}
	if rdr.ColumnNames[0] != "Column 1" {
		t.Fail()
	}
}

func TestCSV3(t *testing.T) {

	rdr := NewCSVReader(strings.NewReader("a,b,c\n1,2,3\n4,5,6\n7,8,9\n"))
	rdr.HasHeader = false
	rdr.SkipRows = 2
	data, err := rdr.Read(-1)
	if err != nil {
		t.Fatal(err)
	}

	expected := make([]*Series, 3)
	expected[0], _ = NewSeries("", []float64{4, 7}, nil)
	expected[1], _ = NewSeries("", []float64{5, 8}, nil)
	expected[2], _ = NewSeries("", []float64{6, 9}, nil)

	if ok, _, _ := SeriesArray(data).AllEqual(expected); !ok {
		t.Fail()
	}
}

func TestCSV4(t *testing.T) {

	rdr := NewCSVReader(strings.NewReader("a,b,c\n1,2,3\n4,5,6\n7,8,9\n"))
	rdr.HasHeader = false
	rdr.TypeHintsName = map[string]string{
		"Column 1": "float64",
		"Column 2": "float64",
		"Column 3": "float64"}

	data, err := rdr.Read(-1)
	if err != nil {
		t.Fatal(err)
	}

	expected := make([]*Series, 3)
	miss := []bool{true, false, false, false}
	expected[0], _ = NewSeries("", []float64{0, 1, 4, 7}, miss)
	expected[1], _ = NewSeries("", []float64{0, 2, 5, 8}, miss)
	expected[2], _ = NewSeries("", []float64{0, 3, 6, 9}, miss)

	if ok, _, _ := SeriesArray(data).AllEqual(expected); !ok {
		t.Fail()
	}
}

func TestCSV5(t *testing.T) {

	// The second data row is short, so the second column gets a
	// missing value there.
	rdr := NewCSVReader(strings.NewReader("Var1,Var2\n1,2\n3\n5,6\n"))
	data, err := rdr.Read(-1)
	if err != nil {
		t.Fatal(err)
	}

	expected := make([]*Series, 2)
	expected[0], _ = NewSeries("Var1", []float64{1, 3, 5}, []bool{false, false, false})
	expected[1], _ = NewSeries("Var2", []float64{2, 0, 6}, []bool{false, true, false})

	if ok, _, _ := SeriesArray(data).AllEqual(expected); !ok {
		t.Fail()
	}
}

func TestCSV6(t *testing.T) {

	rdr := NewCSVReader(strings.NewReader("Var1\n1\n2\n3\n4\n5\n"))

	var total int
	for {
		data, err := rdr.Read(2)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		total += data[0].Length()
	}
	if total != 5 {
		t.Fail()
	}

	types := rdr.ColumnTypes()
	if len(types) != 1 || types[0] != ColumnNumeric {
		t.Fail()
	}
}

func TestReadColumnNames(t *testing.T) {

	names, err := ReadColumnNames(strings.NewReader("a,b,c\n1,2,3\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fail()
	}

	if _, err := ReadColumnNames(strings.NewReader("")); err == nil {
		t.Fail()
	}
}
