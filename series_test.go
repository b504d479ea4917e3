package stataprep

import (
	"testing"
	"time"
)

func TestSeries1(t *testing.T) {

	s, err := NewSeries("x", []int8{1, 2, 3}, []bool{false, true, false})
	if err != nil {
		t.Fatal(err)
	}
	if s.Length() != 3 {
		t.Fail()
	}

	u := s.UpcastNumeric()
	expected, _ := NewSeries("x", []float64{1, 2, 3}, []bool{false, true, false})
	if ok, _ := u.AllEqual(expected); !ok {
		t.Fail()
	}

	// float64 and string series pass through unchanged.
	f, _ := NewSeries("y", []float64{1, 2}, nil)
	if f.UpcastNumeric() != f {
		t.Fail()
	}
}

func TestSeries2(t *testing.T) {

	a, _ := NewSeries("x", []float64{1, 2, 3}, nil)
	b, _ := NewSeries("x", []float64{1, 2 + 1e-8, 3}, nil)

	if ok, _ := a.AllClose(b, 1e-6); !ok {
		t.Fail()
	}
	if ok, j := a.AllClose(b, 1e-10); ok || j != 1 {
		t.Fail()
	}
}

func TestSeries3(t *testing.T) {

	a, _ := NewSeries("x", []float64{1, 2, 3}, nil)
	b, _ := NewSeries("x", []float64{1, 2}, nil)
	c, _ := NewSeries("x", []string{"1", "2", "3"}, nil)

	if ok, j := a.AllClose(b, 1e-6); ok || j != -1 {
		t.Fail()
	}
	if ok, j := a.AllClose(c, 1e-6); ok || j != -2 {
		t.Fail()
	}
}

func TestSeries4(t *testing.T) {

	s, _ := NewSeries("x", []float64{1.5, 2, 3}, []bool{false, true, false})
	expected, _ := NewSeries("x", []string{"1.5", "", "3"}, []bool{false, true, false})
	if ok, _ := s.ToString().AllEqual(expected); !ok {
		t.Fail()
	}

	d := time.Date(2011, 7, 5, 0, 0, 0, 0, time.UTC)
	ts, _ := NewSeries("d", []time.Time{d}, nil)
	v, _, err := ts.ToString().AsStringSlice()
	if err != nil {
		t.Fatal(err)
	}
	if v[0] != "2011-07-05 00:00:00" {
		t.Fail()
	}
}

func TestSeries5(t *testing.T) {

	s, _ := NewSeries("x", []string{"a", "", "b", ""}, nil)
	u := s.NullStringMissing()
	if u.CountMissing() != 2 {
		t.Fail()
	}

	f := s.ForceNumeric()
	if f.CountMissing() != 4 {
		t.Fail()
	}

	g, _ := NewSeries("x", []string{"1", "junk", "2.5"}, nil)
	expected, _ := NewSeries("x", []float64{1, 0, 2.5}, []bool{false, true, false})
	if ok, _ := g.ForceNumeric().AllEqual(expected); !ok {
		t.Fail()
	}
}

func TestSeries6(t *testing.T) {

	base := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := NewSeries("x", []int32{0, 366}, nil)

	d, err := s.DateFromDuration(base, "days")
	if err != nil {
		t.Fatal(err)
	}
	expected, _ := NewSeries("x", []time.Time{
		base,
		time.Date(1961, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	if ok, _ := d.AllEqual(expected); !ok {
		t.Fail()
	}

	if _, err := s.DateFromDuration(base, "weeks"); err == nil {
		t.Fail()
	}
}
