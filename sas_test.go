package stataprep

import (
	"strings"
	"testing"
	"time"
)

func TestRLE1(t *testing.T) {

	// A literal run, a repeated byte, a space fill, and a null fill.
	in := []byte{0x82, 'a', 'b', 'c', 0xC1, 'z', 0x60, 0x00, 0xF2}
	expected := "abczzzz" + strings.Repeat(" ", 17) + "\x00\x00\x00\x00"

	out, err := rleDecompress(len(expected), in)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != expected {
		t.Errorf("got %q, want %q", out, expected)
	}
}

func TestRDC1(t *testing.T) {

	// Two control bytes, four literals, a short rle, and a short
	// pattern copy of three bytes from offset five.
	in := []byte{0x0C, 0x00, 'W', 'i', 'k', 'i', 0x01, 'p', 0x32, 0x00}
	expected := "Wikippppipp"

	out, err := rdcDecompress(len(expected), in)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != expected {
		t.Errorf("got %q, want %q", out, expected)
	}
}

func TestSASDates1(t *testing.T) {

	d := sasDates([]float64{0, 365, 366})
	if !d[0].Equal(time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fail()
	}
	if !d[1].Equal(time.Date(1960, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fail()
	}
	if !d[2].Equal(time.Date(1961, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fail()
	}

	ts := sasDateTimes([]float64{86400})
	if !ts[0].Equal(time.Date(1960, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fail()
	}
}

func TestSASDecoder1(t *testing.T) {

	dec := sasDecoder("wlatin1")
	if dec == nil {
		t.Fatal("no decoder for wlatin1")
	}
	s, err := dec.Bytes([]byte{'c', 'a', 'f', 0xe9})
	if err != nil {
		t.Fatal(err)
	}
	if string(s) != "café" {
		t.Fail()
	}

	if sasDecoder("utf-8") != nil {
		t.Fail()
	}
}
