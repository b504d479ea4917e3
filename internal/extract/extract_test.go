package extract

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtract1(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "survey.csv")
	if err := os.WriteFile(path, []byte("caseid,age,weight\n1,30,62\n2,41,75\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	res, err := Run(path, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Columns != 3 {
		t.Fail()
	}
	if res.OutPath != filepath.Join(dir, "survey_columns.txt") {
		t.Errorf("got %q", res.OutPath)
	}

	b, err := os.ReadFile(res.OutPath)
	if err != nil {
		t.Fatal(err)
	}
	expected := "1. caseid\n2. age\n3. weight\n"
	if string(b) != expected {
		t.Errorf("got %q, want %q", b, expected)
	}

	out := buf.String()
	if !strings.Contains(out, "Reading column names from: survey.csv") {
		t.Fail()
	}
	if !strings.Contains(out, "  Extracted 3 column names") {
		t.Fail()
	}
	if !strings.Contains(out, "  Saved to: survey_columns.txt") {
		t.Fail()
	}
}

func TestExtract2(t *testing.T) {

	var buf bytes.Buffer
	_, err := Run(filepath.Join(t.TempDir(), "absent.csv"), "", &buf)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "File not found: ") {
		t.Fail()
	}
}

func TestExtract3(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "survey.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "names.txt")
	var buf bytes.Buffer
	res, err := Run(path, dest, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.OutPath != dest {
		t.Fail()
	}
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1. a\n2. b\n" {
		t.Errorf("got %q", b)
	}
}

func TestExtract4(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := Run(path, "", &buf); err == nil {
		t.Fail()
	}
}
