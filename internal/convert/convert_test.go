package convert

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensurvey/stataprep/internal/dtagen"
)

func writeTestDTA(t *testing.T, path string) {

	err := dtagen.WriteFile(path, "", []dtagen.Column{
		{Name: "id", Data: []int32{1, 2, 3}},
		{Name: "score", Data: []float64{1.5, 0, 3.5}, Missing: []bool{false, true, false}},
		{Name: "name", Data: []string{"x", "y", "z"}},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConvert1(t *testing.T) {

	dir := t.TempDir()
	sub := filepath.Join(dir, "wave2")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestDTA(t, filepath.Join(dir, "a.dta"))
	writeTestDTA(t, filepath.Join(sub, "b.dta"))

	var buf bytes.Buffer
	sum, err := Run(dir, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 2 || sum.Successful != 2 || sum.Failed != 0 {
		t.Errorf("found %d successful %d failed %d", sum.Found, sum.Successful, sum.Failed)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.csv"))
	if err != nil {
		t.Fatal(err)
	}
	expected := "id,score,name\n1,1.5,x\n2,,y\n3,3.5,z\n"
	if string(b) != expected {
		t.Errorf("got %q, want %q", b, expected)
	}
	if _, err := os.Stat(filepath.Join(sub, "b.csv")); err != nil {
		t.Error(err)
	}

	out := buf.String()
	if !strings.Contains(out, "Found 2 .dta file(s) to convert.") {
		t.Fail()
	}
	if !strings.Contains(out, "Conversion complete!") || !strings.Contains(out, "  Successful: 2") {
		t.Fail()
	}
}

func TestConvert2(t *testing.T) {

	dir := t.TempDir()
	outDir := t.TempDir()
	sub := filepath.Join(dir, "wave2")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestDTA(t, filepath.Join(dir, "a.dta"))
	writeTestDTA(t, filepath.Join(sub, "b.dta"))

	var buf bytes.Buffer
	sum, err := Run(dir, outDir, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Successful != 2 {
		t.Fail()
	}

	// The relative layout of the input tree is mirrored under the
	// output folder, and nothing is written beside the inputs.
	if _, err := os.Stat(filepath.Join(outDir, "a.csv")); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "wave2", "b.csv")); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.csv")); err == nil {
		t.Fail()
	}
}

func TestConvert3(t *testing.T) {

	dir := t.TempDir()
	var buf bytes.Buffer
	sum, err := Run(dir, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 0 {
		t.Fail()
	}
	if !strings.Contains(buf.String(), "No .dta files found in") {
		t.Fail()
	}
}

func TestConvert4(t *testing.T) {

	dir := t.TempDir()
	writeTestDTA(t, filepath.Join(dir, "a.dta"))
	if err := os.WriteFile(filepath.Join(dir, "bad.dta"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	sum, err := Run(dir, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Successful != 1 || sum.Failed != 1 {
		t.Errorf("successful %d failed %d", sum.Successful, sum.Failed)
	}

	out := buf.String()
	if !strings.Contains(out, "  [FAILED] Could not convert bad.dta") {
		t.Fail()
	}
	if _, err := os.Stat(filepath.Join(dir, "a.csv")); err != nil {
		t.Error(err)
	}
}

func TestConvert5(t *testing.T) {

	dir := t.TempDir()
	writeTestDTA(t, filepath.Join(dir, "UPPER.DTA"))

	var buf bytes.Buffer
	sum, err := Run(dir, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 1 || sum.Successful != 1 {
		t.Fail()
	}
	if _, err := os.Stat(filepath.Join(dir, "UPPER.csv")); err != nil {
		t.Error(err)
	}
}

func TestConvert6(t *testing.T) {

	dir := t.TempDir()
	err := dtagen.WriteFile(filepath.Join(dir, "empty.dta"), "", []dtagen.Column{
		{Name: "id", Data: []int32{}},
		{Name: "name", Data: []string{}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	sum, err := Run(dir, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Successful != 1 {
		t.Fatal(buf.String())
	}

	b, err := os.ReadFile(filepath.Join(dir, "empty.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "id,name\n" {
		t.Errorf("got %q", b)
	}
	if !strings.Contains(buf.String(), "    Rows: 0, Columns: 2") {
		t.Fail()
	}
}

func TestParquet1(t *testing.T) {

	dir := t.TempDir()
	writeTestDTA(t, filepath.Join(dir, "a.dta"))

	var buf bytes.Buffer
	sum, err := RunParquet(dir, "", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Successful != 1 || sum.Failed != 0 {
		t.Fatal(buf.String())
	}

	fi, err := os.Stat(filepath.Join(dir, "a.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() == 0 {
		t.Fail()
	}
	if !strings.Contains(buf.String(), "Parquet size:") {
		t.Fail()
	}
}
