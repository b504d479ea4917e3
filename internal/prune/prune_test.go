package prune

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClean1(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "id,note,empty,allna,mix\n1,hello,,NA,5\n2,,,NaN,\n3,world,,null,7\n")

	var buf bytes.Buffer
	res, err := CleanFile(path, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Original != 5 || res.Remaining != 3 || res.Removed != 2 || res.Rows != 3 {
		t.Errorf("got %+v", res)
	}
	if res.OutPath != path || res.Diverted {
		t.Fail()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := "id,note,mix\n1,hello,5\n2,,\n3,world,7\n"
	if string(b) != expected {
		t.Errorf("got %q, want %q", b, expected)
	}

	out := buf.String()
	if !strings.Contains(out, "  Removing 2 null/empty columns...") {
		t.Fail()
	}
	if !strings.Contains(out, "  [SUCCESS] Removed 2 columns") {
		t.Fail()
	}
	if !strings.Contains(out, "    Remaining: 3 columns") {
		t.Fail()
	}
}

func TestClean2(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	content := "a,b\n1,x\n2,y\n"
	writeFile(t, path, content)

	var buf bytes.Buffer
	res, err := CleanFile(path, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 0 || res.Original != 2 || res.Remaining != 2 {
		t.Errorf("got %+v", res)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != content {
		t.Errorf("file rewritten: %q", b)
	}
	if !strings.Contains(buf.String(), "  No null columns found. File unchanged.") {
		t.Fail()
	}
}

func TestClean3(t *testing.T) {

	// A whitespace-only cell is data, not a missing marker.
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "a,b\n1, \n2, \n")

	var buf bytes.Buffer
	res, err := CleanFile(path, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 0 {
		t.Errorf("got %+v", res)
	}
}

func TestClean4(t *testing.T) {

	// With no data rows there is no evidence to drop anything.
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeFile(t, path, "a,b,c\n")

	var buf bytes.Buffer
	res, err := CleanFile(path, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 0 || res.Rows != 0 || res.Original != 3 {
		t.Errorf("got %+v", res)
	}
}

func TestClean5(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	content := "id,junk\n1,NA\n2,NA\n"
	writeFile(t, path, content)

	var buf bytes.Buffer
	res, err := CleanFile(path, false, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 || res.OutPath != path || res.Diverted {
		t.Errorf("got %+v", res)
	}

	backup, err := os.ReadFile(path + ".backup")
	if err != nil {
		t.Fatal(err)
	}
	if string(backup) != content {
		t.Errorf("backup holds %q", backup)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "id\n1\n2\n" {
		t.Errorf("got %q", b)
	}
}

func TestClean6(t *testing.T) {

	if os.Geteuid() == 0 {
		t.Skip("file permissions do not bind root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	content := "id,junk\n1,NA\n2,NA\n"
	writeFile(t, path, content)
	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	res, err := CleanFile(path, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Diverted {
		t.Fatal("expected a diverted write")
	}
	cleaned := filepath.Join(dir, "data_cleaned.csv")
	if res.OutPath != cleaned {
		t.Errorf("got %q", res.OutPath)
	}

	b, err := os.ReadFile(cleaned)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "id\n1\n2\n" {
		t.Errorf("got %q", b)
	}

	orig, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(orig) != content {
		t.Errorf("original modified: %q", orig)
	}
	if !strings.Contains(buf.String(), "  Note: Original file is locked. Saved as: data_cleaned.csv") {
		t.Fail()
	}
}

func TestCleanMissing(t *testing.T) {

	var buf bytes.Buffer
	_, err := CleanFile(filepath.Join(t.TempDir(), "absent.csv"), true, &buf)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "File not found: ") {
		t.Fail()
	}
}

func TestFolder1(t *testing.T) {

	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.csv"), "id,x,junk\n1,5,NA\n2,6,NA\n")
	writeFile(t, filepath.Join(sub, "b.csv"), "id,y\n1,7\n")

	var buf bytes.Buffer
	sum, err := Folder(dir, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 2 || sum.Successful != 2 || sum.Failed != 0 {
		t.Errorf("got %+v", sum)
	}
	if sum.TotalRemoved != 1 || sum.TotalOriginal != 5 {
		t.Errorf("got %+v", sum)
	}

	out := buf.String()
	if !strings.Contains(out, "Found 2 CSV file(s) to process.") {
		t.Fail()
	}
	if !strings.Contains(out, "Processing complete!") {
		t.Fail()
	}
	if !strings.Contains(out, "  Average columns per file: 2.5") {
		t.Fail()
	}
}

func TestFolder2(t *testing.T) {

	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.csv"), "id\n1\n")
	writeFile(t, filepath.Join(sub, "b.csv"), "id\n1\n")

	var buf bytes.Buffer
	sum, err := Folder(dir, false, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 1 || sum.Successful != 1 {
		t.Errorf("got %+v", sum)
	}
}

func TestFolder3(t *testing.T) {

	dir := t.TempDir()
	var buf bytes.Buffer
	sum, err := Folder(dir, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 0 {
		t.Fail()
	}
	if !strings.Contains(buf.String(), "No CSV files found in ") {
		t.Fail()
	}
}

func TestFolder4(t *testing.T) {

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.csv"), "id,junk\n1,NA\n")
	writeFile(t, filepath.Join(dir, "bad.csv"), "a,b\n1,2,3,4\n")

	var buf bytes.Buffer
	sum, err := Folder(dir, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Successful != 1 || sum.Failed != 1 {
		t.Errorf("got %+v", sum)
	}
	if !strings.Contains(buf.String(), "  [FAILED] Error processing bad.csv") {
		t.Fail()
	}
}
