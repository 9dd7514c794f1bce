package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositorySQLIsMarked(t *testing.T) {
	violations, err := lint([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
	}
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package q\n\nconst QA = `--sql 11111111-2222-3333-4444-555555555555\nselect 1`\n")
	write("b.go", "package q\n\nconst QB = `--sql 11111111-2222-3333-4444-555555555555\nselect 2`\n\nconst QC = `select 3`\n")

	violations, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("violations = %+v", violations)
	}
	var missing, duplicate bool
	for _, v := range violations {
		switch {
		case v.name == "QC" && strings.Contains(v.message, "missing"):
			missing = true
		case v.name == "QB" && strings.Contains(v.message, "duplicate") && strings.Contains(v.message, "QA"):
			duplicate = true
		}
	}
	if !missing || !duplicate {
		t.Fatalf("violations = %+v", violations)
	}
}
