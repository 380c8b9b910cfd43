package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calebfinn/sitewarden/internal/database"
)

func newTestGenerator(t *testing.T) (*Generator, *database.DB) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.UpsertUser("user-1", "u@example.com"); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return NewGenerator(db, filepath.Join(dir, "reports"), ""), db
}

func seedProject(t *testing.T, db *database.DB) *database.Project {
	t.Helper()

	p := &database.Project{UserID: "user-1", Name: "Example", TargetURL: "https://example.com"}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("creating project: %v", err)
	}

	scan := &database.Scan{ProjectID: p.ID, Status: database.ScanComplete}
	if err := db.CreateScan(scan); err != nil {
		t.Fatalf("creating scan: %v", err)
	}
	findings := []database.Finding{
		{Severity: database.SeverityCritical, Title: "SQL injection", Location: "/search", Remedy: "use parameterized queries"},
		{Severity: database.SeverityLow, Title: "Verbose server header"},
	}
	if err := db.InsertFindings(scan.ID, findings); err != nil {
		t.Fatalf("inserting findings: %v", err)
	}
	return p
}

func TestGenerateMarkdown(t *testing.T) {
	g, db := newTestGenerator(t)
	p := seedProject(t, db)

	content, err := g.GenerateMarkdown(p.ID)
	if err != nil {
		t.Fatalf("generating markdown: %v", err)
	}

	for _, want := range []string{
		"# Security Report: Example",
		"**Score:** 83 / 100",
		"**Rating:** B",
		"**Status:** secure",
		"SQL injection",
		"use parameterized queries",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestGenerateMarkdownMissingProject(t *testing.T) {
	g, _ := newTestGenerator(t)
	if _, err := g.GenerateMarkdown(999); err == nil {
		t.Error("missing project should error")
	}
}

func TestSaveMarkdownWritesFile(t *testing.T) {
	g, db := newTestGenerator(t)
	p := seedProject(t, db)

	path, err := g.SaveMarkdown(p.ID)
	if err != nil {
		t.Fatalf("saving markdown: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report file: %v", err)
	}
	if !strings.Contains(string(data), "Security Report") {
		t.Error("saved file is not the report")
	}
	if filepath.Ext(path) != ".md" {
		t.Errorf("unexpected extension on %q", path)
	}
}
