package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calebfinn/sitewarden/internal/database"
	"github.com/calebfinn/sitewarden/internal/scoring"
)

// Generator renders per-project security reports. Callers are expected to
// have authorized the project before asking for one.
type Generator struct {
	db         *database.DB
	reportsDir string
	fontPath   string
}

func NewGenerator(db *database.DB, reportsDir, fontPath string) *Generator {
	return &Generator{db: db, reportsDir: reportsDir, fontPath: fontPath}
}

var severityOrder = []string{
	database.SeverityCritical,
	database.SeverityHigh,
	database.SeverityMedium,
	database.SeverityLow,
	database.SeverityInformational,
}

func (g *Generator) GenerateMarkdown(projectID int64) (string, error) {
	project, err := g.db.GetProject(projectID)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", fmt.Errorf("project not found")
	}

	scans, err := g.db.ListScansByProject(projectID)
	if err != nil {
		return "", fmt.Errorf("listing scans: %w", err)
	}

	findings, err := g.db.ListFindingsByProject(projectID)
	if err != nil {
		return "", fmt.Errorf("listing findings: %w", err)
	}

	stats := scoring.Compute(findings)
	counts := scoring.CountBySeverity(findings)

	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Security Report: %s\n\n", project.Name))
	b.WriteString(fmt.Sprintf("**Target:** %s  \n", project.TargetURL))
	b.WriteString(fmt.Sprintf("**Generated:** %s  \n\n", time.Now().Format("January 2, 2006 15:04:05 MST")))

	b.WriteString("## Security Posture\n\n")
	b.WriteString(fmt.Sprintf("**Score:** %d / 100  \n", stats.Score))
	b.WriteString(fmt.Sprintf("**Rating:** %s  \n", stats.Rating))
	b.WriteString(fmt.Sprintf("**Status:** %s  \n\n", stats.Status))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(fmt.Sprintf("%d scan(s) have run against this project, recording %d finding(s).\n\n",
		len(scans), len(findings)))

	if len(findings) > 0 {
		b.WriteString("| Severity | Count |\n")
		b.WriteString("|---|---|\n")
		for _, sev := range severityOrder {
			if counts[sev] > 0 {
				b.WriteString(fmt.Sprintf("| %s | %d |\n", sev, counts[sev]))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings by Scan\n\n")
	for _, scan := range scans {
		scanFindings, _ := g.db.ListFindingsByScan(scan.ID)

		b.WriteString(fmt.Sprintf("### Scan #%d — %s\n\n", scan.ID, scan.Status))
		if scan.CompletedAt != nil {
			b.WriteString(fmt.Sprintf("**Completed:** %s  \n", scan.CompletedAt.Format(time.RFC3339)))
		}
		b.WriteString("\n")

		if len(scanFindings) == 0 {
			b.WriteString("No findings for this scan.\n\n")
			continue
		}

		b.WriteString("| Severity | Title | Location |\n")
		b.WriteString("|---|---|---|\n")
		for _, f := range scanFindings {
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", f.Severity, f.Title, f.Location))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Remediation\n\n")
	wrote := false
	for _, f := range findings {
		if f.Remedy == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", f.Title, f.Severity, f.Remedy))
		wrote = true
	}
	if !wrote {
		b.WriteString("No remediation guidance recorded.\n")
	}
	b.WriteString("\n")

	return b.String(), nil
}

func (g *Generator) SaveMarkdown(projectID int64) (string, error) {
	content, err := g.GenerateMarkdown(projectID)
	if err != nil {
		return "", err
	}

	path := g.reportPath(projectID, "md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// reportPath builds a collision-free file name under the reports dir.
func (g *Generator) reportPath(projectID int64, ext string) string {
	os.MkdirAll(g.reportsDir, 0755)
	filename := fmt.Sprintf("project-%d-%s-%s.%s",
		projectID, time.Now().Format("20060102-150405"), uuid.NewString()[:8], ext)
	return filepath.Join(g.reportsDir, filename)
}
