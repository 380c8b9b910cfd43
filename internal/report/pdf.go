package report

import (
	"fmt"
	"os"

	"github.com/signintech/gopdf"

	"github.com/calebfinn/sitewarden/internal/scoring"
)

// Fallbacks when no font is configured. gopdf needs a real TTF to place text.
var defaultFontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/Library/Fonts/Arial.ttf",
}

func (g *Generator) resolveFont() (string, error) {
	candidates := defaultFontPaths
	if g.fontPath != "" {
		candidates = append([]string{g.fontPath}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no usable TTF font found; set reports.font_path")
}

func (g *Generator) SavePDF(projectID int64) (string, error) {
	project, err := g.db.GetProject(projectID)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", fmt.Errorf("project not found")
	}

	findings, err := g.db.ListFindingsByProject(projectID)
	if err != nil {
		return "", fmt.Errorf("listing findings: %w", err)
	}
	stats := scoring.Compute(findings)
	counts := scoring.CountBySeverity(findings)

	fontPath, err := g.resolveFont()
	if err != nil {
		return "", err
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("main", fontPath); err != nil {
		return "", fmt.Errorf("loading font: %w", err)
	}

	line := func(size float64, text string) error {
		if err := pdf.SetFont("main", "", size); err != nil {
			return err
		}
		pdf.SetX(40)
		if err := pdf.Cell(nil, text); err != nil {
			return err
		}
		pdf.Br(size + 8)
		return nil
	}

	pdf.SetY(40)
	if err := line(20, fmt.Sprintf("Security Report: %s", project.Name)); err != nil {
		return "", err
	}
	if err := line(11, fmt.Sprintf("Target: %s", project.TargetURL)); err != nil {
		return "", err
	}
	pdf.Br(10)
	if err := line(14, fmt.Sprintf("Score %d / 100   Rating %s   Status %s",
		stats.Score, stats.Rating, stats.Status)); err != nil {
		return "", err
	}
	pdf.Br(10)

	if err := line(14, "Findings by Severity"); err != nil {
		return "", err
	}
	for _, sev := range severityOrder {
		if counts[sev] == 0 {
			continue
		}
		if err := line(11, fmt.Sprintf("  %s: %d", sev, counts[sev])); err != nil {
			return "", err
		}
	}
	pdf.Br(10)

	if err := line(14, "Findings"); err != nil {
		return "", err
	}
	for _, f := range findings {
		// New page before running off the bottom.
		if pdf.GetY() > gopdf.PageSizeA4.H-60 {
			pdf.AddPage()
			pdf.SetY(40)
		}
		if err := line(11, fmt.Sprintf("  [%s] %s", f.Severity, f.Title)); err != nil {
			return "", err
		}
		if f.Location != "" {
			if err := line(9, fmt.Sprintf("      at %s", f.Location)); err != nil {
				return "", err
			}
		}
	}
	if len(findings) == 0 {
		if err := line(11, "  No findings recorded."); err != nil {
			return "", err
		}
	}

	path := g.reportPath(projectID, "pdf")
	if err := pdf.WritePdf(path); err != nil {
		return "", fmt.Errorf("writing pdf: %w", err)
	}
	return path, nil
}
