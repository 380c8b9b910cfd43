package service

import (
	"fmt"
	"strings"

	"github.com/calebfinn/sitewarden/internal/database"
)

// Ingest operations are called on behalf of the external scanner, which is
// trusted platform infrastructure. They are token-authenticated at the HTTP
// boundary and are the only write path for scans and findings.

// StartScan opens a new scan against the project and moves it straight to
// running.
func (s *Service) StartScan(projectID int64) (*database.Scan, error) {
	p, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	scan := &database.Scan{ProjectID: projectID, Status: database.ScanPending}
	if err := s.db.CreateScan(scan); err != nil {
		return nil, err
	}
	if err := s.db.MarkScanRunning(scan.ID); err != nil {
		return nil, err
	}
	return s.db.GetScan(scan.ID)
}

// IngestFindings appends scanner output to a running scan. The batch is
// all-or-nothing.
func (s *Service) IngestFindings(scanID int64, findings []database.Finding) error {
	scan, err := s.db.GetScan(scanID)
	if err != nil {
		return err
	}
	if scan == nil {
		return ErrNotFound
	}
	if scan.Status != database.ScanRunning {
		return fmt.Errorf("%w: scan %d is %s, not running", ErrInvalidInput, scanID, scan.Status)
	}

	for i, f := range findings {
		if !validSeverities[f.Severity] {
			return fmt.Errorf("%w: finding %d has unknown severity %q", ErrInvalidInput, i, f.Severity)
		}
		if strings.TrimSpace(f.Title) == "" {
			return fmt.Errorf("%w: finding %d has no title", ErrInvalidInput, i)
		}
	}

	return s.db.InsertFindings(scanID, findings)
}

// CompleteScan moves a running scan to its terminal state.
func (s *Service) CompleteScan(scanID int64, succeeded bool) (*database.Scan, error) {
	scan, err := s.db.GetScan(scanID)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrNotFound
	}
	if scan.Status == database.ScanComplete || scan.Status == database.ScanFailed {
		return nil, fmt.Errorf("%w: scan %d already finished as %s", ErrInvalidInput, scanID, scan.Status)
	}

	status := database.ScanComplete
	if !succeeded {
		status = database.ScanFailed
	}
	if err := s.db.MarkScanFinished(scanID, status); err != nil {
		return nil, err
	}
	return s.db.GetScan(scanID)
}
