// Package service is the authorization-scoped façade between the HTTP
// boundary and the store. Every user-facing operation resolves ownership
// through the project chain before it reads or writes anything, and
// mutations re-assert that ownership inside the SQL itself.
package service

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/calebfinn/sitewarden/internal/database"
	"github.com/calebfinn/sitewarden/internal/scoring"
)

type Service struct {
	db           *database.DB
	historyLimit int
}

func New(db *database.DB, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{db: db, historyLimit: historyLimit}
}

// --- Validation helpers ---

func checkCaller(callerID string) error {
	if callerID == "" {
		return ErrNoIdentity
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: malformed url", ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must be absolute http or https", ErrInvalidInput)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url is missing a host", ErrInvalidInput)
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return nil
}

var validSeverities = map[string]bool{
	database.SeverityCritical:      true,
	database.SeverityHigh:          true,
	database.SeverityMedium:        true,
	database.SeverityLow:           true,
	database.SeverityInformational: true,
}

// --- Projects ---

func (s *Service) CreateProject(callerID, name, targetURL string) (*database.Project, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateAbsoluteURL(targetURL); err != nil {
		return nil, err
	}

	p := &database.Project{UserID: callerID, Name: name, TargetURL: targetURL}
	if err := s.db.CreateProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProject(callerID string, projectID int64) (*database.Project, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	p, err := s.db.GetProjectForUser(projectID, callerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) ListProjects(callerID string) ([]database.Project, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	return s.db.ListProjectsByUser(callerID)
}

func (s *Service) UpdateProject(callerID string, projectID int64, name, targetURL string) (*database.Project, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateAbsoluteURL(targetURL); err != nil {
		return nil, err
	}

	p := &database.Project{ID: projectID, Name: name, TargetURL: targetURL}
	ok, err := s.db.UpdateProjectForUser(p, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	fresh, err := s.db.GetProjectForUser(projectID, callerID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, ErrNotFound
	}
	return fresh, nil
}

func (s *Service) DeleteProject(callerID string, projectID int64) error {
	if err := checkCaller(callerID); err != nil {
		return err
	}
	ok, err := s.db.DeleteProjectForUser(projectID, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// --- Scans and findings (read-only from this layer) ---

func (s *Service) GetScan(callerID string, scanID int64) (*database.Scan, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	scan, _, err := s.db.GetScanForUser(scanID, callerID)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrNotFound
	}
	return scan, nil
}

func (s *Service) ListScansByProject(callerID string, projectID int64) ([]database.Scan, error) {
	if _, err := s.GetProject(callerID, projectID); err != nil {
		return nil, err
	}
	return s.db.ListScansByProject(projectID)
}

func (s *Service) GetFinding(callerID string, findingID int64) (*database.Finding, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	f, _, err := s.db.GetFindingForUser(findingID, callerID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotFound
	}
	return f, nil
}

// ListFindingsByScan authorizes the scan once and then lists everything
// under it. Findings under an authorized scan need no per-row check.
func (s *Service) ListFindingsByScan(callerID string, scanID int64) ([]database.Finding, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	scan, _, err := s.db.GetScanForUser(scanID, callerID)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrNotFound
	}
	return s.db.ListFindingsByScan(scanID)
}

// --- Links ---

func (s *Service) CreateLink(callerID string, projectID int64, rawURL string) (*database.Link, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	// Input validation happens before any store access.
	if err := validateAbsoluteURL(rawURL); err != nil {
		return nil, err
	}
	if _, err := s.GetProject(callerID, projectID); err != nil {
		return nil, err
	}

	l := &database.Link{ProjectID: projectID, URL: rawURL}
	if err := s.db.CreateLink(l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) UpdateLink(callerID string, linkID int64, rawURL string) (*database.Link, error) {
	if err := checkCaller(callerID); err != nil {
		return nil, err
	}
	if err := validateAbsoluteURL(rawURL); err != nil {
		return nil, err
	}

	ok, err := s.db.UpdateLinkURLForUser(linkID, callerID, rawURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	l, _, err := s.db.GetLinkForUser(linkID, callerID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

// DeleteLink is not idempotent: a second delete of the same id reports
// not found, exactly like an id that never existed.
func (s *Service) DeleteLink(callerID string, linkID int64) error {
	if err := checkCaller(callerID); err != nil {
		return err
	}
	ok, err := s.db.DeleteLinkForUser(linkID, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ListLinksByProject(callerID string, projectID int64) ([]database.Link, error) {
	if _, err := s.GetProject(callerID, projectID); err != nil {
		return nil, err
	}
	return s.db.ListLinksByProject(projectID)
}

// --- Security stats ---

// ScanScore is one point on a project's score trend.
type ScanScore struct {
	ScanID      int64     `json:"scan_id"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

type SecurityStats struct {
	scoring.Stats
	TotalFindings  int            `json:"total_findings"`
	SeverityCounts map[string]int `json:"severity_counts"`
	History        []ScanScore    `json:"history"`
}

// ProjectSecurityStats scores every finding across all of the project's
// scans and attaches a per-scan trend for the most recent completed scans,
// newest first.
func (s *Service) ProjectSecurityStats(callerID string, projectID int64) (*SecurityStats, error) {
	if _, err := s.GetProject(callerID, projectID); err != nil {
		return nil, err
	}

	findings, err := s.db.ListFindingsByProject(projectID)
	if err != nil {
		return nil, err
	}

	stats := &SecurityStats{
		Stats:          scoring.Compute(findings),
		TotalFindings:  len(findings),
		SeverityCounts: scoring.CountBySeverity(findings),
	}

	recent, err := s.db.ListRecentCompleteScans(projectID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	for _, scan := range recent {
		scanFindings, err := s.db.ListFindingsByScan(scan.ID)
		if err != nil {
			return nil, err
		}
		point := ScanScore{ScanID: scan.ID, Score: scoring.Compute(scanFindings).Score}
		if scan.CompletedAt != nil {
			point.CompletedAt = *scan.CompletedAt
		}
		stats.History = append(stats.History, point)
	}

	return stats, nil
}

// --- Waitlist / feedback (public, no caller) ---

func (s *Service) JoinWaitlist(name, email string) (*database.WaitlistEntry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	exists, err := s.db.WaitlistEmailExists(email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: email is already on the waitlist", ErrInvalidInput)
	}

	e := &database.WaitlistEntry{Name: name, Email: email}
	if err := s.db.CreateWaitlistEntry(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) SubmitFeedback(name, email, text string) (*database.FeedbackEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: feedback text is required", ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	e := &database.FeedbackEntry{Name: name, Email: email, Feedback: text}
	if err := s.db.CreateFeedbackEntry(e); err != nil {
		return nil, err
	}
	return e, nil
}
