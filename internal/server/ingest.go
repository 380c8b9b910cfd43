package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/calebfinn/sitewarden/internal/database"
)

// The external scanner drives scan lifecycle through these routes. Every
// event is also pushed to dashboards watching the owning project.

// handleIngestStartScan handles POST /internal/scans.
func (s *Server) handleIngestStartScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ProjectID int64 `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ProjectID == 0 {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	scan, err := s.svc.StartScan(req.ProjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(scan.ProjectID, ScanEvent{
		Type:      eventScanStarted,
		ProjectID: scan.ProjectID,
		ScanID:    scan.ID,
		Status:    scan.Status,
	})
	writeJSON(w, http.StatusCreated, scan)
}

// handleIngestScan handles /internal/scans/{id}/findings and
// /internal/scans/{id}/complete.
func (s *Server) handleIngestScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/internal/scans/")
	parts := strings.SplitN(idStr, "/", 2)
	id, ok := parseID(parts[0])
	if !ok || len(parts) < 2 {
		writeError(w, http.StatusBadRequest, "invalid scan path")
		return
	}

	switch parts[1] {
	case "findings":
		s.handleIngestFindings(w, r, id)
	case "complete":
		s.handleIngestComplete(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleIngestFindings(w http.ResponseWriter, r *http.Request, scanID int64) {
	var req struct {
		Findings []database.Finding `json:"findings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Findings) == 0 {
		writeError(w, http.StatusBadRequest, "findings are required")
		return
	}

	if err := s.svc.IngestFindings(scanID, req.Findings); err != nil {
		writeServiceError(w, err)
		return
	}

	if scan, err := s.db.GetScan(scanID); err == nil && scan != nil {
		s.hub.Broadcast(scan.ProjectID, ScanEvent{
			Type:         eventFindingsAdded,
			ProjectID:    scan.ProjectID,
			ScanID:       scanID,
			Status:       scan.Status,
			FindingCount: len(req.Findings),
		})
	}
	writeJSON(w, http.StatusCreated, map[string]int{"ingested": len(req.Findings)})
}

func (s *Server) handleIngestComplete(w http.ResponseWriter, r *http.Request, scanID int64) {
	var req struct {
		Succeeded bool `json:"succeeded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	scan, err := s.svc.CompleteScan(scanID, req.Succeeded)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(scan.ProjectID, ScanEvent{
		Type:      eventScanFinished,
		ProjectID: scan.ProjectID,
		ScanID:    scan.ID,
		Status:    scan.Status,
	})
	writeJSON(w, http.StatusOK, scan)
}
