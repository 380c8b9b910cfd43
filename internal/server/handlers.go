package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/calebfinn/sitewarden/internal/database"
	"github.com/calebfinn/sitewarden/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the façade taxonomy onto status codes. Store
// failures stay generic so nothing internal leaks to the caller.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoIdentity):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

// --- Projects ---

// handleAPIProjects handles /api/projects (collection)
func (s *Server) handleAPIProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.svc.ListProjects(callerID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if projects == nil {
			projects = []database.Project{}
		}
		writeJSON(w, http.StatusOK, projects)

	case http.MethodPost:
		var req struct {
			Name      string `json:"name"`
			TargetURL string `json:"target_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		p, err := s.svc.CreateProject(callerID(r), req.Name, req.TargetURL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPIProject handles /api/projects/{id} and its sub-resources.
func (s *Server) handleAPIProject(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "missing project id")
		return
	}

	parts := strings.SplitN(idStr, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	if len(parts) > 1 {
		switch parts[1] {
		case "scans":
			s.handleAPIProjectScans(w, r, id)
		case "links":
			s.handleAPIProjectLinks(w, r, id)
		case "stats":
			s.handleAPIProjectStats(w, r, id)
		case "reports":
			s.handleAPIProjectReport(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.svc.GetProject(callerID(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodPut:
		var req struct {
			Name      string `json:"name"`
			TargetURL string `json:"target_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		p, err := s.svc.UpdateProject(callerID(r), id, req.Name, req.TargetURL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if err := s.svc.DeleteProject(callerID(r), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIProjectScans(w http.ResponseWriter, r *http.Request, projectID int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scans, err := s.svc.ListScansByProject(callerID(r), projectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if scans == nil {
		scans = []database.Scan{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleAPIProjectLinks(w http.ResponseWriter, r *http.Request, projectID int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	links, err := s.svc.ListLinksByProject(callerID(r), projectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if links == nil {
		links = []database.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleAPIProjectStats(w http.ResponseWriter, r *http.Request, projectID int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.svc.ProjectSecurityStats(callerID(r), projectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAPIProjectReport(w http.ResponseWriter, r *http.Request, projectID int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Format == "" {
		req.Format = "markdown"
	}

	// Report generation reads unscoped, so ownership is settled first.
	if _, err := s.svc.GetProject(callerID(r), projectID); err != nil {
		writeServiceError(w, err)
		return
	}

	var path string
	var err error
	switch req.Format {
	case "markdown":
		path, err = s.reportGen.SaveMarkdown(projectID)
	case "pdf":
		path, err = s.reportGen.SavePDF(projectID)
	default:
		writeError(w, http.StatusBadRequest, "format must be 'markdown' or 'pdf'")
		return
	}
	if err != nil {
		slog.Error("report generation failed", "project", projectID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"file_path": path, "format": req.Format})
}

// --- Scans / findings ---

// handleAPIScan handles /api/scans/{id} and /api/scans/{id}/findings.
func (s *Server) handleAPIScan(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	parts := strings.SplitN(idStr, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scan id")
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(parts) > 1 && parts[1] == "findings" {
		findings, err := s.svc.ListFindingsByScan(callerID(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if findings == nil {
			findings = []database.Finding{}
		}
		writeJSON(w, http.StatusOK, findings)
		return
	}

	scan, err := s.svc.GetScan(callerID(r), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleAPIFinding(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/findings/")
	id, ok := parseID(idStr)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid finding id")
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, err := s.svc.GetFinding(callerID(r), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// --- Links ---

func (s *Server) handleAPILinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ProjectID int64  `json:"project_id"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	l, err := s.svc.CreateLink(callerID(r), req.ProjectID, req.URL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleAPILink(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/links/")
	id, ok := parseID(idStr)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		l, err := s.svc.UpdateLink(callerID(r), id, req.URL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)

	case http.MethodDelete:
		if err := s.svc.DeleteLink(callerID(r), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Waitlist / feedback ---

func (s *Server) handleAPIWaitlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	entry, err := s.svc.JoinWaitlist(req.Name, req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleAPIFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	entry, err := s.svc.SubmitFeedback(req.Name, req.Email, req.Feedback)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
