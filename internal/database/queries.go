package database

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Users ---

// UpsertUser records an identity-provider subject the first time it shows
// up. Email updates follow the provider.
func (db *DB) UpsertUser(id, email string) error {
	_, err := db.Exec(
		`INSERT INTO users (id, email) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email`,
		id, email,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// --- Projects ---

func (db *DB) CreateProject(p *Project) error {
	res, err := db.Exec(
		`INSERT INTO projects (user_id, name, target_url) VALUES (?, ?, ?)`,
		p.UserID, p.Name, p.TargetURL,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetProject(id int64) (*Project, error) {
	p := &Project{}
	err := db.QueryRow(
		`SELECT id, user_id, name, target_url, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.TargetURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetProjectForUser returns the project only when it is owned by userID.
// Missing and not-owned are both (nil, nil).
func (db *DB) GetProjectForUser(id int64, userID string) (*Project, error) {
	p := &Project{}
	err := db.QueryRow(
		`SELECT id, user_id, name, target_url, created_at, updated_at
		 FROM projects WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.TargetURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (db *DB) ListProjectsByUser(userID string) ([]Project, error) {
	rows, err := db.Query(
		`SELECT id, user_id, name, target_url, created_at, updated_at
		 FROM projects WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.TargetURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProjectForUser re-asserts ownership in the WHERE clause so a stale
// authorization check can never update another user's row.
func (db *DB) UpdateProjectForUser(p *Project, userID string) (bool, error) {
	res, err := db.Exec(
		`UPDATE projects SET name = ?, target_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		p.Name, p.TargetURL, p.ID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (db *DB) DeleteProjectForUser(id int64, userID string) (bool, error) {
	res, err := db.Exec(`DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- Scans ---

func (db *DB) CreateScan(s *Scan) error {
	if s.Status == "" {
		s.Status = ScanPending
	}
	res, err := db.Exec(
		`INSERT INTO scans (project_id, status) VALUES (?, ?)`,
		s.ProjectID, s.Status,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetScan(id int64) (*Scan, error) {
	s := &Scan{}
	err := db.QueryRow(
		`SELECT id, project_id, status, started_at, completed_at, created_at FROM scans WHERE id = ?`, id,
	).Scan(&s.ID, &s.ProjectID, &s.Status, &s.StartedAt, &s.CompletedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return s, nil
}

// GetScanForUser resolves the scan through its owning project. A scan whose
// project belongs to someone else, or is gone, is (nil, nil).
func (db *DB) GetScanForUser(id int64, userID string) (*Scan, *Project, error) {
	s := &Scan{}
	p := &Project{}
	err := db.QueryRow(
		`SELECT s.id, s.project_id, s.status, s.started_at, s.completed_at, s.created_at,
		        p.id, p.user_id, p.name, p.target_url, p.created_at, p.updated_at
		 FROM scans s JOIN projects p ON s.project_id = p.id
		 WHERE s.id = ? AND p.user_id = ?`, id, userID,
	).Scan(&s.ID, &s.ProjectID, &s.Status, &s.StartedAt, &s.CompletedAt, &s.CreatedAt,
		&p.ID, &p.UserID, &p.Name, &p.TargetURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get scan: %w", err)
	}
	return s, p, nil
}

func (db *DB) ListScansByProject(projectID int64) ([]Scan, error) {
	rows, err := db.Query(
		`SELECT id, project_id, status, started_at, completed_at, created_at
		 FROM scans WHERE project_id = ? ORDER BY created_at DESC`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var s Scan
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Status, &s.StartedAt, &s.CompletedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// ListRecentCompleteScans returns the newest scans that finished
// successfully, newest first. Used for the score trend.
func (db *DB) ListRecentCompleteScans(projectID int64, limit int) ([]Scan, error) {
	rows, err := db.Query(
		`SELECT id, project_id, status, started_at, completed_at, created_at
		 FROM scans WHERE project_id = ? AND status = ?
		 ORDER BY completed_at DESC LIMIT ?`, projectID, ScanComplete, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var s Scan
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Status, &s.StartedAt, &s.CompletedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

func (db *DB) MarkScanRunning(id int64) error {
	_, err := db.Exec(
		`UPDATE scans SET status = ?, started_at = ? WHERE id = ?`,
		ScanRunning, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark scan running: %w", err)
	}
	return nil
}

// MarkScanFinished sets the terminal status, complete or failed.
func (db *DB) MarkScanFinished(id int64, status string) error {
	_, err := db.Exec(
		`UPDATE scans SET status = ?, completed_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark scan finished: %w", err)
	}
	return nil
}

// --- Findings ---

// InsertFindings appends scanner output in a single transaction; either the
// whole batch lands or none of it does.
func (db *DB) InsertFindings(scanID int64, findings []Finding) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO findings (scan_id, severity, title, description, location, remedy)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.Exec(scanID, f.Severity, f.Title, f.Description, f.Location, f.Remedy); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}
	return tx.Commit()
}

// GetFindingForUser walks the full chain finding -> scan -> project and
// filters on the owner, so a dangling scan reference surfaces as absent
// rather than as an error.
func (db *DB) GetFindingForUser(id int64, userID string) (*Finding, *Project, error) {
	f := &Finding{}
	p := &Project{}
	err := db.QueryRow(
		`SELECT f.id, f.scan_id, f.severity, f.title, f.description, f.location, f.remedy, f.created_at,
		        p.id, p.user_id, p.name, p.target_url, p.created_at, p.updated_at
		 FROM findings f
		 JOIN scans s ON f.scan_id = s.id
		 JOIN projects p ON s.project_id = p.id
		 WHERE f.id = ? AND p.user_id = ?`, id, userID,
	).Scan(&f.ID, &f.ScanID, &f.Severity, &f.Title, &f.Description, &f.Location, &f.Remedy, &f.CreatedAt,
		&p.ID, &p.UserID, &p.Name, &p.TargetURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get finding: %w", err)
	}
	return f, p, nil
}

func (db *DB) ListFindingsByScan(scanID int64) ([]Finding, error) {
	rows, err := db.Query(
		`SELECT id, scan_id, severity, title, description, location, remedy, created_at
		 FROM findings WHERE scan_id = ? ORDER BY id`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("list findings by scan: %w", err)
	}
	defer rows.Close()
	return collectFindings(rows)
}

func (db *DB) ListFindingsByProject(projectID int64) ([]Finding, error) {
	rows, err := db.Query(
		`SELECT f.id, f.scan_id, f.severity, f.title, f.description, f.location, f.remedy, f.created_at
		 FROM findings f JOIN scans s ON f.scan_id = s.id
		 WHERE s.project_id = ? ORDER BY f.id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list findings by project: %w", err)
	}
	defer rows.Close()
	return collectFindings(rows)
}

func collectFindings(rows *sql.Rows) ([]Finding, error) {
	var findings []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Severity, &f.Title, &f.Description, &f.Location, &f.Remedy, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// --- Links ---

func (db *DB) CreateLink(l *Link) error {
	res, err := db.Exec(
		`INSERT INTO links (project_id, url) VALUES (?, ?)`,
		l.ProjectID, l.URL,
	)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetLinkForUser(id int64, userID string) (*Link, *Project, error) {
	l := &Link{}
	p := &Project{}
	err := db.QueryRow(
		`SELECT l.id, l.project_id, l.url, l.created_at, l.updated_at,
		        p.id, p.user_id, p.name, p.target_url, p.created_at, p.updated_at
		 FROM links l JOIN projects p ON l.project_id = p.id
		 WHERE l.id = ? AND p.user_id = ?`, id, userID,
	).Scan(&l.ID, &l.ProjectID, &l.URL, &l.CreatedAt, &l.UpdatedAt,
		&p.ID, &p.UserID, &p.Name, &p.TargetURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get link: %w", err)
	}
	return l, p, nil
}

func (db *DB) ListLinksByProject(projectID int64) ([]Link, error) {
	rows, err := db.Query(
		`SELECT id, project_id, url, created_at, updated_at
		 FROM links WHERE project_id = ? ORDER BY id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.URL, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// UpdateLinkURLForUser updates only the url, and only when the link's
// project is owned by userID.
func (db *DB) UpdateLinkURLForUser(id int64, userID, url string) (bool, error) {
	res, err := db.Exec(
		`UPDATE links SET url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND project_id IN (SELECT id FROM projects WHERE user_id = ?)`,
		url, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("update link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (db *DB) DeleteLinkForUser(id int64, userID string) (bool, error) {
	res, err := db.Exec(
		`DELETE FROM links
		 WHERE id = ? AND project_id IN (SELECT id FROM projects WHERE user_id = ?)`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- Waitlist / Feedback ---

func (db *DB) WaitlistEmailExists(email string) (bool, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM waitlist WHERE email = ?`, email).Scan(&n); err != nil {
		return false, fmt.Errorf("check waitlist email: %w", err)
	}
	return n > 0, nil
}

func (db *DB) CreateWaitlistEntry(e *WaitlistEntry) error {
	res, err := db.Exec(
		`INSERT INTO waitlist (name, email) VALUES (?, ?)`,
		e.Name, e.Email,
	)
	if err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) CreateFeedbackEntry(e *FeedbackEntry) error {
	res, err := db.Exec(
		`INSERT INTO feedback (name, email, feedback) VALUES (?, ?, ?)`,
		e.Name, e.Email, e.Feedback,
	)
	if err != nil {
		return fmt.Errorf("insert feedback entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}
