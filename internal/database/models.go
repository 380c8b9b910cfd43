package database

import "time"

// Scan statuses. Transitions are driven by the external scanner; this
// service only ever writes them on the ingest path.
const (
	ScanPending  = "pending"
	ScanRunning  = "running"
	ScanComplete = "complete"
	ScanFailed   = "failed"
)

// Finding severities, highest first.
const (
	SeverityCritical      = "critical"
	SeverityHigh          = "high"
	SeverityMedium        = "medium"
	SeverityLow           = "low"
	SeverityInformational = "informational"
)

// User rows mirror subjects from the external identity provider. The id is
// the provider's opaque subject, not something we mint.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Scan struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Finding is append-only: the scanner inserts rows, nothing updates them.
type Finding struct {
	ID          int64     `json:"id"`
	ScanID      int64     `json:"scan_id"`
	Severity    string    `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Remedy      string    `json:"remedy"`
	CreatedAt   time.Time `json:"created_at"`
}

type Link struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WaitlistEntry struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	JoinedAt time.Time `json:"joined_at"`
}

type FeedbackEntry struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Feedback  string    `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}
