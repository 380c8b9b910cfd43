package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/calebfinn/sitewarden/internal/database"
)

const (
	userA = "11111111-aaaa-4aaa-8aaa-111111111111"
	userB = "22222222-bbbb-4bbb-8bbb-222222222222"
)

func newTestService(t *testing.T) (*Service, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for i, u := range []struct{ id, email string }{
		{userA, "a@example.com"},
		{userB, "b@example.com"},
	} {
		if err := db.UpsertUser(u.id, u.email); err != nil {
			t.Fatalf("seeding user %d: %v", i, err)
		}
	}

	return New(db, 5), db
}

// seedScan runs a full scan lifecycle against the project and returns the
// completed scan's id.
func seedScan(t *testing.T, svc *Service, projectID int64, severities ...string) int64 {
	t.Helper()

	scan, err := svc.StartScan(projectID)
	if err != nil {
		t.Fatalf("starting scan: %v", err)
	}

	if len(severities) > 0 {
		findings := make([]database.Finding, len(severities))
		for i, sev := range severities {
			findings[i] = database.Finding{
				Severity: sev,
				Title:    fmt.Sprintf("finding %d", i),
				Location: "/login",
				Remedy:   "patch it",
			}
		}
		if err := svc.IngestFindings(scan.ID, findings); err != nil {
			t.Fatalf("ingesting findings: %v", err)
		}
	}

	if _, err := svc.CompleteScan(scan.ID, true); err != nil {
		t.Fatalf("completing scan: %v", err)
	}
	return scan.ID
}

func mustCreateProject(t *testing.T, svc *Service, caller string) *database.Project {
	t.Helper()
	p, err := svc.CreateProject(caller, "Example Site", "https://example.com")
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	return p
}

func TestMissingCallerIsPreconditionFailure(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	cases := []struct {
		name string
		call func() error
	}{
		{"GetProject", func() error { _, err := svc.GetProject("", p.ID); return err }},
		{"GetFinding", func() error { _, err := svc.GetFinding("", 1); return err }},
		{"ListFindingsByScan", func() error { _, err := svc.ListFindingsByScan("", 1); return err }},
		{"CreateLink", func() error { _, err := svc.CreateLink("", p.ID, "https://ref.example.com"); return err }},
		{"DeleteLink", func() error { return svc.DeleteLink("", 1) }},
		{"ProjectSecurityStats", func() error { _, err := svc.ProjectSecurityStats("", p.ID); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if !errors.Is(err, ErrNoIdentity) {
				t.Errorf("got %v, want ErrNoIdentity", err)
			}
			if errors.Is(err, ErrNotFound) {
				t.Errorf("precondition failure must not read as not-found")
			}
		})
	}
}

func TestCrossUserAccessLooksMissing(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)
	scanID := seedScan(t, svc, p.ID, database.SeverityHigh)

	findings, err := svc.ListFindingsByScan(userA, scanID)
	if err != nil || len(findings) != 1 {
		t.Fatalf("owner should see the finding: %v, %d", err, len(findings))
	}
	findingID := findings[0].ID

	// Every read of A's data by B must be indistinguishable from an
	// entity that does not exist at all.
	const ghost = int64(999999)
	cases := []struct {
		name    string
		foreign func() error
		missing func() error
	}{
		{
			"GetProject",
			func() error { _, err := svc.GetProject(userB, p.ID); return err },
			func() error { _, err := svc.GetProject(userB, ghost); return err },
		},
		{
			"GetScan",
			func() error { _, err := svc.GetScan(userB, scanID); return err },
			func() error { _, err := svc.GetScan(userB, ghost); return err },
		},
		{
			"GetFinding",
			func() error { _, err := svc.GetFinding(userB, findingID); return err },
			func() error { _, err := svc.GetFinding(userB, ghost); return err },
		},
		{
			"ListFindingsByScan",
			func() error { _, err := svc.ListFindingsByScan(userB, scanID); return err },
			func() error { _, err := svc.ListFindingsByScan(userB, ghost); return err },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			foreignErr := tc.foreign()
			missingErr := tc.missing()
			if !errors.Is(foreignErr, ErrNotFound) {
				t.Errorf("foreign entity: got %v, want ErrNotFound", foreignErr)
			}
			if !errors.Is(missingErr, ErrNotFound) {
				t.Errorf("missing entity: got %v, want ErrNotFound", missingErr)
			}
			if foreignErr != nil && missingErr != nil && foreignErr.Error() != missingErr.Error() {
				t.Errorf("errors are distinguishable: %q vs %q", foreignErr, missingErr)
			}
		})
	}
}

func TestListFindingsByScanReturnsEverything(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	severities := make([]string, 40)
	for i := range severities {
		severities[i] = database.SeverityInformational
	}
	scanID := seedScan(t, svc, p.ID, severities...)

	findings, err := svc.ListFindingsByScan(userA, scanID)
	if err != nil {
		t.Fatalf("listing findings: %v", err)
	}
	if len(findings) != 40 {
		t.Errorf("got %d findings, want 40", len(findings))
	}
}

func TestLinkLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	l, err := svc.CreateLink(userA, p.ID, "https://docs.example.com")
	if err != nil {
		t.Fatalf("creating link: %v", err)
	}

	updated, err := svc.UpdateLink(userA, l.ID, "https://wiki.example.com")
	if err != nil {
		t.Fatalf("updating link: %v", err)
	}
	if updated.URL != "https://wiki.example.com" {
		t.Errorf("url = %q after update", updated.URL)
	}
	if updated.ProjectID != p.ID {
		t.Errorf("update must touch only the url, project moved to %d", updated.ProjectID)
	}

	links, err := svc.ListLinksByProject(userA, p.ID)
	if err != nil || len(links) != 1 {
		t.Fatalf("list links: %v, %d", err, len(links))
	}

	if err := svc.DeleteLink(userA, l.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := svc.DeleteLink(userA, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestCreateLinkRejectsBadURLBeforeStore(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	for _, raw := range []string{"not a url", "/relative/path", "ftp://files.example.com", "https://"} {
		if _, err := svc.CreateLink(userA, p.ID, raw); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateLink(%q): got %v, want ErrInvalidInput", raw, err)
		}
	}

	links, err := svc.ListLinksByProject(userA, p.ID)
	if err != nil {
		t.Fatalf("listing links: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("rejected creates wrote %d rows", len(links))
	}
}

func TestLinkMutationsForeignUser(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)
	l, err := svc.CreateLink(userA, p.ID, "https://docs.example.com")
	if err != nil {
		t.Fatalf("creating link: %v", err)
	}

	if _, err := svc.UpdateLink(userB, l.ID, "https://evil.example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign update: got %v, want ErrNotFound", err)
	}
	if err := svc.DeleteLink(userB, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign delete: got %v, want ErrNotFound", err)
	}

	links, _ := svc.ListLinksByProject(userA, p.ID)
	if len(links) != 1 || links[0].URL != "https://docs.example.com" {
		t.Errorf("link was mutated by a foreign user: %+v", links)
	}
}

func TestProjectSecurityStats(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	stats, err := svc.ProjectSecurityStats(userA, p.ID)
	if err != nil {
		t.Fatalf("stats on empty project: %v", err)
	}
	if stats.Score != 100 || stats.Rating != "A" || stats.Status != "secure" {
		t.Errorf("empty project stats = %+v", stats.Stats)
	}
	if len(stats.History) != 0 {
		t.Errorf("empty project has history: %+v", stats.History)
	}

	seedScan(t, svc, p.ID, database.SeverityCritical, database.SeverityCritical, database.SeverityHigh)

	stats, err = svc.ProjectSecurityStats(userA, p.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Score != 60 || stats.Rating != "D" || stats.Status != "vulnerable" {
		t.Errorf("stats = %+v, want score 60 rating D status vulnerable", stats.Stats)
	}
	if stats.TotalFindings != 3 {
		t.Errorf("total findings = %d, want 3", stats.TotalFindings)
	}
	if stats.SeverityCounts[database.SeverityCritical] != 2 {
		t.Errorf("critical count = %d, want 2", stats.SeverityCounts[database.SeverityCritical])
	}
	if len(stats.History) != 1 || stats.History[0].Score != 60 {
		t.Errorf("history = %+v, want one point at 60", stats.History)
	}

	if _, err := svc.ProjectSecurityStats(userB, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign stats: got %v, want ErrNotFound", err)
	}
}

func TestStatsHistoryIsBounded(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	for i := 0; i < 8; i++ {
		seedScan(t, svc, p.ID, database.SeverityLow)
	}

	stats, err := svc.ProjectSecurityStats(userA, p.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	// Service was constructed with a history limit of 5.
	if len(stats.History) != 5 {
		t.Errorf("history length = %d, want 5", len(stats.History))
	}
}

func TestScanLifecycleGuards(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	if _, err := svc.StartScan(999999); !errors.Is(err, ErrNotFound) {
		t.Errorf("start scan on missing project: got %v, want ErrNotFound", err)
	}

	scan, err := svc.StartScan(p.ID)
	if err != nil {
		t.Fatalf("starting scan: %v", err)
	}
	if scan.Status != database.ScanRunning {
		t.Errorf("fresh scan status = %q, want running", scan.Status)
	}
	if scan.StartedAt == nil {
		t.Error("running scan has no started_at")
	}

	bad := []database.Finding{{Severity: "catastrophic", Title: "x"}}
	if err := svc.IngestFindings(scan.ID, bad); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown severity: got %v, want ErrInvalidInput", err)
	}

	done, err := svc.CompleteScan(scan.ID, true)
	if err != nil {
		t.Fatalf("completing scan: %v", err)
	}
	if done.Status != database.ScanComplete || done.CompletedAt == nil {
		t.Errorf("completed scan = %+v", done)
	}

	if err := svc.IngestFindings(scan.ID, []database.Finding{{Severity: database.SeverityLow, Title: "late"}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ingest after completion: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.CompleteScan(scan.ID, false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("double completion: got %v, want ErrInvalidInput", err)
	}
}

func TestFailedScanOutsideHistory(t *testing.T) {
	svc, _ := newTestService(t)
	p := mustCreateProject(t, svc, userA)

	scan, err := svc.StartScan(p.ID)
	if err != nil {
		t.Fatalf("starting scan: %v", err)
	}
	if _, err := svc.CompleteScan(scan.ID, false); err != nil {
		t.Fatalf("failing scan: %v", err)
	}
	seedScan(t, svc, p.ID, database.SeverityMedium)

	stats, err := svc.ProjectSecurityStats(userA, p.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats.History) != 1 {
		t.Errorf("failed scan leaked into history: %+v", stats.History)
	}
}

func TestProjectCRUD(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateProject(userA, "Bad", "not a url"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad target url: got %v, want ErrInvalidInput", err)
	}

	p := mustCreateProject(t, svc, userA)

	updated, err := svc.UpdateProject(userA, p.ID, "Renamed", "https://new.example.com")
	if err != nil {
		t.Fatalf("updating project: %v", err)
	}
	if updated.Name != "Renamed" || updated.TargetURL != "https://new.example.com" {
		t.Errorf("update result = %+v", updated)
	}

	if _, err := svc.UpdateProject(userB, p.ID, "Hijack", "https://evil.example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign update: got %v, want ErrNotFound", err)
	}

	mine, err := svc.ListProjects(userA)
	if err != nil || len(mine) != 1 {
		t.Fatalf("list projects: %v, %d", err, len(mine))
	}
	theirs, err := svc.ListProjects(userB)
	if err != nil || len(theirs) != 0 {
		t.Fatalf("foreign list sees %d projects", len(theirs))
	}

	if err := svc.DeleteProject(userB, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign delete: got %v, want ErrNotFound", err)
	}
	if err := svc.DeleteProject(userA, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetProject(userA, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	svc, db := newTestService(t)
	p := mustCreateProject(t, svc, userA)
	scanID := seedScan(t, svc, p.ID, database.SeverityHigh)
	if _, err := svc.CreateLink(userA, p.ID, "https://docs.example.com"); err != nil {
		t.Fatalf("creating link: %v", err)
	}

	if err := svc.DeleteProject(userA, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	if scan, _ := db.GetScan(scanID); scan != nil {
		t.Error("scan survived project deletion")
	}
	findings, _ := db.ListFindingsByScan(scanID)
	if len(findings) != 0 {
		t.Errorf("%d findings survived project deletion", len(findings))
	}
	links, _ := db.ListLinksByProject(p.ID)
	if len(links) != 0 {
		t.Errorf("%d links survived project deletion", len(links))
	}
}

func TestWaitlistAndFeedback(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.JoinWaitlist("Pat", "pat@example.com"); err != nil {
		t.Fatalf("joining waitlist: %v", err)
	}
	if _, err := svc.JoinWaitlist("Pat Again", "pat@example.com"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("duplicate email: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.JoinWaitlist("Nope", "not-an-email"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad email: got %v, want ErrInvalidInput", err)
	}

	if _, err := svc.SubmitFeedback("Pat", "pat@example.com", "love it"); err != nil {
		t.Fatalf("submitting feedback: %v", err)
	}
	if _, err := svc.SubmitFeedback("Pat", "pat@example.com", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty feedback: got %v, want ErrInvalidInput", err)
	}
}
