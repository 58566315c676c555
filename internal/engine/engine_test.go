package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dutyline/internal/config"
	"dutyline/internal/db"
	"dutyline/internal/domain"
	"dutyline/internal/engine"
	"dutyline/internal/migrate"
	"dutyline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme-co")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateClient(ctx, "acme-co", "Acme Co", ""); err != nil {
		t.Fatalf("create client: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func createDuty(t *testing.T, env testEnv, title string) domain.Duty {
	t.Helper()
	d, err := env.Engine.CreateDuty(env.Ctx, engine.DutyCreateOptions{
		ClientID: "acme-co",
		Title:    title,
	})
	if err != nil {
		t.Fatalf("create duty: %v", err)
	}
	return d
}

func countRows(t *testing.T, env testEnv, table string) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestRecordEventOverwritesStatusAndLifecycle(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Patch servers")

	// Every status/lifecycle pair is writable, including ones outside the
	// usual completed-then-archived convention.
	pairs := []struct{ status, lifecycle string }{
		{domain.StatusCompleted, domain.LifecycleArchived},
		{domain.StatusCompleted, domain.LifecycleActive},
		{domain.StatusInProgress, domain.LifecycleArchived},
		{domain.StatusPending, domain.LifecycleActive},
	}
	for _, p := range pairs {
		_, updated, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
			DutyID:    d.ID,
			ClientID:  "acme-co",
			Status:    p.status,
			Lifecycle: p.lifecycle,
		})
		if err != nil {
			t.Fatalf("record %s/%s: %v", p.status, p.lifecycle, err)
		}
		if updated.Status != p.status || updated.Lifecycle != p.lifecycle {
			t.Fatalf("got %s/%s, want %s/%s", updated.Status, updated.Lifecycle, p.status, p.lifecycle)
		}
		stored, err := env.Engine.Repo.GetDuty(env.Ctx, "acme-co", d.ID)
		if err != nil {
			t.Fatalf("get duty: %v", err)
		}
		if stored.Status != p.status || stored.Lifecycle != p.lifecycle {
			t.Fatalf("stored %s/%s, want %s/%s", stored.Status, stored.Lifecycle, p.status, p.lifecycle)
		}
	}
}

func TestRecordEventAppendsExactlyOneEventAndLog(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Rotate tokens")

	event, _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		DutyID:    d.ID,
		ClientID:  "acme-co",
		Status:    domain.StatusCompleted,
		Lifecycle: domain.LifecycleArchived,
		Notes:     "done early",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if event.Notes != "done early" {
		t.Fatalf("notes not carried: %q", event.Notes)
	}
	if got := countRows(t, env, "duty_events"); got != 1 {
		t.Fatalf("duty_events count %d, want 1", got)
	}
	if got := countRows(t, env, "duty_logs"); got != 1 {
		t.Fatalf("duty_logs count %d, want 1", got)
	}
	logs, err := env.Engine.Repo.ListLogs(env.Ctx, "acme-co")
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if logs[0].Message != "Rotate tokens marked completed" {
		t.Fatalf("log message %q", logs[0].Message)
	}

	// IN_PROGRESS reuses the reopen wording.
	if _, _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		DutyID:    d.ID,
		ClientID:  "acme-co",
		Status:    domain.StatusInProgress,
		Lifecycle: domain.LifecycleActive,
	}); err != nil {
		t.Fatalf("record in_progress: %v", err)
	}
	logs, _ = env.Engine.Repo.ListLogs(env.Ctx, "acme-co")
	if logs[0].Message != "Rotate tokens reverted to pending" {
		t.Fatalf("log message %q", logs[0].Message)
	}
	if logs[0].Status != domain.StatusInProgress || logs[0].Lifecycle != domain.LifecycleActive {
		t.Fatalf("log carries %s/%s", logs[0].Status, logs[0].Lifecycle)
	}
}

func TestLogsNewestFirstOnTimestampTies(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Audit access")

	// The fixed clock gives every log the same millisecond timestamp, so the
	// newest-first ordering has to come from the insertion sequence alone.
	statuses := []struct{ status, lifecycle string }{
		{domain.StatusCompleted, domain.LifecycleArchived},
		{domain.StatusInProgress, domain.LifecycleActive},
		{domain.StatusPending, domain.LifecycleActive},
		{domain.StatusCompleted, domain.LifecycleActive},
	}
	for _, s := range statuses {
		if _, _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
			DutyID: d.ID, ClientID: "acme-co", Status: s.status, Lifecycle: s.lifecycle,
		}); err != nil {
			t.Fatalf("record %s: %v", s.status, err)
		}
	}
	logs, err := env.Engine.Repo.ListLogs(env.Ctx, "acme-co")
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != len(statuses) {
		t.Fatalf("log count %d, want %d", len(logs), len(statuses))
	}
	for i, l := range logs {
		want := statuses[len(statuses)-1-i]
		if l.Status != want.status || l.CreatedAt != "2024-01-03T12:00:00.000Z" {
			t.Fatalf("position %d: got %s at %s, want %s", i, l.Status, l.CreatedAt, want.status)
		}
	}
}

func TestRecordEventUnknownDutyLeavesStoreUnchanged(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Audit access")

	_, _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		DutyID:    "missing",
		ClientID:  "acme-co",
		Status:    domain.StatusCompleted,
		Lifecycle: domain.LifecycleArchived,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	// Wrong client for an existing duty is not-found too.
	_, _, err = env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
		DutyID:    d.ID,
		ClientID:  "other-co",
		Status:    domain.StatusCompleted,
		Lifecycle: domain.LifecycleArchived,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound for wrong client, got %v", err)
	}
	if got := countRows(t, env, "duty_events"); got != 0 {
		t.Fatalf("events appended on not-found: %d", got)
	}
	if got := countRows(t, env, "duty_logs"); got != 0 {
		t.Fatalf("logs appended on not-found: %d", got)
	}
	stored, _ := env.Engine.Repo.GetDuty(env.Ctx, "acme-co", d.ID)
	if stored.Status != domain.StatusPending || stored.Lifecycle != domain.LifecycleActive {
		t.Fatalf("duty mutated: %s/%s", stored.Status, stored.Lifecycle)
	}
}

func TestRecordEventValidationPrecedesMutation(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "File reports")

	cases := []struct {
		name    string
		opts    engine.RecordEventOptions
		message string
	}{
		{"missing dutyId", engine.RecordEventOptions{ClientID: "acme-co", Status: domain.StatusCompleted, Lifecycle: domain.LifecycleArchived}, "dutyId is required"},
		{"missing clientId", engine.RecordEventOptions{DutyID: d.ID, Status: domain.StatusCompleted, Lifecycle: domain.LifecycleArchived}, "clientId is required"},
		{"bad status", engine.RecordEventOptions{DutyID: d.ID, ClientID: "acme-co", Status: "DONE", Lifecycle: domain.LifecycleArchived}, "Invalid duty status"},
		{"bad lifecycle", engine.RecordEventOptions{DutyID: d.ID, ClientID: "acme-co", Status: domain.StatusCompleted, Lifecycle: "CLOSED"}, "Invalid lifecycle value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.Engine.RecordEvent(env.Ctx, tc.opts)
			var ve *engine.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if ve.Message != tc.message {
				t.Fatalf("message %q, want %q", ve.Message, tc.message)
			}
		})
	}
	if got := countRows(t, env, "duty_events"); got != 0 {
		t.Fatalf("events appended on validation failure: %d", got)
	}
	stored, _ := env.Engine.Repo.GetDuty(env.Ctx, "acme-co", d.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("duty mutated on validation failure: %s", stored.Status)
	}
}

func TestWeekRangeCoversMondayThroughSunday(t *testing.T) {
	// 2024-01-01 is a Monday; the whole week maps to the same range,
	// including Sunday the 7th.
	want := domain.WeekRange{
		Start: "2024-01-01T00:00:00.000Z",
		End:   "2024-01-07T23:59:59.999Z",
	}
	for day := 1; day <= 7; day++ {
		at := time.Date(2024, 1, day, 15, 30, 45, 0, time.UTC)
		got := engine.WeekRangeAt(at)
		if got != want {
			t.Fatalf("day %d: got %+v, want %+v", day, got, want)
		}
	}
	// Monday midnight exactly stays in its own week.
	if got := engine.WeekRangeAt(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)); got.Start != "2024-01-08T00:00:00.000Z" {
		t.Fatalf("next monday start %s", got.Start)
	}
}

func TestSummaryTotalsAndPartitions(t *testing.T) {
	env := newTestEnv(t)
	a := createDuty(t, env, "Duty A")
	b := createDuty(t, env, "Duty B")
	c := createDuty(t, env, "Duty C")
	createDuty(t, env, "Duty D")

	record := func(dutyID, status, lifecycle string) {
		t.Helper()
		if _, _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
			DutyID: dutyID, ClientID: "acme-co", Status: status, Lifecycle: lifecycle,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	record(a.ID, domain.StatusInProgress, domain.LifecycleActive)
	record(b.ID, domain.StatusCompleted, domain.LifecycleActive)
	record(c.ID, domain.StatusCompleted, domain.LifecycleArchived)

	s, err := env.Engine.Summary(env.Ctx, "acme-co")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(s.Active) != 3 || len(s.Archived) != 1 {
		t.Fatalf("partitions active=%d archived=%d", len(s.Active), len(s.Archived))
	}
	sum := s.Totals.Pending + s.Totals.InProgress + s.Totals.Completed
	if sum != len(s.Active) {
		t.Fatalf("totals sum %d != active count %d", sum, len(s.Active))
	}
	if s.Totals.Pending != 1 || s.Totals.InProgress != 1 || s.Totals.Completed != 1 {
		t.Fatalf("totals %+v", s.Totals)
	}
	if len(s.Timeline) != 3 {
		t.Fatalf("timeline length %d", len(s.Timeline))
	}
	// Newest first, enriched with titles.
	if s.Timeline[0].DutyTitle == "" {
		t.Fatalf("timeline entry missing title")
	}
	if s.WeekRange.Start != "2024-01-01T00:00:00.000Z" || s.WeekRange.End != "2024-01-07T23:59:59.999Z" {
		t.Fatalf("week range %+v", s.WeekRange)
	}
}

func TestSummaryTimelineLimit(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Busy duty")
	for i := 0; i < 30; i++ {
		if _, _, err := env.Engine.RecordEvent(env.Ctx, engine.RecordEventOptions{
			DutyID: d.ID, ClientID: "acme-co", Status: domain.StatusCompleted, Lifecycle: domain.LifecycleArchived,
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	s, err := env.Engine.Summary(env.Ctx, "acme-co")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(s.Timeline) != 25 {
		t.Fatalf("timeline length %d, want 25", len(s.Timeline))
	}
}

func TestArchiveDutyRecordsEvent(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Quarterly review")

	archived, err := env.Engine.ArchiveDuty(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != domain.StatusCompleted || archived.Lifecycle != domain.LifecycleArchived {
		t.Fatalf("archived state %s/%s", archived.Status, archived.Lifecycle)
	}
	if got := countRows(t, env, "duty_events"); got != 1 {
		t.Fatalf("archive did not append event: %d", got)
	}
	logs, _ := env.Engine.Repo.ListLogs(env.Ctx, "acme-co")
	if len(logs) != 1 || logs[0].Message != "Quarterly review marked completed" {
		t.Fatalf("archive log %+v", logs)
	}
}

func TestUpdateAndAssignDuty(t *testing.T) {
	env := newTestEnv(t)
	d := createDuty(t, env, "Old title")
	if err := env.Engine.Repo.InsertUser(env.Ctx, nil, domain.User{
		ID: "user-1", Name: "Avery", Role: domain.RoleStaff, CreatedAt: domain.Timestamp(env.Engine.Now()),
	}); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	title := "New title"
	status := domain.StatusInProgress
	updated, err := env.Engine.UpdateDuty(env.Ctx, d.ID, engine.DutyUpdateOptions{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "New title" || updated.Status != domain.StatusInProgress {
		t.Fatalf("update result %+v", updated)
	}

	bad := "WRONG"
	if _, err := env.Engine.UpdateDuty(env.Ctx, d.ID, engine.DutyUpdateOptions{Status: &bad}); err == nil {
		t.Fatalf("expected validation error for bad status")
	}

	assigned, err := env.Engine.AssignDuty(env.Ctx, d.ID, "user-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssignedTo == nil || *assigned.AssignedTo != "user-1" {
		t.Fatalf("assignee %+v", assigned.AssignedTo)
	}
	unassigned, err := env.Engine.AssignDuty(env.Ctx, d.ID, "")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if unassigned.AssignedTo != nil {
		t.Fatalf("unassign left %v", *unassigned.AssignedTo)
	}
	if _, err := env.Engine.AssignDuty(env.Ctx, d.ID, "nobody"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("assign to unknown user: %v", err)
	}
}
