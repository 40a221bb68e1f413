package engine_test

import (
	"context"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

// Monday, inside a plain working week.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

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
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testNow }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) createTask(t *testing.T, title string, minutes int, priority string, due *string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID:           "alice",
		Title:            title,
		EstimatedMinutes: minutes,
		Priority:         priority,
		DueDate:          due,
		ActorID:          "tester",
	})
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task
}

func (env testEnv) generate(t *testing.T, days int) *engine.GenerateResult {
	t.Helper()
	opts := env.Engine.DefaultOptions()
	opts.ActorID = "tester"
	opts.StartDate = testNow
	opts.EndDate = testNow.AddDate(0, 0, days)
	res, err := env.Engine.Generate(env.Ctx, "alice", opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return res
}

func mustParse(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return ts
}

func TestGenerateOrdersByPriority(t *testing.T) {
	env := newTestEnv(t)
	low := env.createTask(t, "tidy backlog", 60, "low", nil)
	urgent := env.createTask(t, "fix outage", 60, "urgent", nil)

	res := env.generate(t, 7)
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].TaskID != urgent.ID {
		t.Fatalf("urgent task not scheduled first: %+v", res.Entries[0])
	}
	if got := res.Entries[0].StartsAt; got != "2026-03-02T09:00:00Z" {
		t.Fatalf("urgent task starts at %s, want 09:00", got)
	}
	if res.Entries[1].TaskID != low.ID {
		t.Fatalf("low task not second: %+v", res.Entries[1])
	}
	if got := res.Entries[1].StartsAt; got != "2026-03-02T10:00:00Z" {
		t.Fatalf("low task starts at %s, want 10:00", got)
	}
}

func TestGenerateDueDateOrderingWithinPriority(t *testing.T) {
	env := newTestEnv(t)
	dueLate := "2026-03-06T00:00:00Z"
	dueSoon := "2026-03-03T00:00:00Z"
	later := env.createTask(t, "later deadline", 60, "high", &dueLate)
	sooner := env.createTask(t, "sooner deadline", 60, "high", &dueSoon)
	undated := env.createTask(t, "no deadline", 60, "high", nil)

	res := env.generate(t, 7)
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(res.Entries))
	}
	if res.Entries[0].TaskID != sooner.ID || res.Entries[1].TaskID != later.ID || res.Entries[2].TaskID != undated.ID {
		t.Fatalf("wrong order: %s, %s, %s", res.Entries[0].TaskID, res.Entries[1].TaskID, res.Entries[2].TaskID)
	}
}

func TestGenerateRespectsWorkingWindowAndWeekend(t *testing.T) {
	env := newTestEnv(t)
	// 5 working days of 8h each; fill 5 tasks of 8h.
	for i := 0; i < 5; i++ {
		env.createTask(t, "full day", 480, "medium", nil)
	}
	res := env.generate(t, 14)
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
	}
	for _, e := range res.Entries {
		start := mustParse(t, e.StartsAt)
		end := mustParse(t, e.EndsAt)
		if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("entry on weekend: %s", e.StartsAt)
		}
		if start.Hour() < 9 || end.Hour() > 17 || (end.Hour() == 17 && end.Minute() > 0) {
			t.Fatalf("entry outside working hours: %s..%s", e.StartsAt, e.EndsAt)
		}
	}
}

func TestGenerateSchedulesAroundPersonalEvents(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddPersonalEvent(env.Ctx, "alice", "standup",
		"2026-03-02T12:00:00Z", "2026-03-02T13:00:00Z", "tester"); err != nil {
		t.Fatalf("add event: %v", err)
	}
	env.createTask(t, "deep work", 240, "high", nil)

	res := env.generate(t, 2)
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	// The morning only offers 3h; the 4h block lands after the event.
	if got := res.Entries[0].StartsAt; got != "2026-03-02T13:00:00Z" {
		t.Fatalf("entry starts at %s, want 13:00", got)
	}
}

func TestGenerateDueDateInfeasible(t *testing.T) {
	env := newTestEnv(t)
	// Blocked all day except 15:00-17:00 leaves 120 free minutes.
	if _, err := env.Engine.AddPersonalEvent(env.Ctx, "alice", "offsite",
		"2026-03-02T09:00:00Z", "2026-03-02T15:00:00Z", "tester"); err != nil {
		t.Fatalf("add event: %v", err)
	}
	due := "2026-03-03T00:00:00Z"
	task := env.createTask(t, "big report", 600, "high", &due)

	res := env.generate(t, 1)
	if len(res.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(res.Entries))
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Kind != domain.ConflictDueDateInfeasible || c.TaskID != task.ID {
		t.Fatalf("unexpected conflict: %+v", c)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != "pending" {
		t.Fatalf("unplaced task should stay pending, got %s", got.Status)
	}
}

func TestGenerateAutoSplitsAcrossGaps(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddPersonalEvent(env.Ctx, "alice", "standup",
		"2026-03-02T12:00:00Z", "2026-03-02T13:00:00Z", "tester"); err != nil {
		t.Fatalf("add event: %v", err)
	}
	// 6h of work, one day horizon: only 3h + 4h gaps remain.
	task := env.createTask(t, "migration", 360, "high", nil)

	res := env.generate(t, 1)
	if len(res.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 chunk entries, got %d", len(res.Entries))
	}
	var total time.Duration
	for _, e := range res.Entries {
		if e.IntervalID == nil {
			t.Fatalf("chunk entry missing interval id: %+v", e)
		}
		total += mustParse(t, e.EndsAt).Sub(mustParse(t, e.StartsAt))
	}
	if total != 6*time.Hour {
		t.Fatalf("chunks sum to %v, want 6h", total)
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != "scheduled" {
		t.Fatalf("task status %s, want scheduled", got.Status)
	}
	sum := 0
	for _, iv := range got.Intervals {
		sum += iv.DurationMinutes
	}
	if sum != got.EstimatedMinutes {
		t.Fatalf("interval durations sum to %d, want %d", sum, got.EstimatedMinutes)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, "steady work", 120, "medium", nil)
	env.createTask(t, "more work", 90, "medium", nil)

	first := env.generate(t, 7)
	second := env.generate(t, 7)
	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("entry count changed: %d then %d", len(first.Entries), len(second.Entries))
	}
	for i := range first.Entries {
		if first.Entries[i].StartsAt != second.Entries[i].StartsAt ||
			first.Entries[i].EndsAt != second.Entries[i].EndsAt ||
			first.Entries[i].TaskID != second.Entries[i].TaskID {
			t.Fatalf("entry %d moved between runs: %+v vs %+v", i, first.Entries[i], second.Entries[i])
		}
	}
	// The store holds exactly one generation's entries.
	stored, err := env.Engine.Repo.ListEntries(env.Ctx, repo.EntryFilters{UserID: "alice"})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(stored) != len(second.Entries) {
		t.Fatalf("store holds %d entries, want %d", len(stored), len(second.Entries))
	}
}

func TestGenerateSkipsHolidays(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ImportHolidays(env.Ctx, "default", []domain.Holiday{
		{Day: "2026-03-02", Name: "Founders Day"},
	}, "tester"); err != nil {
		t.Fatalf("import holidays: %v", err)
	}
	env.createTask(t, "post-holiday work", 60, "medium", nil)

	res := env.generate(t, 7)
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	if got := res.Entries[0].StartsAt; got != "2026-03-03T09:00:00Z" {
		t.Fatalf("entry starts %s, want Tuesday 09:00", got)
	}
}

func TestGenerateValidationConflictForBadDuration(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID:           "alice",
		Title:            "impossible",
		EstimatedMinutes: -5,
		ActorID:          "tester",
	})
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateEmptyUserID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Generate(env.Ctx, "", env.Engine.DefaultOptions())
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGeneratePinnedOutsideWorkingHours(t *testing.T) {
	env := newTestEnv(t)
	// Saturday morning, outside the Mon-Fri window.
	insertPinned(t, env, "e1", "t1", "2026-03-07T10:00:00Z", "2026-03-07T11:00:00Z")

	opts := env.Engine.DefaultOptions()
	opts.ActorID = "tester"
	opts.StartDate = testNow
	opts.EndDate = testNow.AddDate(0, 0, 7)
	opts.AllowManualOverride = true
	res, err := env.Engine.Generate(env.Ctx, "alice", opts)
	if err != nil {
		t.Fatalf("generate with override: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("override run should permit the pinned entry, got %+v", res.Conflicts)
	}

	res = env.generate(t, 7)
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d: %+v", len(res.Conflicts), res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.Kind != domain.ConflictValidation || len(c.EntryIDs) != 1 || c.EntryIDs[0] != "e1" {
		t.Fatalf("unexpected conflict: %+v", c)
	}
	entry, err := env.Engine.Repo.GetEntry(env.Ctx, "e1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != "conflicted" {
		t.Fatalf("entry status %s, want conflicted", entry.Status)
	}
}

func TestGenerateOptimizeForEfficiencyPacksLargestRange(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddPersonalEvent(env.Ctx, "alice", "review",
		"2026-03-02T10:00:00Z", "2026-03-02T11:00:00Z", "tester"); err != nil {
		t.Fatalf("add event: %v", err)
	}
	env.createTask(t, "quick fix", 45, "medium", nil)

	opts := env.Engine.DefaultOptions()
	opts.ActorID = "tester"
	opts.StartDate = testNow
	opts.EndDate = testNow.AddDate(0, 0, 1)
	opts.OptimizeForEfficiency = true
	res, err := env.Engine.Generate(env.Ctx, "alice", opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	// The 45-minute block goes into the 6h afternoon range, leaving the
	// small morning range whole, instead of the earliest 09:00 slot.
	if got := res.Entries[0].StartsAt; got != "2026-03-02T11:00:00Z" {
		t.Fatalf("entry starts at %s, want 11:00", got)
	}
}

func TestResolveConflictCancelEntry(t *testing.T) {
	env := newTestEnv(t)
	// Force an overlap: two pinned entries over the same hour.
	insertPinned(t, env, "e1", "t1", "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z")
	insertPinned(t, env, "e2", "t2", "2026-03-02T09:30:00Z", "2026-03-02T10:30:00Z")

	res := env.generate(t, 7)
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 overlap conflict, got %d: %+v", len(res.Conflicts), res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.Kind != domain.ConflictOverlap {
		t.Fatalf("conflict kind %s, want overlap", c.Kind)
	}

	resolved, err := env.Engine.ResolveConflict(env.Ctx, c.ID, domain.ActionCancelEntry, "tester")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolvedAt == nil || resolved.ResolutionAction == nil || *resolved.ResolutionAction != domain.ActionCancelEntry {
		t.Fatalf("conflict not stamped: %+v", resolved)
	}
	// Entries are gone.
	for _, id := range c.EntryIDs {
		if _, err := env.Engine.Repo.GetEntry(env.Ctx, id); err == nil {
			t.Fatalf("entry %s still present after cancel", id)
		}
	}
	// Resolving again is a no-op.
	again, err := env.Engine.ResolveConflict(env.Ctx, c.ID, domain.ActionOverrideAndKeep, "tester")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if *again.ResolutionAction != domain.ActionCancelEntry {
		t.Fatalf("idempotent resolve changed action to %s", *again.ResolutionAction)
	}
}

func TestResolveConflictOverrideAndKeep(t *testing.T) {
	env := newTestEnv(t)
	insertPinned(t, env, "e1", "t1", "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z")
	insertPinned(t, env, "e2", "t2", "2026-03-02T09:30:00Z", "2026-03-02T10:30:00Z")

	res := env.generate(t, 7)
	c := res.Conflicts[0]
	if _, err := env.Engine.ResolveConflict(env.Ctx, c.ID, domain.ActionOverrideAndKeep, "tester"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, id := range c.EntryIDs {
		entry, err := env.Engine.Repo.GetEntry(env.Ctx, id)
		if err != nil {
			t.Fatalf("get entry %s: %v", id, err)
		}
		if entry.Status != "scheduled" || !entry.Pinned {
			t.Fatalf("entry %s not kept pinned and scheduled: %+v", id, entry)
		}
	}
}

func TestResolveConflictRescheduleNextSlot(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.createTask(t, "alpha", 60, "high", nil)
	beta := env.createTask(t, "beta", 60, "high", nil)
	insertPinned(t, env, "e1", alpha.ID, "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z")
	insertPinned(t, env, "e2", beta.ID, "2026-03-02T09:30:00Z", "2026-03-02T10:30:00Z")

	res := env.generate(t, 7)
	if len(res.Conflicts) != 1 || res.Conflicts[0].Kind != domain.ConflictOverlap {
		t.Fatalf("expected 1 overlap conflict, got %+v", res.Conflicts)
	}

	resolved, err := env.Engine.ResolveConflict(env.Ctx, res.Conflicts[0].ID, domain.ActionRescheduleNextSlot, "tester")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolvedAt == nil || *resolved.ResolutionAction != domain.ActionRescheduleNextSlot {
		t.Fatalf("conflict not stamped: %+v", resolved)
	}

	open, err := env.Engine.Repo.ListConflicts(env.Ctx, repo.ConflictFilters{UserID: "alice", OpenOnly: true})
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("regeneration left open conflicts: %+v", open)
	}
	entries, err := env.Engine.Repo.ListEntries(env.Ctx, repo.EntryFilters{UserID: "alice"})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 rescheduled entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Pinned {
			t.Fatalf("rescheduled entry still pinned: %+v", e)
		}
		for _, other := range entries[i+1:] {
			if e.StartsAt < other.EndsAt && other.StartsAt < e.EndsAt {
				t.Fatalf("rescheduled entries overlap: %+v vs %+v", e, other)
			}
		}
	}
}

func TestResolveConflictSplitAndRetry(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddPersonalEvent(env.Ctx, "alice", "standup",
		"2026-03-02T12:00:00Z", "2026-03-02T13:00:00Z", "tester"); err != nil {
		t.Fatalf("add event: %v", err)
	}
	// Splitting is disabled for the first run, so 6h cannot land in a
	// 3h + 4h day.
	task := env.createTask(t, "migration", 360, "high", nil)
	opts := env.Engine.DefaultOptions()
	opts.ActorID = "tester"
	opts.StartDate = testNow
	opts.EndDate = testNow.AddDate(0, 0, 1)
	opts.AutoSplit = false
	res, err := env.Engine.Generate(env.Ctx, "alice", opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Kind != domain.ConflictDueDateInfeasible {
		t.Fatalf("expected infeasible conflict, got %+v", res.Conflicts)
	}

	resolved, err := env.Engine.ResolveConflict(env.Ctx, res.Conflicts[0].ID, domain.ActionSplitAndRetry, "tester")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolvedAt == nil {
		t.Fatalf("conflict not resolved: %+v", resolved)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if len(got.Intervals) < 2 {
		t.Fatalf("task not split: %d intervals", len(got.Intervals))
	}
}

func TestResolveConflictUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	insertPinned(t, env, "e1", "t1", "2026-03-02T09:00:00Z", "2026-03-02T10:00:00Z")
	insertPinned(t, env, "e2", "t2", "2026-03-02T09:30:00Z", "2026-03-02T10:30:00Z")
	res := env.generate(t, 7)
	_, err := env.Engine.ResolveConflict(env.Ctx, res.Conflicts[0].ID, "wish-it-away", "tester")
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func insertPinned(t *testing.T, env testEnv, id, taskID, startsAt, endsAt string) {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.InsertEntryTx(env.Ctx, tx, domain.ScheduleEntry{
		ID:       id,
		UserID:   "alice",
		TaskID:   taskID,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Priority: "high",
		Status:   "scheduled",
		Pinned:   true,
	})
	if err != nil {
		t.Fatalf("insert pinned entry: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
