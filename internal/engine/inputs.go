package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/events"
)

// TaskCreateOptions carries the caller-supplied fields for a new task.
type TaskCreateOptions struct {
	ID               string
	UserID           string
	TeamID           *string
	Title            string
	EstimatedMinutes int
	Priority         string
	DueDate          *string
	ActorID          string
}

// CreateTask validates and stores a new pending task.
func (e *Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	var t domain.Task
	if opts.UserID == "" {
		return t, validationErrorf("user id is required")
	}
	if opts.Title == "" {
		return t, validationErrorf("title is required")
	}
	if opts.EstimatedMinutes <= 0 {
		return t, validationErrorf("estimated duration must be positive, got %d", opts.EstimatedMinutes)
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return t, validationErrorf("unknown priority %q", priority)
	}
	if opts.DueDate != nil {
		if _, err := parseDue(opts.DueDate); err != nil {
			return t, validationErrorf("malformed due date %q: %v", *opts.DueDate, err)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t = domain.Task{
		ID:               id,
		UserID:           opts.UserID,
		TeamID:           opts.TeamID,
		Title:            opts.Title,
		EstimatedMinutes: opts.EstimatedMinutes,
		Priority:         priority,
		DueDate:          opts.DueDate,
		Status:           "pending",
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return t, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.UserID, "task", t.ID, opts.ActorID, events.EventPayload{
		"title":             t.Title,
		"estimated_minutes": t.EstimatedMinutes,
		"priority":          t.Priority,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// AddPersonalEvent records a fixed commitment that generation must
// schedule around.
func (e *Engine) AddPersonalEvent(ctx context.Context, userID, title, startsAt, endsAt, actorID string) (domain.PersonalEvent, error) {
	var ev domain.PersonalEvent
	if userID == "" {
		return ev, validationErrorf("user id is required")
	}
	s, err := parseSpan(startsAt, endsAt)
	if err != nil {
		return ev, validationErrorf("malformed event times: %v", err)
	}
	if !s.end.After(s.start) {
		return ev, validationErrorf("event end %s is not after start %s", endsAt, startsAt)
	}
	ev = domain.PersonalEvent{
		ID:       uuid.New().String(),
		UserID:   userID,
		Title:    title,
		StartsAt: s.start.Format(time.RFC3339),
		EndsAt:   s.end.Format(time.RFC3339),
	}

	if err := e.Repo.InsertPersonalEvent(ctx, ev); err != nil {
		return ev, fmt.Errorf("insert event: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ev, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "personal_event.created", userID, "personal_event", ev.ID, actorID, events.EventPayload{
		"title":     ev.Title,
		"starts_at": ev.StartsAt,
		"ends_at":   ev.EndsAt,
	}); err != nil {
		return ev, err
	}
	if err := tx.Commit(); err != nil {
		return ev, err
	}
	return ev, nil
}

// SetWorkingHours validates and stores a user's working-hours
// preferences.
func (e *Engine) SetWorkingHours(ctx context.Context, p domain.WorkingHoursPreference, actorID string) error {
	if p.UserID == "" {
		return validationErrorf("user id is required")
	}
	if _, err := parseWindow(p); err != nil {
		return err
	}
	if len(p.ActiveDays) == 0 {
		return validationErrorf("at least one active day is required")
	}
	if err := e.Repo.UpsertWorkingHours(ctx, p); err != nil {
		return fmt.Errorf("store working hours: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "working_hours.updated", p.UserID, "working_hours", p.UserID, actorID, events.EventPayload{
		"day_start":   p.DayStart,
		"day_end":     p.DayEnd,
		"active_days": p.ActiveDays,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ImportHolidays upserts a batch of holidays for a calendar.
func (e *Engine) ImportHolidays(ctx context.Context, calendarCode string, days []domain.Holiday, actorID string) (int, error) {
	if calendarCode == "" {
		return 0, validationErrorf("calendar code is required")
	}
	n := 0
	for _, h := range days {
		if _, err := time.Parse(dateOnly, h.Day); err != nil {
			return n, validationErrorf("malformed holiday date %q", h.Day)
		}
		h.CalendarCode = calendarCode
		if err := e.Repo.UpsertHoliday(ctx, h); err != nil {
			return n, fmt.Errorf("store holiday %s: %w", h.Day, err)
		}
		n++
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "holidays.imported", "", "calendar", calendarCode, actorID, events.EventPayload{
		"count": n,
	}); err != nil {
		return n, err
	}
	return n, tx.Commit()
}

// CompleteInterval marks one split interval finished and flips the task
// to completed when every interval is done.
func (e *Engine) CompleteInterval(ctx context.Context, taskID, intervalID, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	found := false
	remaining := 0
	for _, iv := range t.Intervals {
		if iv.ID == intervalID {
			found = true
			continue
		}
		if !iv.IsCompleted {
			remaining++
		}
	}
	if !found {
		return t, validationErrorf("interval %s does not belong to task %s", intervalID, taskID)
	}

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE task_intervals SET is_completed=1 WHERE id=? AND task_id=?`, intervalID, taskID); err != nil {
		return t, fmt.Errorf("complete interval: %w", err)
	}
	if remaining == 0 {
		if err := e.Repo.SetTaskStatusTx(ctx, tx, taskID, "completed", now); err != nil {
			return t, err
		}
	}
	if err := e.Events.Append(ctx, tx, "interval.completed", t.UserID, "task", taskID, actorID, events.EventPayload{
		"interval_id": intervalID,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return e.Repo.GetTask(ctx, taskID)
}
