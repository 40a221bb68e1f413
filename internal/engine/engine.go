package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Log    zerolog.Logger

	genLocks sync.Map // user id -> *sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Log:    zerolog.Nop(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// lockUser serializes generation runs per user. Runs for different users
// proceed in parallel.
func (e *Engine) lockUser(userID string) func() {
	v, _ := e.genLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GenerateOptions configures one generation run.
type GenerateOptions struct {
	StartDate             time.Time
	EndDate               time.Time
	RespectPersonalEvents bool
	AllowManualOverride   bool
	PrioritizeUrgentTasks bool
	OptimizeForEfficiency bool
	AutoSplit             bool
	ActorID               string
}

// DefaultOptions returns run options seeded from workspace config.
func (e *Engine) DefaultOptions() GenerateOptions {
	return GenerateOptions{
		RespectPersonalEvents: true,
		PrioritizeUrgentTasks: true,
		AutoSplit:             e.Config.Scheduling.AutoSplit,
	}
}

type GenerateResult struct {
	Entries   []domain.ScheduleEntry `json:"entries"`
	Conflicts []domain.Conflict      `json:"conflicts"`
}

// unit is one schedulable piece of work: a whole unsplit task or a single
// incomplete interval.
type unit struct {
	task     domain.Task
	interval *domain.TaskInterval
	duration time.Duration
	due      *time.Time
	seq      int

	placedSpans []span
	pieceIDs    []string
}

type taskPlan struct {
	task    domain.Task
	units   []*unit
	chunked bool
}

func (p *taskPlan) fullyPlaced() bool {
	if len(p.units) == 0 {
		return false
	}
	for _, u := range p.units {
		if len(u.placedSpans) == 0 {
			return false
		}
	}
	return true
}

type runInputs struct {
	window   workingWindow
	holidays map[string]bool
	events   []domain.PersonalEvent
	pinned   []domain.ScheduleEntry
	tasks    []domain.Task
}

type genRun struct {
	userID     string
	start, end time.Time
	opts       GenerateOptions
	in         runInputs
	minBlock   time.Duration
	nowStr     string

	avail *availability
	index *conflictIndex

	entries          []domain.ScheduleEntry
	conflicts        []domain.Conflict
	pinnedConflicted map[string]bool
	plans            []*taskPlan
}

// Generate computes and commits a full replacement schedule for one user.
// All inputs are loaded up front; the allocation itself performs no I/O,
// and the commit replaces the previous entries and open conflicts in a
// single transaction.
func (e *Engine) Generate(ctx context.Context, userID string, opts GenerateOptions) (*GenerateResult, error) {
	if userID == "" {
		return nil, validationErrorf("user id is required")
	}
	unlock := e.lockUser(userID)
	defer unlock()

	start := opts.StartDate
	if start.IsZero() {
		start = e.now().UTC()
	}
	start = ceilToBucket(start.UTC())
	end := opts.EndDate
	if end.IsZero() {
		end = start.AddDate(0, 0, e.Config.Scheduling.HorizonDays)
	}
	end = end.UTC()
	if !end.After(start) {
		return nil, validationErrorf("horizon end %s is not after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	in, err := e.loadInputs(ctx, userID, start, end, opts.RespectPersonalEvents)
	if err != nil {
		return nil, err
	}

	run := &genRun{
		userID:           userID,
		start:            start,
		end:              end,
		opts:             opts,
		in:               in,
		minBlock:         time.Duration(e.Config.Scheduling.MinimumBlockMinutes) * time.Minute,
		nowStr:           e.now().UTC().Format(time.RFC3339),
		index:            newConflictIndex(),
		pinnedConflicted: map[string]bool{},
	}
	if err := run.allocate(); err != nil {
		return nil, err
	}
	if err := e.commitRun(ctx, run); err != nil {
		return nil, err
	}
	e.Log.Info().
		Str("user_id", userID).
		Int("entries", len(run.entries)).
		Int("conflicts", len(run.conflicts)).
		Time("horizon_start", start).
		Time("horizon_end", end).
		Msg("schedule generated")
	return &GenerateResult{Entries: run.entries, Conflicts: run.conflicts}, nil
}

func (e *Engine) loadInputs(ctx context.Context, userID string, start, end time.Time, withEvents bool) (runInputs, error) {
	var in runInputs
	prefs, err := e.Repo.GetWorkingHours(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		prefs = domain.WorkingHoursPreference{
			UserID:     userID,
			DayStart:   e.Config.Scheduling.DayStart,
			DayEnd:     e.Config.Scheduling.DayEnd,
			ActiveDays: e.Config.Scheduling.ActiveDays,
		}
	} else if err != nil {
		return in, err
	}
	in.window, err = parseWindow(prefs)
	if err != nil {
		return in, err
	}

	holidays, err := e.Repo.ListHolidays(ctx, e.Config.Calendar, start.Format(dateOnly), end.Format(dateOnly))
	if err != nil {
		return in, err
	}
	in.holidays = map[string]bool{}
	for _, h := range holidays {
		in.holidays[h.Day] = true
	}

	if withEvents {
		in.events, err = e.Repo.ListPersonalEvents(ctx, userID, start.Format(time.RFC3339), end.Format(time.RFC3339))
		if err != nil {
			return in, err
		}
	}
	in.pinned, err = e.Repo.ListPinnedEntries(ctx, userID)
	if err != nil {
		return in, err
	}
	in.tasks, err = e.Repo.ListSchedulableTasks(ctx, userID)
	if err != nil {
		return in, err
	}
	return in, nil
}

func parseWindow(p domain.WorkingHoursPreference) (workingWindow, error) {
	var w workingWindow
	var err error
	w.startHour, w.startMin, err = config.ParseClock(p.DayStart)
	if err != nil {
		return w, ValidationError{Msg: err.Error()}
	}
	w.endHour, w.endMin, err = config.ParseClock(p.DayEnd)
	if err != nil {
		return w, ValidationError{Msg: err.Error()}
	}
	if w.endHour*60+w.endMin <= w.startHour*60+w.startMin {
		return w, validationErrorf("working day end %s is not after start %s", p.DayEnd, p.DayStart)
	}
	w.activeDays = map[time.Weekday]bool{}
	for _, name := range p.ActiveDays {
		d, ok := config.ParseWeekday(name)
		if !ok {
			return w, validationErrorf("unknown weekday %q in working preferences", name)
		}
		w.activeDays[d] = true
	}
	return w, nil
}

// allocate runs the placement algorithm over the loaded inputs.
func (r *genRun) allocate() error {
	windows := dayWindows(r.start, r.end, r.in.window, r.in.holidays)
	busy := r.registerFixed(windows)
	r.avail = subtractBusy(windows, busy)

	units := r.buildUnits()
	r.sortUnits(units)
	for _, u := range units {
		if err := r.place(u); err != nil {
			return err
		}
	}
	return nil
}

// registerFixed puts personal events and pinned prior entries into the
// conflict index and reports their spans as busy. Pinned collisions with
// fixed occupants become overlap conflicts, and pinned entries outside
// the working windows are conflicted unless the run allows manual
// overrides.
func (r *genRun) registerFixed(windows []span) []span {
	var busy []span
	for _, ev := range r.in.events {
		s, err := parseSpan(ev.StartsAt, ev.EndsAt)
		if err != nil {
			continue
		}
		r.index.register(occupant{id: ev.ID, kind: "event", span: s})
		busy = append(busy, s)
	}
	for _, p := range r.in.pinned {
		s, err := parseSpan(p.StartsAt, p.EndsAt)
		if err != nil {
			continue
		}
		if !r.opts.AllowManualOverride && r.outsideWindows(s, windows) {
			r.pinnedConflicted[p.ID] = true
			r.conflicts = append(r.conflicts, domain.Conflict{
				ID:        uuid.New().String(),
				UserID:    r.userID,
				TaskID:    p.TaskID,
				EntryIDs:  []string{p.ID},
				Kind:      domain.ConflictValidation,
				Detail:    "pinned entry lies outside working hours",
				CreatedAt: r.nowStr,
			})
		}
		if occ := r.index.query(s); len(occ) > 0 {
			ids := []string{p.ID}
			detail := "pinned entry overlaps a fixed event"
			for _, o := range occ {
				if o.kind == "entry" {
					ids = append(ids, o.id)
					detail = "pinned entries overlap"
					r.pinnedConflicted[o.id] = true
				}
			}
			r.pinnedConflicted[p.ID] = true
			r.conflicts = append(r.conflicts, domain.Conflict{
				ID:        uuid.New().String(),
				UserID:    r.userID,
				TaskID:    p.TaskID,
				EntryIDs:  ids,
				Kind:      domain.ConflictOverlap,
				Detail:    detail,
				CreatedAt: r.nowStr,
			})
		}
		r.index.register(occupant{id: p.ID, kind: "entry", span: s})
		busy = append(busy, s)
	}
	return busy
}

// outsideWindows reports whether a span inside the run horizon falls
// outside every working window. Spans beyond the horizon are not judged.
func (r *genRun) outsideWindows(s span, windows []span) bool {
	if !s.overlaps(span{start: r.start, end: r.end}) {
		return false
	}
	for _, w := range windows {
		if !s.start.Before(w.start) && !s.end.After(w.end) {
			return false
		}
	}
	return true
}

// buildUnits expands unfinished tasks into schedulable units, recording
// validation conflicts for non-positive durations.
func (r *genRun) buildUnits() []*unit {
	var units []*unit
	seq := 0
	for i := range r.in.tasks {
		t := r.in.tasks[i]
		plan := &taskPlan{task: t}
		r.plans = append(r.plans, plan)

		if t.EstimatedMinutes <= 0 {
			r.addValidationConflict(t, fmt.Sprintf("task has non-positive estimated duration %d", t.EstimatedMinutes))
			continue
		}
		due, err := parseDue(t.DueDate)
		if err != nil {
			r.addValidationConflict(t, fmt.Sprintf("task has malformed due date: %v", err))
			continue
		}

		completed := 0
		var incomplete []domain.TaskInterval
		for _, iv := range t.Intervals {
			if iv.IsCompleted {
				completed += iv.DurationMinutes
			} else {
				incomplete = append(incomplete, iv)
			}
		}

		if len(incomplete) == 0 {
			remaining := t.EstimatedMinutes - completed
			if remaining <= 0 {
				continue
			}
			u := &unit{
				task:     t,
				duration: time.Duration(remaining) * time.Minute,
				due:      due,
				seq:      seq,
			}
			units = append(units, u)
			plan.units = []*unit{u}
			seq++
			continue
		}

		bad := false
		for _, iv := range incomplete {
			if iv.DurationMinutes <= 0 {
				r.addValidationConflict(t, fmt.Sprintf("interval %s has non-positive duration %d", iv.ID, iv.DurationMinutes))
				bad = true
				break
			}
		}
		if bad {
			continue
		}
		for j := range incomplete {
			iv := incomplete[j]
			u := &unit{
				task:     t,
				interval: &iv,
				duration: time.Duration(iv.DurationMinutes) * time.Minute,
				due:      due,
				seq:      seq,
			}
			units = append(units, u)
			plan.units = append(plan.units, u)
			seq++
		}
	}
	return units
}

func (r *genRun) addValidationConflict(t domain.Task, detail string) {
	r.conflicts = append(r.conflicts, domain.Conflict{
		ID:        uuid.New().String(),
		UserID:    r.userID,
		TaskID:    t.ID,
		Kind:      domain.ConflictValidation,
		Detail:    detail,
		CreatedAt: r.nowStr,
	})
}

// sortUnits orders units by priority (when enabled), then due date with
// undated work after dated work, then creation order.
func (r *genRun) sortUnits(units []*unit) {
	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if r.opts.PrioritizeUrgentTasks {
			ra, rb := domain.PriorityRank(a.task.Priority), domain.PriorityRank(b.task.Priority)
			if ra != rb {
				return ra < rb
			}
		}
		switch {
		case a.due != nil && b.due != nil:
			if !a.due.Equal(*b.due) {
				return a.due.Before(*b.due)
			}
		case a.due != nil:
			return true
		case b.due != nil:
			return false
		}
		return a.seq < b.seq
	})
}

// place finds room for one unit: whole placement first, then chunked
// placement across several free ranges when allowed, otherwise a
// due-date-infeasible conflict.
func (r *genRun) place(u *unit) error {
	var limit time.Time
	if u.due != nil {
		limit = *u.due
	}

	var fit *freeRange
	if r.opts.OptimizeForEfficiency {
		fit = r.avail.largestFit(u.duration, limit)
	} else {
		fit = r.avail.earliestFit(u.duration, limit)
	}
	if fit != nil {
		s := fit.take(u.duration)
		return r.admit(u, s, intervalIDFor(u))
	}

	if r.opts.AutoSplit {
		if chunks := r.avail.chunk(u.duration, limit, r.minBlock); chunks != nil {
			for _, s := range chunks {
				pieceID := uuid.New().String()
				if err := r.admit(u, s, &pieceID); err != nil {
					return err
				}
			}
			r.planFor(u.task.ID).chunked = true
			return nil
		}
	}

	available := int(r.avail.capacityBefore(limit) / time.Minute)
	needed := int(u.duration / time.Minute)
	detail := fmt.Sprintf("task needs %d minutes before %s but only %d minutes are free",
		needed, limit.Format(time.RFC3339), available)
	if u.due == nil {
		detail = fmt.Sprintf("task needs %d minutes but only %d minutes remain in the scheduling horizon", needed, available)
	}
	r.conflicts = append(r.conflicts, domain.Conflict{
		ID:        uuid.New().String(),
		UserID:    r.userID,
		TaskID:    u.task.ID,
		Kind:      domain.ConflictDueDateInfeasible,
		Detail:    detail,
		CreatedAt: r.nowStr,
	})
	return nil
}

// admit verifies a span against the conflict index, registers it and
// records the schedule entry.
func (r *genRun) admit(u *unit, s span, intervalID *string) error {
	if occ := r.index.query(s); len(occ) > 0 {
		return fmt.Errorf("placement %s..%s overlaps occupied span %s",
			s.start.Format(time.RFC3339), s.end.Format(time.RFC3339), occ[0].id)
	}
	entryID := uuid.New().String()
	r.index.register(occupant{id: entryID, kind: "entry", span: s})
	r.entries = append(r.entries, domain.ScheduleEntry{
		ID:         entryID,
		UserID:     r.userID,
		TaskID:     u.task.ID,
		IntervalID: intervalID,
		StartsAt:   s.start.Format(time.RFC3339),
		EndsAt:     s.end.Format(time.RFC3339),
		Priority:   u.task.Priority,
		Status:     "scheduled",
	})
	u.placedSpans = append(u.placedSpans, s)
	if intervalID != nil {
		u.pieceIDs = append(u.pieceIDs, *intervalID)
	}
	return nil
}

func (r *genRun) planFor(taskID string) *taskPlan {
	for _, p := range r.plans {
		if p.task.ID == taskID {
			return p
		}
	}
	return nil
}

func intervalIDFor(u *unit) *string {
	if u.interval == nil {
		return nil
	}
	id := u.interval.ID
	return &id
}

// chunk greedily carves d out of the free ranges before limit, returning
// nil when the min-block-respecting capacity is insufficient. Ranges are
// only consumed on success. Piece sizes follow the free ranges rather
// than the even ceil rule SplitDurations applies to explicit splits;
// sizing to the gaps places work that equal pieces could not.
func (a *availability) chunk(d time.Duration, limit time.Time, minBlock time.Duration) []span {
	type take struct {
		r   *freeRange
		amt time.Duration
	}
	var takes []take
	remaining := d
	for _, r := range a.ranges {
		if remaining <= 0 {
			break
		}
		u := r.usable(limit)
		if u < minBlock {
			continue
		}
		amt := u
		if amt > remaining {
			amt = remaining
		}
		if rest := remaining - amt; rest > 0 && rest < minBlock {
			amt = remaining - minBlock
			if amt < minBlock {
				continue
			}
		}
		takes = append(takes, take{r: r, amt: amt})
		remaining -= amt
	}
	if remaining > 0 || len(takes) < 2 {
		return nil
	}
	out := make([]span, 0, len(takes))
	for _, t := range takes {
		out = append(out, t.r.take(t.amt))
	}
	return out
}

// commitRun writes the computed schedule as a single atomic replacement.
func (e *Engine) commitRun(ctx context.Context, run *genRun) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteUnpinnedEntriesTx(ctx, tx, run.userID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := e.Repo.DeleteOpenConflictsTx(ctx, tx, run.userID); err != nil {
		return fmt.Errorf("clear conflicts: %w", err)
	}
	for _, p := range run.in.pinned {
		if !run.pinnedConflicted[p.ID] {
			continue
		}
		p.Status = "conflicted"
		if err := e.Repo.UpdateEntryTx(ctx, tx, p); err != nil {
			return fmt.Errorf("flag pinned entry: %w", err)
		}
	}
	for _, entry := range run.entries {
		if err := e.Repo.InsertEntryTx(ctx, tx, entry); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	for _, c := range run.conflicts {
		if err := e.Repo.InsertConflictTx(ctx, tx, c); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}
	for _, plan := range run.plans {
		if err := e.commitPlan(ctx, tx, run, plan); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "schedule.generated", run.userID, "schedule", run.userID, run.opts.ActorID, events.EventPayload{
		"entries":       len(run.entries),
		"conflicts":     len(run.conflicts),
		"horizon_start": run.start.Format(time.RFC3339),
		"horizon_end":   run.end.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// commitPlan syncs one task's intervals and status with its placement.
func (e *Engine) commitPlan(ctx context.Context, tx *sql.Tx, run *genRun, plan *taskPlan) error {
	if plan.chunked {
		pos := 0
		for _, iv := range plan.task.Intervals {
			if iv.IsCompleted && iv.Position >= pos {
				pos = iv.Position + 1
			}
		}
		var rebuilt []domain.TaskInterval
		for _, u := range plan.units {
			if len(u.placedSpans) == 0 {
				id := uuid.New().String()
				if u.interval != nil {
					id = u.interval.ID
				}
				rebuilt = append(rebuilt, domain.TaskInterval{
					ID:              id,
					TaskID:          plan.task.ID,
					DurationMinutes: int(u.duration / time.Minute),
					Position:        pos,
				})
				pos++
				continue
			}
			for k, s := range u.placedSpans {
				start := s.start.Format(time.RFC3339)
				rebuilt = append(rebuilt, domain.TaskInterval{
					ID:              u.pieceIDs[k],
					TaskID:          plan.task.ID,
					DurationMinutes: int(s.duration() / time.Minute),
					ScheduledStart:  &start,
					Position:        pos,
				})
				pos++
			}
		}
		if err := e.Repo.ReplaceIncompleteIntervalsTx(ctx, tx, plan.task.ID, rebuilt); err != nil {
			return fmt.Errorf("rebuild intervals: %w", err)
		}
	} else {
		for _, u := range plan.units {
			if u.interval == nil {
				continue
			}
			var start *string
			if len(u.placedSpans) > 0 {
				s := u.placedSpans[0].start.Format(time.RFC3339)
				start = &s
			}
			if err := e.Repo.SetIntervalStartTx(ctx, tx, u.interval.ID, start); err != nil {
				return fmt.Errorf("set interval start: %w", err)
			}
		}
	}
	status := "pending"
	if plan.fullyPlaced() {
		status = "scheduled"
	}
	if status != plan.task.Status {
		if err := e.Repo.SetTaskStatusTx(ctx, tx, plan.task.ID, status, run.nowStr); err != nil {
			return fmt.Errorf("set task status: %w", err)
		}
	}
	return nil
}

// GenerateAll regenerates every known user's schedule with default
// options. Failures are logged and skipped so one user cannot block the
// rest.
func (e *Engine) GenerateAll(ctx context.Context, actorID string) (int, error) {
	ids, err := e.Repo.ListScheduledUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		opts := e.DefaultOptions()
		opts.ActorID = actorID
		if _, err := e.Generate(ctx, id, opts); err != nil {
			e.Log.Error().Err(err).Str("user_id", id).Msg("schedule regeneration failed")
			continue
		}
		n++
	}
	return n, nil
}

func parseSpan(start, end string) (span, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return span{}, err
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return span{}, err
	}
	return span{start: s.UTC(), end: e.UTC()}, nil
}

func parseDue(due *string) (*time.Time, error) {
	if due == nil || *due == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *due)
	if err != nil {
		// Date-only due dates mean end of that day.
		d, derr := time.Parse(dateOnly, *due)
		if derr != nil {
			return nil, err
		}
		t = d.AddDate(0, 0, 1)
	}
	t = t.UTC()
	return &t, nil
}
