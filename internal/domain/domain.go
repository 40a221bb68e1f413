package domain

// Priority levels, highest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Conflict kinds.
const (
	ConflictOverlap           = "overlap"
	ConflictDueDateInfeasible = "due-date-infeasible"
	ConflictValidation        = "validation"
)

// Resolution actions accepted by the conflict resolver.
const (
	ActionRescheduleNextSlot = "reschedule-to-next-slot"
	ActionOverrideAndKeep    = "override-and-keep"
	ActionCancelEntry        = "cancel-entry"
	ActionSplitAndRetry      = "split-and-retry"
)

type Task struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	TeamID           *string        `json:"team_id,omitempty"`
	Title            string         `json:"title"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	Priority         string         `json:"priority" enum:"urgent,high,medium,low"`
	DueDate          *string        `json:"due_date,omitempty" format:"date-time"`
	Status           string         `json:"status" enum:"pending,scheduled,completed,canceled"`
	Intervals        []TaskInterval `json:"intervals,omitempty"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
}

// TaskInterval is one piece of a split task. The durations of a task's
// intervals always sum to its estimated minutes.
type TaskInterval struct {
	ID              string  `json:"id"`
	TaskID          string  `json:"task_id"`
	DurationMinutes int     `json:"duration_minutes"`
	ScheduledStart  *string `json:"scheduled_start,omitempty" format:"date-time"`
	IsCompleted     bool    `json:"is_completed"`
	Position        int     `json:"position"`
}

// PersonalEvent is a fixed, non-movable occupant of the calendar.
type PersonalEvent struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title,omitempty"`
	StartsAt string `json:"starts_at" format:"date-time"`
	EndsAt   string `json:"ends_at" format:"date-time"`
}

type WorkingHoursPreference struct {
	UserID     string   `json:"user_id"`
	DayStart   string   `json:"day_start"`
	DayEnd     string   `json:"day_end"`
	ActiveDays []string `json:"active_days"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

type Holiday struct {
	CalendarCode string `json:"calendar_code"`
	Day          string `json:"day" format:"date"`
	Name         string `json:"name,omitempty"`
}

type ScheduleEntry struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	TaskID     string  `json:"task_id"`
	IntervalID *string `json:"interval_id,omitempty"`
	StartsAt   string  `json:"starts_at" format:"date-time"`
	EndsAt     string  `json:"ends_at" format:"date-time"`
	Priority   string  `json:"priority" enum:"urgent,high,medium,low"`
	Status     string  `json:"status" enum:"scheduled,conflicted"`
	Pinned     bool    `json:"pinned"`
}

type Conflict struct {
	ID               string   `json:"id"`
	UserID           string   `json:"user_id"`
	TaskID           string   `json:"task_id,omitempty"`
	EntryIDs         []string `json:"entry_ids,omitempty"`
	Kind             string   `json:"kind" enum:"overlap,due-date-infeasible,validation"`
	Detail           string   `json:"detail,omitempty"`
	ResolutionAction *string  `json:"resolution_action,omitempty"`
	ResolvedAt       *string  `json:"resolved_at,omitempty" format:"date-time"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PriorityRank orders priorities for sorting; lower sorts first.
func PriorityRank(p string) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p string) bool {
	return PriorityRank(p) < 4
}
