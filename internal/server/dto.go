package server

import (
	"encoding/json"

	"planline/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	ID               *string `json:"id,omitempty"`
	TeamID           *string `json:"team_id,omitempty"`
	Title            string  `json:"title"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	Priority         string  `json:"priority,omitempty" enum:"urgent,high,medium,low"`
	DueDate          *string `json:"due_date,omitempty"`
}

type SplitTaskRequest struct {
	Intervals int `json:"intervals" minimum:"1"`
}

type GenerateScheduleRequest struct {
	StartDate             *string `json:"start_date,omitempty" format:"date-time"`
	EndDate               *string `json:"end_date,omitempty" format:"date-time"`
	RespectPersonalEvents *bool   `json:"respect_personal_events,omitempty"`
	AllowManualOverride   bool    `json:"allow_manual_override,omitempty"`
	PrioritizeUrgentTasks *bool   `json:"prioritize_urgent_tasks,omitempty"`
	OptimizeForEfficiency bool    `json:"optimize_for_efficiency,omitempty"`
	AutoSplit             *bool   `json:"auto_split,omitempty"`
}

type ResolveConflictRequest struct {
	Action string `json:"action" enum:"reschedule-to-next-slot,override-and-keep,cancel-entry,split-and-retry"`
}

type WorkingHoursRequest struct {
	DayStart   string   `json:"day_start" example:"09:00"`
	DayEnd     string   `json:"day_end" example:"17:00"`
	ActiveDays []string `json:"active_days"`
}

type CreatePersonalEventRequest struct {
	Title    string `json:"title"`
	StartsAt string `json:"starts_at" format:"date-time"`
	EndsAt   string `json:"ends_at" format:"date-time"`
}

type ImportHolidaysRequest struct {
	Days []HolidayRequest `json:"days"`
}

type HolidayRequest struct {
	Day  string `json:"day" example:"2026-12-25"`
	Name string `json:"name,omitempty"`
}

// Response payloads

type TaskResponse struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	TeamID           *string            `json:"team_id,omitempty"`
	Title            string             `json:"title"`
	EstimatedMinutes int                `json:"estimated_minutes"`
	Priority         string             `json:"priority" enum:"urgent,high,medium,low"`
	DueDate          *string            `json:"due_date,omitempty"`
	Status           string             `json:"status" enum:"pending,scheduled,completed"`
	Intervals        []IntervalResponse `json:"intervals,omitempty"`
	CreatedAt        string             `json:"created_at" format:"date-time"`
	UpdatedAt        string             `json:"updated_at" format:"date-time"`
}

type IntervalResponse struct {
	ID              string  `json:"id"`
	DurationMinutes int     `json:"duration_minutes"`
	ScheduledStart  *string `json:"scheduled_start,omitempty" format:"date-time"`
	IsCompleted     bool    `json:"is_completed"`
	Position        int     `json:"position"`
}

type EntryResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	TaskID     string  `json:"task_id"`
	IntervalID *string `json:"interval_id,omitempty"`
	StartsAt   string  `json:"starts_at" format:"date-time"`
	EndsAt     string  `json:"ends_at" format:"date-time"`
	Priority   string  `json:"priority"`
	Status     string  `json:"status" enum:"scheduled,conflicted,cancelled"`
	Pinned     bool    `json:"pinned"`
}

type ConflictResponse struct {
	ID               string   `json:"id"`
	UserID           string   `json:"user_id"`
	TaskID           string   `json:"task_id,omitempty"`
	EntryIDs         []string `json:"entry_ids,omitempty"`
	Kind             string   `json:"kind" enum:"overlap,due-date-infeasible,validation"`
	Detail           string   `json:"detail"`
	ResolutionAction *string  `json:"resolution_action,omitempty"`
	ResolvedAt       *string  `json:"resolved_at,omitempty" format:"date-time"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
}

type GenerateResponse struct {
	Entries   []EntryResponse    `json:"entries"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

type PersonalEventResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title,omitempty"`
	StartsAt string `json:"starts_at" format:"date-time"`
	EndsAt   string `json:"ends_at" format:"date-time"`
}

type WorkingHoursResponse struct {
	UserID     string   `json:"user_id"`
	DayStart   string   `json:"day_start"`
	DayEnd     string   `json:"day_end"`
	ActiveDays []string `json:"active_days"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	TS         string         `json:"ts" format:"date-time"`
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:               t.ID,
		UserID:           t.UserID,
		TeamID:           t.TeamID,
		Title:            t.Title,
		EstimatedMinutes: t.EstimatedMinutes,
		Priority:         t.Priority,
		DueDate:          t.DueDate,
		Status:           t.Status,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	for _, iv := range t.Intervals {
		resp.Intervals = append(resp.Intervals, intervalResponse(iv))
	}
	return resp
}

func intervalResponse(iv domain.TaskInterval) IntervalResponse {
	return IntervalResponse{
		ID:              iv.ID,
		DurationMinutes: iv.DurationMinutes,
		ScheduledStart:  iv.ScheduledStart,
		IsCompleted:     iv.IsCompleted,
		Position:        iv.Position,
	}
}

func entryResponse(e domain.ScheduleEntry) EntryResponse {
	return EntryResponse{
		ID:         e.ID,
		UserID:     e.UserID,
		TaskID:     e.TaskID,
		IntervalID: e.IntervalID,
		StartsAt:   e.StartsAt,
		EndsAt:     e.EndsAt,
		Priority:   e.Priority,
		Status:     e.Status,
		Pinned:     e.Pinned,
	}
}

func conflictResponse(c domain.Conflict) ConflictResponse {
	return ConflictResponse{
		ID:               c.ID,
		UserID:           c.UserID,
		TaskID:           c.TaskID,
		EntryIDs:         c.EntryIDs,
		Kind:             c.Kind,
		Detail:           c.Detail,
		ResolutionAction: c.ResolutionAction,
		ResolvedAt:       c.ResolvedAt,
		CreatedAt:        c.CreatedAt,
	}
}

func workingHoursResponse(p domain.WorkingHoursPreference) WorkingHoursResponse {
	return WorkingHoursResponse{
		UserID:     p.UserID,
		DayStart:   p.DayStart,
		DayEnd:     p.DayEnd,
		ActiveDays: p.ActiveDays,
	}
}

func eventResponse(ev domain.Event) EventResponse {
	resp := EventResponse{
		ID:         ev.ID,
		Type:       ev.Type,
		UserID:     ev.UserID,
		EntityKind: ev.EntityKind,
		EntityID:   ev.EntityID,
		ActorID:    ev.ActorID,
		TS:         ev.TS,
	}
	if ev.Payload != "" {
		_ = json.Unmarshal([]byte(ev.Payload), &resp.Payload)
	}
	return resp
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func mapEntries(items []domain.ScheduleEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, entryResponse(e))
	}
	return out
}

func mapConflicts(items []domain.Conflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(items))
	for _, c := range items {
		out = append(out, conflictResponse(c))
	}
	return out
}
