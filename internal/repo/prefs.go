package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"planline/internal/domain"
)

// PreferenceStore: working hours, holidays and personal events. All reads
// are plain adapters; the engine never writes through these during a run.

func (r Repo) GetWorkingHours(ctx context.Context, userID string) (domain.WorkingHoursPreference, error) {
	var p domain.WorkingHoursPreference
	var days string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,day_start,day_end,active_days,updated_at FROM working_hours WHERE user_id=?`, userID).
		Scan(&p.UserID, &p.DayStart, &p.DayEnd, &days, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(days), &p.ActiveDays); err != nil {
		return p, fmt.Errorf("decode active_days: %w", err)
	}
	return p, nil
}

func (r Repo) UpsertWorkingHours(ctx context.Context, p domain.WorkingHoursPreference) error {
	days, err := json.Marshal(p.ActiveDays)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO working_hours(user_id,day_start,day_end,active_days,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET day_start=excluded.day_start, day_end=excluded.day_end, active_days=excluded.active_days, updated_at=excluded.updated_at`,
		p.UserID, p.DayStart, p.DayEnd, string(days), p.UpdatedAt)
	return err
}

// ListScheduledUserIDs returns every user with stored preferences or
// pending work, for bulk regeneration.
func (r Repo) ListScheduledUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM working_hours UNION SELECT user_id FROM tasks WHERE status='pending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UpsertHoliday(ctx context.Context, h domain.Holiday) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO holidays(calendar_code,day,name) VALUES (?,?,?)
ON CONFLICT(calendar_code,day) DO UPDATE SET name=excluded.name`, h.CalendarCode, h.Day, nullable(h.Name))
	return err
}

// ListHolidays returns holiday dates for a calendar within [from, to],
// both dates in YYYY-MM-DD form.
func (r Repo) ListHolidays(ctx context.Context, calendarCode, from, to string) ([]domain.Holiday, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT calendar_code,day,COALESCE(name,'') FROM holidays WHERE calendar_code=? AND day>=? AND day<=? ORDER BY day ASC`,
		calendarCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Holiday
	for rows.Next() {
		var h domain.Holiday
		if err := rows.Scan(&h.CalendarCode, &h.Day, &h.Name); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) InsertPersonalEvent(ctx context.Context, ev domain.PersonalEvent) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO personal_events(id,user_id,title,starts_at,ends_at) VALUES (?,?,?,?,?)`,
		ev.ID, ev.UserID, nullable(ev.Title), ev.StartsAt, ev.EndsAt)
	return err
}

func (r Repo) DeletePersonalEvent(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM personal_events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPersonalEvents returns a user's events intersecting [from, to),
// RFC3339 timestamps.
func (r Repo) ListPersonalEvents(ctx context.Context, userID, from, to string) ([]domain.PersonalEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,COALESCE(title,''),starts_at,ends_at FROM personal_events
WHERE user_id=? AND ends_at>? AND starts_at<? ORDER BY starts_at ASC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PersonalEvent
	for rows.Next() {
		var ev domain.PersonalEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.StartsAt, &ev.EndsAt); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
