package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,user_id,team_id,title,estimated_minutes,priority,due_date,status,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var teamID, dueDate sql.NullString
	err := scan(&t.ID, &t.UserID, &teamID, &t.Title, &t.EstimatedMinutes, &t.Priority, &dueDate, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if teamID.Valid {
		t.TeamID = &teamID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, nullableStringPtr(t.TeamID), t.Title, t.EstimatedMinutes, t.Priority,
		nullableStringPtr(t.DueDate), t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET team_id=?, title=?, estimated_minutes=?, priority=?, due_date=?, status=?, updated_at=? WHERE id=?`,
		nullableStringPtr(t.TeamID), t.Title, t.EstimatedMinutes, t.Priority,
		nullableStringPtr(t.DueDate), t.Status, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	t.Intervals, err = r.ListIntervals(ctx, t.ID)
	return t, err
}

type TaskFilters struct {
	UserID   string
	Status   string
	Priority string
	Limit    int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListSchedulableTasks returns a user's unfinished tasks (pending and
// scheduled) with their intervals, ordered by creation. The engine applies
// its own placement sort on top.
func (r Repo) ListSchedulableTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id=? AND status IN ('pending','scheduled') ORDER BY created_at ASC, id ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Intervals, err = r.ListIntervals(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

const intervalColumns = `id,task_id,duration_minutes,scheduled_start,is_completed,position`

func (r Repo) ListIntervals(ctx context.Context, taskID string) ([]domain.TaskInterval, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+intervalColumns+` FROM task_intervals WHERE task_id=? ORDER BY position ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskInterval
	for rows.Next() {
		var iv domain.TaskInterval
		var start sql.NullString
		if err := rows.Scan(&iv.ID, &iv.TaskID, &iv.DurationMinutes, &start, &iv.IsCompleted, &iv.Position); err != nil {
			return nil, err
		}
		if start.Valid {
			iv.ScheduledStart = &start.String
		}
		res = append(res, iv)
	}
	return res, rows.Err()
}

func (r Repo) InsertIntervalTx(ctx context.Context, tx *sql.Tx, iv domain.TaskInterval) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_intervals(`+intervalColumns+`) VALUES (?,?,?,?,?,?)`,
		iv.ID, iv.TaskID, iv.DurationMinutes, nullableStringPtr(iv.ScheduledStart), iv.IsCompleted, iv.Position)
	return err
}

// ReplaceIncompleteIntervalsTx removes a task's incomplete intervals and
// inserts the given replacements. Completed intervals are never touched.
func (r Repo) ReplaceIncompleteIntervalsTx(ctx context.Context, tx *sql.Tx, taskID string, intervals []domain.TaskInterval) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_intervals WHERE task_id=? AND is_completed=0`, taskID); err != nil {
		return err
	}
	for _, iv := range intervals {
		if err := r.InsertIntervalTx(ctx, tx, iv); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) SetIntervalStartTx(ctx context.Context, tx *sql.Tx, intervalID string, start *string) error {
	_, err := tx.ExecContext(ctx, `UPDATE task_intervals SET scheduled_start=? WHERE id=?`, nullableStringPtr(start), intervalID)
	return err
}

func (r Repo) LatestEvents(ctx context.Context, limit int, userID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if userID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,user_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var userID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &userID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if userID.Valid {
			e.UserID = userID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
