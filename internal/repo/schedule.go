package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"planline/internal/domain"
)

const entryColumns = `id,user_id,task_id,interval_id,starts_at,ends_at,priority,status,pinned`

func scanEntry(scan func(dest ...any) error) (domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	var intervalID sql.NullString
	err := scan(&e.ID, &e.UserID, &e.TaskID, &intervalID, &e.StartsAt, &e.EndsAt, &e.Priority, &e.Status, &e.Pinned)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if intervalID.Valid {
		e.IntervalID = &intervalID.String
	}
	return e, nil
}

func (r Repo) GetEntry(ctx context.Context, id string) (domain.ScheduleEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM schedule_entries WHERE id=?`, id)
	return scanEntry(row.Scan)
}

type EntryFilters struct {
	UserID string
	From   string
	To     string
	Status string
}

func (r Repo) ListEntries(ctx context.Context, f EntryFilters) ([]domain.ScheduleEntry, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.From != "" {
		clauses = append(clauses, "ends_at>?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "starts_at<?")
		args = append(args, f.To)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	rows, err := r.DB.QueryContext(ctx, `SELECT `+entryColumns+` FROM schedule_entries `+where+` ORDER BY starts_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) ListPinnedEntries(ctx context.Context, userID string) ([]domain.ScheduleEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+entryColumns+` FROM schedule_entries WHERE user_id=? AND pinned=1 ORDER BY starts_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertEntryTx(ctx context.Context, tx *sql.Tx, e domain.ScheduleEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedule_entries(`+entryColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, e.TaskID, nullableStringPtr(e.IntervalID), e.StartsAt, e.EndsAt, e.Priority, e.Status, e.Pinned)
	return err
}

func (r Repo) UpdateEntryTx(ctx context.Context, tx *sql.Tx, e domain.ScheduleEntry) error {
	res, err := tx.ExecContext(ctx, `UPDATE schedule_entries SET starts_at=?, ends_at=?, status=?, pinned=? WHERE id=?`,
		e.StartsAt, e.EndsAt, e.Status, e.Pinned, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEntryTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id=?`, id)
	return err
}

// DeleteUnpinnedEntriesTx clears a user's replaceable schedule ahead of a
// replace-all commit. Pinned entries survive regeneration.
func (r Repo) DeleteUnpinnedEntriesTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE user_id=? AND pinned=0`, userID)
	return err
}

func (r Repo) DeleteOpenConflictsTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM conflicts WHERE user_id=? AND resolved_at IS NULL`, userID)
	return err
}

const conflictColumns = `id,user_id,task_id,entry_ids_json,kind,detail,resolution_action,resolved_at,created_at`

func scanConflict(scan func(dest ...any) error) (domain.Conflict, error) {
	var c domain.Conflict
	var taskID, entryIDs, detail, action, resolvedAt sql.NullString
	err := scan(&c.ID, &c.UserID, &taskID, &entryIDs, &c.Kind, &detail, &action, &resolvedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if taskID.Valid {
		c.TaskID = taskID.String
	}
	if entryIDs.Valid && entryIDs.String != "" {
		if err := json.Unmarshal([]byte(entryIDs.String), &c.EntryIDs); err != nil {
			return c, err
		}
	}
	if detail.Valid {
		c.Detail = detail.String
	}
	if action.Valid {
		c.ResolutionAction = &action.String
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.String
	}
	return c, nil
}

func (r Repo) GetConflict(ctx context.Context, id string) (domain.Conflict, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=?`, id)
	return scanConflict(row.Scan)
}

type ConflictFilters struct {
	UserID   string
	Kind     string
	OpenOnly bool
}

func (r Repo) ListConflicts(ctx context.Context, f ConflictFilters) ([]domain.Conflict, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.OpenOnly {
		clauses = append(clauses, "resolved_at IS NULL")
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	rows, err := r.DB.QueryContext(ctx, `SELECT `+conflictColumns+` FROM conflicts `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertConflictTx(ctx context.Context, tx *sql.Tx, c domain.Conflict) error {
	var entryIDs any
	if len(c.EntryIDs) > 0 {
		b, err := json.Marshal(c.EntryIDs)
		if err != nil {
			return err
		}
		entryIDs = string(b)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO conflicts(`+conflictColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, nullable(c.TaskID), entryIDs, c.Kind, nullable(c.Detail),
		nullableStringPtr(c.ResolutionAction), nullableStringPtr(c.ResolvedAt), c.CreatedAt)
	return err
}

func (r Repo) ResolveConflictTx(ctx context.Context, tx *sql.Tx, id, action, resolvedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE conflicts SET resolution_action=?, resolved_at=? WHERE id=? AND resolved_at IS NULL`,
		action, resolvedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
