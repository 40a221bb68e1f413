package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// ResolveConflict applies one resolution action to an open conflict.
// Resolving an already-resolved conflict is a no-op that returns the
// conflict as is.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID, action, actorID string) (*domain.Conflict, error) {
	c, err := e.Repo.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if c.ResolvedAt != nil {
		return &c, nil
	}

	switch action {
	case domain.ActionCancelEntry:
		err = e.resolveCancel(ctx, c, actorID)
	case domain.ActionOverrideAndKeep:
		err = e.resolveOverride(ctx, c, actorID)
	case domain.ActionRescheduleNextSlot:
		err = e.resolveReschedule(ctx, c, actorID)
	case domain.ActionSplitAndRetry:
		err = e.resolveSplitRetry(ctx, c, actorID)
	default:
		return nil, validationErrorf("unknown resolution action %q", action)
	}
	if err != nil {
		return nil, err
	}
	resolved, err := e.Repo.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	e.Log.Info().
		Str("conflict_id", conflictID).
		Str("user_id", c.UserID).
		Str("action", action).
		Msg("conflict resolved")
	return &resolved, nil
}

// resolveCancel drops the conflicting entries from the schedule.
func (e *Engine) resolveCancel(ctx context.Context, c domain.Conflict, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range c.EntryIDs {
		if err := e.Repo.DeleteEntryTx(ctx, tx, id); err != nil {
			return fmt.Errorf("cancel entry %s: %w", id, err)
		}
	}
	return e.finishResolution(ctx, tx, c, domain.ActionCancelEntry, actorID)
}

// conflictEntries reads the surviving entries named by a conflict.
// Reads go through the pool before any write transaction opens; a pool
// read while holding sqlite's write lock would wait on itself.
func (e *Engine) conflictEntries(ctx context.Context, c domain.Conflict) ([]domain.ScheduleEntry, error) {
	var out []domain.ScheduleEntry
	for _, id := range c.EntryIDs {
		entry, err := e.Repo.GetEntry(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// resolveOverride keeps the conflicting entries in place, pinned, and
// clears their conflicted status.
func (e *Engine) resolveOverride(ctx context.Context, c domain.Conflict, actorID string) error {
	entries, err := e.conflictEntries(ctx, c)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, entry := range entries {
		entry.Status = "scheduled"
		entry.Pinned = true
		if err := e.Repo.UpdateEntryTx(ctx, tx, entry); err != nil {
			return fmt.Errorf("override entry %s: %w", entry.ID, err)
		}
	}
	return e.finishResolution(ctx, tx, c, domain.ActionOverrideAndKeep, actorID)
}

// resolveReschedule unpins the conflicting entries so the next
// generation run can move them, then regenerates the user's schedule.
func (e *Engine) resolveReschedule(ctx context.Context, c domain.Conflict, actorID string) error {
	if len(c.EntryIDs) == 0 {
		return validationErrorf("conflict %s has no entries to reschedule", c.ID)
	}
	entries, err := e.conflictEntries(ctx, c)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, entry := range entries {
		entry.Status = "scheduled"
		entry.Pinned = false
		if err := e.Repo.UpdateEntryTx(ctx, tx, entry); err != nil {
			return fmt.Errorf("unpin entry %s: %w", entry.ID, err)
		}
	}
	if err := e.finishResolution(ctx, tx, c, domain.ActionRescheduleNextSlot, actorID); err != nil {
		return err
	}
	opts := e.DefaultOptions()
	opts.ActorID = actorID
	_, err = e.Generate(ctx, c.UserID, opts)
	return err
}

// resolveSplitRetry splits the conflicting task one level finer and
// regenerates, so the smaller pieces can land in gaps the whole task
// could not.
func (e *Engine) resolveSplitRetry(ctx context.Context, c domain.Conflict, actorID string) error {
	if c.TaskID == "" {
		return validationErrorf("conflict %s has no task to split", c.ID)
	}
	task, err := e.Repo.GetTask(ctx, c.TaskID)
	if err != nil {
		return err
	}
	incomplete := 0
	for _, iv := range task.Intervals {
		if !iv.IsCompleted {
			incomplete++
		}
	}
	if incomplete == 0 {
		incomplete = 1
	}
	if _, err := e.SplitTask(ctx, c.TaskID, incomplete+1, actorID); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.finishResolution(ctx, tx, c, domain.ActionSplitAndRetry, actorID); err != nil {
		return err
	}
	opts := e.DefaultOptions()
	opts.ActorID = actorID
	_, err = e.Generate(ctx, c.UserID, opts)
	return err
}

// finishResolution stamps the conflict, appends the audit event and
// commits the transaction.
func (e *Engine) finishResolution(ctx context.Context, tx *sql.Tx, c domain.Conflict, action, actorID string) error {
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.ResolveConflictTx(ctx, tx, c.ID, action, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "conflict.resolved", c.UserID, "conflict", c.ID, actorID, events.EventPayload{
		"action": action,
		"kind":   c.Kind,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
