package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/events"
)

// SplitDurations divides total minutes into n ordered pieces. Every piece
// except the last equals ceil(total/n); the last absorbs the remainder, so
// the pieces always sum exactly to total.
func SplitDurations(total, n int) ([]int, error) {
	if total <= 0 {
		return nil, validationErrorf("duration must be positive, got %d", total)
	}
	if n <= 0 {
		return nil, validationErrorf("interval count must be positive, got %d", n)
	}
	head := (total + n - 1) / n
	last := total - head*(n-1)
	if last <= 0 {
		return nil, validationErrorf("interval count %d too large for %d minutes", n, total)
	}
	out := make([]int, n)
	for i := 0; i < n-1; i++ {
		out[i] = head
	}
	out[n-1] = last
	return out, nil
}

// SplitTask re-splits a task's remaining duration into n intervals.
// Completed intervals are preserved untouched and excluded from the new
// split; incomplete ones are discarded and replaced.
func (e *Engine) SplitTask(ctx context.Context, taskID string, n int, actorID string) ([]domain.TaskInterval, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	completed := 0
	maxPos := -1
	for _, iv := range t.Intervals {
		if iv.IsCompleted {
			completed += iv.DurationMinutes
			if iv.Position > maxPos {
				maxPos = iv.Position
			}
		}
	}
	remaining := t.EstimatedMinutes - completed
	if remaining <= 0 {
		return nil, validationErrorf("task %s has no remaining duration to split", taskID)
	}
	durations, err := SplitDurations(remaining, n)
	if err != nil {
		return nil, err
	}
	fresh := make([]domain.TaskInterval, 0, len(durations))
	for i, d := range durations {
		fresh = append(fresh, domain.TaskInterval{
			ID:              uuid.New().String(),
			TaskID:          taskID,
			DurationMinutes: d,
			Position:        maxPos + 1 + i,
		})
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceIncompleteIntervalsTx(ctx, tx, taskID, fresh); err != nil {
		return nil, err
	}
	if err := e.Repo.SetTaskStatusTx(ctx, tx, taskID, t.Status, e.now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "task.split", t.UserID, "task", taskID, actorID, events.EventPayload{
		"intervals": n,
		"remaining": remaining,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out, err := e.Repo.ListIntervals(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return out, nil
}
