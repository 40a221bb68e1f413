package engine_test

import (
	"testing"

	"planline/internal/engine"
)

func TestSplitDurations(t *testing.T) {
	cases := []struct {
		total, n int
		want     []int
	}{
		{130, 3, []int{44, 44, 42}},
		{90, 3, []int{30, 30, 30}},
		{120, 2, []int{60, 60}},
		{61, 2, []int{31, 30}},
		{45, 1, []int{45}},
	}
	for _, c := range cases {
		got, err := engine.SplitDurations(c.total, c.n)
		if err != nil {
			t.Fatalf("SplitDurations(%d, %d): %v", c.total, c.n, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("SplitDurations(%d, %d) = %v, want %v", c.total, c.n, got, c.want)
		}
		sum := 0
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("SplitDurations(%d, %d) = %v, want %v", c.total, c.n, got, c.want)
			}
			sum += got[i]
		}
		if sum != c.total {
			t.Fatalf("pieces of %d sum to %d", c.total, sum)
		}
	}
}

func TestSplitDurationsRejectsBadInput(t *testing.T) {
	for _, c := range []struct{ total, n int }{
		{0, 2},
		{-10, 2},
		{60, 0},
		{60, -1},
		{6, 4}, // ceil(6/4)=2 leaves nothing for the last piece
	} {
		if _, err := engine.SplitDurations(c.total, c.n); !engine.IsValidation(err) {
			t.Fatalf("SplitDurations(%d, %d): expected validation error, got %v", c.total, c.n, err)
		}
	}
}

func TestSplitTaskReplacesIncompleteIntervals(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "long report", 120, "medium", nil)

	intervals, err := env.Engine.SplitTask(env.Ctx, task.ID, 2, "tester")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(intervals) != 2 || intervals[0].DurationMinutes != 60 || intervals[1].DurationMinutes != 60 {
		t.Fatalf("unexpected intervals: %+v", intervals)
	}

	// Re-splitting discards the previous incomplete intervals.
	intervals, err = env.Engine.SplitTask(env.Ctx, task.ID, 3, "tester")
	if err != nil {
		t.Fatalf("re-split: %v", err)
	}
	if len(intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(intervals))
	}
	sum := 0
	for _, iv := range intervals {
		sum += iv.DurationMinutes
	}
	if sum != 120 {
		t.Fatalf("intervals sum to %d, want 120", sum)
	}
}

func TestSplitTaskPreservesCompletedIntervals(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "long report", 120, "medium", nil)

	intervals, err := env.Engine.SplitTask(env.Ctx, task.ID, 2, "tester")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	done := intervals[0]
	if _, err := env.Engine.CompleteInterval(env.Ctx, task.ID, done.ID, "tester"); err != nil {
		t.Fatalf("complete interval: %v", err)
	}

	// Only the remaining 60 minutes are re-divided.
	intervals, err = env.Engine.SplitTask(env.Ctx, task.ID, 3, "tester")
	if err != nil {
		t.Fatalf("re-split: %v", err)
	}
	if len(intervals) != 4 {
		t.Fatalf("expected completed + 3 new intervals, got %d", len(intervals))
	}
	if intervals[0].ID != done.ID || !intervals[0].IsCompleted {
		t.Fatalf("completed interval not preserved first: %+v", intervals[0])
	}
	for _, iv := range intervals[1:] {
		if iv.DurationMinutes != 20 {
			t.Fatalf("expected 20-minute pieces, got %+v", iv)
		}
		if iv.IsCompleted {
			t.Fatalf("fresh interval marked completed: %+v", iv)
		}
	}
}

func TestSplitTaskNoRemainingDuration(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "tiny", 30, "low", nil)
	intervals, err := env.Engine.SplitTask(env.Ctx, task.ID, 1, "tester")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if _, err := env.Engine.CompleteInterval(env.Ctx, task.ID, intervals[0].ID, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.Engine.SplitTask(env.Ctx, task.ID, 2, "tester"); !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
