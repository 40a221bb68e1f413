package engine

import (
	"testing"
	"time"
)

func weekdayWindow() workingWindow {
	return workingWindow{
		startHour: 9, endHour: 17,
		activeDays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
	}
}

func TestDayWindowsSkipsWeekendsAndHolidays(t *testing.T) {
	// 2026-03-02 is a Monday.
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	holidays := map[string]bool{"2026-03-04": true} // Wednesday off

	windows := dayWindows(from, to, weekdayWindow(), holidays)
	if len(windows) != 4 {
		t.Fatalf("expected 4 windows (Mon, Tue, Thu, Fri), got %d", len(windows))
	}
	for _, w := range windows {
		if w.start.Hour() != 9 || w.end.Hour() != 17 {
			t.Fatalf("window outside working hours: %v..%v", w.start, w.end)
		}
		if wd := w.start.Weekday(); wd == time.Saturday || wd == time.Sunday || w.start.Format(dateOnly) == "2026-03-04" {
			t.Fatalf("window on excluded day %v", w.start)
		}
	}
}

func TestDayWindowsClipsToHorizon(t *testing.T) {
	from := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	windows := dayWindows(from, to, weekdayWindow(), nil)
	if len(windows) != 1 {
		t.Fatalf("expected one window, got %d", len(windows))
	}
	if !windows[0].start.Equal(from) {
		t.Fatalf("window start not clipped to horizon start: %v", windows[0].start)
	}
}

func TestSubtractBusyCarvesMiddle(t *testing.T) {
	win := span{start: ts(9, 0), end: ts(17, 0)}
	busy := []span{{start: ts(12, 0), end: ts(13, 0)}}

	a := subtractBusy([]span{win}, busy)
	if len(a.ranges) != 2 {
		t.Fatalf("expected 2 free ranges, got %d", len(a.ranges))
	}
	if !a.ranges[0].start.Equal(ts(9, 0)) || !a.ranges[0].end.Equal(ts(12, 0)) {
		t.Fatalf("unexpected morning range %v..%v", a.ranges[0].start, a.ranges[0].end)
	}
	if !a.ranges[1].start.Equal(ts(13, 0)) || !a.ranges[1].end.Equal(ts(17, 0)) {
		t.Fatalf("unexpected afternoon range %v..%v", a.ranges[1].start, a.ranges[1].end)
	}
}

func TestSubtractBusyOverlappingSpans(t *testing.T) {
	win := span{start: ts(9, 0), end: ts(17, 0)}
	busy := []span{
		{start: ts(10, 0), end: ts(12, 0)},
		{start: ts(11, 0), end: ts(13, 0)},
		{start: ts(8, 0), end: ts(9, 30)},
	}
	a := subtractBusy([]span{win}, busy)
	if len(a.ranges) != 2 {
		t.Fatalf("expected 2 free ranges, got %d", len(a.ranges))
	}
	if !a.ranges[0].start.Equal(ts(9, 30)) || !a.ranges[0].end.Equal(ts(10, 0)) {
		t.Fatalf("unexpected first range %v..%v", a.ranges[0].start, a.ranges[0].end)
	}
	if !a.ranges[1].start.Equal(ts(13, 0)) || !a.ranges[1].end.Equal(ts(17, 0)) {
		t.Fatalf("unexpected second range %v..%v", a.ranges[1].start, a.ranges[1].end)
	}
}

func TestEarliestFitHonorsDueLimit(t *testing.T) {
	a := &availability{ranges: []*freeRange{
		{start: ts(9, 0), end: ts(10, 0)},
		{start: ts(13, 0), end: ts(17, 0)},
	}}
	// Two hours only fit the afternoon range.
	r := a.earliestFit(2*time.Hour, time.Time{})
	if r == nil || !r.start.Equal(ts(13, 0)) {
		t.Fatalf("expected afternoon range, got %+v", r)
	}
	// A limit at 14:00 leaves only one usable hour there.
	if r := a.earliestFit(2*time.Hour, ts(14, 0)); r != nil {
		t.Fatalf("expected no fit before limit, got %+v", r)
	}
}

func TestLargestFitPrefersBiggestRange(t *testing.T) {
	a := &availability{ranges: []*freeRange{
		{start: ts(9, 0), end: ts(11, 0)},
		{start: ts(13, 0), end: ts(17, 0)},
	}}
	r := a.largestFit(time.Hour, time.Time{})
	if r == nil || !r.start.Equal(ts(13, 0)) {
		t.Fatalf("expected the 4-hour range, got %+v", r)
	}
}

func TestTakeConsumesFromFront(t *testing.T) {
	r := &freeRange{start: ts(9, 0), end: ts(12, 0)}
	s := r.take(44 * time.Minute)
	if !s.start.Equal(ts(9, 0)) || !s.end.Equal(ts(9, 44)) {
		t.Fatalf("unexpected span %v..%v", s.start, s.end)
	}
	if !r.start.Equal(ts(9, 44)) {
		t.Fatalf("range not consumed, starts %v", r.start)
	}
}

func TestCeilToBucket(t *testing.T) {
	cases := []struct {
		in, want time.Time
	}{
		{ts(9, 0), ts(9, 0)},
		{ts(9, 1), ts(9, 15)},
		{ts(9, 15), ts(9, 15)},
		{ts(9, 46), ts(10, 0)},
	}
	for _, c := range cases {
		if got := ceilToBucket(c.in); !got.Equal(c.want) {
			t.Fatalf("ceilToBucket(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestChunkRespectsMinBlock(t *testing.T) {
	a := &availability{ranges: []*freeRange{
		{start: ts(9, 0), end: ts(12, 0)},  // 3h
		{start: ts(13, 0), end: ts(17, 0)}, // 4h
	}}
	chunks := a.chunk(6*time.Hour, time.Time{}, 15*time.Minute)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	var total time.Duration
	for _, c := range chunks {
		if c.duration() < 15*time.Minute {
			t.Fatalf("chunk below minimum block: %v", c.duration())
		}
		total += c.duration()
	}
	if total != 6*time.Hour {
		t.Fatalf("chunks sum to %v, want 6h", total)
	}
}

func TestChunkInsufficientCapacity(t *testing.T) {
	a := &availability{ranges: []*freeRange{
		{start: ts(9, 0), end: ts(10, 0)},
	}}
	if chunks := a.chunk(2*time.Hour, time.Time{}, 15*time.Minute); chunks != nil {
		t.Fatalf("expected nil for insufficient capacity, got %v", chunks)
	}
	// Failure must not consume the range.
	if !a.ranges[0].start.Equal(ts(9, 0)) {
		t.Fatalf("range consumed on failed chunk: starts %v", a.ranges[0].start)
	}
}
