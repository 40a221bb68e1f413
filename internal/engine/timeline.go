package engine

import (
	"sort"
	"time"
)

const dateOnly = "2006-01-02"

// workingWindow describes a user's daily availability in engine form.
type workingWindow struct {
	startHour, startMin int
	endHour, endMin     int
	activeDays          map[time.Weekday]bool
}

// freeRange is an unoccupied stretch of a working window. Placement
// consumes a range from its start.
type freeRange struct {
	start time.Time
	end   time.Time
}

// usable returns how much of the range is usable before limit.
func (r *freeRange) usable(limit time.Time) time.Duration {
	end := r.end
	if !limit.IsZero() && limit.Before(end) {
		end = limit
	}
	if !end.After(r.start) {
		return 0
	}
	return end.Sub(r.start)
}

// take consumes d from the front of the range.
func (r *freeRange) take(d time.Duration) span {
	s := span{start: r.start, end: r.start.Add(d)}
	r.start = s.end
	return s
}

// availability is the ordered free time of one generation run.
type availability struct {
	ranges []*freeRange
}

// dayWindows builds the forward timeline of candidate working windows in
// [from, to), skipping inactive weekdays and holidays.
func dayWindows(from, to time.Time, w workingWindow, holidays map[string]bool) []span {
	var out []span
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for day.Before(to) {
		if w.activeDays[day.Weekday()] && !holidays[day.Format(dateOnly)] {
			win := span{
				start: day.Add(time.Duration(w.startHour)*time.Hour + time.Duration(w.startMin)*time.Minute),
				end:   day.Add(time.Duration(w.endHour)*time.Hour + time.Duration(w.endMin)*time.Minute),
			}
			if win.start.Before(from) {
				win.start = from
			}
			if win.end.After(to) {
				win.end = to
			}
			if win.end.After(win.start) {
				out = append(out, win)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// subtractBusy removes occupied spans from the windows, producing the
// run's free ranges.
func subtractBusy(windows, busy []span) *availability {
	sorted := make([]span, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start.Before(sorted[j].start) })

	a := &availability{}
	for _, win := range windows {
		cursor := win.start
		for _, b := range sorted {
			if !b.end.After(cursor) || !b.start.Before(win.end) {
				continue
			}
			if b.start.After(cursor) {
				a.ranges = append(a.ranges, &freeRange{start: cursor, end: b.start})
			}
			if b.end.After(cursor) {
				cursor = b.end
			}
			if !cursor.Before(win.end) {
				break
			}
		}
		if cursor.Before(win.end) {
			a.ranges = append(a.ranges, &freeRange{start: cursor, end: win.end})
		}
	}
	return a
}

// earliestFit returns the first range with usable capacity >= d before limit.
func (a *availability) earliestFit(d time.Duration, limit time.Time) *freeRange {
	for _, r := range a.ranges {
		if r.usable(limit) >= d {
			return r
		}
	}
	return nil
}

// largestFit returns the fitting range with the most remaining capacity,
// packing work into fewer, larger ranges. Ties go to the earliest.
func (a *availability) largestFit(d time.Duration, limit time.Time) *freeRange {
	var best *freeRange
	var bestCap time.Duration
	for _, r := range a.ranges {
		c := r.usable(limit)
		if c >= d && c > bestCap {
			best = r
			bestCap = c
		}
	}
	return best
}

// capacityBefore sums usable capacity across all ranges before limit.
func (a *availability) capacityBefore(limit time.Time) time.Duration {
	var total time.Duration
	for _, r := range a.ranges {
		total += r.usable(limit)
	}
	return total
}

// ceilToBucket rounds t up to the next 15-minute boundary.
func ceilToBucket(t time.Time) time.Time {
	sec := t.Unix()
	rem := sec % bucketSeconds
	if rem == 0 && t.Nanosecond() == 0 {
		return t
	}
	return time.Unix(sec-rem+bucketSeconds, 0).UTC()
}
