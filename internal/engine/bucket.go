package engine

import "time"

// The conflict index quantizes time into 15-minute buckets keyed by
// unix-seconds/900 (equivalent to date+hour+floor(minute/15) in UTC).
// Buckets narrow an overlap test to the occupants sharing a bucket;
// candidates are then checked against the exact interval.

const bucketSeconds = 15 * 60

type span struct {
	start time.Time
	end   time.Time
}

func (s span) duration() time.Duration { return s.end.Sub(s.start) }

type occupant struct {
	id   string
	kind string // "entry" or "event"
	span span
}

type conflictIndex struct {
	buckets map[int64][]occupant
}

func newConflictIndex() *conflictIndex {
	return &conflictIndex{buckets: map[int64][]occupant{}}
}

// bucketRange returns the inclusive bucket keys spanned by [s.start, s.end).
func bucketRange(s span) (first, last int64) {
	first = s.start.Unix() / bucketSeconds
	last = (s.end.Unix() - 1) / bucketSeconds
	return first, last
}

func (ix *conflictIndex) register(o occupant) {
	first, last := bucketRange(o.span)
	for b := first; b <= last; b++ {
		ix.buckets[b] = append(ix.buckets[b], o)
	}
}

func (s span) overlaps(o span) bool {
	return s.start.Before(o.end) && o.start.Before(s.end)
}

// query returns every registered occupant whose span overlaps s,
// deduplicated, in registration order.
func (ix *conflictIndex) query(s span) []occupant {
	first, last := bucketRange(s)
	seen := map[string]bool{}
	var out []occupant
	for b := first; b <= last; b++ {
		for _, o := range ix.buckets[b] {
			if seen[o.id] {
				continue
			}
			seen[o.id] = true
			if s.overlaps(o.span) {
				out = append(out, o)
			}
		}
	}
	return out
}
