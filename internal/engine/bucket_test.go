package engine

import (
	"testing"
	"time"
)

func ts(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestConflictIndexOverlap(t *testing.T) {
	ix := newConflictIndex()
	ix.register(occupant{id: "a", kind: "entry", span: span{start: ts(9, 0), end: ts(10, 0)}})

	if occ := ix.query(span{start: ts(9, 45), end: ts(10, 15)}); len(occ) != 1 || occ[0].id != "a" {
		t.Fatalf("expected overlap with a, got %v", occ)
	}
	// Back-to-back spans share a boundary but do not overlap.
	if occ := ix.query(span{start: ts(10, 0), end: ts(10, 30)}); len(occ) != 0 {
		t.Fatalf("adjacent span should not conflict, got %v", occ)
	}
	if occ := ix.query(span{start: ts(8, 0), end: ts(9, 0)}); len(occ) != 0 {
		t.Fatalf("earlier span should not conflict, got %v", occ)
	}
}

func TestConflictIndexDeduplicates(t *testing.T) {
	ix := newConflictIndex()
	// Three hours spans many buckets; the occupant must be reported once.
	ix.register(occupant{id: "long", kind: "event", span: span{start: ts(9, 0), end: ts(12, 0)}})
	occ := ix.query(span{start: ts(9, 30), end: ts(11, 30)})
	if len(occ) != 1 {
		t.Fatalf("expected one occupant, got %d", len(occ))
	}
}

func TestConflictIndexSubBucketSpans(t *testing.T) {
	ix := newConflictIndex()
	ix.register(occupant{id: "short", kind: "entry", span: span{start: ts(9, 0), end: ts(9, 10)}})
	if occ := ix.query(span{start: ts(9, 5), end: ts(9, 20)}); len(occ) != 1 {
		t.Fatalf("expected overlap inside one bucket, got %v", occ)
	}
	// Within the same bucket but not actually overlapping.
	if occ := ix.query(span{start: ts(9, 10), end: ts(9, 14)}); len(occ) != 0 {
		t.Fatalf("non-overlapping span in shared bucket should not conflict, got %v", occ)
	}
}
