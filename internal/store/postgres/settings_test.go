package postgres

import "testing"

func TestParseScheduleMinutes(t *testing.T) {
	scheduleID, minutes, ok := parseScheduleMinutes("minutes_per_visit.sched-1", "15")
	if !ok || scheduleID != "sched-1" || minutes != 15 {
		t.Fatalf("expected (sched-1, 15, true), got (%s, %d, %v)", scheduleID, minutes, ok)
	}
	if _, _, ok := parseScheduleMinutes("minutes_per_visit.", "15"); ok {
		t.Fatalf("expected empty schedule ID to be rejected")
	}
	if _, _, ok := parseScheduleMinutes("other_key", "15"); ok {
		t.Fatalf("expected non-prefixed key to be rejected")
	}
	if _, _, ok := parseScheduleMinutes("minutes_per_visit.sched-1", "zero"); ok {
		t.Fatalf("expected non-numeric value to be rejected")
	}
	if _, _, ok := parseScheduleMinutes("minutes_per_visit.sched-1", "-5"); ok {
		t.Fatalf("expected non-positive value to be rejected")
	}
}

func TestPrefixedVisitColumns(t *testing.T) {
	got := prefixedVisitColumns("v")
	if got[:10] != "v.visit_id" {
		t.Fatalf("expected alias prefix, got %q", got[:10])
	}
}
