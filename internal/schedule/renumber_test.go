package schedule

import (
	"testing"

	"kolenda/agenda-service/internal/models"
)

func TestRenumberAssignsContiguousOrdinals(t *testing.T) {
	five := 5
	visits := []models.Visit{
		{VisitID: "a", OrdinalNumber: &five},
		{VisitID: "b"},
		{VisitID: "c", OrdinalNumber: &five},
	}
	Renumber(visits)
	for i, visit := range visits {
		if visit.OrdinalNumber == nil || *visit.OrdinalNumber != i+1 {
			t.Fatalf("visit %d: expected ordinal %d, got %v", i, i+1, visit.OrdinalNumber)
		}
	}
}

func TestRenumberIdempotent(t *testing.T) {
	visits := []models.Visit{{VisitID: "a"}, {VisitID: "b"}, {VisitID: "c"}}
	Renumber(visits)
	first := make([]int, len(visits))
	for i, visit := range visits {
		first[i] = *visit.OrdinalNumber
	}
	Renumber(visits)
	for i, visit := range visits {
		if *visit.OrdinalNumber != first[i] {
			t.Fatalf("visit %d: ordinal changed from %d to %d", i, first[i], *visit.OrdinalNumber)
		}
	}
}

func TestRenumberAfterRemovalClosesGap(t *testing.T) {
	visits := []models.Visit{{VisitID: "a"}, {VisitID: "b"}, {VisitID: "c"}, {VisitID: "d"}}
	Renumber(visits)

	// drop the second visit and renumber the remainder
	remaining := append([]models.Visit{}, visits[0])
	remaining = append(remaining, visits[2:]...)
	Renumber(remaining)

	seen := map[int]bool{}
	for _, visit := range remaining {
		if visit.OrdinalNumber == nil {
			t.Fatal("expected every ordinal set")
		}
		if seen[*visit.OrdinalNumber] {
			t.Fatalf("duplicate ordinal %d", *visit.OrdinalNumber)
		}
		seen[*visit.OrdinalNumber] = true
	}
	for n := 1; n <= len(remaining); n++ {
		if !seen[n] {
			t.Fatalf("missing ordinal %d", n)
		}
	}
}
