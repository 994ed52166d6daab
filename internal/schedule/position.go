package schedule

import (
	"strings"

	"kolenda/agenda-service/internal/models"
)

// unitKey is the natural ordering key for buildings and apartments: the
// numeric part compares first, then the letter suffix case-insensitively.
// An empty letter sorts before any letter, so 12 < 12a < 12b < 13.
type unitKey struct {
	number int
	letter string
}

func compareKeys(a, b unitKey) int {
	if a.number != b.number {
		if a.number < b.number {
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToLower(a.letter), strings.ToLower(b.letter))
}

func buildingKey(visit models.Visit) unitKey {
	return unitKey{number: visit.BuildingNumber, letter: visit.BuildingLetter}
}

func apartmentKey(visit models.Visit) unitKey {
	return unitKey{number: visit.ApartmentNumber, letter: visit.ApartmentLetter}
}

// ResolvePosition computes the 0-based index at which newVisit belongs in
// visits, one agenda's member visits in ordinal order. Returning len(visits)
// means append at the end. The input slice is never mutated and the result
// depends only on the inputs.
//
// Rules, first match wins:
//  1. empty agenda: front
//  2. street not planned yet: end of the agenda
//  3. street planned, building new: between the street's building groups
//     when they run in a strict direction, otherwise end of the agenda
//  4. building already planned: inside its longest consecutive run, by
//     apartment order or by the elevator direction heuristic
func ResolvePosition(newVisit models.Visit, visits []models.Visit) int {
	if len(visits) == 0 {
		return 0
	}

	if !streetPlanned(newVisit.StreetID, visits) {
		return len(visits)
	}

	runs := buildingRuns(newVisit.BuildingID, visits)
	if len(runs) == 0 {
		return positionAmongBuildings(newVisit, visits)
	}
	return positionWithinBuilding(newVisit, visits, longestRun(runs))
}

func streetPlanned(streetID string, visits []models.Visit) bool {
	for _, visit := range visits {
		if visit.StreetID == streetID {
			return true
		}
	}
	return false
}

// buildingGroup is one building's visits on a street, identified by its
// (number, letter) key. first and last index into the full agenda list and
// span every visit of that building, in appearance order.
type buildingGroup struct {
	key   unitKey
	first int
	last  int
}

func streetBuildingGroups(streetID string, visits []models.Visit) []buildingGroup {
	var groups []buildingGroup
	seen := map[unitKey]int{}
	for i, visit := range visits {
		if visit.StreetID != streetID {
			continue
		}
		key := unitKey{number: visit.BuildingNumber, letter: strings.ToLower(visit.BuildingLetter)}
		if at, ok := seen[key]; ok {
			groups[at].last = i
			continue
		}
		seen[key] = len(groups)
		groups = append(groups, buildingGroup{key: key, first: i, last: i})
	}
	return groups
}

// positionAmongBuildings places a visit for a building not yet present on an
// already-planned street. A single building group means the team is working
// that street, so the new building joins right after it. Several groups give
// an ordering signal only when their keys run strictly in one direction.
func positionAmongBuildings(newVisit models.Visit, visits []models.Visit) int {
	groups := streetBuildingGroups(newVisit.StreetID, visits)
	if len(groups) == 1 {
		return groups[0].last + 1
	}

	keys := make([]unitKey, len(groups))
	for i, group := range groups {
		keys[i] = group.key
	}
	ascending, ok := monotonicDirection(keys)
	if !ok {
		return len(visits)
	}

	newKey := buildingKey(newVisit)
	for _, group := range groups {
		cmp := compareKeys(group.key, newKey)
		if ascending && cmp > 0 {
			return group.first
		}
		if !ascending && cmp < 0 {
			return group.first
		}
	}
	return groups[len(groups)-1].last + 1
}

// visitRun is a maximal stretch of consecutive agenda entries belonging to
// one building.
type visitRun struct {
	first int
	last  int
}

func buildingRuns(buildingID string, visits []models.Visit) []visitRun {
	var runs []visitRun
	open := false
	for i, visit := range visits {
		if visit.BuildingID != buildingID {
			open = false
			continue
		}
		if open {
			runs[len(runs)-1].last = i
			continue
		}
		runs = append(runs, visitRun{first: i, last: i})
		open = true
	}
	return runs
}

func longestRun(runs []visitRun) visitRun {
	best := runs[0]
	for _, run := range runs[1:] {
		if run.last-run.first > best.last-best.first {
			best = run
		}
	}
	return best
}

// positionWithinBuilding places a visit inside the chosen run of its own
// building. When the run's apartments already go strictly up or strictly
// down, the visit slots in by apartment order. Otherwise the building's
// elevator decides the assumed traversal direction: with an elevator the
// team rides to the top and works down, without one it climbs bottom-up.
func positionWithinBuilding(newVisit models.Visit, visits []models.Visit, run visitRun) int {
	keys := make([]unitKey, 0, run.last-run.first+1)
	for i := run.first; i <= run.last; i++ {
		keys = append(keys, apartmentKey(visits[i]))
	}

	ascending, ok := monotonicDirection(keys)
	if !ok {
		ascending = !visits[run.first].HasElevator
	}

	newKey := apartmentKey(newVisit)
	for i := run.first; i <= run.last; i++ {
		cmp := compareKeys(apartmentKey(visits[i]), newKey)
		if ascending && cmp > 0 {
			return i
		}
		if !ascending && cmp < 0 {
			return i
		}
	}
	return run.last + 1
}

// monotonicDirection reports whether keys run strictly in one direction.
// ascending is meaningful only when ok is true; fewer than two keys or any
// tie or direction reversal yields ok=false.
func monotonicDirection(keys []unitKey) (ascending, ok bool) {
	if len(keys) < 2 {
		return false, false
	}
	direction := 0
	for i := 1; i < len(keys); i++ {
		cmp := compareKeys(keys[i-1], keys[i])
		if cmp == 0 {
			return false, false
		}
		step := 1
		if cmp > 0 {
			step = -1
		}
		if direction == 0 {
			direction = step
		} else if direction != step {
			return false, false
		}
	}
	return direction > 0, true
}
