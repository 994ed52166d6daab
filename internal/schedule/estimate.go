package schedule

import (
	"math"
	"time"

	"kolenda/agenda-service/internal/models"
)

const (
	// DefaultMinutesPerVisit applies when neither the agenda nor the visit's
	// schedule category configures a duration.
	DefaultMinutesPerVisit = 10

	minRangeWidthMinutes = 15
	maxRangeWidthMinutes = 120

	// startSlack bounds how early a predicted window may open before the
	// agenda's first hour, and how early the queue counts as started.
	startSlack = 15 * time.Minute

	roundStep = 5 * time.Minute
)

// Estimator turns a visit's queue position into predicted wall-clock times.
// Static mode yields a single instant for planning views; range mode yields
// the confidence window shown to the household. The clock is injected so
// range mode is deterministic under test.
type Estimator struct {
	defaultUnit   time.Duration
	scheduleUnits map[string]int
	now           func() time.Time
}

type EstimatorOptions struct {
	// MinutesPerVisit overrides the global default duration.
	MinutesPerVisit int
	// ScheduleMinutes maps a schedule category to its default duration,
	// sourced from the settings store.
	ScheduleMinutes map[string]int
	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time
}

func NewEstimator(options EstimatorOptions) *Estimator {
	minutes := options.MinutesPerVisit
	if minutes <= 0 {
		minutes = DefaultMinutesPerVisit
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Estimator{
		defaultUnit:   time.Duration(minutes) * time.Minute,
		scheduleUnits: options.ScheduleMinutes,
		now:           now,
	}
}

// unitFor resolves the per-visit duration: agenda override, then the
// schedule category's configured default, then the global default.
func (e *Estimator) unitFor(agenda models.Agenda, scheduleID string) time.Duration {
	if agenda.MinutesPerVisit != nil && *agenda.MinutesPerVisit > 0 {
		return time.Duration(*agenda.MinutesPerVisit) * time.Minute
	}
	if minutes, ok := e.scheduleUnits[scheduleID]; ok && minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return e.defaultUnit
}

// EstimateStatic predicts the instant a visit comes up, for internal
// planning views: the agenda start plus one unit per visit ahead of it,
// capped at the agenda end. ok=false means the visit is not in the agenda.
func (e *Estimator) EstimateStatic(agenda models.Agenda, visitID string) (time.Time, bool) {
	index := -1
	var visit models.Visit
	for i, candidate := range agenda.Visits {
		if candidate.VisitID == visitID {
			index = i
			visit = candidate
			break
		}
	}
	if index < 0 {
		return time.Time{}, false
	}

	unit := e.unitFor(agenda, visit.ScheduleID)
	at := agenda.StartAt.Add(time.Duration(index) * unit)
	if at.After(agenda.EndAt) {
		at = agenda.EndAt
	}
	if at.Before(agenda.StartAt) {
		at = agenda.StartAt
	}
	return at, true
}

// EstimateRange predicts the confidence window shown to the household.
// ok=false means no estimate should be displayed: the visit is missing,
// already concluded, withdrawn, or the agenda suppresses estimates.
//
// Before the team starts working the agenda, every member visit counts
// toward the position and the window is anchored at the scheduled start.
// Once the queue is in progress only visits still ahead of the team count,
// and the anchor moves with the clock.
func (e *Estimator) EstimateRange(agenda models.Agenda, visitID string) (start, end time.Time, ok bool) {
	if agenda.HideEstimates {
		return time.Time{}, time.Time{}, false
	}

	index := -1
	var visit models.Visit
	for i, candidate := range agenda.Visits {
		if candidate.VisitID == visitID {
			index = i
			visit = candidate
			break
		}
	}
	if index < 0 {
		return time.Time{}, time.Time{}, false
	}
	if visit.Status != models.StatusPlanned && visit.Status != models.StatusSuspended {
		return time.Time{}, time.Time{}, false
	}

	now := e.now()
	position := index + 1
	base := agenda.StartAt
	if e.queueStarted(agenda, now) {
		position = 1
		for _, candidate := range agenda.Visits[:index] {
			if !visitConcluded(candidate.Status) {
				position++
			}
		}
		if now.After(base) {
			base = now
		}
	}

	unit := e.unitFor(agenda, visit.ScheduleID)
	center := base.Add(time.Duration(position-1) * unit)
	width := time.Duration(RangeWidth(position)) * time.Minute
	start = center.Add(-width / 2)
	end = center.Add(width / 2)

	if floor := agenda.StartAt.Add(-startSlack); start.Before(floor) {
		start = floor
	}
	if floor := agenda.StartAt.Add(startSlack); end.Before(floor) {
		end = floor
	}
	if end.After(agenda.EndAt) {
		end = agenda.EndAt
	}
	if !start.Before(end) {
		end = agenda.EndAt
		start = end.Add(-minRangeWidthMinutes * time.Minute)
	}

	return floorToStep(start), ceilToStep(end), true
}

// queueStarted reports whether the team is working the agenda: the clock is
// within startSlack of (or past) the scheduled start and at least one visit
// has moved beyond planned.
func (e *Estimator) queueStarted(agenda models.Agenda, now time.Time) bool {
	if now.Before(agenda.StartAt.Add(-startSlack)) {
		return false
	}
	for _, visit := range agenda.Visits {
		if visitConcluded(visit.Status) {
			return true
		}
	}
	return false
}

// visitConcluded reports whether a visit no longer sits ahead of the team:
// it is being handled right now or has already been handled.
func visitConcluded(status string) bool {
	switch status {
	case models.StatusPending, models.StatusVisited, models.StatusRejected, models.StatusSuspended:
		return true
	default:
		return false
	}
}

// RangeWidth returns the width in minutes of the predicted window for the
// given 1-based queue position. The window widens quadratically with
// distance from the front of the queue and saturates at two hours from
// position ten onward.
func RangeWidth(position int) int {
	if position >= 10 {
		return maxRangeWidthMinutes
	}
	if position < 1 {
		position = 1
	}
	t := float64(10-position) / 9
	width := minRangeWidthMinutes + (maxRangeWidthMinutes-minRangeWidthMinutes)*(1-t)*(1-t)
	return int(math.Round(width))
}

func floorToStep(t time.Time) time.Time {
	return t.Truncate(roundStep)
}

func ceilToStep(t time.Time) time.Time {
	floored := t.Truncate(roundStep)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(roundStep)
}
