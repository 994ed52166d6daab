package schedule

import "kolenda/agenda-service/internal/models"

// Renumber rewrites each visit's ordinal to its 1-based position in the
// given order, in place. It must run after every insertion into or removal
// from an agenda so ordinals stay a gap-free 1..N range. Calling it twice on
// the same slice assigns the same numbers.
//
// Persisting the result must use the two-phase protocol (clear all ordinals,
// then write the final values) whenever an existing visit's new ordinal can
// collide with another visit's current one; the visits table enforces
// UNIQUE (agenda_id, ordinal_number).
func Renumber(visits []models.Visit) {
	for i := range visits {
		ordinal := i + 1
		visits[i].OrdinalNumber = &ordinal
	}
}
