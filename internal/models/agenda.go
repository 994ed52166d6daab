package models

import "time"

// Agenda is one visiting team's ordered worklist for a single day. StartAt
// and EndAt carry the day's default hours unless the agenda overrides them;
// the store resolves that before the agenda reaches any caller.
type Agenda struct {
	AgendaID        string    `json:"agenda_id"`
	ParishID        string    `json:"parish_id,omitempty"`
	DayID           string    `json:"day_id"`
	Date            time.Time `json:"date"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	MinutesPerVisit *int      `json:"minutes_per_visit,omitempty"`
	HideEstimates   bool      `json:"hide_estimates"`
	Visits          []Visit   `json:"visits,omitempty"`
}
