package models

import "time"

type Visit struct {
	VisitID         string     `json:"visit_id"`
	SubmissionID    string     `json:"submission_id"`
	ParishID        string     `json:"parish_id,omitempty"`
	AgendaID        *string    `json:"agenda_id,omitempty"`
	OrdinalNumber   *int       `json:"ordinal_number,omitempty"`
	Status          string     `json:"status"`
	StreetID        string     `json:"street_id"`
	BuildingID      string     `json:"building_id"`
	BuildingNumber  int        `json:"building_number"`
	BuildingLetter  string     `json:"building_letter,omitempty"`
	ApartmentNumber int        `json:"apartment_number"`
	ApartmentLetter string     `json:"apartment_letter,omitempty"`
	HasElevator     bool       `json:"has_elevator"`
	ScheduleID      string     `json:"schedule_id"`
	CreatedAt       time.Time  `json:"created_at"`
	ConcludedAt     *time.Time `json:"concluded_at,omitempty"`
	RequestID       string     `json:"request_id,omitempty"`
}

const (
	StatusUnplanned = "unplanned"
	StatusPlanned   = "planned"
	StatusPending   = "pending"
	StatusVisited   = "visited"
	StatusRejected  = "rejected"
	StatusSuspended = "suspended"
	StatusWithdrawn = "withdrawn"
)
