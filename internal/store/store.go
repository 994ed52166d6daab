package store

import (
	"context"
	"encoding/json"
	"time"

	"kolenda/agenda-service/internal/models"
)

type AssignVisitInput struct {
	RequestID string
	ParishID  string
	VisitID   string
	// AgendaID pins the target agenda; when empty the store selects one
	// among the day's agendas or creates a new one.
	AgendaID   string
	DayID      string
	AssignedAt time.Time
}

type VisitActionInput struct {
	RequestID  string
	ParishID   string
	VisitID    string
	Reason     string
	OccurredAt time.Time
}

type ReorderAgendaInput struct {
	RequestID string
	ParishID  string
	AgendaID  string
	// VisitIDs is the full desired order; it must name exactly the
	// agenda's current members.
	VisitIDs []string
}

type VisitStore interface {
	AssignVisit(ctx context.Context, input AssignVisitInput) (models.Visit, bool, error)
	RemoveVisit(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	StartVisit(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	MarkVisited(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	RejectVisit(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	SuspendVisit(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	ResumeVisit(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	WithdrawVisit(ctx context.Context, input VisitActionInput) (models.Visit, bool, error)
	ReorderAgenda(ctx context.Context, input ReorderAgendaInput) ([]models.Visit, error)
	GetVisit(ctx context.Context, parishID, visitID string) (models.Visit, bool, error)
	GetAgenda(ctx context.Context, parishID, agendaID string) (models.Agenda, bool, error)
	GetVisitAgenda(ctx context.Context, parishID, visitID string) (models.Agenda, models.Visit, bool, error)
	ListAgendasForDay(ctx context.Context, parishID, dayID string) ([]models.Agenda, error)
	LoadScheduleMinutes(ctx context.Context) (map[string]int, error)
	AutoSuspend(ctx context.Context, grace time.Duration, batchSize int) (int, error)
	ListOutboxEvents(ctx context.Context, parishID string, after time.Time, limit int) ([]OutboxEvent, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	UserID    string
	ParishID  string
	Role      string
	ExpiresAt time.Time
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	ParishID  string          `json:"parish_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
