package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"kolenda/agenda-service/internal/models"
	"kolenda/agenda-service/internal/schedule"
	"kolenda/agenda-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const visitColumns = `visit_id, submission_id, parish_id, agenda_id, ordinal_number, status,
	street_id, building_id, building_number, building_letter,
	apartment_number, apartment_letter, has_elevator, schedule_id,
	created_at, concluded_at`

const scheduleMinutesPrefix = "minutes_per_visit."

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// AssignVisit places a visit into an agenda: it picks the agenda when the
// input names none, computes the insertion point from the household address,
// and renumbers the whole sequence with the two-phase protocol so the
// UNIQUE (agenda_id, ordinal_number) constraint never trips mid-update.
func (s *Store) AssignVisit(ctx context.Context, input store.AssignVisitInput) (models.Visit, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Visit{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "assign", input.RequestID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Visit{}, false, err
		}
		if empty {
			return models.Visit{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	visit, err := getVisitForUpdate(ctx, tx, input.ParishID, input.VisitID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if !store.ValidTransition("assign", visit.Status) {
		return models.Visit{}, false, store.ErrInvalidState
	}

	agendaID := input.AgendaID
	if agendaID == "" {
		agendaID, err = s.chooseAgenda(ctx, tx, input.ParishID, input.DayID, visit)
		if err != nil {
			return models.Visit{}, false, err
		}
	} else if err = ensureAgendaExists(ctx, tx, input.ParishID, agendaID); err != nil {
		return models.Visit{}, false, err
	}

	members, err := lockAgendaVisits(ctx, tx, agendaID)
	if err != nil {
		return models.Visit{}, false, err
	}

	index := schedule.ResolvePosition(visit, members)
	visit.AgendaID = &agendaID
	visit.Status = models.StatusPlanned

	ordered := make([]models.Visit, 0, len(members)+1)
	ordered = append(ordered, members[:index]...)
	ordered = append(ordered, visit)
	ordered = append(ordered, members[index:]...)
	schedule.Renumber(ordered)

	if err = renumberAgenda(ctx, tx, agendaID, ordered); err != nil {
		return models.Visit{}, false, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE visits
		SET status = $1
		WHERE visit_id = $2
	`, models.StatusPlanned, visit.VisitID); err != nil {
		return models.Visit{}, false, err
	}
	visit.OrdinalNumber = ordered[index].OrdinalNumber
	visit.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, "assign", input.RequestID, input.ParishID, visit.VisitID, agendaID); err != nil {
		return models.Visit{}, false, err
	}
	if err = insertVisitOutboxEvent(ctx, tx, input.ParishID, "visit.assigned", visit, ""); err != nil {
		return models.Visit{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Visit{}, false, err
	}
	return visit, true, nil
}

// chooseAgenda applies the day-level selection rules and creates a fresh
// agenda when they signal one.
func (s *Store) chooseAgenda(ctx context.Context, tx pgx.Tx, parishID, dayID string, visit models.Visit) (string, error) {
	if err := ensureDayExists(ctx, tx, parishID, dayID); err != nil {
		return "", err
	}
	agendas, err := listDayAgendas(ctx, tx, parishID, dayID, true)
	if err != nil {
		return "", err
	}
	if agendaID, ok := schedule.SelectAgenda(agendas, visit); ok {
		return agendaID, nil
	}

	agendaID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO agendas (agenda_id, parish_id, day_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, agendaID, parishID, dayID, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return agendaID, nil
}

func (s *Store) RemoveVisit(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.unassignVisit(ctx, input, "remove", models.StatusUnplanned, "visit.removed")
}

// WithdrawVisit takes a visit out of play for the whole planning cycle. A
// queued visit also leaves its agenda and the remaining sequence closes up.
func (s *Store) WithdrawVisit(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.unassignVisit(ctx, input, "withdraw", models.StatusWithdrawn, "visit.withdrawn")
}

func (s *Store) unassignVisit(ctx context.Context, input store.VisitActionInput, action, toStatus, eventType string) (models.Visit, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Visit{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Visit{}, false, err
		}
		if empty {
			return models.Visit{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	visit, err := getVisitForUpdate(ctx, tx, input.ParishID, input.VisitID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if !store.ValidTransition(action, visit.Status) {
		return models.Visit{}, false, store.ErrInvalidState
	}
	if action == "remove" && visit.AgendaID == nil {
		return models.Visit{}, false, store.ErrVisitNotInAgenda
	}

	if _, err = tx.Exec(ctx, `
		UPDATE visits
		SET status = $1,
			agenda_id = NULL,
			ordinal_number = NULL
		WHERE visit_id = $2
	`, toStatus, visit.VisitID); err != nil {
		return models.Visit{}, false, err
	}

	if visit.AgendaID != nil {
		var remaining []models.Visit
		remaining, err = lockAgendaVisits(ctx, tx, *visit.AgendaID)
		if err != nil {
			return models.Visit{}, false, err
		}
		schedule.Renumber(remaining)
		if err = renumberAgenda(ctx, tx, *visit.AgendaID, remaining); err != nil {
			return models.Visit{}, false, err
		}
	}

	removedFrom := ""
	if visit.AgendaID != nil {
		removedFrom = *visit.AgendaID
	}
	visit.Status = toStatus
	visit.AgendaID = nil
	visit.OrdinalNumber = nil
	visit.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, action, input.RequestID, input.ParishID, visit.VisitID, removedFrom); err != nil {
		return models.Visit{}, false, err
	}
	if err = insertVisitOutboxEvent(ctx, tx, input.ParishID, eventType, visit, input.Reason); err != nil {
		return models.Visit{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Visit{}, false, err
	}
	return visit, true, nil
}

func (s *Store) StartVisit(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.updateVisitStatus(ctx, input, "start", models.StatusPending, "visit.started", false)
}

func (s *Store) MarkVisited(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.updateVisitStatus(ctx, input, "visited", models.StatusVisited, "visit.visited", true)
}

func (s *Store) RejectVisit(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.updateVisitStatus(ctx, input, "reject", models.StatusRejected, "visit.rejected", true)
}

func (s *Store) SuspendVisit(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.updateVisitStatus(ctx, input, "suspend", models.StatusSuspended, "visit.suspended", false)
}

func (s *Store) ResumeVisit(ctx context.Context, input store.VisitActionInput) (models.Visit, bool, error) {
	return s.updateVisitStatus(ctx, input, "resume", models.StatusPlanned, "visit.resumed", false)
}

// updateVisitStatus performs a transition-table-guarded status change. The
// visit keeps its ordinal: visited, rejected and suspended visits stay in
// the sequence so the remaining queue positions do not shift under the
// households still waiting.
func (s *Store) updateVisitStatus(ctx context.Context, input store.VisitActionInput, action, toStatus, eventType string, concludes bool) (models.Visit, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Visit{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Visit{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Visit{}, false, err
		}
		if empty {
			return models.Visit{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		UPDATE visits
		SET status = $1
	`
	args := []interface{}{toStatus}
	argPos := 2
	if concludes {
		query += ", concluded_at = $2"
		args = append(args, occurredAt)
		argPos++
	}
	query += `
		WHERE visit_id = $` + strconv.Itoa(argPos) + ` AND parish_id = $` + strconv.Itoa(argPos+1) + ` AND status = ANY($` + strconv.Itoa(argPos+2) + `)
		RETURNING ` + visitColumns
	args = append(args, input.VisitID, input.ParishID, store.AllowedStatuses(action))

	visit, err := scanVisitRow(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, exists, stateErr := loadVisitStatus(ctx, tx, input.ParishID, input.VisitID)
			if stateErr != nil {
				err = stateErr
				return models.Visit{}, false, err
			}
			if !exists {
				err = store.ErrVisitNotFound
				return models.Visit{}, false, err
			}
			err = store.ErrInvalidState
			return models.Visit{}, false, err
		}
		return models.Visit{}, false, err
	}
	visit.RequestID = input.RequestID

	agendaID := ""
	if visit.AgendaID != nil {
		agendaID = *visit.AgendaID
	}
	if err = insertActionRequest(ctx, tx, action, input.RequestID, input.ParishID, visit.VisitID, agendaID); err != nil {
		return models.Visit{}, false, err
	}
	if err = insertVisitOutboxEvent(ctx, tx, input.ParishID, eventType, visit, input.Reason); err != nil {
		return models.Visit{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Visit{}, false, err
	}
	return visit, true, nil
}

// ReorderAgenda rewrites an agenda's whole sequence to the caller-supplied
// order. The order must name exactly the current members; ordinals are
// reassigned with the two-phase protocol inside one transaction, so readers
// never observe duplicates or gaps.
func (s *Store) ReorderAgenda(ctx context.Context, input store.ReorderAgendaInput) ([]models.Visit, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, found, _, err := findActionRequest(ctx, tx, "reorder", input.RequestID)
	if err != nil {
		return nil, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return nil, err
		}
		return s.listAgendaVisits(ctx, input.ParishID, input.AgendaID)
	}

	if err = ensureAgendaExists(ctx, tx, input.ParishID, input.AgendaID); err != nil {
		return nil, err
	}
	members, err := lockAgendaVisits(ctx, tx, input.AgendaID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Visit, len(members))
	for _, member := range members {
		byID[member.VisitID] = member
	}
	if len(input.VisitIDs) != len(members) {
		err = store.ErrOrderMismatch
		return nil, err
	}
	ordered := make([]models.Visit, 0, len(members))
	for _, visitID := range input.VisitIDs {
		member, ok := byID[visitID]
		if !ok {
			err = store.ErrOrderMismatch
			return nil, err
		}
		delete(byID, visitID)
		ordered = append(ordered, member)
	}

	schedule.Renumber(ordered)
	if err = renumberAgenda(ctx, tx, input.AgendaID, ordered); err != nil {
		return nil, err
	}

	if err = insertActionRequest(ctx, tx, "reorder", input.RequestID, input.ParishID, "", input.AgendaID); err != nil {
		return nil, err
	}
	if err = insertReorderOutboxEvent(ctx, tx, input.ParishID, input.AgendaID, input.VisitIDs); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ordered, nil
}

// renumberAgenda persists new ordinals for every member in two phases:
// clear first, commit the final values second. Clearing first keeps the
// UNIQUE (agenda_id, ordinal_number) constraint satisfied no matter how the
// sequence shuffled; the surrounding transaction makes the pair atomic.
func renumberAgenda(ctx context.Context, tx pgx.Tx, agendaID string, ordered []models.Visit) error {
	if _, err := tx.Exec(ctx, `
		UPDATE visits
		SET ordinal_number = NULL
		WHERE agenda_id = $1 AND ordinal_number IS NOT NULL
	`, agendaID); err != nil {
		return err
	}
	for _, visit := range ordered {
		if visit.OrdinalNumber == nil {
			return store.ErrInvalidState
		}
		if _, err := tx.Exec(ctx, `
			UPDATE visits
			SET agenda_id = $1,
				ordinal_number = $2
			WHERE visit_id = $3
		`, agendaID, *visit.OrdinalNumber, visit.VisitID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetVisit(ctx context.Context, parishID, visitID string) (models.Visit, bool, error) {
	visit, err := scanVisitRow(s.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE visit_id = $1 AND parish_id = $2
	`, visitID, parishID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, false, store.ErrVisitNotFound
		}
		return models.Visit{}, false, err
	}
	return visit, true, nil
}

func (s *Store) GetAgenda(ctx context.Context, parishID, agendaID string) (models.Agenda, bool, error) {
	agenda, err := s.getAgendaHeader(ctx, parishID, agendaID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Agenda{}, false, store.ErrAgendaNotFound
		}
		return models.Agenda{}, false, err
	}
	agenda.Visits, err = s.listAgendaVisits(ctx, parishID, agendaID)
	if err != nil {
		return models.Agenda{}, false, err
	}
	return agenda, true, nil
}

// GetVisitAgenda loads a visit together with its fully populated agenda.
// ok=false means the visit exists but is not queued anywhere; a missing
// visit is ErrVisitNotFound.
func (s *Store) GetVisitAgenda(ctx context.Context, parishID, visitID string) (models.Agenda, models.Visit, bool, error) {
	visit, _, err := s.GetVisit(ctx, parishID, visitID)
	if err != nil {
		return models.Agenda{}, models.Visit{}, false, err
	}
	if visit.AgendaID == nil {
		return models.Agenda{}, visit, false, nil
	}
	agenda, _, err := s.GetAgenda(ctx, parishID, *visit.AgendaID)
	if err != nil {
		return models.Agenda{}, models.Visit{}, false, err
	}
	return agenda, visit, true, nil
}

func (s *Store) ListAgendasForDay(ctx context.Context, parishID, dayID string) ([]models.Agenda, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	agendas, err := listDayAgendas(ctx, tx, parishID, dayID, false)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return agendas, nil
}

// LoadScheduleMinutes reads the per-schedule visit durations from the
// settings table. Keys look like "minutes_per_visit.<schedule_id>".
func (s *Store) LoadScheduleMinutes(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value
		FROM settings
		WHERE key LIKE $1
	`, scheduleMinutesPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	minutes := map[string]int{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		scheduleID, parsed, ok := parseScheduleMinutes(key, value)
		if !ok {
			continue
		}
		minutes[scheduleID] = parsed
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return minutes, nil
}

func parseScheduleMinutes(key, value string) (string, int, bool) {
	scheduleID := strings.TrimPrefix(key, scheduleMinutesPrefix)
	if scheduleID == "" || scheduleID == key {
		return "", 0, false
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return "", 0, false
	}
	return scheduleID, parsed, true
}

// AutoSuspend parks visits still planned or pending on agendas whose end
// hour passed more than grace ago, so stale queues stop advertising
// estimates. Runs in batches under SKIP LOCKED; safe to call concurrently.
func (s *Store) AutoSuspend(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cutoff := time.Now().UTC().Add(-grace)
	rows, err := tx.Query(ctx, `
		SELECT `+prefixedVisitColumns("v")+`
		FROM visits v
		JOIN agendas a ON a.agenda_id = v.agenda_id
		JOIN days d ON d.day_id = a.day_id
		WHERE v.status IN ($1, $2)
			AND d.date + make_interval(hours => COALESCE(a.end_hour, d.end_hour)) <= $3
		ORDER BY v.created_at ASC
		FOR UPDATE OF v SKIP LOCKED
		LIMIT $4
	`, models.StatusPlanned, models.StatusPending, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	visits, err := collectVisits(rows)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, visit := range visits {
		if _, err = tx.Exec(ctx, `
			UPDATE visits
			SET status = $1
			WHERE visit_id = $2
		`, models.StatusSuspended, visit.VisitID); err != nil {
			return 0, err
		}
		visit.Status = models.StatusSuspended
		if err = insertVisitOutboxEvent(ctx, tx, visit.ParishID, "visit.suspended", visit, "agenda window passed"); err != nil {
			return 0, err
		}
		processed++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return processed, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, parishID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, parish_id, type, payload_json, created_at
		FROM outbox_events
		WHERE parish_id = $1
	`
	args := []interface{}{parishID}
	if !after.IsZero() {
		query += " AND created_at > $2 ORDER BY created_at ASC LIMIT $3"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.ParishID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, parish_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > $2
	`, sessionID, time.Now().UTC())
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ParishID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) listAgendaVisits(ctx context.Context, parishID, agendaID string) ([]models.Visit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE agenda_id = $1 AND parish_id = $2 AND status <> $3
		ORDER BY ordinal_number ASC NULLS LAST, created_at ASC
	`, agendaID, parishID, models.StatusWithdrawn)
	if err != nil {
		return nil, err
	}
	return collectVisits(rows)
}

// lockAgendaVisits loads and row-locks an agenda's members in ordinal
// order. Every mutation of a sequence goes through this lock, which makes
// the agenda the unit of exclusivity.
func lockAgendaVisits(ctx context.Context, tx pgx.Tx, agendaID string) ([]models.Visit, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE agenda_id = $1 AND status <> $2
		ORDER BY ordinal_number ASC NULLS LAST, created_at ASC
		FOR UPDATE
	`, agendaID, models.StatusWithdrawn)
	if err != nil {
		return nil, err
	}
	return collectVisits(rows)
}

// listDayAgendas loads a day's agendas with their member visits. lock
// row-locks the members for mutation paths; read paths must pass false, a
// read-only transaction cannot take FOR UPDATE locks.
func listDayAgendas(ctx context.Context, tx pgx.Tx, parishID, dayID string, lock bool) ([]models.Agenda, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.agenda_id, a.parish_id, a.day_id, d.date,
			COALESCE(a.start_hour, d.start_hour),
			COALESCE(a.end_hour, d.end_hour),
			a.minutes_per_visit, a.hide_estimates
		FROM agendas a
		JOIN days d ON d.day_id = a.day_id
		WHERE a.parish_id = $1 AND a.day_id = $2
		ORDER BY a.created_at ASC
	`, parishID, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agendas []models.Agenda
	for rows.Next() {
		agenda, err := scanAgendaRow(rows)
		if err != nil {
			return nil, err
		}
		agendas = append(agendas, agenda)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range agendas {
		var visits []models.Visit
		var err error
		if lock {
			visits, err = lockAgendaVisits(ctx, tx, agendas[i].AgendaID)
		} else {
			visits, err = listAgendaVisitsTx(ctx, tx, agendas[i].AgendaID)
		}
		if err != nil {
			return nil, err
		}
		agendas[i].Visits = visits
	}
	return agendas, nil
}

func listAgendaVisitsTx(ctx context.Context, tx pgx.Tx, agendaID string) ([]models.Visit, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE agenda_id = $1 AND status <> $2
		ORDER BY ordinal_number ASC NULLS LAST, created_at ASC
	`, agendaID, models.StatusWithdrawn)
	if err != nil {
		return nil, err
	}
	return collectVisits(rows)
}

func (s *Store) getAgendaHeader(ctx context.Context, parishID, agendaID string) (models.Agenda, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT a.agenda_id, a.parish_id, a.day_id, d.date,
			COALESCE(a.start_hour, d.start_hour),
			COALESCE(a.end_hour, d.end_hour),
			a.minutes_per_visit, a.hide_estimates
		FROM agendas a
		JOIN days d ON d.day_id = a.day_id
		WHERE a.agenda_id = $1 AND a.parish_id = $2
	`, agendaID, parishID)
	return scanAgendaRow(row)
}

func ensureAgendaExists(ctx context.Context, tx pgx.Tx, parishID, agendaID string) error {
	var id string
	row := tx.QueryRow(ctx, `
		SELECT agenda_id
		FROM agendas
		WHERE agenda_id = $1 AND parish_id = $2
	`, agendaID, parishID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrAgendaNotFound
		}
		return err
	}
	return nil
}

func ensureDayExists(ctx context.Context, tx pgx.Tx, parishID, dayID string) error {
	var id string
	row := tx.QueryRow(ctx, `
		SELECT day_id
		FROM days
		WHERE day_id = $1 AND parish_id = $2
	`, dayID, parishID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrDayNotFound
		}
		return err
	}
	return nil
}

func getVisitForUpdate(ctx context.Context, tx pgx.Tx, parishID, visitID string) (models.Visit, error) {
	visit, err := scanVisitRow(tx.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE visit_id = $1 AND parish_id = $2
		FOR UPDATE
	`, visitID, parishID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, store.ErrVisitNotFound
		}
		return models.Visit{}, err
	}
	return visit, nil
}

func loadVisitStatus(ctx context.Context, tx pgx.Tx, parishID, visitID string) (string, bool, error) {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status
		FROM visits
		WHERE visit_id = $1 AND parish_id = $2
	`, visitID, parishID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Visit, bool, bool, error) {
	var visitID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT visit_id
		FROM visit_action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&visitID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Visit{}, false, false, nil
		}
		return models.Visit{}, false, false, err
	}
	if !visitID.Valid {
		return models.Visit{}, true, true, nil
	}

	visit, err := scanVisitRow(tx.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE visit_id = $1
	`, visitID.String))
	if err != nil {
		return models.Visit{}, false, false, err
	}
	visit.RequestID = requestID
	return visit, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, parishID, visitID, agendaID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO visit_action_requests (request_id, action, parish_id, visit_id, agenda_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, parishID, nullIfEmpty(visitID), nullIfEmpty(agendaID))
	return err
}

func insertVisitOutboxEvent(ctx context.Context, tx pgx.Tx, parishID, eventType string, visit models.Visit, reason string) error {
	payload := map[string]interface{}{
		"visit_id":       visit.VisitID,
		"submission_id":  visit.SubmissionID,
		"status":         visit.Status,
		"agenda_id":      visit.AgendaID,
		"ordinal_number": visit.OrdinalNumber,
		"request_id":     visit.RequestID,
		"parish_id":      parishID,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, parish_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), parishID, eventType, payloadJSON, time.Now().UTC())
	return err
}

func insertReorderOutboxEvent(ctx context.Context, tx pgx.Tx, parishID, agendaID string, order []string) error {
	payload := map[string]interface{}{
		"agenda_id": agendaID,
		"order":     order,
		"parish_id": parishID,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, parish_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), parishID, "agenda.reordered", payloadJSON, time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisitRow(row rowScanner) (models.Visit, error) {
	var visit models.Visit
	var agendaIDNull sql.NullString
	var ordinalNull sql.NullInt32
	var buildingLetterNull sql.NullString
	var apartmentLetterNull sql.NullString
	var concludedAtNull sql.NullTime
	if err := row.Scan(
		&visit.VisitID, &visit.SubmissionID, &visit.ParishID, &agendaIDNull, &ordinalNull, &visit.Status,
		&visit.StreetID, &visit.BuildingID, &visit.BuildingNumber, &buildingLetterNull,
		&visit.ApartmentNumber, &apartmentLetterNull, &visit.HasElevator, &visit.ScheduleID,
		&visit.CreatedAt, &concludedAtNull,
	); err != nil {
		return models.Visit{}, err
	}
	if agendaIDNull.Valid {
		visit.AgendaID = &agendaIDNull.String
	}
	if ordinalNull.Valid {
		ordinal := int(ordinalNull.Int32)
		visit.OrdinalNumber = &ordinal
	}
	if buildingLetterNull.Valid {
		visit.BuildingLetter = buildingLetterNull.String
	}
	if apartmentLetterNull.Valid {
		visit.ApartmentLetter = apartmentLetterNull.String
	}
	if concludedAtNull.Valid {
		visit.ConcludedAt = &concludedAtNull.Time
	}
	return visit, nil
}

func scanAgendaRow(row rowScanner) (models.Agenda, error) {
	var agenda models.Agenda
	var startHour, endHour int
	var minutesNull sql.NullInt32
	if err := row.Scan(
		&agenda.AgendaID, &agenda.ParishID, &agenda.DayID, &agenda.Date,
		&startHour, &endHour, &minutesNull, &agenda.HideEstimates,
	); err != nil {
		return models.Agenda{}, err
	}
	if minutesNull.Valid {
		minutes := int(minutesNull.Int32)
		agenda.MinutesPerVisit = &minutes
	}
	agenda.StartAt = agendaHour(agenda.Date, startHour)
	agenda.EndAt = agendaHour(agenda.Date, endHour)
	return agenda, nil
}

// agendaHour anchors an hour-of-day on the agenda's date.
func agendaHour(date time.Time, hour int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, time.UTC)
}

func collectVisits(rows pgx.Rows) ([]models.Visit, error) {
	defer rows.Close()
	var visits []models.Visit
	for rows.Next() {
		visit, err := scanVisitRow(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return visits, nil
}

func prefixedVisitColumns(alias string) string {
	parts := strings.Split(visitColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
