package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"kolenda/agenda-service/internal/models"
	"kolenda/agenda-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestAssignVisitOrdering(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	parishID := uuid.NewString()
	dayID := uuid.NewString()
	seedParishDay(t, ctx, pool, parishID, dayID)

	streetID := uuid.NewString()
	buildingID := uuid.NewString()
	scheduleID := uuid.NewString()

	first := seedVisit(t, ctx, pool, parishID, seedVisitInput{
		streetID: streetID, buildingID: buildingID, buildingNumber: 10,
		apartmentNumber: 2, scheduleID: scheduleID,
	})
	second := seedVisit(t, ctx, pool, parishID, seedVisitInput{
		streetID: streetID, buildingID: buildingID, buildingNumber: 10,
		apartmentNumber: 8, scheduleID: scheduleID,
	})
	middle := seedVisit(t, ctx, pool, parishID, seedVisitInput{
		streetID: streetID, buildingID: buildingID, buildingNumber: 10,
		apartmentNumber: 5, scheduleID: scheduleID,
	})

	assigned := assignVisit(t, ctx, st, parishID, dayID, first)
	if assigned.AgendaID == nil {
		t.Fatalf("expected a fresh agenda for first assignment")
	}
	agendaID := *assigned.AgendaID

	assignVisit(t, ctx, st, parishID, dayID, second)
	assignVisit(t, ctx, st, parishID, dayID, middle)

	agenda, _, err := st.GetAgenda(ctx, parishID, agendaID)
	if err != nil {
		t.Fatalf("get agenda: %v", err)
	}
	wantOrder := []string{first, middle, second}
	assertSequence(t, agenda.Visits, wantOrder)
}

func TestAssignVisitIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	parishID := uuid.NewString()
	dayID := uuid.NewString()
	seedParishDay(t, ctx, pool, parishID, dayID)

	visitID := seedVisit(t, ctx, pool, parishID, seedVisitInput{
		streetID: uuid.NewString(), buildingID: uuid.NewString(),
		buildingNumber: 1, apartmentNumber: 1, scheduleID: uuid.NewString(),
	})

	requestID := uuid.NewString()
	input := store.AssignVisitInput{
		RequestID:  requestID,
		ParishID:   parishID,
		VisitID:    visitID,
		DayID:      dayID,
		AssignedAt: time.Now().UTC(),
	}
	firstVisit, created, err := st.AssignVisit(ctx, input)
	if err != nil || !created {
		t.Fatalf("first assign: created=%v err=%v", created, err)
	}
	secondVisit, created, err := st.AssignVisit(ctx, input)
	if err != nil {
		t.Fatalf("replayed assign: %v", err)
	}
	if created {
		t.Fatalf("expected replay to report created=false")
	}
	if firstVisit.VisitID != secondVisit.VisitID {
		t.Fatalf("expected same visit for duplicate request")
	}

	var count int
	row := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM outbox_events WHERE type = 'visit.assigned'
	`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 visit.assigned event, got %d", count)
	}
}

func TestRemoveVisitClosesGap(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	parishID := uuid.NewString()
	dayID := uuid.NewString()
	seedParishDay(t, ctx, pool, parishID, dayID)

	streetID := uuid.NewString()
	buildingID := uuid.NewString()
	scheduleID := uuid.NewString()

	var visitIDs []string
	for apt := 1; apt <= 3; apt++ {
		visitIDs = append(visitIDs, seedVisit(t, ctx, pool, parishID, seedVisitInput{
			streetID: streetID, buildingID: buildingID, buildingNumber: 4,
			apartmentNumber: apt, scheduleID: scheduleID,
		}))
	}
	var agendaID string
	for _, visitID := range visitIDs {
		visit := assignVisit(t, ctx, st, parishID, dayID, visitID)
		agendaID = *visit.AgendaID
	}

	if _, _, err := st.RemoveVisit(ctx, store.VisitActionInput{
		RequestID: uuid.NewString(),
		ParishID:  parishID,
		VisitID:   visitIDs[1],
	}); err != nil {
		t.Fatalf("remove visit: %v", err)
	}

	agenda, _, err := st.GetAgenda(ctx, parishID, agendaID)
	if err != nil {
		t.Fatalf("get agenda: %v", err)
	}
	assertSequence(t, agenda.Visits, []string{visitIDs[0], visitIDs[2]})

	removed, _, err := st.GetVisit(ctx, parishID, visitIDs[1])
	if err != nil {
		t.Fatalf("get removed visit: %v", err)
	}
	if removed.Status != models.StatusUnplanned || removed.AgendaID != nil || removed.OrdinalNumber != nil {
		t.Fatalf("expected removed visit to be unplanned and detached, got %+v", removed)
	}
}

func TestReorderAgendaRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	parishID := uuid.NewString()
	dayID := uuid.NewString()
	seedParishDay(t, ctx, pool, parishID, dayID)

	streetID := uuid.NewString()
	buildingID := uuid.NewString()
	scheduleID := uuid.NewString()

	var visitIDs []string
	var agendaID string
	for apt := 1; apt <= 3; apt++ {
		visitID := seedVisit(t, ctx, pool, parishID, seedVisitInput{
			streetID: streetID, buildingID: buildingID, buildingNumber: 7,
			apartmentNumber: apt, scheduleID: scheduleID,
		})
		visitIDs = append(visitIDs, visitID)
		visit := assignVisit(t, ctx, st, parishID, dayID, visitID)
		agendaID = *visit.AgendaID
	}

	reversed := []string{visitIDs[2], visitIDs[1], visitIDs[0]}
	ordered, err := st.ReorderAgenda(ctx, store.ReorderAgendaInput{
		RequestID: uuid.NewString(),
		ParishID:  parishID,
		AgendaID:  agendaID,
		VisitIDs:  reversed,
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	assertSequence(t, ordered, reversed)

	_, err = st.ReorderAgenda(ctx, store.ReorderAgendaInput{
		RequestID: uuid.NewString(),
		ParishID:  parishID,
		AgendaID:  agendaID,
		VisitIDs:  reversed[:2],
	})
	if err != store.ErrOrderMismatch {
		t.Fatalf("expected ErrOrderMismatch, got %v", err)
	}
}

func TestListAgendasForDay(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	parishID := uuid.NewString()
	dayID := uuid.NewString()
	seedParishDay(t, ctx, pool, parishID, dayID)

	streetID := uuid.NewString()
	buildingID := uuid.NewString()
	scheduleID := uuid.NewString()

	var visitIDs []string
	var agendaID string
	for apt := 1; apt <= 2; apt++ {
		visitID := seedVisit(t, ctx, pool, parishID, seedVisitInput{
			streetID: streetID, buildingID: buildingID, buildingNumber: 12,
			apartmentNumber: apt, scheduleID: scheduleID,
		})
		visitIDs = append(visitIDs, visitID)
		visit := assignVisit(t, ctx, st, parishID, dayID, visitID)
		agendaID = *visit.AgendaID
	}

	agendas, err := st.ListAgendasForDay(ctx, parishID, dayID)
	if err != nil {
		t.Fatalf("list agendas: %v", err)
	}
	if len(agendas) != 1 {
		t.Fatalf("expected 1 agenda, got %d", len(agendas))
	}
	if agendas[0].AgendaID != agendaID {
		t.Fatalf("expected agenda %s, got %s", agendaID, agendas[0].AgendaID)
	}
	if agendas[0].StartAt.IsZero() || !agendas[0].EndAt.After(agendas[0].StartAt) {
		t.Fatalf("expected resolved day hours, got start=%v end=%v", agendas[0].StartAt, agendas[0].EndAt)
	}
	assertSequence(t, agendas[0].Visits, visitIDs)
}

func assertSequence(t *testing.T, visits []models.Visit, wantOrder []string) {
	t.Helper()
	if len(visits) != len(wantOrder) {
		t.Fatalf("expected %d visits, got %d", len(wantOrder), len(visits))
	}
	for i, visit := range visits {
		if visit.VisitID != wantOrder[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantOrder[i], visit.VisitID)
		}
		if visit.OrdinalNumber == nil || *visit.OrdinalNumber != i+1 {
			t.Fatalf("position %d: expected ordinal %d, got %v", i, i+1, visit.OrdinalNumber)
		}
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool)
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

type seedVisitInput struct {
	streetID        string
	buildingID      string
	buildingNumber  int
	buildingLetter  string
	apartmentNumber int
	apartmentLetter string
	hasElevator     bool
	scheduleID      string
}

func seedParishDay(t *testing.T, ctx context.Context, pool *pgxpool.Pool, parishID, dayID string) {
	t.Helper()
	if _, err := pool.Exec(ctx, `
		INSERT INTO parishes (parish_id, name) VALUES ($1, 'Parish')
	`, parishID); err != nil {
		t.Fatalf("insert parish: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO days (day_id, parish_id, date, start_hour, end_hour)
		VALUES ($1, $2, CURRENT_DATE, 16, 20)
	`, dayID, parishID); err != nil {
		t.Fatalf("insert day: %v", err)
	}
}

func seedVisit(t *testing.T, ctx context.Context, pool *pgxpool.Pool, parishID string, in seedVisitInput) string {
	t.Helper()
	visitID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO visits (
			visit_id, submission_id, parish_id, status,
			street_id, building_id, building_number, building_letter,
			apartment_number, apartment_letter, has_elevator, schedule_id
		) VALUES ($1, $2, $3, 'unplanned', $4, $5, $6, $7, $8, $9, $10, $11)
	`, visitID, uuid.NewString(), parishID,
		in.streetID, in.buildingID, in.buildingNumber, in.buildingLetter,
		in.apartmentNumber, in.apartmentLetter, in.hasElevator, in.scheduleID); err != nil {
		t.Fatalf("insert visit: %v", err)
	}
	return visitID
}

func assignVisit(t *testing.T, ctx context.Context, st *Store, parishID, dayID, visitID string) models.Visit {
	t.Helper()
	visit, _, err := st.AssignVisit(ctx, store.AssignVisitInput{
		RequestID:  uuid.NewString(),
		ParishID:   parishID,
		VisitID:    visitID,
		DayID:      dayID,
		AssignedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("assign visit: %v", err)
	}
	return visit
}
