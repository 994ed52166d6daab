package schedule

import (
	"testing"

	"kolenda/agenda-service/internal/models"
)

func agendaWith(id string, visits ...models.Visit) models.Agenda {
	return models.Agenda{AgendaID: id, Visits: visits}
}

func buildingVisit(buildingID, scheduleID string) models.Visit {
	return models.Visit{BuildingID: buildingID, ScheduleID: scheduleID}
}

func TestSelectAgendaEmptyDaySignalsCreate(t *testing.T) {
	newVisit := buildingVisit("b1", "primary")
	if _, ok := SelectAgenda(nil, newVisit); ok {
		t.Fatal("expected create-new signal for a day without agendas")
	}
}

func TestSelectAgendaPrefersBuildingAndSchedule(t *testing.T) {
	newVisit := buildingVisit("b1", "primary")
	agendas := []models.Agenda{
		agendaWith("a",
			buildingVisit("b1", "primary"),
			buildingVisit("b1", "primary"),
		),
		agendaWith("b",
			buildingVisit("b1", "makeup"),
			buildingVisit("b1", "makeup"),
			buildingVisit("b1", "makeup"),
			buildingVisit("b1", "makeup"),
			buildingVisit("b1", "makeup"),
		),
	}
	id, ok := SelectAgenda(agendas, newVisit)
	if !ok || id != "a" {
		t.Fatalf("expected agenda a (building+schedule beats building-only), got %q ok=%v", id, ok)
	}
}

func TestSelectAgendaFallsBackToBuildingOnly(t *testing.T) {
	newVisit := buildingVisit("b1", "primary")
	agendas := []models.Agenda{
		agendaWith("a", buildingVisit("b2", "primary")),
		agendaWith("b", buildingVisit("b1", "makeup"), buildingVisit("b1", "makeup")),
	}
	id, ok := SelectAgenda(agendas, newVisit)
	if !ok || id != "b" {
		t.Fatalf("expected agenda b via building-only match, got %q ok=%v", id, ok)
	}
}

func TestSelectAgendaMostMatchesWins(t *testing.T) {
	newVisit := buildingVisit("b1", "primary")
	agendas := []models.Agenda{
		agendaWith("a", buildingVisit("b1", "primary")),
		agendaWith("b", buildingVisit("b1", "primary"), buildingVisit("b1", "primary")),
	}
	id, ok := SelectAgenda(agendas, newVisit)
	if !ok || id != "b" {
		t.Fatalf("expected agenda b with more matches, got %q ok=%v", id, ok)
	}
}

func TestSelectAgendaLoadBalances(t *testing.T) {
	newVisit := buildingVisit("b9", "primary")
	agendas := []models.Agenda{
		agendaWith("a", buildingVisit("b1", "primary"), buildingVisit("b2", "primary")),
		agendaWith("b", buildingVisit("b3", "primary")),
		agendaWith("c", buildingVisit("b4", "primary"), buildingVisit("b5", "primary"), buildingVisit("b6", "primary")),
	}
	id, ok := SelectAgenda(agendas, newVisit)
	if !ok || id != "b" {
		t.Fatalf("expected least-loaded agenda b, got %q ok=%v", id, ok)
	}
}
