package schedule

import "kolenda/agenda-service/internal/models"

// SelectAgenda picks which of a day's agendas a visit should join when the
// caller did not name one. ok=false signals that a new agenda must be
// created; creating it is the caller's job.
//
// Priority: an agenda already visiting the same building on the same
// schedule beats an agenda merely visiting the same building, which beats
// plain load balancing. Within a rule the agenda with the most matches wins,
// first found on ties.
func SelectAgenda(agendas []models.Agenda, newVisit models.Visit) (agendaID string, ok bool) {
	if len(agendas) == 0 {
		return "", false
	}
	if id, found := mostBuildingMatches(agendas, newVisit, true); found {
		return id, true
	}
	if id, found := mostBuildingMatches(agendas, newVisit, false); found {
		return id, true
	}
	return fewestVisits(agendas), true
}

func mostBuildingMatches(agendas []models.Agenda, newVisit models.Visit, sameSchedule bool) (string, bool) {
	bestID := ""
	bestCount := 0
	for _, agenda := range agendas {
		count := 0
		for _, visit := range agenda.Visits {
			if visit.BuildingID != newVisit.BuildingID {
				continue
			}
			if sameSchedule && visit.ScheduleID != newVisit.ScheduleID {
				continue
			}
			count++
		}
		if count > bestCount {
			bestCount = count
			bestID = agenda.AgendaID
		}
	}
	return bestID, bestCount > 0
}

func fewestVisits(agendas []models.Agenda) string {
	best := agendas[0]
	for _, agenda := range agendas[1:] {
		if len(agenda.Visits) < len(best.Visits) {
			best = agenda
		}
	}
	return best.AgendaID
}
