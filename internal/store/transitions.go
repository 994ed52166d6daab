package store

import "kolenda/agenda-service/internal/models"

var transitionMap = map[string][]string{
	"assign":   {models.StatusUnplanned},
	"remove":   {models.StatusPlanned, models.StatusPending, models.StatusSuspended},
	"start":    {models.StatusPlanned},
	"visited":  {models.StatusPlanned, models.StatusPending},
	"reject":   {models.StatusPlanned, models.StatusPending},
	"suspend":  {models.StatusPlanned, models.StatusPending},
	"resume":   {models.StatusSuspended},
	"withdraw": {models.StatusUnplanned, models.StatusPlanned, models.StatusPending, models.StatusSuspended},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedStatuses lists the statuses an action may start from.
func AllowedStatuses(action string) []string {
	return transitionMap[action]
}
