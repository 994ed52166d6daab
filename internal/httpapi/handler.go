package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kolenda/agenda-service/internal/models"
	"kolenda/agenda-service/internal/schedule"
	"kolenda/agenda-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store     store.VisitStore
	estimator *schedule.Estimator
}

type assignVisitRequest struct {
	RequestID string `json:"request_id"`
	ParishID  string `json:"parish_id"`
	VisitID   string `json:"visit_id"`
	DayID     string `json:"day_id"`
	AgendaID  string `json:"agenda_id"`
}

type visitActionRequest struct {
	RequestID string `json:"request_id"`
	ParishID  string `json:"parish_id"`
	Reason    string `json:"reason"`
}

type reorderRequest struct {
	RequestID string   `json:"request_id"`
	ParishID  string   `json:"parish_id"`
	VisitIDs  []string `json:"visit_ids"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// visitView decorates a visit with its per-visit planning estimate. The
// estimate is absent on hidden agendas and for visits past the agenda end.
type visitView struct {
	models.Visit
	EstimatedAt *time.Time `json:"estimated_at,omitempty"`
}

type agendaView struct {
	AgendaID      string      `json:"agenda_id"`
	DayID         string      `json:"day_id"`
	Date          time.Time   `json:"date"`
	StartAt       time.Time   `json:"start_at"`
	EndAt         time.Time   `json:"end_at"`
	HideEstimates bool        `json:"hide_estimates"`
	Visits        []visitView `json:"visits"`
}

type estimateResponse struct {
	VisitID     string    `json:"visit_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

func NewHandler(store store.VisitStore, estimator *schedule.Estimator) *Handler {
	return &Handler{
		store:     store,
		estimator: estimator,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/visits/assign", h.handleAssignVisit)
	mux.HandleFunc("/api/visits/", h.handleVisitSubtree)
	mux.HandleFunc("/api/agendas/", h.handleAgendaSubtree)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleAssignVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req assignVisitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ParishID = strings.TrimSpace(req.ParishID)
	req.VisitID = strings.TrimSpace(req.VisitID)
	req.DayID = strings.TrimSpace(req.DayID)
	req.AgendaID = strings.TrimSpace(req.AgendaID)

	if req.RequestID == "" || req.ParishID == "" || req.VisitID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, parish_id, and visit_id are required")
		return
	}
	if req.DayID == "" && req.AgendaID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "day_id or agenda_id is required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.ParishID) || !isValidUUID(req.VisitID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, parish_id, and visit_id must be UUIDs")
		return
	}
	if req.DayID != "" && !isValidUUID(req.DayID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "day_id must be a UUID when provided")
		return
	}
	if req.AgendaID != "" && !isValidUUID(req.AgendaID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "agenda_id must be a UUID when provided")
		return
	}

	visit, _, err := h.store.AssignVisit(r.Context(), store.AssignVisitInput{
		RequestID:  req.RequestID,
		ParishID:   req.ParishID,
		VisitID:    req.VisitID,
		AgendaID:   req.AgendaID,
		DayID:      req.DayID,
		AssignedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, visit)
}

func (h *Handler) handleVisitSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/visits/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "estimate":
		h.handleEstimate(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleVisitAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleVisitAction(w http.ResponseWriter, r *http.Request, visitID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(visitID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "visit_id must be a UUID")
		return
	}

	var req visitActionRequest
	if !decodeActionRequest(w, r, &req) {
		return
	}

	input := store.VisitActionInput{
		RequestID:  req.RequestID,
		ParishID:   req.ParishID,
		VisitID:    visitID,
		Reason:     req.Reason,
		OccurredAt: time.Now().UTC(),
	}

	var visit models.Visit
	var err error
	switch action {
	case "remove":
		visit, _, err = h.store.RemoveVisit(r.Context(), input)
	case "start":
		visit, _, err = h.store.StartVisit(r.Context(), input)
	case "visited":
		visit, _, err = h.store.MarkVisited(r.Context(), input)
	case "reject":
		visit, _, err = h.store.RejectVisit(r.Context(), input)
	case "suspend":
		visit, _, err = h.store.SuspendVisit(r.Context(), input)
	case "resume":
		visit, _, err = h.store.ResumeVisit(r.Context(), input)
	case "withdraw":
		visit, _, err = h.store.WithdrawVisit(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

// handleEstimate serves the household-facing arrival window. 204 means no
// window is currently available: the visit is not queued, the agenda hides
// estimates, or the visit's status no longer warrants one.
func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request, visitID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(visitID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "visit_id must be a UUID")
		return
	}
	parishID := strings.TrimSpace(r.URL.Query().Get("parish_id"))
	if parishID == "" || !isValidUUID(parishID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "parish_id must be a UUID")
		return
	}

	agenda, visit, ok, err := h.store.GetVisitAgenda(r.Context(), parishID, visitID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	windowStart, windowEnd, ok := h.estimator.EstimateRange(agenda, visit.VisitID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		VisitID:     visit.VisitID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
}

func (h *Handler) handleAgendaSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/agendas/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "reorder":
		h.handleReorder(w, r, parts[0])
	case "visits":
		h.handleAgendaVisits(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request, agendaID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(agendaID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "agenda_id must be a UUID")
		return
	}

	var req reorderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ParishID = strings.TrimSpace(req.ParishID)
	if req.RequestID == "" || req.ParishID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and parish_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.ParishID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and parish_id must be UUIDs")
		return
	}
	if len(req.VisitIDs) == 0 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "visit_ids is required")
		return
	}
	for _, visitID := range req.VisitIDs {
		if !isValidUUID(visitID) {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "visit_ids must be UUIDs")
			return
		}
	}

	ordered, err := h.store.ReorderAgenda(r.Context(), store.ReorderAgendaInput{
		RequestID: req.RequestID,
		ParishID:  req.ParishID,
		AgendaID:  agendaID,
		VisitIDs:  req.VisitIDs,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ordered)
}

// handleAgendaVisits returns the planning view: the ordered sequence with a
// single-instant estimate per visit.
func (h *Handler) handleAgendaVisits(w http.ResponseWriter, r *http.Request, agendaID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(agendaID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "agenda_id must be a UUID")
		return
	}
	parishID := strings.TrimSpace(r.URL.Query().Get("parish_id"))
	if parishID == "" || !isValidUUID(parishID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "parish_id must be a UUID")
		return
	}

	agenda, _, err := h.store.GetAgenda(r.Context(), parishID, agendaID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	view := agendaView{
		AgendaID:      agenda.AgendaID,
		DayID:         agenda.DayID,
		Date:          agenda.Date,
		StartAt:       agenda.StartAt,
		EndAt:         agenda.EndAt,
		HideEstimates: agenda.HideEstimates,
		Visits:        make([]visitView, 0, len(agenda.Visits)),
	}
	for _, visit := range agenda.Visits {
		item := visitView{Visit: visit}
		if !agenda.HideEstimates {
			if estimatedAt, ok := h.estimator.EstimateStatic(agenda, visit.VisitID); ok {
				item.EstimatedAt = &estimatedAt
			}
		}
		view.Visits = append(view.Visits, item)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	parishID := strings.TrimSpace(r.URL.Query().Get("parish_id"))
	if parishID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "parish_id is required")
		return
	}
	if !isValidUUID(parishID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "parish_id must be a UUID")
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), parishID, after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func decodeActionRequest(w http.ResponseWriter, r *http.Request, req *visitActionRequest) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ParishID = strings.TrimSpace(req.ParishID)
	req.Reason = strings.TrimSpace(req.Reason)

	if req.RequestID == "" || req.ParishID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and parish_id are required")
		return false
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.ParishID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and parish_id must be UUIDs")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrVisitNotFound):
		return http.StatusNotFound, "visit_not_found", "visit not found"
	case errors.Is(err, store.ErrAgendaNotFound):
		return http.StatusNotFound, "agenda_not_found", "agenda not found"
	case errors.Is(err, store.ErrDayNotFound):
		return http.StatusNotFound, "day_not_found", "day not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "visit state does not allow this action"
	case errors.Is(err, store.ErrVisitNotInAgenda):
		return http.StatusConflict, "not_in_agenda", "visit is not part of an agenda"
	case errors.Is(err, store.ErrOrderMismatch):
		return http.StatusConflict, "order_mismatch", "order must list exactly the agenda members"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
