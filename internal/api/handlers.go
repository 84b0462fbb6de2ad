// Package api exposes HTTP handlers for the steps service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/steps/internal/auth"
	"example.com/steps/internal/domain"
	"example.com/steps/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/steps/today", h.today)
	mux.HandleFunc("/v1/steps/report", h.report)
	mux.HandleFunc("/v1/steps/history", h.history)
	mux.HandleFunc("/v1/steps/goal", h.goal)
	mux.HandleFunc("/v1/steps/leaderboard", h.leaderboard)
	mux.HandleFunc("/v1/steps/streak", h.streak)
	mux.HandleFunc("/v1/users/me", h.userByToken)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) today(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := h.service.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	rec, err := h.service.Today(r.Context(), claims.Subject, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(rec))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	var req ReportStepsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	day, err := h.service.ParseDay(req.Day)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "day must be YYYY-MM-DD")
		return
	}

	stored, err := h.service.Report(r.Context(), domain.DailyStepRecord{
		UserID:     claims.Subject,
		Day:        day,
		Steps:      req.Steps,
		DistanceKm: req.DistanceKm,
		Calories:   req.Calories,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(stored))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.History(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]DailyRecordView, 0, len(records))
	for _, rec := range records {
		items = append(items, toRecordView(rec))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) goal(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getGoal(w, r)
	case http.MethodPut:
		h.putGoal(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getGoal(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	goal, err := h.service.Goal(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, GoalResponse{TargetSteps: goal})
}

func (h *Handler) putGoal(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	var req SetGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.service.SetGoal(r.Context(), claims.Subject, req.TargetSteps); err != nil {
		if errors.Is(err, domain.ErrInvalidGoal) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, GoalResponse{TargetSteps: req.TargetSteps})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	if _, ok := requireScope(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite); !ok {
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := h.service.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 50 {
				parsed = 50
			}
			limit = parsed
		}
	}

	entries, err := h.service.Leaderboard(r.Context(), day, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]LeaderboardEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, LeaderboardEntryView{
			Rank:       entry.Rank,
			UserID:     entry.UserID,
			Steps:      entry.Steps,
			DistanceKm: entry.DistanceKm,
			TargetHit:  entry.TargetHit,
		})
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Items: items})
}

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeStepsRead, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	summary, err := h.service.Streak(r.Context(), claims.Subject, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StreakResponse{
		Current: summary.Current,
		Longest: summary.Longest,
	})
}

func (h *Handler) userByToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeStepsWrite)
	if !ok {
		return
	}

	if err := h.service.EraseUser(r.Context(), claims.Subject); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireScope extracts claims and enforces that at least one scope matches.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

// ReportStepsRequest is the payload for POST /v1/steps/report.
type ReportStepsRequest struct {
	Day        string  `json:"day"`
	Steps      int64   `json:"steps"`
	DistanceKm float64 `json:"distance_km"`
	Calories   int64   `json:"calories"`
}

// Validate ensures request correctness.
func (r ReportStepsRequest) Validate() error {
	if strings.TrimSpace(r.Day) == "" {
		return errors.New("day is required")
	}
	if r.Steps < 0 {
		return errors.New("steps must be >= 0")
	}
	if r.DistanceKm < 0 {
		return errors.New("distance_km must be >= 0")
	}
	if r.Calories < 0 {
		return errors.New("calories must be >= 0")
	}
	return nil
}

// SetGoalRequest is the payload for PUT /v1/steps/goal.
type SetGoalRequest struct {
	TargetSteps int64 `json:"target_steps"`
}

// GoalResponse reports the effective daily target.
type GoalResponse struct {
	TargetSteps int64 `json:"target_steps"`
}

// DailyRecordView exposes one day of step totals.
type DailyRecordView struct {
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	Steps      int64     `json:"steps"`
	DistanceKm float64   `json:"distance_km"`
	Calories   int64     `json:"calories"`
	TargetHit  bool      `json:"target_hit"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HistoryResponse packages paginated history results.
type HistoryResponse struct {
	Items      []DailyRecordView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// LeaderboardEntryView is one ranked leaderboard row.
type LeaderboardEntryView struct {
	Rank       int     `json:"rank"`
	UserID     string  `json:"user_id"`
	Steps      int64   `json:"steps"`
	DistanceKm float64 `json:"distance_km"`
	TargetHit  bool    `json:"target_hit"`
}

// LeaderboardResponse lists ranked entries for a day.
type LeaderboardResponse struct {
	Items []LeaderboardEntryView `json:"items"`
}

// StreakResponse reports current and longest goal streaks.
type StreakResponse struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toRecordView(rec domain.DailyStepRecord) DailyRecordView {
	return DailyRecordView{
		UserID:     rec.UserID,
		Day:        rec.DayString(),
		Steps:      rec.Steps,
		DistanceKm: rec.DistanceKm,
		Calories:   rec.Calories,
		TargetHit:  rec.TargetHit,
		UpdatedAt:  rec.UpdatedAt,
	}
}
