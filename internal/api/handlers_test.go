package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/steps/internal/auth"
	"example.com/steps/internal/domain"
)

type mockRepo struct {
	records map[string]domain.DailyStepRecord
	goals   map[string]int64
	erased  []string
	upserts []domain.DailyStepRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		records: make(map[string]domain.DailyStepRecord),
		goals:   make(map[string]int64),
	}
}

func recordKey(userID string, day time.Time) string {
	return userID + "|" + day.Format(domain.DayFormat)
}

func (m *mockRepo) Upsert(ctx context.Context, rec domain.DailyStepRecord, closing bool) (domain.DailyStepRecord, error) {
	m.upserts = append(m.upserts, rec)
	key := recordKey(rec.UserID, rec.Day)
	if existing, ok := m.records[key]; ok && existing.Steps > rec.Steps {
		rec.Steps = existing.Steps
	}
	rec.UpdatedAt = time.Now().UTC()
	m.records[key] = rec
	return rec, nil
}

func (m *mockRepo) Get(ctx context.Context, userID string, day time.Time) (*domain.DailyStepRecord, error) {
	rec, ok := m.records[recordKey(userID, day)]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (m *mockRepo) History(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.DailyStepRecord, *domain.Cursor, error) {
	var out []domain.DailyStepRecord
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil, nil
}

func (m *mockRepo) Leaderboard(ctx context.Context, day time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	for _, rec := range m.records {
		if rec.Day.Equal(day) {
			out = append(out, domain.LeaderboardEntry{
				Rank:       len(out) + 1,
				UserID:     rec.UserID,
				Steps:      rec.Steps,
				DistanceKm: rec.DistanceKm,
				TargetHit:  rec.TargetHit,
			})
		}
	}
	return out, nil
}

func (m *mockRepo) RecentDays(ctx context.Context, userID string, limit int) ([]domain.DailyStepRecord, error) {
	var out []domain.DailyStepRecord
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRepo) GetGoal(ctx context.Context, userID string) (int64, error) {
	return m.goals[userID], nil
}

func (m *mockRepo) SetGoal(ctx context.Context, userID string, target int64) error {
	m.goals[userID] = target
	return nil
}

func (m *mockRepo) EraseUser(ctx context.Context, userID string) error {
	m.erased = append(m.erased, userID)
	for key := range m.records {
		if strings.HasPrefix(key, userID+"|") {
			delete(m.records, key)
		}
	}
	return nil
}

func testHandler(repo *mockRepo) *Handler {
	return NewHandler(domain.NewService(repo, 10000, time.UTC))
}

func authed(req *http.Request, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "user-1",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestTodayReturnsZerosWhenNoRecord(t *testing.T) {
	handler := testHandler(newMockRepo())

	req := httptest.NewRequest(http.MethodGet, "/v1/steps/today?date=2026-03-04", nil)
	req = authed(req, auth.ScopeStepsRead)

	rr := httptest.NewRecorder()
	handler.today(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp DailyRecordView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Steps != 0 || resp.DistanceKm != 0 || resp.Calories != 0 {
		t.Fatalf("expected zeroed record, got %+v", resp)
	}
	if resp.Day != "2026-03-04" {
		t.Fatalf("unexpected day %s", resp.Day)
	}
}

func TestReportDerivesTargetHitServerSide(t *testing.T) {
	repo := newMockRepo()
	repo.goals["user-1"] = 1000
	handler := testHandler(repo)

	body := strings.NewReader(`{"day":"2026-03-04","steps":1200,"distance_km":0.9,"calories":48}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/steps/report", body)
	req = authed(req, auth.ScopeStepsWrite)

	rr := httptest.NewRecorder()
	handler.report(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp DailyRecordView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.TargetHit {
		t.Fatalf("expected target_hit true, got %+v", resp)
	}
	if resp.UserID != "user-1" {
		t.Fatalf("record should belong to the token subject, got %s", resp.UserID)
	}
}

func TestReportRejectsNegativeTotals(t *testing.T) {
	handler := testHandler(newMockRepo())

	body := strings.NewReader(`{"day":"2026-03-04","steps":-5}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/steps/report", body)
	req = authed(req, auth.ScopeStepsWrite)

	rr := httptest.NewRecorder()
	handler.report(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestReportRequiresWriteScope(t *testing.T) {
	handler := testHandler(newMockRepo())

	body := strings.NewReader(`{"day":"2026-03-04","steps":10}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/steps/report", body)
	req = authed(req, auth.ScopeStepsRead)

	rr := httptest.NewRecorder()
	handler.report(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestTodayRequiresToken(t *testing.T) {
	handler := testHandler(newMockRepo())

	req := httptest.NewRequest(http.MethodGet, "/v1/steps/today", nil)
	rr := httptest.NewRecorder()
	handler.today(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestGoalDefaultsWhenUnset(t *testing.T) {
	handler := testHandler(newMockRepo())

	req := httptest.NewRequest(http.MethodGet, "/v1/steps/goal", nil)
	req = authed(req, auth.ScopeStepsRead)

	rr := httptest.NewRecorder()
	handler.goal(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp GoalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TargetSteps != 10000 {
		t.Fatalf("expected default goal 10000 got %d", resp.TargetSteps)
	}
}

func TestPutGoalRejectsNonPositive(t *testing.T) {
	handler := testHandler(newMockRepo())

	body := strings.NewReader(`{"target_steps":0}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/steps/goal", body)
	req = authed(req, auth.ScopeStepsWrite)

	rr := httptest.NewRecorder()
	handler.goal(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestPutGoalStoresTarget(t *testing.T) {
	repo := newMockRepo()
	handler := testHandler(repo)

	body := strings.NewReader(`{"target_steps":12000}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/steps/goal", body)
	req = authed(req, auth.ScopeStepsWrite)

	rr := httptest.NewRecorder()
	handler.goal(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if repo.goals["user-1"] != 12000 {
		t.Fatalf("expected goal stored, got %d", repo.goals["user-1"])
	}
}

func TestDeleteUserErasesRecords(t *testing.T) {
	repo := newMockRepo()
	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	repo.records[recordKey("user-1", day)] = domain.DailyStepRecord{
		UserID: "user-1",
		Day:    day,
		Steps:  4321,
	}
	handler := testHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/me", nil)
	req = authed(req, auth.ScopeStepsWrite)

	rr := httptest.NewRecorder()
	handler.userByToken(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	if len(repo.erased) != 1 || repo.erased[0] != "user-1" {
		t.Fatalf("expected user erased, got %v", repo.erased)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected records removed, got %d", len(repo.records))
	}
}

func TestHistoryRejectsBadCursor(t *testing.T) {
	handler := testHandler(newMockRepo())

	req := httptest.NewRequest(http.MethodGet, "/v1/steps/history?cursor=%21%21not-base64", nil)
	req = authed(req, auth.ScopeStepsRead)

	rr := httptest.NewRecorder()
	handler.history(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestLeaderboardRanksByDay(t *testing.T) {
	repo := newMockRepo()
	day := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	repo.records[recordKey("user-1", day)] = domain.DailyStepRecord{UserID: "user-1", Day: day, Steps: 9000}
	handler := testHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/steps/leaderboard?date=2026-03-04", nil)
	req = authed(req, auth.ScopeStepsRead)

	rr := httptest.NewRecorder()
	handler.leaderboard(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LeaderboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Steps != 9000 {
		t.Fatalf("unexpected leaderboard %+v", resp.Items)
	}
}
