package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"resilience/internal/core"
	"resilience/internal/types"
)

type mockRiskDataService struct {
	snapshot  *types.EnvironmentalSnapshot
	list      []*types.EnvironmentalSnapshot
	total     int
	err       error
	override  *types.Location
	page      types.PageRequest
	deletedID string
}

func (m *mockRiskDataService) FetchForProject(_ context.Context, _ string, override *types.Location) (*types.EnvironmentalSnapshot, error) {
	m.override = override
	return m.snapshot, m.err
}

func (m *mockRiskDataService) LatestSnapshot(context.Context, string) (*types.EnvironmentalSnapshot, error) {
	return m.snapshot, m.err
}

func (m *mockRiskDataService) History(_ context.Context, _ string, page types.PageRequest) ([]*types.EnvironmentalSnapshot, int, error) {
	m.page = page
	return m.list, m.total, m.err
}

func (m *mockRiskDataService) DeleteSnapshot(_ context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func newRiskDataHandler(svc *mockRiskDataService) *RiskDataHandler {
	return NewRiskDataHandler(svc, core.NewValidator())
}

func TestHandleFetch_Success(t *testing.T) {
	svc := &mockRiskDataService{snapshot: &types.EnvironmentalSnapshot{
		ID: "snap-1", ProjectID: "proj-1", RainfallMM: 25, FetchedAt: time.Now().UTC(),
	}}

	rec := serve(t, newRiskDataHandler(svc), http.MethodPost, "/v1/risk-data/fetch/proj-1", "")
	expectStatus(t, rec, http.StatusCreated)

	var snap types.EnvironmentalSnapshot
	decodeData(t, rec, &snap)
	if snap.ID != "snap-1" || snap.RainfallMM != 25 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if svc.override != nil {
		t.Errorf("expected no override without a body, got %+v", svc.override)
	}
}

func TestHandleFetch_BodyLocation(t *testing.T) {
	svc := &mockRiskDataService{snapshot: &types.EnvironmentalSnapshot{ID: "snap-1"}}

	rec := serve(t, newRiskDataHandler(svc), http.MethodPost, "/v1/risk-data/fetch/proj-1", `{"lat":-33.86,"lng":151.2}`)
	expectStatus(t, rec, http.StatusCreated)

	if svc.override == nil || svc.override.Lat != -33.86 || svc.override.Lng != 151.2 {
		t.Errorf("unexpected override %+v", svc.override)
	}
}

func TestHandleFetch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		code types.ErrorCode
	}{
		{"bad project id", "/v1/risk-data/fetch/bad%20id", "", types.ErrCodeValidationInvalidProjectID},
		{"latitude out of range", "/v1/risk-data/fetch/proj-1", `{"lat":95,"lng":10}`, types.ErrCodeValidationInvalidLat},
		{"longitude out of range", "/v1/risk-data/fetch/proj-1", `{"lat":10,"lng":200}`, types.ErrCodeValidationInvalidLon},
		{"half a location", "/v1/risk-data/fetch/proj-1", `{"lat":10}`, types.ErrCodeValidationMissingLocation},
		{"malformed body", "/v1/risk-data/fetch/proj-1", `{"lat":`, types.ErrCodeValidationInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRiskDataService{}
			rec := serve(t, newRiskDataHandler(svc), http.MethodPost, tt.path, tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
			if got := errorCode(t, rec); got != string(tt.code) {
				t.Errorf("expected %s, got %s", tt.code, got)
			}
		})
	}
}

func TestHandleFetch_RateLimited(t *testing.T) {
	svc := &mockRiskDataService{err: types.NewAppErrorWithDetails(types.ErrCodeRateLimit, "cooldown", nil,
		map[string]any{"elapsed_seconds": 240, "cooldown_seconds": 600, "retry_after_seconds": 360})}

	rec := serve(t, newRiskDataHandler(svc), http.MethodPost, "/v1/risk-data/fetch/proj-1", "")
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") != "360" {
		t.Errorf("expected Retry-After 360, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestHandleFetch_UpstreamFailure(t *testing.T) {
	svc := &mockRiskDataService{err: types.NewAppError(types.ErrCodeUpstreamWeather, "weather down", nil)}

	rec := serve(t, newRiskDataHandler(svc), http.MethodPost, "/v1/risk-data/fetch/proj-1", "")
	expectStatus(t, rec, http.StatusBadGateway)
}

func TestHandleLatestSnapshot_NotFound(t *testing.T) {
	svc := &mockRiskDataService{err: types.NewAppError(types.ErrCodeNotFoundSnapshot, "none", nil)}

	rec := serve(t, newRiskDataHandler(svc), http.MethodGet, "/v1/risk-data/proj-1/latest", "")
	expectStatus(t, rec, http.StatusNotFound)
	if got := errorCode(t, rec); got != string(types.ErrCodeNotFoundSnapshot) {
		t.Errorf("unexpected code %s", got)
	}
}

func TestHandleSnapshotHistory(t *testing.T) {
	svc := &mockRiskDataService{
		list:  []*types.EnvironmentalSnapshot{{ID: "s2"}, {ID: "s1"}},
		total: 7,
	}

	rec := serve(t, newRiskDataHandler(svc), http.MethodGet, "/v1/risk-data/proj-1/history?page=2&limit=2", "")
	expectStatus(t, rec, http.StatusOK)

	if svc.page != (types.PageRequest{Page: 2, Limit: 2}) {
		t.Errorf("unexpected page %+v", svc.page)
	}
	var list []types.EnvironmentalSnapshot
	decodeData(t, rec, &list)
	if len(list) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(list))
	}
}

func TestHandleSnapshotHistory_DefaultsAndBadLimit(t *testing.T) {
	svc := &mockRiskDataService{list: []*types.EnvironmentalSnapshot{}}

	rec := serve(t, newRiskDataHandler(svc), http.MethodGet, "/v1/risk-data/proj-1/history", "")
	expectStatus(t, rec, http.StatusOK)
	if svc.page != (types.PageRequest{Page: 1, Limit: 20}) {
		t.Errorf("unexpected default page %+v", svc.page)
	}

	rec = serve(t, newRiskDataHandler(svc), http.MethodGet, "/v1/risk-data/proj-1/history?limit=500", "")
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestHandleDeleteSnapshot(t *testing.T) {
	svc := &mockRiskDataService{}
	rec := serve(t, newRiskDataHandler(svc), http.MethodDelete, "/v1/risk-data/snap-9", "")
	expectStatus(t, rec, http.StatusNoContent)
	if svc.deletedID != "snap-9" {
		t.Errorf("expected snap-9 deleted, got %q", svc.deletedID)
	}

	svc.err = types.NewAppError(types.ErrCodeNotFoundSnapshot, "none", nil)
	rec = serve(t, newRiskDataHandler(svc), http.MethodDelete, "/v1/risk-data/snap-9", "")
	expectStatus(t, rec, http.StatusNotFound)
}
