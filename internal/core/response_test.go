package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"resilience/internal/types"
)

func TestData_WrapsEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	Data(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, map[string]int{"risk_score": 47})

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":{"risk_score":47}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"bad": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestPage_Meta(t *testing.T) {
	w := httptest.NewRecorder()
	Page(w, httptest.NewRequest(http.MethodGet, "/", nil), []string{"a", "b"}, types.PageRequest{Page: 1, Limit: 2}, 5)

	var resp struct {
		Meta types.ResponseMeta `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := resp.Meta.Pagination
	if p == nil || p.TotalItems == nil || *p.TotalItems != 5 || !p.HasMore {
		t.Errorf("unexpected pagination %+v", p)
	}
}

func TestError_AppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   types.ErrorCode
	}{
		{"validation", types.NewAppError(types.ErrCodeValidationInvalidLat, "bad lat", nil), 400, types.ErrCodeValidationInvalidLat},
		{"not found", types.NewAppError(types.ErrCodeNotFoundSnapshot, "none", nil), 404, types.ErrCodeNotFoundSnapshot},
		{"upstream", types.NewAppError(types.ErrCodeUpstreamWeather, "down", nil), 502, types.ErrCodeUpstreamWeather},
		{"database", types.NewAppError(types.ErrCodeInternalDB, "db", errors.New("conn reset")), 500, types.ErrCodeInternalDB},
		{"wrapped", errWrap(types.NewAppError(types.ErrCodeNotFoundProject, "p", nil)), 404, types.ErrCodeNotFoundProject},
		{"generic", errors.New("secret internal detail"), 500, types.ErrCodeInternalUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			var resp APIErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, resp.Error.Code)
			}
			if strings.Contains(w.Body.String(), "secret internal detail") || strings.Contains(w.Body.String(), "conn reset") {
				t.Error("internal error text leaked to client")
			}
		})
	}
}

func errWrap(err error) error { return errors.Join(errors.New("context"), err) }

func TestError_RateLimitSetsRetryAfter(t *testing.T) {
	err := types.NewAppErrorWithDetails(types.ErrCodeRateLimit, "cooldown", nil, map[string]any{
		"elapsed_seconds":     240,
		"cooldown_seconds":    600,
		"retry_after_seconds": 360,
	})
	w := httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodPost, "/", nil), err)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "360" {
		t.Errorf("expected Retry-After 360, got %q", got)
	}
	if !strings.Contains(w.Body.String(), `"cooldown_seconds":600`) {
		t.Errorf("expected details in body: %s", w.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}

	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		wantErr    bool
	}{
		{"valid", `{"latitude":1.5,"longitude":2}`, false, false},
		{"empty rejected", ``, false, true},
		{"empty allowed", ``, true, false},
		{"syntax", `{"latitude":`, false, true},
		{"unknown field", `{"lat":1}`, false, true},
		{"wrong type", `{"latitude":"north"}`, false, true},
		{"two objects", `{"latitude":1}{"latitude":2}`, false, true},
		{"too large", `{"latitude":1,"pad":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), r, &dst, tt.allowEmpty)
			if tt.wantErr {
				if !types.IsCode(err, types.ErrCodeValidationInvalidJSON) {
					t.Errorf("expected validation_invalid_json, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestQueryPage(t *testing.T) {
	tests := []struct {
		query   string
		want    types.PageRequest
		wantErr bool
	}{
		{"", types.PageRequest{Page: 1, Limit: 20}, false},
		{"page=3&limit=50", types.PageRequest{Page: 3, Limit: 50}, false},
		{"page=0", types.PageRequest{}, true},
		{"limit=101", types.PageRequest{}, true},
		{"limit=abc", types.PageRequest{}, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := QueryPage(r, 20, 100)
		if tt.wantErr {
			if !types.IsCode(err, types.ErrCodeValidationPagination) {
				t.Errorf("%q: expected pagination error, got %v", tt.query, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q: got %+v, %v", tt.query, got, err)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if got, err := QueryLimit(r); err != nil || got != 500 {
		t.Errorf("expected 500 passed through, got %d, %v", got, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if got, err := QueryLimit(r); err != nil || got != 0 {
		t.Errorf("expected 0 default, got %d, %v", got, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/?limit=-1", nil)
	if _, err := QueryLimit(r); !types.IsCode(err, types.ErrCodeValidationPagination) {
		t.Errorf("expected pagination error, got %v", err)
	}
}
