package core

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"resilience/internal/types"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	Data any                 `json:"data"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the envelope of every error response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-visible part of an AppError.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON marshals data and writes it with the given status. A marshal failure
// becomes a 500 envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		types.LoggerFromContext(r.Context(), slog.Default()).ErrorContext(r.Context(),
			"failed to marshal response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to marshal response",
			RequestID: types.GetRequestID(r.Context()),
		}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Data writes data wrapped in an APIResponse.
func Data(w http.ResponseWriter, r *http.Request, status int, data any) {
	JSON(w, r, status, APIResponse{Data: data})
}

// Page writes a list with pagination metadata.
func Page(w http.ResponseWriter, r *http.Request, data any, page types.PageRequest, total int) {
	JSON(w, r, http.StatusOK, APIResponse{
		Data: data,
		Meta: &types.ResponseMeta{Pagination: &types.PageInfo{
			Page:       page.Page,
			Limit:      page.Limit,
			HasMore:    page.Offset()+page.Limit < total,
			TotalItems: &total,
		}},
	})
}

// Error writes the error envelope. An *types.AppError anywhere in the chain
// selects the status and code; anything else is a generic 500 whose message
// is never exposed. Rate-limit errors also set Retry-After.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())
	logger := types.LoggerFromContext(r.Context(), slog.Default())

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		logger.ErrorContext(r.Context(), "unhandled error", "error", err)
		JSON(w, r, http.StatusInternalServerError, APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		}})
		return
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "code", appErr.Code, "error", err)
	}
	if appErr.Code == types.ErrCodeRateLimit {
		if secs, ok := appErr.Details["retry_after_seconds"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	JSON(w, r, status, APIErrorResponse{Error: ErrorDetail{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: requestID,
	}})
}

// DecodeJSON decodes a single JSON object from the body into dst, rejecting
// unknown fields and bodies over 1 MB. With allowEmpty an empty body leaves
// dst untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON object", nil)
	}
	return nil
}

func mapDecodeError(err error) *types.AppError {
	var (
		maxBytesErr      *http.MaxBytesError
		syntaxErr        *json.SyntaxError
		unmarshalTypeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not exceed 1MB", err)
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed JSON in request body", err)
	case errors.As(err, &unmarshalTypeErr):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON, "invalid value for field", err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			})
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err)
	case errors.Is(err, io.EOF):
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not be empty", err)
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid JSON in request body", err)
	}
}

// QueryPage parses page and limit. page defaults to 1; limit defaults to
// defaultLimit and must not exceed maxLimit.
func QueryPage(r *http.Request, defaultLimit, maxLimit int) (types.PageRequest, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return types.PageRequest{}, err
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		return types.PageRequest{}, err
	}
	if page < 1 || limit < 1 || limit > maxLimit {
		return types.PageRequest{}, types.NewAppErrorWithDetails(types.ErrCodeValidationPagination,
			"page must be >= 1 and limit between 1 and "+strconv.Itoa(maxLimit), nil,
			map[string]any{"page": page, "limit": limit})
	}
	return types.PageRequest{Page: page, Limit: limit}, nil
}

// QueryLimit parses an optional non-negative limit. Zero means "use the
// service default"; values above the cap are clamped downstream.
func QueryLimit(r *http.Request) (int, error) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationPagination,
			"limit must not be negative", nil, map[string]any{"limit": limit})
	}
	return limit, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationPagination,
			name+" must be an integer", err, map[string]any{name: raw})
	}
	return v, nil
}
