package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/middleware/trace"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// badRequestError marks malformed input that never reached the domain:
// undecodable JSON, unparsable query parameters, a missing user header.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// statusFor maps the ledger error taxonomy to HTTP.
func statusFor(err error) int {
	var bad *badRequestError
	var repoErr *core.RepositoryError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, core.ErrArithmeticInvariant):
		return http.StatusInternalServerError
	case errors.As(err, &repoErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError logs server-side failures and renders err. Internal details
// are only exposed for client errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := errorDetail{
		Code:      applog.ErrorType(err),
		Message:   err.Error(),
		RequestID: trace.GetRequestID(r.Context()),
	}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		detail.Field = ve.Field
	}

	var bad *badRequestError
	if errors.As(err, &bad) {
		detail.Code = "bad_request"
	}

	if status >= 500 {
		logger := applog.FromContext(r.Context())
		fields := applog.NewFields().
			WithRequestID(detail.RequestID).
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").
			WithUser(r.Header.Get(HeaderUserID))
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, "request", fields)

		if status == http.StatusServiceUnavailable {
			detail.Message = "storage temporarily unavailable"
		} else {
			detail.Message = "internal error"
		}
	}

	writeJSON(w, status, errorBody{Error: detail})
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
		Code:      "rate_limited",
		Message:   "rate limit exceeded, retry later",
		RequestID: trace.GetRequestID(r.Context()),
	}})
}
