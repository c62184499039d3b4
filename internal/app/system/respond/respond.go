// Package respond writes JSON responses and maps domain errors to HTTP
// status codes and stable error codes.
//
// Error body shape:
//
//	{ "error": { "code": "VALIDATION_ERROR", "message": "..." } }

package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	"go.uber.org/zap"
)

// Error codes returned in the "code" field.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "RESOURCE_NOT_FOUND"
	CodePermission     = "PERMISSION_DENIED"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeConflict       = "CONFLICT"
	CodeInvalidPolicy  = "INVALID_POLICY"
	CodeLastAdmin      = "LAST_ADMIN"
	CodeCodesExhausted = "CODE_GENERATION_EXHAUSTED"
	CodeUpstream       = "UPSTREAM_UNAVAILABLE"
	CodeDecode         = "DECODE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
	CodeMalformedBody  = "MALFORMED_BODY"
	CodeRateLimited    = "RATE_LIMITED"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mapping is checked in order; the first sentinel err matches wins.
var mapping = []struct {
	target error
	status int
	code   string
}{
	{errs.ErrValidation, http.StatusBadRequest, CodeValidation},
	{errs.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},
	{errs.ErrPermissionDenied, http.StatusForbidden, CodePermission},
	{errs.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{errs.ErrLastAdmin, http.StatusConflict, CodeLastAdmin},
	{errs.ErrConcurrentModification, http.StatusConflict, CodeConflict},
	{errs.ErrDuplicate, http.StatusConflict, CodeConflict},
	{errs.ErrInvalidPolicy, http.StatusUnprocessableEntity, CodeInvalidPolicy},
	{errs.ErrCodeGenerationExhausted, http.StatusServiceUnavailable, CodeCodesExhausted},
	{errs.ErrUpstreamUnavailable, http.StatusServiceUnavailable, CodeUpstream},
	{errs.ErrDecode, http.StatusInternalServerError, CodeDecode},
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	for _, m := range mapping {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Fail writes an error body with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// Error classifies err and writes it. Server-side failures are logged
// and their details withheld from the client.
func Error(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status, code := Classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.Error(op+" failed", zap.String("code", code), zap.Error(err))
		}
		if code == CodeInternal || code == CodeDecode {
			msg = http.StatusText(status)
		}
	}
	Fail(w, status, code, msg)
}

// Decode reads a JSON request body into v. It writes a 400 and returns
// false when the body is malformed.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		Fail(w, http.StatusBadRequest, CodeMalformedBody, "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}
