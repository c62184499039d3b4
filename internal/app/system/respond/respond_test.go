package respond_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/bandhub/internal/app/system/respond"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{errs.Validation("name required"), http.StatusBadRequest, respond.CodeValidation},
		{fmt.Errorf("group g1: %w", errs.ErrNotFound), http.StatusNotFound, respond.CodeNotFound},
		{errs.ErrPermissionDenied, http.StatusForbidden, respond.CodePermission},
		{errs.ErrUnauthenticated, http.StatusUnauthorized, respond.CodeUnauthorized},
		{errs.ErrConcurrentModification, http.StatusConflict, respond.CodeConflict},
		{errs.ErrDuplicate, http.StatusConflict, respond.CodeConflict},
		{errs.InvalidPolicy("admin module"), http.StatusUnprocessableEntity, respond.CodeInvalidPolicy},
		{errs.ErrLastAdmin, http.StatusConflict, respond.CodeLastAdmin},
		{errs.ErrCodeGenerationExhausted, http.StatusServiceUnavailable, respond.CodeCodesExhausted},
		{errs.ErrUpstreamUnavailable, http.StatusServiceUnavailable, respond.CodeUpstream},
		{&errs.DecodeError{Collection: "groups", ID: "g1", Err: fmt.Errorf("bad")}, http.StatusInternalServerError, respond.CodeDecode},
		{fmt.Errorf("boom"), http.StatusInternalServerError, respond.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := respond.Classify(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("Classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestError_Body(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.Error(rec, zap.NewNop(), "join", errs.Validation("join code must be 6 characters"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != respond.CodeValidation || !strings.Contains(body.Error.Message, "6 characters") {
		t.Errorf("body = %+v", body)
	}
}

func TestError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.Error(rec, zap.NewNop(), "op", fmt.Errorf("mongo: secret host"))
	if strings.Contains(rec.Body.String(), "secret host") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"name":"The Reds"}`, true},
		{"malformed", `{"name":`, false},
		{"unknown field", `{"nom":"x"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if got := respond.Decode(rec, req, &v); got != tt.ok {
				t.Errorf("Decode = %v, want %v", got, tt.ok)
			}
			if !tt.ok && rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
		})
	}
}
