package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// NewJSONRequest builds a request with body encoded as JSON. A nil body
// sends no payload.
func NewJSONRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// ResponseRecorder wraps httptest.ResponseRecorder with assertions.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t testing.TB, expected int) {
	t.Helper()
	if r.Code != expected {
		t.Errorf("expected status %d, got %d: %s", expected, r.Code, r.Body.String())
	}
}

// AssertContains checks that the body contains expected.
func (r *ResponseRecorder) AssertContains(t testing.TB, expected string) {
	t.Helper()
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("expected body to contain %q, got %q", expected, r.Body.String())
	}
}

// Decode unmarshals the JSON body into v.
func (r *ResponseRecorder) Decode(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v; body %q", err, r.Body.String())
	}
}

// UserHeader names the header IdentityFromHeader reads.
const UserHeader = "X-Test-User"

// IdentityFromHeader signs requests in as the user id in UserHeader.
// It stands in for the session middleware in handler tests.
func IdentityFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(UserHeader); id != "" {
			r = WithUser(r, id)
		}
		next.ServeHTTP(w, r)
	})
}

// Do serves a JSON request as userID (empty for anonymous) and returns
// the recorder.
func Do(h http.Handler, userID, method, target string, body any) *ResponseRecorder {
	req := NewJSONRequest(method, target, body)
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	rec := NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
