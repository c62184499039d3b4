package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userEmail = "user_email"
)

// SessionManager keeps a signed cookie session for browser clients and
// resolves the caller from either a bearer token or that cookie.
type SessionManager struct {
	store  *sessions.CookieStore
	name   string
	tokens *Tokens
	log    *zap.Logger
}

// NewSessionManager builds a cookie store signed with sessionKey.
func NewSessionManager(sessionKey, name, domain string, secure bool, tokens *Tokens, logger *zap.Logger) (*SessionManager, error) {
	if len(sessionKey) < 32 {
		return nil, errors.New("session key must be at least 32 bytes")
	}
	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   domain,
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store, name: name, tokens: tokens, log: logger}, nil
}

// SignIn stores id in the cookie session.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, id Identity) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = id.UserID
	sess.Values[userName] = id.Name
	sess.Values[userEmail] = id.Email
	return sess.Save(r, w)
}

// SignOut expires the cookie session.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// LoadIdentity puts the caller on the request context when a valid
// bearer access token or cookie session is present. A bearer token that
// fails verification is ignored here; RequireSignedIn rejects the request.
func (m *SessionManager) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := m.identityFrom(r); ok {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *SessionManager) identityFrom(r *http.Request) (Identity, bool) {
	if tok, ok := BearerToken(r); ok {
		id, err := m.tokens.Verify(tok, KindAccess)
		if err != nil {
			m.log.Debug("bearer token rejected", zap.Error(err))
			return Identity{}, false
		}
		return id, true
	}

	sess, err := m.store.Get(r, m.name)
	if err != nil {
		// Tampered or stale cookie; treat as signed out.
		return Identity{}, false
	}
	if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
		return Identity{}, false
	}
	id := Identity{
		UserID: getString(sess, userIDKey),
		Name:   getString(sess, userName),
		Email:  getString(sess, userEmail),
	}
	return id, id.UserID != ""
}

// RequireSignedIn answers 401 when no identity was loaded.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"sign in required"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != ""
}

func getString(s *sessions.Session, key string) string {
	v, _ := s.Values[key].(string)
	return v
}
