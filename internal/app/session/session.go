// Package session is the client side of identity: it holds the signed-in
// user's profile and tokens, refreshes the access token when it expires,
// and can be persisted as a signed blob.
//
// A Session is passed explicitly to whatever needs it; there is no
// package-level current session.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"
)

// Profile is the signed-in user as reported by the backend.
type Profile struct {
	UserID  string      `json:"user_id"`
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Phone   string      `json:"phone,omitempty"`
	GroupID string      `json:"group_id,omitempty"`
	Role    models.Role `json:"role,omitempty"`
}

// Backend is the identity provider.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (Profile, *oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Session holds the current identity. The zero value is not usable; call New.
type Session struct {
	mu      sync.Mutex
	backend Backend
	profile *Profile
	token   *oauth2.Token
	source  oauth2.TokenSource
}

func New(backend Backend) *Session {
	return &Session{backend: backend}
}

// refresher exchanges the refresh token when the cached access token
// expires. oauth2.ReuseTokenSource calls it under its own lock.
type refresher struct {
	ctx     context.Context
	backend Backend
	refresh string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	if r.refresh == "" {
		return nil, fmt.Errorf("%w: no refresh token", errs.ErrUnauthenticated)
	}
	tok, err := r.backend.Refresh(r.ctx, r.refresh)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" {
		r.refresh = tok.RefreshToken
	}
	return tok, nil
}

// install replaces the token and rebuilds the refreshing source. Callers
// hold s.mu.
func (s *Session) install(tok *oauth2.Token) {
	s.token = tok
	// The refresher outlives the call that created it.
	s.source = oauth2.ReuseTokenSource(tok, &refresher{
		ctx:     context.Background(),
		backend: s.backend,
		refresh: tok.RefreshToken,
	})
}

// Login signs in and replaces any previous identity.
func (s *Session) Login(ctx context.Context, email, password string) (Profile, error) {
	p, tok, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
	s.install(tok)
	return p, nil
}

// Logout forgets the identity.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	s.token = nil
	s.source = nil
}

// Profile returns the signed-in profile.
func (s *Session) Profile() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// SetGroup records a group change made elsewhere (create, join approval,
// leave) on the cached profile.
func (s *Session) SetGroup(groupID string, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile != nil {
		s.profile.GroupID = groupID
		s.profile.Role = role
	}
}

// CurrentUser implements auth.Authenticator.
func (s *Session) CurrentUser(context.Context) (auth.Identity, error) {
	p, ok := s.Profile()
	if !ok {
		return auth.Identity{}, errs.ErrUnauthenticated
	}
	return auth.Identity{UserID: p.UserID, Email: p.Email, Name: p.Name}, nil
}

// Token returns a valid access token, refreshing it when expired.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()
	if src == nil {
		return nil, errs.ErrUnauthenticated
	}
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.source == src {
		s.token = tok
	}
	s.mu.Unlock()
	return tok, nil
}

// Refresh exchanges the refresh token now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	cur := s.token
	s.mu.Unlock()
	if cur == nil || cur.RefreshToken == "" {
		return nil, errs.ErrUnauthenticated
	}
	tok, err := s.backend.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = cur.RefreshToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != cur {
		// Logged out or replaced meanwhile.
		return nil, errs.ErrUnauthenticated
	}
	s.install(tok)
	return tok, nil
}

// Client returns an HTTP client that sends the session's access token,
// refreshing it as needed.
func (s *Session) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}

const blobName = "bandhub-session"

type blob struct {
	Profile Profile       `json:"profile"`
	Token   *oauth2.Token `json:"token"`
}

// NewCodec builds the signer for persisted sessions. blockKey may be nil
// to sign without encrypting.
func NewCodec(hashKey, blockKey []byte) *securecookie.SecureCookie {
	c := securecookie.New(hashKey, blockKey)
	c.SetSerializer(securecookie.JSONEncoder{})
	c.MaxAge(0)
	return c
}

// Export serializes the session into a signed string.
func (s *Session) Export(codec *securecookie.SecureCookie) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil || s.token == nil {
		return "", errs.ErrUnauthenticated
	}
	return codec.Encode(blobName, blob{Profile: *s.profile, Token: s.token})
}

// Restore loads a blob produced by Export. A tampered blob is reported
// as errs.ErrUnauthenticated and leaves the session unchanged.
func (s *Session) Restore(codec *securecookie.SecureCookie, encoded string) error {
	var b blob
	if err := codec.Decode(blobName, encoded, &b); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
	}
	if b.Token == nil || b.Profile.UserID == "" {
		return fmt.Errorf("%w: incomplete session", errs.ErrUnauthenticated)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &b.Profile
	s.install(b.Token)
	return nil
}
