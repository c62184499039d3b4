package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

// TokenResponse is the body returned by /auth/login, /auth/register and
// /auth/refresh.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *Profile  `json:"user,omitempty"`
}

// OAuth2 converts the response into an oauth2.Token.
func (t TokenResponse) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.ExpiresAt,
	}
}

// HTTPBackend talks to the BandHub service.
type HTTPBackend struct {
	BaseURL  string
	Client   *http.Client
	Attempts int           // default 3
	Backoff  time.Duration // default 100ms
}

func (b *HTTPBackend) SignIn(ctx context.Context, email, password string) (Profile, *oauth2.Token, error) {
	var resp TokenResponse
	err := b.post(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return Profile{}, nil, err
	}
	if resp.User == nil {
		return Profile{}, nil, fmt.Errorf("%w: login response without user", errs.ErrUpstreamUnavailable)
	}
	return *resp.User, resp.OAuth2(), nil
}

func (b *HTTPBackend) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var resp TokenResponse
	if err := b.post(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, &resp); err != nil {
		return nil, err
	}
	return resp.OAuth2(), nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends a JSON body and decodes the reply. Network failures and 5xx
// answers are retried with exponential backoff.
func (b *HTTPBackend) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := b.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	url := strings.TrimRight(b.BaseURL, "/") + path

	policy := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(backoff))
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := client.Do(req)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) || errors.Is(err, io.EOF) {
				return retry.RetryableError(fmt.Errorf("%w: %v", errs.ErrUpstreamUnavailable, err))
			}
			return fmt.Errorf("%w: %v", errs.ErrUpstreamUnavailable, err)
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%w: %s answered %d", errs.ErrUpstreamUnavailable, path, res.StatusCode))
		case res.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", errs.ErrUnauthenticated, readError(res.Body))
		case res.StatusCode >= 400:
			return fmt.Errorf("%w: %s", errs.ErrValidation, readError(res.Body))
		}
		return json.NewDecoder(res.Body).Decode(out)
	})
	return err
}

func readError(r io.Reader) string {
	var e apiError
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&e); err != nil || e.Error.Message == "" {
		return "request rejected"
	}
	return e.Error.Message
}
