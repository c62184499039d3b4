// internal/app/features/login/handler.go
package login

import (
	"context"
	"net/http"

	"github.com/dalemusser/bandhub/internal/app/accounts"
	"github.com/dalemusser/bandhub/internal/app/session"
	"github.com/dalemusser/bandhub/internal/app/system/auditlog"
	"github.com/dalemusser/bandhub/internal/app/system/auth"
	"github.com/dalemusser/bandhub/internal/app/system/ratelimit"
	"github.com/dalemusser/bandhub/internal/app/system/respond"
	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves registration, sign-in, token refresh and the caller's
// profile. Responses use the token shape the client session consumes.
type Handler struct {
	Accounts   *accounts.Service
	Tokens     *auth.Tokens
	SessionMgr *auth.SessionManager // optional; sets the browser cookie
	AuditLog   *auditlog.Logger
	Limiter    *ratelimit.LoginGuard // optional; throttles /auth/login
	Log        *zap.Logger
}

func NewHandler(acct *accounts.Service, tokens *auth.Tokens, sessionMgr *auth.SessionManager, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts:   acct,
		Tokens:     tokens,
		SessionMgr: sessionMgr,
		AuditLog:   audit,
		Log:        logger,
	}
}

// WithLimiter throttles sign-in attempts with g.
func (h *Handler) WithLimiter(g *ratelimit.LoginGuard) *Handler {
	h.Limiter = g
	return h
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type profileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func profileOf(u models.User) *session.Profile {
	return &session.Profile{
		UserID:  u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Phone:   u.Phone,
		GroupID: u.GroupID,
		Role:    u.Role,
	}
}

func identityOf(u models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Name: u.Name}
}

// issue signs a fresh access/refresh pair.
func (h *Handler) issue(id auth.Identity) (session.TokenResponse, error) {
	access, exp, err := h.Tokens.Issue(id, auth.KindAccess)
	if err != nil {
		return session.TokenResponse{}, err
	}
	refresh, _, err := h.Tokens.Issue(id, auth.KindRefresh)
	if err != nil {
		return session.TokenResponse{}, err
	}
	return session.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    exp,
	}, nil
}

// signedIn answers a successful register or login.
func (h *Handler) signedIn(w http.ResponseWriter, r *http.Request, status int, u models.User) {
	tr, err := h.issue(identityOf(u))
	if err != nil {
		respond.Error(w, h.Log, "issue tokens", err)
		return
	}
	tr.User = profileOf(u)
	if h.SessionMgr != nil {
		if err := h.SessionMgr.SignIn(w, r, identityOf(u)); err != nil {
			h.Log.Warn("session cookie not set", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	respond.JSON(w, status, tr)
}

func (h *Handler) reqContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := auditlog.WithRequest(r.Context(), r)
	return context.WithTimeout(ctx, timeouts.Short())
}

// HandleRegister handles POST /auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req accounts.Registration
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.reqContext(r)
	defer cancel()

	u, err := h.Accounts.Register(ctx, req)
	if err != nil {
		respond.Error(w, h.Log, "register", err)
		return
	}
	h.signedIn(w, r, http.StatusCreated, u)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := h.reqContext(r)
	defer cancel()

	if h.Limiter != nil {
		if err := h.Limiter.Check(ctx, r, req.Email); err != nil {
			h.Log.Warn("login throttled", zap.String("ip", ratelimit.ClientIP(r)))
			respond.Fail(w, http.StatusTooManyRequests, respond.CodeRateLimited,
				"too many sign-in attempts, try again in a few minutes")
			return
		}
	}

	u, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		respond.Error(w, h.Log, "login", err)
		return
	}
	if h.Limiter != nil {
		h.Limiter.Succeeded(ctx, req.Email)
	}
	h.signedIn(w, r, http.StatusOK, u)
}

// HandleRefresh handles POST /auth/refresh. The refresh token is
// rotated on every call.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	id, err := h.Tokens.Verify(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		respond.Error(w, h.Log, "refresh", err)
		return
	}
	ctx, cancel := h.reqContext(r)
	defer cancel()

	// The account must still exist.
	u, err := h.Accounts.Get(ctx, id.UserID)
	if err != nil {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "account no longer exists")
		return
	}
	tr, err := h.issue(identityOf(u))
	if err != nil {
		respond.Error(w, h.Log, "issue tokens", err)
		return
	}
	h.AuditLog.TokenRefreshed(ctx, u.ID)
	respond.JSON(w, http.StatusOK, tr)
}

// HandleLogout handles POST /auth/logout. Bearer tokens are stateless;
// only the cookie session is cleared.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if h.SessionMgr != nil {
		if err := h.SessionMgr.SignOut(w, r); err != nil {
			h.Log.Warn("session cookie not cleared", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeMe handles GET /auth/me.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Accounts.Get(ctx, id.UserID)
	if err != nil {
		respond.Error(w, h.Log, "load profile", err)
		return
	}
	respond.JSON(w, http.StatusOK, profileOf(u))
}

// HandleUpdateMe handles PATCH /auth/me.
func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	id, _ := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Accounts.UpdateProfile(ctx, id.UserID, req.Name, req.Phone)
	if err != nil {
		respond.Error(w, h.Log, "update profile", err)
		return
	}
	respond.JSON(w, http.StatusOK, profileOf(u))
}
