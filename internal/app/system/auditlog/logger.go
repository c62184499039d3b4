// Package auditlog records who changed membership, roles and permissions.
package auditlog

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/bandhub/internal/app/store/audit"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	All = "all" // store and zap
	DB  = "db"
	Log = "log"
	Off = "off"
)

// Config selects where each category is written.
type Config struct {
	Auth  string
	Admin string
}

// ParseConfig applies a single setting to both categories. Unknown values
// fall back to All.
func ParseConfig(setting string) Config {
	s := strings.ToLower(strings.TrimSpace(setting))
	switch s {
	case All, DB, Log, Off:
	default:
		s = All
	}
	return Config{Auth: s, Admin: s}
}

// Logger writes audit events to the audit store and to zap.
// A nil *Logger is valid and does nothing.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a Logger. store may be nil when only zap output is wanted.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

type requestInfo struct {
	ip, userAgent string
}

type ctxKey struct{}

// WithRequest remembers the client address of r so events logged with the
// returned context carry it.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestInfo{ip: clientIP(r), userAgent: r.UserAgent()})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.GroupID != "" {
		fields = append(fields, zap.String("group_id", event.GroupID))
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records event according to the category setting. Storage failures
// are logged and swallowed; auditing never fails the caller's operation.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = All
	}
	if setting == Off {
		return
	}

	if info, ok := ctx.Value(ctxKey{}).(requestInfo); ok {
		event.IP = info.ip
		event.UserAgent = info.userAgent
	}

	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

func (l *Logger) Registered(ctx context.Context, userID, email string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAuth, EventType: audit.EventRegistered,
		UserID: userID, Success: true,
		Details: map[string]string{"email": email},
	})
}

func (l *Logger) LoginSuccess(ctx context.Context, userID, email string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAuth, EventType: audit.EventLoginSuccess,
		UserID: userID, Success: true,
		Details: map[string]string{"email": email},
	})
}

func (l *Logger) LoginFailedUserNotFound(ctx context.Context, email string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAuth, EventType: audit.EventLoginFailedUserNotFound,
		FailureReason: "user not found",
		Details:       map[string]string{"attempted_email": email},
	})
}

func (l *Logger) LoginFailedWrongPassword(ctx context.Context, userID, email string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAuth, EventType: audit.EventLoginFailedWrongPass,
		UserID: userID, FailureReason: "wrong password",
		Details: map[string]string{"email": email},
	})
}

func (l *Logger) TokenRefreshed(ctx context.Context, userID string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAuth, EventType: audit.EventTokenRefreshed,
		UserID: userID, Success: true,
	})
}

// --- Group Events ---

func (l *Logger) GroupCreated(ctx context.Context, actorID, groupID, name string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventGroupCreated,
		GroupID: groupID, ActorID: actorID, UserID: actorID, Success: true,
		Details: map[string]string{"name": name},
	})
}

func (l *Logger) JoinRequested(ctx context.Context, groupID, userID string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventJoinRequested,
		GroupID: groupID, UserID: userID, ActorID: userID, Success: true,
	})
}

func (l *Logger) JoinCancelled(ctx context.Context, groupID, userID string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventJoinCancelled,
		GroupID: groupID, UserID: userID, ActorID: userID, Success: true,
	})
}

func (l *Logger) MemberApproved(ctx context.Context, actorID, groupID, userID string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventMemberApproved,
		GroupID: groupID, UserID: userID, ActorID: actorID, Success: true,
	})
}

func (l *Logger) MemberRejected(ctx context.Context, actorID, groupID, userID string) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventMemberRejected,
		GroupID: groupID, UserID: userID, ActorID: actorID, Success: true,
	})
}

func (l *Logger) MemberLeft(ctx context.Context, groupID, userID, successorID string) {
	ev := audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventMemberLeft,
		GroupID: groupID, UserID: userID, ActorID: userID, Success: true,
	}
	if successorID != "" {
		ev.Details = map[string]string{"successor_id": successorID}
	}
	l.Log(ctx, ev)
}

func (l *Logger) RoleChanged(ctx context.Context, actorID, groupID, userID string, from, to models.Role) {
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventRoleChanged,
		GroupID: groupID, UserID: userID, ActorID: actorID, Success: true,
		Details: map[string]string{"from": string(from), "to": string(to)},
	})
}

// PermissionsChanged records the new role set of one module.
func (l *Logger) PermissionsChanged(ctx context.Context, actorID, groupID string, module models.Module, roles []models.Role) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	l.Log(ctx, audit.Event{
		Category: audit.CategoryAdmin, EventType: audit.EventPermissionsChanged,
		GroupID: groupID, ActorID: actorID, Success: true,
		Details: map[string]string{"module": string(module), "roles": strings.Join(names, ",")},
	})
}
