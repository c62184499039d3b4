// Package audit persists audit events for membership, permission and
// authentication changes.
package audit

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/google/uuid"
)

const Collection = "audit_events"

const (
	CategoryAuth  = "auth"
	CategoryAdmin = "admin"
)

// Auth event types
const (
	EventRegistered              = "registered"
	EventLoginSuccess            = "login_success"
	EventLoginFailedUserNotFound = "login_failed_user_not_found"
	EventLoginFailedWrongPass    = "login_failed_wrong_password"
	EventTokenRefreshed          = "token_refreshed"
)

// Admin event types
const (
	EventGroupCreated       = "group_created"
	EventJoinRequested      = "join_requested"
	EventJoinCancelled      = "join_cancelled"
	EventMemberApproved     = "member_approved"
	EventMemberRejected     = "member_rejected"
	EventMemberLeft         = "member_left"
	EventRoleChanged        = "role_changed"
	EventPermissionsChanged = "permissions_changed"
)

// Event is one audit record.
type Event struct {
	ID        string    `bson:"_id" json:"id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	GroupID   string    `bson:"group_id,omitempty" json:"group_id,omitempty"`

	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"event_type"`

	UserID  string `bson:"user_id,omitempty" json:"user_id,omitempty"`   // affected user
	ActorID string `bson:"actor_id,omitempty" json:"actor_id,omitempty"` // who acted

	IP        string `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	Success       bool              `bson:"success" json:"success"`
	FailureReason string            `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	Details       map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// Validate reports whether a decoded event is usable.
func (e *Event) Validate() error {
	if e.ID == "" || e.EventType == "" {
		return errors.New("audit event missing id or type")
	}
	return nil
}

// Store writes audit events through a docstore.
type Store struct {
	s docstore.Store
}

func New(s docstore.Store) *Store {
	return &Store{s: s}
}

// Log stores event, assigning an id and timestamp when missing.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return s.s.Put(ctx, Collection, event.ID, event)
}

// ByGroup returns the events of a group, newest first, capped at limit
// (zero means no cap).
func (s *Store) ByGroup(ctx context.Context, groupID string, limit int) ([]Event, error) {
	out, err := docstore.QueryAs[Event](ctx, s.s, Collection, docstore.Where("group_id", groupID))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b Event) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
